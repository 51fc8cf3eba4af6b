package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func atmParams() ContractParameters {
	return ContractParameters{Spot: 100, Strike: 100, Expiry: 1, Rate: 0.05, Volatility: 0.2}
}

func TestParseOptionType(t *testing.T) {
	cases := map[string]OptionType{"call": OptionTypeCall, "C": OptionTypeCall, " Put ": OptionTypePut, "p": OptionTypePut}
	for in, want := range cases {
		got, err := ParseOptionType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseOptionType("straddle")
	assert.ErrorIs(t, err, ErrUnknownOptionType)
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("", 0)
	require.NoError(t, err)
	assert.Equal(t, ModelBlackScholes, m.Kind)

	m, err = ParseModel("American_Binomial", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBinomialSteps, m.Steps)
	assert.Equal(t, "american_binomial(500)", m.String())

	m, err = ParseModel("american_binomial", 64)
	require.NoError(t, err)
	assert.Equal(t, 64, m.Steps)

	for _, kind := range ModelKinds() {
		parsed, err := ParseModel(kind.String(), 10)
		require.NoError(t, err)
		assert.Equal(t, kind, parsed.Kind)
	}

	_, err = ParseModel("heston", 0)
	assert.ErrorIs(t, err, ErrUnknownModel)

	assert.ErrorIs(t, Model{Kind: ModelKind(42)}.Validate(), ErrUnknownModel)
	assert.ErrorIs(t, Model{Kind: ModelAmericanBinomial}.Validate(), ErrInvalidDomain)
}

func TestContractParametersValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ContractParameters)
		field  string
	}{
		{"zero spot", func(p *ContractParameters) { p.Spot = 0 }, "spot"},
		{"negative strike", func(p *ContractParameters) { p.Strike = -1 }, "strike"},
		{"negative expiry", func(p *ContractParameters) { p.Expiry = -0.1 }, "expiry"},
		{"negative volatility", func(p *ContractParameters) { p.Volatility = -0.2 }, "volatility"},
		{"nan rate", func(p *ContractParameters) { p.Rate = math.NaN() }, "rate"},
		{"infinite dividend", func(p *ContractParameters) { p.Dividend = math.Inf(1) }, "dividend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := atmParams()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDomain)

			var domainErr *InvalidDomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, tt.field, domainErr.Field)
		})
	}

	p := atmParams()
	p.Rate = -0.01
	p.Expiry = 0
	p.Volatility = 0
	assert.NoError(t, p.Validate())
}

func TestGeneralizedPriceReferenceValues(t *testing.T) {
	for spot, want := range map[float64]float64{90: 5.0912, 100: 10.4506, 110: 17.6630} {
		got := BlackScholesPrice(OptionTypeCall, spot, 100, 1, 0.05, 0.2)
		assert.InDelta(t, want, got, 1e-3, "spot %v", spot)
	}
	assert.InDelta(t, 5.5735, BlackScholesPrice(OptionTypePut, 100, 100, 1, 0.05, 0.2), 1e-3)
	assert.InDelta(t, 7.5771, Black76Price(OptionTypeCall, 100, 100, 1, 0.05, 0.2), 1e-3)
	assert.InDelta(t, 8.6525, MertonPrice(OptionTypeCall, 100, 100, 1, 0.05, 0.03, 0.2), 1e-3)

	p := atmParams()
	p.Dividend = 0.03
	p.CostOfCarry = 0.02
	merton := PriceUnchecked(Model{Kind: ModelMerton}, OptionTypeCall, p)
	generalized := PriceUnchecked(Model{Kind: ModelGeneralized}, OptionTypeCall, p)
	assert.InDelta(t, merton, generalized, 1e-12)
}

func TestPutCallParity(t *testing.T) {
	for _, s := range []float64{50, 95, 100, 140} {
		for _, k := range []float64{80, 100, 125} {
			for _, tt := range []float64{0.01, 0.5, 2} {
				for _, r := range []float64{-0.02, 0, 0.05} {
					for _, b := range []float64{-0.03, 0, 0.04} {
						for _, sigma := range []float64{0, 0.1, 0.45} {
							call := GeneralizedPrice(OptionTypeCall, s, k, tt, r, b, sigma)
							put := GeneralizedPrice(OptionTypePut, s, k, tt, r, b, sigma)
							forward := s*math.Exp((b-r)*tt) - k*math.Exp(-r*tt)
							assert.InDelta(t, forward, call-put, 1e-9, "S=%v K=%v T=%v r=%v b=%v σ=%v", s, k, tt, r, b, sigma)
						}
					}
				}
			}
		}
	}
}

func TestExpiryBoundary(t *testing.T) {
	for _, expiry := range []float64{0, 1e-8, ExpiryThreshold} {
		assert.Equal(t, 10.0, GeneralizedPrice(OptionTypeCall, 110, 100, expiry, 0.05, 0.05, 0.2))
		assert.Equal(t, 0.0, GeneralizedPrice(OptionTypePut, 110, 100, expiry, 0.05, 0.05, 0.2))

		g := GeneralizedGreeks(OptionTypeCall, 110, 100, expiry, 0.05, 0.05, 0.2, true)
		assert.Equal(t, Greeks{Delta: 1}, g)
		g = GeneralizedGreeks(OptionTypePut, 90, 100, expiry, 0.05, 0.05, 0.2, true)
		assert.Equal(t, Greeks{Delta: -1}, g)
		g = GeneralizedGreeks(OptionTypePut, 110, 100, expiry, 0.05, 0.05, 0.2, true)
		assert.Equal(t, Greeks{}, g)
	}

	// S = K 时 Delta 取 0
	assert.Equal(t, 0.0, GeneralizedGreeks(OptionTypeCall, 100, 100, 0, 0.05, 0.05, 0.2, true).Delta)
	assert.Equal(t, 0.0, GeneralizedGreeks(OptionTypePut, 100, 100, 0, 0.05, 0.05, 0.2, true).Delta)
}

func TestNoArbitrageBounds(t *testing.T) {
	for _, tt := range []float64{1e-6, 0.25, 1, 5} {
		for _, r := range []float64{-0.01, 0.03} {
			for _, b := range []float64{-0.02, 0.03} {
				for _, sigma := range []float64{0, 1e-8, 0.3, 2} {
					for _, s := range []float64{60, 100, 160} {
						k := 100.0
						spotCarry := s * math.Exp((b-r)*tt)
						strikeDisc := k * math.Exp(-r*tt)

						call := GeneralizedPrice(OptionTypeCall, s, k, tt, r, b, sigma)
						assert.GreaterOrEqual(t, call, math.Max(spotCarry-strikeDisc, 0)-1e-12)
						assert.LessOrEqual(t, call, spotCarry+1e-12)

						put := GeneralizedPrice(OptionTypePut, s, k, tt, r, b, sigma)
						assert.GreaterOrEqual(t, put, math.Max(strikeDisc-spotCarry, 0)-1e-12)
						assert.LessOrEqual(t, put, strikeDisc+1e-12)
					}
				}
			}
		}
	}
}

func TestZeroVolatilityIsDiscountedForwardIntrinsic(t *testing.T) {
	call := GeneralizedPrice(OptionTypeCall, 100, 95, 1, 0.05, 0.05, 0)
	assert.InDelta(t, 100-95*math.Exp(-0.05), call, 1e-12)

	put := GeneralizedPrice(OptionTypePut, 100, 95, 1, 0.05, 0.05, 0)
	assert.Equal(t, 0.0, put)

	g := GeneralizedGreeks(OptionTypeCall, 100, 95, 1, 0.05, 0.05, 0, true)
	assert.Equal(t, 1.0, g.Delta)
	assert.Equal(t, 0.0, g.Gamma)
	assert.Equal(t, 0.0, g.Vega)
}

func TestMonotonicity(t *testing.T) {
	prev := 0.0
	for s := 60.0; s <= 160; s += 10 {
		price := GeneralizedPrice(OptionTypeCall, s, 100, 1, 0.05, 0.02, 0.25)
		assert.Greater(t, price, prev)
		prev = price
	}

	prev = math.Inf(1)
	for k := 60.0; k <= 160; k += 10 {
		price := GeneralizedPrice(OptionTypeCall, 100, k, 1, 0.05, 0.02, 0.25)
		assert.Less(t, price, prev)
		prev = price
	}

	for _, optionType := range []OptionType{OptionTypeCall, OptionTypePut} {
		prev = 0
		for sigma := 0.05; sigma <= 1.5; sigma += 0.05 {
			price := GeneralizedPrice(optionType, 100, 110, 1, 0.05, 0.02, sigma)
			assert.Greater(t, price, prev)
			prev = price
		}
	}
}

func TestAnalyticGreeksMatchFiniteDifferences(t *testing.T) {
	models := []Model{{Kind: ModelBlackScholes}, {Kind: ModelBlack76}, {Kind: ModelMerton}, {Kind: ModelGeneralized}}
	base := ContractParameters{Spot: 105, Strike: 100, Expiry: 0.75, Rate: 0.04, Dividend: 0.02, CostOfCarry: 0.01, Volatility: 0.3}

	bumped := func(m Model, optionType OptionType, p ContractParameters, h float64, bump func(*ContractParameters, float64)) float64 {
		up, down := p, p
		bump(&up, h)
		bump(&down, -h)
		return (PriceUnchecked(m, optionType, up) - PriceUnchecked(m, optionType, down)) / (2 * h)
	}

	for _, m := range models {
		for _, optionType := range []OptionType{OptionTypeCall, OptionTypePut} {
			g := GreeksUnchecked(m, optionType, base)
			name := m.String() + "/" + string(optionType)

			assert.InDelta(t, bumped(m, optionType, base, 1e-3, func(p *ContractParameters, h float64) { p.Spot += h }), g.Delta, 1e-6, name)
			assert.InDelta(t, bumped(m, optionType, base, 1e-5, func(p *ContractParameters, h float64) { p.Volatility += h }), g.Vega, 1e-5, name)
			assert.InDelta(t, -bumped(m, optionType, base, 1e-5, func(p *ContractParameters, h float64) { p.Expiry += h }), g.Theta, 1e-5, name)
			assert.InDelta(t, bumped(m, optionType, base, 1e-5, func(p *ContractParameters, h float64) { p.Rate += h }), g.Rho, 1e-5, name)

			up, down := base, base
			up.Spot += 1e-2
			down.Spot -= 1e-2
			gamma := (PriceUnchecked(m, optionType, up) - 2*PriceUnchecked(m, optionType, base) + PriceUnchecked(m, optionType, down)) / 1e-4
			assert.InDelta(t, gamma, g.Gamma, 1e-5, name)

			if m.Kind == ModelMerton {
				assert.True(t, g.HasDividendRho)
				assert.InDelta(t, bumped(m, optionType, base, 1e-5, func(p *ContractParameters, h float64) { p.Dividend += h }), g.DividendRho, 1e-5, name)
			} else {
				assert.False(t, g.HasDividendRho)
				assert.Zero(t, g.DividendRho)
			}
		}
	}
}

func TestPriceValidation(t *testing.T) {
	p := atmParams()
	p.Spot = -1
	_, err := Price(Model{Kind: ModelBlackScholes}, OptionTypeCall, p)
	assert.ErrorIs(t, err, ErrInvalidDomain)

	_, err = Price(Model{Kind: ModelBlackScholes}, OptionType("STRADDLE"), atmParams())
	assert.ErrorIs(t, err, ErrUnknownOptionType)

	_, err = ComputeGreeks(Model{Kind: ModelKind(99)}, OptionTypeCall, atmParams())
	assert.ErrorIs(t, err, ErrUnknownModel)

	// 不校验路径按浮点运算传播 NaN
	p = atmParams()
	p.Volatility = math.NaN()
	assert.True(t, math.IsNaN(PriceUnchecked(Model{Kind: ModelBlackScholes}, OptionTypeCall, p)))
}
