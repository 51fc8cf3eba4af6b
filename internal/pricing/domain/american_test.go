package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// American put S=K=100, T=1, r=5%, q=0, σ=20%（高步数二叉树收敛值）
const americanPutReference = 6.0904

func TestDampeningFactor(t *testing.T) {
	tests := []struct {
		name      string
		base      float64
		moneyness float64
		regime    string
		want      float64
	}{
		{"atm", 0.75, 1.0, "atm", 0.75},
		{"atm lower edge", 0.75, 0.9, "atm", 0.75},
		{"atm upper edge", 0.75, 1.1, "atm", 0.75},
		{"near atm", 0.75, 0.85, "near_atm", 0.7725},
		{"near atm upper edge", 0.75, 1.2, "near_atm", 0.7725},
		{"deep otm capped", 0.75, 0.5, "deep_otm", DampeningCap},
		{"deep itm", 0.75, 1.5, "deep_itm", 0.7125},
		{"floor", 0.5, 1.0, "atm", DampeningFloor},
		{"cap", 0.9, 1.0, "atm", DampeningCap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.regime, RegimeFor(tt.moneyness).Name)
			assert.InDelta(t, tt.want, DampeningFactor(tt.base, tt.moneyness), 1e-12)
		})
	}
}

func americanModels() []Model {
	return []Model{
		{Kind: ModelAmericanBAW},
		{Kind: ModelAmericanBjerksundStensland},
		{Kind: ModelAmericanBinomial, Steps: 200},
	}
}

func TestAmericanDominatesEuropeanAndIntrinsic(t *testing.T) {
	for _, m := range americanModels() {
		for _, optionType := range []OptionType{OptionTypeCall, OptionTypePut} {
			for _, s := range []float64{60, 85, 100, 115, 150} {
				for _, q := range []float64{0, 0.04} {
					for _, sigma := range []float64{0, 0.15, 0.6} {
						p := ContractParameters{Spot: s, Strike: 100, Expiry: 1.5, Rate: 0.05, Dividend: q, Volatility: sigma}
						american := PriceUnchecked(m, optionType, p)
						european := MertonPrice(optionType, s, 100, 1.5, 0.05, q, sigma)

						require.False(t, math.IsNaN(american), "%s %s S=%v", m, optionType, s)
						assert.GreaterOrEqual(t, american, european, "%s %s S=%v q=%v σ=%v", m, optionType, s, q, sigma)
						assert.GreaterOrEqual(t, american, Intrinsic(optionType, s, 100))
					}
				}
			}
		}
	}
}

func TestAmericanAtExpiryIsIntrinsic(t *testing.T) {
	for _, m := range americanModels() {
		p := ContractParameters{Spot: 90, Strike: 100, Expiry: 0, Rate: 0.05, Volatility: 0.2}
		assert.Equal(t, 10.0, PriceUnchecked(m, OptionTypePut, p), m.String())
		assert.Equal(t, 0.0, PriceUnchecked(m, OptionTypeCall, p), m.String())

		g := GreeksUnchecked(m, OptionTypePut, p)
		assert.Equal(t, -1.0, g.Delta)
		assert.Zero(t, g.Gamma)
		assert.True(t, g.HasDividendRho)
	}
}

func TestAmericanCallWithoutDividendIsEuropean(t *testing.T) {
	european := BlackScholesPrice(OptionTypeCall, 100, 95, 1, 0.05, 0.25)
	assert.InDelta(t, european, AmericanBAW(OptionTypeCall, 100, 95, 1, 0.05, 0, 0.25, DefaultDampeningBase), 1e-12)
	assert.InDelta(t, european, AmericanBjerksundStensland(OptionTypeCall, 100, 95, 1, 0.05, 0, 0.25), 1e-12)
}

func TestBAWFallsBackToEuropean(t *testing.T) {
	// r <= 0 时不存在提前行权溢价
	european := MertonPrice(OptionTypePut, 100, 100, 1, 0, 0.01, 0.2)
	assert.InDelta(t, european, AmericanBAW(OptionTypePut, 100, 100, 1, 0, 0.01, 0.2, DefaultDampeningBase), 1e-12)

	european = MertonPrice(OptionTypePut, 100, 100, 1, -0.01, 0, 0.2)
	assert.InDelta(t, european, AmericanBAW(OptionTypePut, 100, 100, 1, -0.01, 0, 0.2, DefaultDampeningBase), 1e-12)
}

func TestBAWAgainstReference(t *testing.T) {
	value := AmericanBAW(OptionTypePut, 100, 100, 1, 0.05, 0, 0.2, DefaultDampeningBase)
	assert.InDelta(t, americanPutReference, value, 0.2)
	assert.Greater(t, value, BlackScholesPrice(OptionTypePut, 100, 100, 1, 0.05, 0.2))

	// 深度实值看跌立即行权
	assert.Equal(t, 20.0, AmericanBAW(OptionTypePut, 80, 100, 1, 0.05, 0, 0.2, DefaultDampeningBase))

	// 阻尼基准只影响溢价部分
	low := AmericanBAW(OptionTypePut, 105, 100, 1, 0.05, 0, 0.2, 0.6)
	high := AmericanBAW(OptionTypePut, 105, 100, 1, 0.05, 0, 0.2, 0.8)
	assert.Less(t, low, high)
}

func TestBjerksundStenslandPutCallTransformation(t *testing.T) {
	for _, s := range []float64{70, 95, 100, 120} {
		for _, k := range []float64{90, 100, 110} {
			for _, r := range []float64{0.01, 0.06} {
				for _, q := range []float64{0, 0.03, 0.08} {
					for _, sigma := range []float64{0.1, 0.35} {
						put := AmericanBjerksundStensland(OptionTypePut, s, k, 1.2, r, q, sigma)
						call := AmericanBjerksundStensland(OptionTypeCall, k, s, 1.2, q, r, sigma)
						assert.InDelta(t, put, call, 1e-10, "S=%v K=%v r=%v q=%v σ=%v", s, k, r, q, sigma)
					}
				}
			}
		}
	}

	assert.InDelta(t, americanPutReference, AmericanBjerksundStensland(OptionTypePut, 100, 100, 1, 0.05, 0, 0.2), 0.2)
}

func TestBinomialConvergence(t *testing.T) {
	var prevErr float64
	for i, steps := range []int{100, 500, 1000} {
		value := AmericanBinomial(OptionTypePut, 100, 100, 1, 0.05, 0, 0.2, steps)
		absErr := math.Abs(value - americanPutReference)
		if i > 0 {
			assert.LessOrEqual(t, absErr, 1.2*prevErr, "steps=%d", steps)
		}
		prevErr = absErr
	}
	assert.Less(t, prevErr, 2e-3)
}

func TestBinomialEuropeanLimit(t *testing.T) {
	// 无股息看涨不提前行权，树价格收敛到欧式价格
	european := BlackScholesPrice(OptionTypeCall, 100, 100, 1, 0.05, 0.2)
	assert.InDelta(t, european, AmericanBinomial(OptionTypeCall, 100, 100, 1, 0.05, 0, 0.2, 1000), 5e-3)
}

func TestAmericanNumericGreeks(t *testing.T) {
	p := ContractParameters{Spot: 100, Strike: 100, Expiry: 1, Rate: 0.05, Dividend: 0.02, Volatility: 0.25}
	for _, m := range []Model{{Kind: ModelAmericanBAW}, {Kind: ModelAmericanBjerksundStensland}} {
		put := GreeksUnchecked(m, OptionTypePut, p)
		assert.True(t, put.HasDividendRho)
		assert.Less(t, put.Delta, 0.0, m.String())
		assert.Greater(t, put.Delta, -1.0)
		assert.Greater(t, put.Gamma, 0.0)
		assert.Greater(t, put.Vega, 0.0)
		assert.Less(t, put.Rho, 0.0)
		assert.Greater(t, put.DividendRho, 0.0)

		call := GreeksUnchecked(m, OptionTypeCall, p)
		assert.Greater(t, call.Delta, 0.0)
		assert.Less(t, call.Delta, 1.0)
		assert.Greater(t, call.Vega, 0.0)
		assert.Less(t, call.DividendRho, 0.0)
	}

	// 波动率过小时 Vega 改用前向差分
	p.Volatility = 5e-5
	g := GreeksUnchecked(Model{Kind: ModelAmericanBjerksundStensland}, OptionTypePut, p)
	assert.False(t, math.IsNaN(g.Vega))
}
