package application

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/optionpricing/internal/pricing/batch"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
)

func newTestService(t *testing.T, opts Options) (*PricingService, *metrics.Metrics) {
	t.Helper()
	m := metrics.New("pricing_test")
	require.NoError(t, m.Register(prometheus.NewRegistry()))
	return NewPricingService(opts, metrics.NewDefaultCollector(m)), m
}

func atm() domain.ContractParameters {
	return domain.ContractParameters{Spot: 100, Strike: 100, Expiry: 1, Rate: 0.05, Volatility: 0.2}
}

func TestPriceOption(t *testing.T) {
	svc, m := newTestService(t, DefaultOptions())
	ctx := context.Background()

	res, err := svc.PriceOption(ctx, PriceOptionCommand{
		ContractSpec: ContractSpec{OptionType: "call"},
		Params:       atm(),
	})
	require.NoError(t, err)
	assert.Equal(t, "black_scholes", res.Model)
	assert.Equal(t, domain.OptionTypeCall, res.OptionType)
	assert.InDelta(t, 10.4506, res.Value, 1e-3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("black_scholes", "price", "ok")))

	bad := atm()
	bad.Spot = 0
	_, err = svc.PriceOption(ctx, PriceOptionCommand{ContractSpec: ContractSpec{OptionType: "put"}, Params: bad})
	assert.ErrorIs(t, err, domain.ErrInvalidDomain)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFailures.WithLabelValues("invalid_domain")))

	_, err = svc.PriceOption(ctx, PriceOptionCommand{ContractSpec: ContractSpec{Model: "heston", OptionType: "put"}, Params: atm()})
	assert.ErrorIs(t, err, domain.ErrUnknownModel)

	_, err = svc.PriceOption(ctx, PriceOptionCommand{ContractSpec: ContractSpec{OptionType: "straddle"}, Params: atm()})
	assert.ErrorIs(t, err, domain.ErrUnknownOptionType)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFailures.WithLabelValues("unknown_option_type")))
}

func TestPriceOptionAppliesEngineOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.DampeningBase = 0.6
	opts.BinomialSteps = 50
	svc, _ := newTestService(t, opts)
	ctx := context.Background()
	p := atm()

	res, err := svc.PriceOption(ctx, PriceOptionCommand{ContractSpec: ContractSpec{Model: "american_baw", OptionType: "put"}, Params: p})
	require.NoError(t, err)
	assert.Equal(t, domain.AmericanBAW(domain.OptionTypePut, 100, 100, 1, 0.05, 0, 0.2, 0.6), res.Value)

	res, err = svc.PriceOption(ctx, PriceOptionCommand{ContractSpec: ContractSpec{Model: "american_binomial", OptionType: "put"}, Params: p})
	require.NoError(t, err)
	assert.Equal(t, "american_binomial(50)", res.Model)
	assert.Equal(t, domain.AmericanBinomial(domain.OptionTypePut, 100, 100, 1, 0.05, 0, 0.2, 50), res.Value)

	res, err = svc.PriceOption(ctx, PriceOptionCommand{ContractSpec: ContractSpec{Model: "american_binomial", Steps: 10, OptionType: "put"}, Params: p})
	require.NoError(t, err)
	assert.Equal(t, "american_binomial(10)", res.Model)
}

func TestGetGreeks(t *testing.T) {
	svc, _ := newTestService(t, DefaultOptions())
	p := atm()
	p.Dividend = 0.02

	res, err := svc.GetGreeks(context.Background(), GreeksQuery{ContractSpec: ContractSpec{Model: "merton", OptionType: "c"}, Params: p})
	require.NoError(t, err)
	assert.True(t, res.Greeks.HasDividendRho)
	assert.Greater(t, res.Greeks.Delta, 0.5)
	assert.Less(t, res.Greeks.DividendRho, 0.0)
}

func TestImpliedVolatility(t *testing.T) {
	svc, m := newTestService(t, DefaultOptions())
	ctx := context.Background()
	target := domain.BlackScholesPrice(domain.OptionTypePut, 100, 95, 0.5, 0.03, 0.35)

	params := domain.ContractParameters{Spot: 100, Strike: 95, Expiry: 0.5, Rate: 0.03}
	res, err := svc.ImpliedVolatility(ctx, ImpliedVolatilityCommand{ContractSpec: ContractSpec{OptionType: "put"}, Price: target, Params: params})
	require.NoError(t, err)
	assert.InDelta(t, 0.35, res.Value, 1e-6)

	_, err = svc.ImpliedVolatility(ctx, ImpliedVolatilityCommand{ContractSpec: ContractSpec{OptionType: "put"}, Price: 500, Params: params})
	assert.ErrorIs(t, err, domain.ErrConvergenceFailure)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConvergenceFailures.WithLabelValues("black_scholes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("black_scholes", "implied_volatility", "convergence_failure")))
}

func TestBatchOperations(t *testing.T) {
	svc, m := newTestService(t, DefaultOptions())
	ctx := context.Background()
	inputs := batch.Inputs{
		Spot:       batch.Float64s{90, 100, 110},
		Strike:     batch.Scalar(100),
		Expiry:     batch.Scalar(1),
		Rate:       batch.Scalar(0.05),
		Volatility: batch.Scalar(0.2),
	}

	prices, err := svc.BatchPrice(ctx, BatchPriceCommand{ContractSpec: ContractSpec{OptionType: "call"}, Inputs: inputs})
	require.NoError(t, err)
	assert.Equal(t, 3, prices.Plan.Len)
	assert.False(t, prices.Plan.FastPath)
	assert.InDeltaSlice(t, []float64{5.0912, 10.4506, 17.6630}, prices.Values, 1e-3)
	assert.Equal(t, 1, testutil.CollectAndCount(m.BatchDuration))

	greeks, err := svc.BatchGreeks(ctx, BatchGreeksQuery{ContractSpec: ContractSpec{OptionType: "call"}, Inputs: inputs})
	require.NoError(t, err)
	require.Len(t, greeks.Greeks, 3)
	assert.Less(t, greeks.Greeks[0].Delta, greeks.Greeks[2].Delta)

	ivInputs := inputs
	ivInputs.Volatility = nil
	vols, err := svc.BatchImpliedVolatility(ctx, BatchImpliedVolatilityCommand{
		ContractSpec: ContractSpec{OptionType: "call"},
		Prices:       batch.Float64s(prices.Values),
		Inputs:       ivInputs,
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.2, 0.2, 0.2}, vols.Values, 1e-6)

	mismatch := inputs
	mismatch.Strike = batch.Float64s{1, 2}
	_, err = svc.BatchPrice(ctx, BatchPriceCommand{ContractSpec: ContractSpec{OptionType: "call"}, Inputs: mismatch})
	assert.ErrorIs(t, err, domain.ErrShapeMismatch)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFailures.WithLabelValues("shape_mismatch")))
}

func TestBatchSizeLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxBatchSize = 2
	svc, _ := newTestService(t, opts)

	_, err := svc.BatchPrice(context.Background(), BatchPriceCommand{
		ContractSpec: ContractSpec{OptionType: "call"},
		Inputs: batch.Inputs{
			Spot:       batch.Float64s{90, 100, 110},
			Strike:     batch.Scalar(100),
			Expiry:     batch.Scalar(1),
			Volatility: batch.Scalar(0.2),
		},
	})
	assert.True(t, errors.Is(err, ErrBatchTooLarge))
}

func TestCanceledContext(t *testing.T) {
	svc, _ := newTestService(t, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.PriceOption(ctx, PriceOptionCommand{ContractSpec: ContractSpec{OptionType: "call"}, Params: atm()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListModels(t *testing.T) {
	svc, _ := newTestService(t, DefaultOptions())
	models := svc.ListModels(context.Background())
	require.Len(t, models, len(domain.ModelKinds()))

	byName := make(map[string]ModelInfo, len(models))
	for _, info := range models {
		assert.NotEmpty(t, info.Description, info.Name)
		byName[info.Name] = info
	}
	assert.True(t, byName["american_baw"].American)
	assert.False(t, byName["black76"].HasDividendRho)
	assert.True(t, byName["merton"].HasDividendRho)
}
