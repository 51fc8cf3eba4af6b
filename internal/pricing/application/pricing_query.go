package application

import (
	"context"

	"github.com/wyfcoding/optionpricing/internal/pricing/batch"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// PricingQueryService 希腊字母与模型目录查询
type PricingQueryService struct {
	engine *engine
}

// GetGreeks 单笔希腊字母
func (q *PricingQueryService) GetGreeks(ctx context.Context, query GreeksQuery) (*GreeksResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, optionType, err := q.engine.resolve(query.ContractSpec)
	if err != nil {
		q.engine.observe(ctx, "unknown", opGreeks, err)
		return nil, err
	}

	greeks, err := domain.ComputeGreeks(model, optionType, query.Params)
	q.engine.observe(ctx, model.String(), opGreeks, err)
	if err != nil {
		return nil, err
	}
	return &GreeksResult{Model: model.String(), OptionType: optionType, Greeks: greeks}, nil
}

// BatchGreeks 批量希腊字母
func (q *PricingQueryService) BatchGreeks(ctx context.Context, query BatchGreeksQuery) (*BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, optionType, err := q.engine.resolve(query.ContractSpec)
	if err != nil {
		q.engine.observe(ctx, "unknown", opGreeks, err)
		return nil, err
	}

	ev := q.engine.evaluator
	var greeks []domain.Greeks
	plan, err := q.engine.runBatch(ctx, model, opGreeks,
		func() (batch.Plan, error) { return ev.Plan(query.Inputs) },
		func() (err error) {
			if query.Unchecked {
				greeks, err = ev.GreeksUnchecked(model, optionType, query.Inputs)
			} else {
				greeks, err = ev.Greeks(model, optionType, query.Inputs)
			}
			return err
		})
	if err != nil {
		return nil, err
	}
	return &BatchResult{Model: model.String(), OptionType: optionType, Plan: plan, Greeks: greeks}, nil
}

var modelDescriptions = map[domain.ModelKind]string{
	domain.ModelBlackScholes:               "European option on a non-dividend spot asset (b = r)",
	domain.ModelBlack76:                    "European option on a future or forward; spot is the forward price (b = 0)",
	domain.ModelMerton:                     "European option with continuous dividend yield q (b = r - q)",
	domain.ModelGeneralized:                "European option with explicit cost of carry b",
	domain.ModelAmericanBAW:                "American option, Barone-Adesi-Whaley with moneyness-dependent dampening",
	domain.ModelAmericanBjerksundStensland: "American option, Bjerksund-Stensland exercise boundary approximation",
	domain.ModelAmericanBinomial:           "American option, Cox-Ross-Rubinstein binomial tree (reference)",
}

// ListModels 受支持的模型
func (q *PricingQueryService) ListModels(_ context.Context) []ModelInfo {
	kinds := domain.ModelKinds()
	infos := make([]ModelInfo, 0, len(kinds))
	for _, kind := range kinds {
		m := domain.Model{Kind: kind}
		infos = append(infos, ModelInfo{
			Name:           kind.String(),
			American:       m.IsAmerican(),
			HasDividendRho: m.HasDividendRho(),
			Description:    modelDescriptions[kind],
		})
	}
	return infos
}
