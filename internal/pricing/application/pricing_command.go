package application

import (
	"context"

	"github.com/wyfcoding/optionpricing/internal/pricing/batch"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/logger"
)

// 操作名，用作日志字段与指标标签
const (
	opPrice             = "price"
	opGreeks            = "greeks"
	opImpliedVolatility = "implied_volatility"
)

// PricingCommandService 估值与隐含波动率反解
type PricingCommandService struct {
	engine *engine
}

// PriceOption 单笔估值
func (c *PricingCommandService) PriceOption(ctx context.Context, cmd PriceOptionCommand) (*PricingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, optionType, err := c.engine.resolve(cmd.ContractSpec)
	if err != nil {
		c.engine.observe(ctx, "unknown", opPrice, err)
		return nil, err
	}

	value, err := domain.Price(model, optionType, cmd.Params)
	c.engine.observe(ctx, model.String(), opPrice, err)
	if err != nil {
		return nil, err
	}
	return &PricingResult{Model: model.String(), OptionType: optionType, Value: value}, nil
}

// ImpliedVolatility 单笔反解隐含波动率
func (c *PricingCommandService) ImpliedVolatility(ctx context.Context, cmd ImpliedVolatilityCommand) (*PricingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, optionType, err := c.engine.resolve(cmd.ContractSpec)
	if err != nil {
		c.engine.observe(ctx, "unknown", opImpliedVolatility, err)
		return nil, err
	}

	defer logger.LogDuration(ctx, "implied volatility solved", "model", model.String())()
	sigma, err := domain.ImpliedVolatility(model, optionType, cmd.Price, cmd.Params, c.engine.solver)
	c.engine.observe(ctx, model.String(), opImpliedVolatility, err)
	if err != nil {
		return nil, err
	}
	return &PricingResult{Model: model.String(), OptionType: optionType, Value: sigma}, nil
}

// BatchPrice 批量估值
func (c *PricingCommandService) BatchPrice(ctx context.Context, cmd BatchPriceCommand) (*BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, optionType, err := c.engine.resolve(cmd.ContractSpec)
	if err != nil {
		c.engine.observe(ctx, "unknown", opPrice, err)
		return nil, err
	}

	ev := c.engine.evaluator
	var values []float64
	plan, err := c.engine.runBatch(ctx, model, opPrice,
		func() (batch.Plan, error) { return ev.Plan(cmd.Inputs) },
		func() (err error) {
			if cmd.Unchecked {
				values, err = ev.PriceUnchecked(model, optionType, cmd.Inputs)
			} else {
				values, err = ev.Price(model, optionType, cmd.Inputs)
			}
			return err
		})
	if err != nil {
		return nil, err
	}
	return &BatchResult{Model: model.String(), OptionType: optionType, Plan: plan, Values: values}, nil
}

// BatchImpliedVolatility 批量反解隐含波动率，任一元素未收敛时整批失败
func (c *PricingCommandService) BatchImpliedVolatility(ctx context.Context, cmd BatchImpliedVolatilityCommand) (*BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, optionType, err := c.engine.resolve(cmd.ContractSpec)
	if err != nil {
		c.engine.observe(ctx, "unknown", opImpliedVolatility, err)
		return nil, err
	}

	ev := c.engine.evaluator
	var values []float64
	plan, err := c.engine.runBatch(ctx, model, opImpliedVolatility,
		func() (batch.Plan, error) { return ev.PlanImpliedVolatility(cmd.Prices, cmd.Inputs) },
		func() (err error) {
			if cmd.Unchecked {
				values, err = ev.ImpliedVolatilityUnchecked(model, optionType, cmd.Prices, cmd.Inputs)
			} else {
				values, err = ev.ImpliedVolatility(model, optionType, cmd.Prices, cmd.Inputs)
			}
			return err
		})
	if err != nil {
		return nil, err
	}
	return &BatchResult{Model: model.String(), OptionType: optionType, Plan: plan, Values: values}, nil
}
