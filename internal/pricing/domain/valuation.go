package domain

import (
	"fmt"
	"math"
)

// 数值希腊字母的差分步长
const (
	bumpSpotRel   = 1e-3
	bumpVol       = 1e-4
	bumpExpiry    = 1e-4
	bumpRate      = 1e-4
	bumpDividend  = 1e-4
	bumpVegaSolve = 1e-4
)

// ValidateModel 校验模型与期权类型（与逐元素参数无关，批量只需校验一次）
func ValidateModel(model Model, optionType OptionType) error {
	if err := model.Validate(); err != nil {
		return err
	}
	if !optionType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOptionType, string(optionType))
	}
	return nil
}

// Price 校验定义域后估值
func Price(model Model, optionType OptionType, p ContractParameters) (float64, error) {
	if err := ValidateModel(model, optionType); err != nil {
		return 0, err
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return PriceUnchecked(model, optionType, p), nil
}

// PriceUnchecked 不做校验的估值，非法输入按浮点运算传播 NaN/Inf
func PriceUnchecked(model Model, optionType OptionType, p ContractParameters) float64 {
	switch model.Kind {
	case ModelAmericanBAW:
		return AmericanBAW(optionType, p.Spot, p.Strike, p.Expiry, p.Rate, p.Dividend, p.Volatility, model.dampeningBase())
	case ModelAmericanBjerksundStensland:
		return AmericanBjerksundStensland(optionType, p.Spot, p.Strike, p.Expiry, p.Rate, p.Dividend, p.Volatility)
	case ModelAmericanBinomial:
		return AmericanBinomial(optionType, p.Spot, p.Strike, p.Expiry, p.Rate, p.Dividend, p.Volatility, model.Steps)
	case ModelBlackScholes, ModelBlack76, ModelMerton, ModelGeneralized:
		return GeneralizedPrice(optionType, p.Spot, p.Strike, p.Expiry, p.Rate, model.CostOfCarry(p), p.Volatility)
	}
	return math.NaN()
}

// ComputeGreeks 校验定义域后计算希腊字母
func ComputeGreeks(model Model, optionType OptionType, p ContractParameters) (Greeks, error) {
	if err := ValidateModel(model, optionType); err != nil {
		return Greeks{}, err
	}
	if err := p.Validate(); err != nil {
		return Greeks{}, err
	}
	return GreeksUnchecked(model, optionType, p), nil
}

// GreeksUnchecked 欧式模型取解析解，美式模型取中心差分
func GreeksUnchecked(model Model, optionType OptionType, p ContractParameters) Greeks {
	var g Greeks
	if model.IsAmerican() {
		g = numericGreeks(model, optionType, p)
	} else {
		g = GeneralizedGreeks(optionType, p.Spot, p.Strike, p.Expiry, p.Rate, model.CostOfCarry(p), p.Volatility, model.carryTracksRate())
	}
	g.HasDividendRho = model.HasDividendRho()
	if !g.HasDividendRho {
		g.DividendRho = 0
	}
	return g
}

func numericGreeks(model Model, optionType OptionType, p ContractParameters) Greeks {
	if p.Expiry <= ExpiryThreshold {
		return expiryGreeks(optionType, p.Spot, p.Strike)
	}
	price := func(q ContractParameters) float64 { return PriceUnchecked(model, optionType, q) }
	base := price(p)

	var g Greeks

	hs := p.Spot * bumpSpotRel
	up, down := p, p
	up.Spot += hs
	down.Spot -= hs
	vu, vd := price(up), price(down)
	g.Delta = (vu - vd) / (2 * hs)
	g.Gamma = (vu - 2*base + vd) / (hs * hs)

	g.Vega = centralOrForward(p, base, price, bumpVol, func(q *ContractParameters, h float64) { q.Volatility += h }, p.Volatility > bumpVol)
	// Theta = −∂V/∂T
	g.Theta = -centralOrForward(p, base, price, bumpExpiry, func(q *ContractParameters, h float64) { q.Expiry += h }, p.Expiry > bumpExpiry+ExpiryThreshold)
	g.Rho = centralOrForward(p, base, price, bumpRate, func(q *ContractParameters, h float64) { q.Rate += h }, true)
	g.DividendRho = centralOrForward(p, base, price, bumpDividend, func(q *ContractParameters, h float64) { q.Dividend += h }, true)
	return g
}

// centralOrForward 参数可向下扰动时取中心差分，否则取前向差分
func centralOrForward(p ContractParameters, base float64, price func(ContractParameters) float64, h float64, bump func(*ContractParameters, float64), central bool) float64 {
	up := p
	bump(&up, h)
	if !central {
		return (price(up) - base) / h
	}
	down := p
	bump(&down, -h)
	return (price(up) - price(down)) / (2 * h)
}

// ImpliedVolatility 校验定义域后反解隐含波动率
func ImpliedVolatility(model Model, optionType OptionType, target float64, p ContractParameters, cfg SolverConfig) (float64, error) {
	if err := ValidateImpliedVolatilityInputs(model, optionType, target, p); err != nil {
		return 0, err
	}
	return ImpliedVolatilityUnchecked(model, optionType, target, p, cfg)
}

// ValidateImpliedVolatilityInputs 校验目标价格与除波动率以外的参数
func ValidateImpliedVolatilityInputs(model Model, optionType OptionType, target float64, p ContractParameters) error {
	if err := ValidateModel(model, optionType); err != nil {
		return err
	}
	if err := ValidatePrice(target); err != nil {
		return err
	}
	p.Volatility = 0
	return p.Validate()
}

// ValidatePrice 观测价格须为有限非负数
func ValidatePrice(target float64) error {
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return &InvalidDomainError{Field: "price", Value: target, Reason: "must be finite", Index: -1}
	}
	if target < 0 {
		return &InvalidDomainError{Field: "price", Value: target, Reason: "must be non-negative", Index: -1}
	}
	return nil
}

// ImpliedVolatilityUnchecked 不校验输入，未收敛时仍返回 ConvergenceError
func ImpliedVolatilityUnchecked(model Model, optionType OptionType, target float64, p ContractParameters, cfg SolverConfig) (float64, error) {
	seed := atmSeed(target, p.Spot, p.Strike, p.Expiry)
	return SolveImpliedVolatility(target, priceVegaFunc(model, optionType, p), seed, cfg)
}

// priceVegaFunc 欧式模型用解析 Vega，美式模型用差分 Vega
func priceVegaFunc(model Model, optionType OptionType, p ContractParameters) PriceVegaFunc {
	if !model.IsAmerican() {
		b := model.CostOfCarry(p)
		return func(sigma float64) (float64, float64) {
			return GeneralizedPrice(optionType, p.Spot, p.Strike, p.Expiry, p.Rate, b, sigma),
				generalizedVega(p.Spot, p.Strike, p.Expiry, p.Rate, b, sigma)
		}
	}
	return func(sigma float64) (float64, float64) {
		q := p
		q.Volatility = sigma
		base := PriceUnchecked(model, optionType, q)
		vega := centralOrForward(q, base, func(c ContractParameters) float64 {
			return PriceUnchecked(model, optionType, c)
		}, bumpVegaSolve, func(c *ContractParameters, h float64) { c.Volatility += h }, sigma > bumpVegaSolve)
		return base, vega
	}
}
