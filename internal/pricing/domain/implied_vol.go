package domain

import (
	"math"
)

// SolverConfig 隐含波动率求解参数
type SolverConfig struct {
	Tolerance     float64 `mapstructure:"tolerance"`      // |price(σ) − target| 收敛阈值
	MaxIterations int     `mapstructure:"max_iterations"` // 最大迭代次数
	LowerBound    float64 `mapstructure:"lower_bound"`    // 搜索下界
	UpperBound    float64 `mapstructure:"upper_bound"`    // 搜索上界
	InitialGuess  float64 `mapstructure:"initial_guess"`  // 初始猜测
	MinVega       float64 `mapstructure:"min_vega"`       // Vega 低于该值时改用二分
}

// DefaultSolverConfig 默认求解参数
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Tolerance:     1e-8,
		MaxIterations: 100,
		LowerBound:    1e-6,
		UpperBound:    5.0,
		InitialGuess:  0.2,
		MinVega:       1e-12,
	}
}

// withDefaults 零值字段取默认值
func (c SolverConfig) withDefaults() SolverConfig {
	def := DefaultSolverConfig()
	if c.Tolerance <= 0 {
		c.Tolerance = def.Tolerance
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.LowerBound <= 0 {
		c.LowerBound = def.LowerBound
	}
	if c.UpperBound <= c.LowerBound {
		c.UpperBound = def.UpperBound
	}
	if c.InitialGuess <= 0 {
		c.InitialGuess = def.InitialGuess
	}
	if c.MinVega <= 0 {
		c.MinVega = def.MinVega
	}
	return c
}

// PriceVegaFunc 给定波动率返回价格与 Vega
type PriceVegaFunc func(sigma float64) (price, vega float64)

// SolveImpliedVolatility Newton-Raphson 求解，Vega 过小或迭代点越出括号时退化为二分
// seed 不在 (LowerBound, UpperBound) 内时使用 InitialGuess。
func SolveImpliedVolatility(target float64, fn PriceVegaFunc, seed float64, cfg SolverConfig) (float64, error) {
	cfg = cfg.withDefaults()
	lo, hi := cfg.LowerBound, cfg.UpperBound

	if math.IsNaN(target) || math.IsInf(target, 0) {
		return 0, &ConvergenceError{Sigma: math.NaN(), Residual: target, Reason: "target price is not finite", Index: -1}
	}

	priceLo, _ := fn(lo)
	if math.Abs(priceLo-target) < cfg.Tolerance {
		return lo, nil
	}
	priceHi, _ := fn(hi)
	if math.Abs(priceHi-target) < cfg.Tolerance {
		return hi, nil
	}
	if target < priceLo || target > priceHi {
		return 0, &ConvergenceError{
			Sigma:    math.NaN(),
			Residual: target,
			Reason:   "target price outside attainable range",
			Index:    -1,
		}
	}

	sigma := seed
	if !(sigma > lo && sigma < hi) {
		sigma = cfg.InitialGuess
	}
	if !(sigma > lo && sigma < hi) {
		sigma = 0.5 * (lo + hi)
	}

	var diff float64
	for i := 1; i <= cfg.MaxIterations; i++ {
		price, vega := fn(sigma)
		diff = price - target
		if math.Abs(diff) < cfg.Tolerance {
			return sigma, nil
		}
		// 价格关于 σ 单调递增
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}

		next := sigma - diff/vega
		if vega < cfg.MinVega || math.IsNaN(next) || next <= lo || next >= hi {
			next = 0.5 * (lo + hi)
		}
		if next == sigma {
			return 0, &ConvergenceError{Iterations: i, Sigma: sigma, Residual: diff, Reason: "search bracket collapsed", Index: -1}
		}
		sigma = next
	}
	return 0, &ConvergenceError{Iterations: cfg.MaxIterations, Sigma: sigma, Residual: diff, Reason: "iteration cap exceeded", Index: -1}
}

// atmSeed Brenner-Subrahmanyam 平值近似 σ ≈ √(2π/T)·C/S，仅在接近平值时采用
func atmSeed(price, s, k, t float64) float64 {
	if t <= ExpiryThreshold || s <= 0 || k <= 0 || math.Abs(math.Log(s/k)) > 0.1 {
		return 0
	}
	return math.Sqrt(2*math.Pi/t) * price / s
}
