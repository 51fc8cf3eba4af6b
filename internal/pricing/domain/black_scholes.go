package domain

import (
	"math"
)

// bsTerms 广义 Black-Scholes-Merton 公式的公共中间量
type bsTerms struct {
	carry float64 // e^((b−r)T)
	disc  float64 // e^(−rT)
	sqrtT float64
	nd1   float64 // N(d1)
	nd2   float64 // N(d2)
	nmd1  float64 // N(−d1)
	nmd2  float64 // N(−d2)
	pdf   float64 // N'(d1)
}

// newTerms σ = 0 时 N(·) 退化为远期内在价值的阶跃函数，N'(d1) = 0
func newTerms(s, k, t, r, b, sigma float64) bsTerms {
	terms := bsTerms{
		carry: math.Exp((b - r) * t),
		disc:  math.Exp(-r * t),
		sqrtT: math.Sqrt(t),
	}
	if sigma == 0 {
		forward := s*terms.carry - k*terms.disc
		switch {
		case forward > 0:
			terms.nd1, terms.nd2 = 1, 1
		case forward < 0:
			terms.nmd1, terms.nmd2 = 1, 1
		}
		return terms
	}

	volSqrtT := sigma * terms.sqrtT
	d1 := (math.Log(s/k) + (b+0.5*sigma*sigma)*t) / volSqrtT
	d2 := d1 - volSqrtT
	terms.nd1 = normCdf(d1)
	terms.nd2 = normCdf(d2)
	terms.nmd1 = normCdf(-d1)
	terms.nmd2 = normCdf(-d2)
	terms.pdf = normPdf(d1)
	return terms
}

// GeneralizedPrice 广义 Black-Scholes-Merton 价格
// b = r 为 Black-Scholes，b = 0 为 Black-76，b = r − q 为 Merton。
func GeneralizedPrice(optionType OptionType, s, k, t, r, b, sigma float64) float64 {
	if t <= ExpiryThreshold {
		return Intrinsic(optionType, s, k)
	}
	terms := newTerms(s, k, t, r, b, sigma)
	if optionType == OptionTypeCall {
		return s*terms.carry*terms.nd1 - k*terms.disc*terms.nd2
	}
	return k*terms.disc*terms.nmd2 - s*terms.carry*terms.nmd1
}

// BlackScholesPrice 无股息现货期权
func BlackScholesPrice(optionType OptionType, s, k, t, r, sigma float64) float64 {
	return GeneralizedPrice(optionType, s, k, t, r, r, sigma)
}

// Black76Price 期货/远期期权，f 为远期价格
func Black76Price(optionType OptionType, f, k, t, r, sigma float64) float64 {
	return GeneralizedPrice(optionType, f, k, t, r, 0, sigma)
}

// MertonPrice 连续股息率 q 的现货期权
func MertonPrice(optionType OptionType, s, k, t, r, q, sigma float64) float64 {
	return GeneralizedPrice(optionType, s, k, t, r, r-q, sigma)
}

// expiryGreeks 到期时仅 Delta 非零，S = K 时取 0
func expiryGreeks(optionType OptionType, s, k float64) Greeks {
	var g Greeks
	switch {
	case optionType == OptionTypeCall && s > k:
		g.Delta = 1
	case optionType == OptionTypePut && s < k:
		g.Delta = -1
	}
	return g
}

// GeneralizedGreeks 广义模型解析希腊字母
// carryTracksRate 为 true 时 b 随 r 同步变动（Black-Scholes、Merton），Rho 为 ±T·K·e^(−rT)·N(±d2)；
// 否则 b 固定（Black-76、显式 b），Rho = −T·V。DividendRho 为 ∂V/∂q。
func GeneralizedGreeks(optionType OptionType, s, k, t, r, b, sigma float64, carryTracksRate bool) Greeks {
	if t <= ExpiryThreshold {
		return expiryGreeks(optionType, s, k)
	}

	terms := newTerms(s, k, t, r, b, sigma)
	spotCarry := s * terms.carry
	strikeDisc := k * terms.disc

	var g Greeks
	var decay float64
	if sigma > 0 {
		g.Gamma = terms.carry * terms.pdf / (s * sigma * terms.sqrtT)
		g.Vega = spotCarry * terms.pdf * terms.sqrtT
		decay = -spotCarry * terms.pdf * sigma / (2 * terms.sqrtT)
	}

	if optionType == OptionTypeCall {
		price := spotCarry*terms.nd1 - strikeDisc*terms.nd2
		g.Delta = terms.carry * terms.nd1
		g.Theta = decay - (b-r)*spotCarry*terms.nd1 - r*strikeDisc*terms.nd2
		if carryTracksRate {
			g.Rho = t * strikeDisc * terms.nd2
		} else {
			g.Rho = -t * price
		}
		g.DividendRho = -t * spotCarry * terms.nd1
		return g
	}

	price := strikeDisc*terms.nmd2 - spotCarry*terms.nmd1
	g.Delta = -terms.carry * terms.nmd1
	g.Theta = decay + (b-r)*spotCarry*terms.nmd1 + r*strikeDisc*terms.nmd2
	if carryTracksRate {
		g.Rho = -t * strikeDisc * terms.nmd2
	} else {
		g.Rho = -t * price
	}
	g.DividendRho = t * spotCarry * terms.nmd1
	return g
}

// generalizedVega 供隐含波动率求解使用的 Vega
func generalizedVega(s, k, t, r, b, sigma float64) float64 {
	if t <= ExpiryThreshold || sigma <= 0 {
		return 0
	}
	terms := newTerms(s, k, t, r, b, sigma)
	return s * terms.carry * terms.pdf * terms.sqrtT
}
