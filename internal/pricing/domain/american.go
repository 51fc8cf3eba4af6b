package domain

import (
	"math"
)

// 阻尼因子：基准值按价值状态区间调整后截断到 [DampeningFloor, DampeningCap]。
// 二次近似对远离平值的合约存在系统性偏差，下列倍数按参考价格校准，不得改动。
const (
	DefaultDampeningBase = 0.75
	DampeningFloor       = 0.60
	DampeningCap         = 0.80
)

// MoneynessRegime 价值状态区间（S/K）
type MoneynessRegime struct {
	Name       string
	Lower      float64 // 含
	Upper      float64 // 含
	Multiplier float64
}

// DampeningRegimes 按优先级匹配：平值、近平值、深度虚值、深度实值
var DampeningRegimes = []MoneynessRegime{
	{Name: "atm", Lower: 0.9, Upper: 1.1, Multiplier: 1.00},
	{Name: "near_atm", Lower: 0.8, Upper: 1.2, Multiplier: 1.03},
	{Name: "deep_otm", Lower: math.Inf(-1), Upper: 0.8, Multiplier: 1.08},
	{Name: "deep_itm", Lower: 1.2, Upper: math.Inf(1), Multiplier: 0.95},
}

// RegimeFor 返回 moneyness 所属区间
func RegimeFor(moneyness float64) MoneynessRegime {
	for _, regime := range DampeningRegimes {
		if moneyness >= regime.Lower && moneyness <= regime.Upper {
			return regime
		}
	}
	// NaN
	return DampeningRegimes[0]
}

// DampeningFactor 早期行权溢价的阻尼系数
func DampeningFactor(base, moneyness float64) float64 {
	factor := base * RegimeFor(moneyness).Multiplier
	return math.Min(math.Max(factor, DampeningFloor), DampeningCap)
}

// floorAmerican 美式价格不低于内在价值与对应欧式价格
func floorAmerican(value, intrinsic, european float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = european
	}
	return math.Max(value, math.Max(intrinsic, european))
}

// AmericanBAW Barone-Adesi-Whaley 二次近似，早期行权溢价乘以阻尼系数
func AmericanBAW(optionType OptionType, s, k, t, r, q, sigma, dampeningBase float64) float64 {
	if t <= ExpiryThreshold {
		return Intrinsic(optionType, s, k)
	}
	b := r - q
	european := GeneralizedPrice(optionType, s, k, t, r, b, sigma)
	intrinsic := Intrinsic(optionType, s, k)
	if sigma <= 0 || r <= 0 {
		return floorAmerican(european, intrinsic, european)
	}

	var value float64
	if optionType == OptionTypeCall {
		if b >= r {
			return floorAmerican(european, intrinsic, european)
		}
		value = bawCall(s, k, t, r, b, sigma, european, dampeningBase)
	} else {
		value = bawPut(s, k, t, r, b, sigma, european, dampeningBase)
	}
	return floorAmerican(value, intrinsic, european)
}

const (
	criticalPriceTolerance = 1e-6
	criticalPriceMaxIter   = 100
)

func bawCall(s, k, t, r, b, sigma, european, dampeningBase float64) float64 {
	variance := sigma * sigma
	n := 2 * b / variance
	m := 2 * r / variance
	kt := 1 - math.Exp(-r*t)
	q2 := (-(n - 1) + math.Sqrt((n-1)*(n-1)+4*m/kt)) / 2

	sStar := bawCallCritical(k, t, r, b, sigma, n, m, q2)
	if s >= sStar {
		return s - k
	}
	carry := math.Exp((b - r) * t)
	a2 := sStar / q2 * (1 - carry*normCdf(bawD1(sStar, k, t, b, sigma)))
	premium := a2 * math.Pow(s/sStar, q2)
	return european + DampeningFactor(dampeningBase, s/k)*premium
}

func bawCallCritical(k, t, r, b, sigma, n, m, q2 float64) float64 {
	qu := (-(n - 1) + math.Sqrt((n-1)*(n-1)+4*m)) / 2
	su := k / (1 - 1/qu)
	h2 := -(b*t + 2*sigma*math.Sqrt(t)) * k / (su - k)
	si := k + (su-k)*(1-math.Exp(h2))

	carry := math.Exp((b - r) * t)
	volSqrtT := sigma * math.Sqrt(t)
	for i := 0; i < criticalPriceMaxIter; i++ {
		d1 := bawD1(si, k, t, b, sigma)
		rhs := GeneralizedPrice(OptionTypeCall, si, k, t, r, b, sigma) + (1-carry*normCdf(d1))*si/q2
		if math.Abs(si-k-rhs)/k < criticalPriceTolerance {
			break
		}
		slope := carry*normCdf(d1)*(1-1/q2) + (1-carry*normPdf(d1)/volSqrtT)/q2
		si = (k + rhs - slope*si) / (1 - slope)
	}
	return si
}

func bawPut(s, k, t, r, b, sigma, european, dampeningBase float64) float64 {
	variance := sigma * sigma
	n := 2 * b / variance
	m := 2 * r / variance
	kt := 1 - math.Exp(-r*t)
	q1 := (-(n - 1) - math.Sqrt((n-1)*(n-1)+4*m/kt)) / 2

	sStar := bawPutCritical(k, t, r, b, sigma, n, m, q1)
	if s <= sStar {
		return k - s
	}
	carry := math.Exp((b - r) * t)
	a1 := -sStar / q1 * (1 - carry*normCdf(-bawD1(sStar, k, t, b, sigma)))
	premium := a1 * math.Pow(s/sStar, q1)
	return european + DampeningFactor(dampeningBase, s/k)*premium
}

func bawPutCritical(k, t, r, b, sigma, n, m, q1 float64) float64 {
	qu := (-(n - 1) - math.Sqrt((n-1)*(n-1)+4*m)) / 2
	su := k / (1 - 1/qu)
	h1 := (b*t - 2*sigma*math.Sqrt(t)) * k / (k - su)
	si := su + (k-su)*math.Exp(h1)

	carry := math.Exp((b - r) * t)
	volSqrtT := sigma * math.Sqrt(t)
	for i := 0; i < criticalPriceMaxIter; i++ {
		d1 := bawD1(si, k, t, b, sigma)
		rhs := GeneralizedPrice(OptionTypePut, si, k, t, r, b, sigma) - (1-carry*normCdf(-d1))*si/q1
		if math.Abs(k-si-rhs)/k < criticalPriceTolerance {
			break
		}
		slope := -carry*normCdf(-d1)*(1-1/q1) - (1+carry*normPdf(-d1)/volSqrtT)/q1
		si = (k - rhs + slope*si) / (1 + slope)
	}
	return si
}

func bawD1(s, k, t, b, sigma float64) float64 {
	return (math.Log(s/k) + (b+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
}

// AmericanBjerksundStensland 解析行权边界近似（1993）
// 看跌通过 Put(S, K, r, q) = Call(K, S, q, r) 变换求值。
func AmericanBjerksundStensland(optionType OptionType, s, k, t, r, q, sigma float64) float64 {
	if t <= ExpiryThreshold {
		return Intrinsic(optionType, s, k)
	}
	b := r - q
	european := GeneralizedPrice(optionType, s, k, t, r, b, sigma)
	intrinsic := Intrinsic(optionType, s, k)
	if sigma <= 0 {
		return floorAmerican(european, intrinsic, european)
	}

	var value float64
	if optionType == OptionTypeCall {
		value = bjerksundStenslandCall(s, k, t, r, b, sigma)
	} else {
		value = bjerksundStenslandCall(k, s, t, r-b, -b, sigma)
	}
	return floorAmerican(value, intrinsic, european)
}

func bjerksundStenslandCall(s, k, t, r, b, sigma float64) float64 {
	if b >= r {
		return GeneralizedPrice(OptionTypeCall, s, k, t, r, b, sigma)
	}

	variance := sigma * sigma
	beta := (0.5 - b/variance) + math.Sqrt(math.Pow(b/variance-0.5, 2)+2*r/variance)
	bInf := beta / (beta - 1) * k
	b0 := math.Max(k, r/(r-b)*k)
	ht := -(b*t + 2*sigma*math.Sqrt(t)) * b0 / (bInf - b0)
	trigger := b0 + (bInf-b0)*(1-math.Exp(ht))

	if s >= trigger {
		return s - k
	}
	alpha := (trigger - k) * math.Pow(trigger, -beta)
	return alpha*math.Pow(s, beta) -
		alpha*bsPhi(s, t, beta, trigger, trigger, r, b, sigma) +
		bsPhi(s, t, 1, trigger, trigger, r, b, sigma) -
		bsPhi(s, t, 1, k, trigger, r, b, sigma) -
		k*bsPhi(s, t, 0, trigger, trigger, r, b, sigma) +
		k*bsPhi(s, t, 0, k, trigger, r, b, sigma)
}

// bsPhi 边界穿越概率项 φ(S, T, γ, H, I)
func bsPhi(s, t, gamma, h, trigger, r, b, sigma float64) float64 {
	variance := sigma * sigma
	volSqrtT := sigma * math.Sqrt(t)
	lambda := (-r + gamma*b + 0.5*gamma*(gamma-1)*variance) * t
	d := -(math.Log(s/h) + (b+(gamma-0.5)*variance)*t) / volSqrtT
	kappa := 2*b/variance + (2*gamma - 1)
	return math.Exp(lambda) * math.Pow(s, gamma) *
		(normCdf(d) - math.Pow(trigger/s, kappa)*normCdf(d-2*math.Log(trigger/s)/volSqrtT))
}
