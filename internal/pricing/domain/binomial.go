package domain

import (
	"math"
)

// AmericanBinomial Cox-Ross-Rubinstein 二叉树，仅作为解析近似的收敛参照
func AmericanBinomial(optionType OptionType, s, k, t, r, q, sigma float64, steps int) float64 {
	if t <= ExpiryThreshold {
		return Intrinsic(optionType, s, k)
	}
	b := r - q
	european := GeneralizedPrice(optionType, s, k, t, r, b, sigma)
	intrinsic := Intrinsic(optionType, s, k)
	if sigma <= 0 || steps < 1 {
		return floorAmerican(european, intrinsic, european)
	}

	dt := t / float64(steps)
	u := math.Exp(sigma * math.Sqrt(dt))
	d := 1 / u
	p := (math.Exp(b*dt) - d) / (u - d)
	disc := math.Exp(-r * dt)

	// spots[steps+j] = S·u^j，节点 (step, i) 的标的价格为 spots[steps+2i−step]
	spots := make([]float64, 2*steps+1)
	for j := -steps; j <= steps; j++ {
		spots[steps+j] = s * math.Pow(u, float64(j))
	}

	values := make([]float64, steps+1)
	for i := 0; i <= steps; i++ {
		values[i] = Intrinsic(optionType, spots[2*i], k)
	}
	for step := steps - 1; step >= 0; step-- {
		for i := 0; i <= step; i++ {
			held := disc * (p*values[i+1] + (1-p)*values[i])
			values[i] = math.Max(held, Intrinsic(optionType, spots[steps+2*i-step], k))
		}
	}
	return floorAmerican(values[0], intrinsic, european)
}
