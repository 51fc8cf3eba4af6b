package domain

import "gonum.org/v1/gonum/stat/distuv"

// normCdf 标准正态分布累积分布函数
func normCdf(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// normPdf 标准正态分布概率密度函数
func normPdf(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
