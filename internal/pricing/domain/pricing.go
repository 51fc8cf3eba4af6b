// Package domain 期权估值内核：广义 Black-Scholes-Merton、美式近似、二叉树参考与隐含波动率求解
package domain

import (
	"fmt"
	"math"
	"strings"
)

// OptionType 期权类型
type OptionType string

const (
	OptionTypeCall OptionType = "CALL" // 看涨期权
	OptionTypePut  OptionType = "PUT"  // 看跌期权
)

// ParseOptionType 解析期权类型，支持 call/c/put/p（大小写不敏感）
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return OptionTypeCall, nil
	case "PUT", "P":
		return OptionTypePut, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOptionType, s)
}

// IsCall 是否为看涨期权
func (t OptionType) IsCall() bool { return t == OptionTypeCall }

// Valid 类型是否受支持
func (t OptionType) Valid() bool { return t == OptionTypeCall || t == OptionTypePut }

// ExpiryThreshold 剩余期限低于该值视为已到期，按内在价值处理
const ExpiryThreshold = 1e-7

// ContractParameters 合约估值参数
// CostOfCarry 仅在广义模型下直接使用，其余模型由 Model.CostOfCarry 推导。
type ContractParameters struct {
	Spot        float64 `json:"spot"`          // 标的价格 S（Black-76 下为远期价格 F）
	Strike      float64 `json:"strike"`        // 行权价 K
	Expiry      float64 `json:"expiry"`        // 到期时间 T（年）
	Rate        float64 `json:"rate"`          // 无风险利率 r
	Dividend    float64 `json:"dividend"`      // 连续股息率 / 外币利率 q
	CostOfCarry float64 `json:"cost_of_carry"` // 持有成本 b
	Volatility  float64 `json:"volatility"`    // 年化波动率 σ
}

// Validate 校验参数定义域
func (p ContractParameters) Validate() error {
	checks := []struct {
		field string
		value float64
		ok    bool
	}{
		{"spot", p.Spot, p.Spot > 0},
		{"strike", p.Strike, p.Strike > 0},
		{"expiry", p.Expiry, p.Expiry >= 0},
		{"rate", p.Rate, true},
		{"dividend", p.Dividend, true},
		{"cost_of_carry", p.CostOfCarry, true},
		{"volatility", p.Volatility, p.Volatility >= 0},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &InvalidDomainError{Field: c.field, Value: c.value, Reason: "must be finite", Index: -1}
		}
		if !c.ok {
			return &InvalidDomainError{Field: c.field, Value: c.value, Reason: domainRule(c.field), Index: -1}
		}
	}
	return nil
}

func domainRule(field string) string {
	switch field {
	case "spot", "strike":
		return "must be positive"
	default:
		return "must be non-negative"
	}
}

// Intrinsic 内在价值
func Intrinsic(optionType OptionType, spot, strike float64) float64 {
	if optionType == OptionTypeCall {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// Greeks 希腊字母
// Theta 为每年的时间衰减 (−∂V/∂T)，Vega 与 Rho 以单位波动率/利率计。
type Greeks struct {
	Delta          float64 `json:"delta"`
	Gamma          float64 `json:"gamma"`
	Vega           float64 `json:"vega"`
	Theta          float64 `json:"theta"`
	Rho            float64 `json:"rho"`
	DividendRho    float64 `json:"dividend_rho"`
	HasDividendRho bool    `json:"has_dividend_rho"`
}

// ModelKind 定价模型
type ModelKind int

const (
	ModelBlackScholes ModelKind = iota // 无股息现货 b = r
	ModelBlack76                       // 期货/远期 b = 0
	ModelMerton                        // 连续股息 b = r − q
	ModelGeneralized                   // 显式持有成本 b
	ModelAmericanBAW                   // Barone-Adesi-Whaley（带阻尼修正）
	ModelAmericanBjerksundStensland    // Bjerksund-Stensland 行权边界近似
	ModelAmericanBinomial              // CRR 二叉树（收敛校验用）
)

var modelNames = map[ModelKind]string{
	ModelBlackScholes:               "black_scholes",
	ModelBlack76:                    "black76",
	ModelMerton:                     "merton",
	ModelGeneralized:                "generalized",
	ModelAmericanBAW:                "american_baw",
	ModelAmericanBjerksundStensland: "american_bjerksund_stensland",
	ModelAmericanBinomial:           "american_binomial",
}

func (k ModelKind) String() string {
	if name, ok := modelNames[k]; ok {
		return name
	}
	return fmt.Sprintf("model(%d)", int(k))
}

// DefaultBinomialSteps 二叉树默认步数
const DefaultBinomialSteps = 500

// Model 定价模型（带参数的标签联合）
type Model struct {
	Kind          ModelKind
	Steps         int     // 仅 ModelAmericanBinomial 使用
	DampeningBase float64 // 仅 ModelAmericanBAW 使用，0 取 DefaultDampeningBase
}

// dampeningBase 返回生效的阻尼基准值
func (m Model) dampeningBase() float64 {
	if m.DampeningBase > 0 {
		return m.DampeningBase
	}
	return DefaultDampeningBase
}

// ModelKinds 返回全部受支持的模型
func ModelKinds() []ModelKind {
	return []ModelKind{
		ModelBlackScholes,
		ModelBlack76,
		ModelMerton,
		ModelGeneralized,
		ModelAmericanBAW,
		ModelAmericanBjerksundStensland,
		ModelAmericanBinomial,
	}
}

// ParseModel 根据名称构造模型，steps 仅对二叉树生效（<=0 时取默认值）
func ParseModel(name string, steps int) (Model, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = modelNames[ModelBlackScholes]
	}
	for kind, n := range modelNames {
		if n == key {
			m := Model{Kind: kind}
			if kind == ModelAmericanBinomial {
				m.Steps = steps
				if m.Steps <= 0 {
					m.Steps = DefaultBinomialSteps
				}
			}
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

func (m Model) String() string {
	if m.Kind == ModelAmericanBinomial {
		return fmt.Sprintf("%s(%d)", m.Kind, m.Steps)
	}
	return m.Kind.String()
}

// Validate 校验模型参数
func (m Model) Validate() error {
	if _, ok := modelNames[m.Kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, m.Kind)
	}
	if m.Kind == ModelAmericanBinomial && m.Steps < 1 {
		return &InvalidDomainError{Field: "steps", Value: float64(m.Steps), Reason: "must be at least 1", Index: -1}
	}
	return nil
}

// IsAmerican 是否为美式模型
func (m Model) IsAmerican() bool {
	return m.Kind == ModelAmericanBAW || m.Kind == ModelAmericanBjerksundStensland || m.Kind == ModelAmericanBinomial
}

// CostOfCarry 推导持有成本 b
func (m Model) CostOfCarry(p ContractParameters) float64 {
	switch m.Kind {
	case ModelBlackScholes:
		return p.Rate
	case ModelBlack76:
		return 0
	case ModelGeneralized:
		return p.CostOfCarry
	default:
		return p.Rate - p.Dividend
	}
}

// carryTracksRate 利率变动时持有成本是否随之变动（决定 Rho 的口径）
func (m Model) carryTracksRate() bool {
	return m.Kind == ModelBlackScholes || m.Kind == ModelMerton
}

// HasDividendRho 是否输出股息 Rho
func (m Model) HasDividendRho() bool {
	return m.Kind == ModelMerton || m.IsAmerican()
}
