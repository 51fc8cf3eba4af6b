package http

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/batch"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// ContractRequest 单笔合约参数
type ContractRequest struct {
	Model       string   `json:"model"`
	Steps       int      `json:"steps"`
	OptionType  string   `json:"option_type" binding:"required"`
	Spot        *float64 `json:"spot" binding:"required"`
	Strike      *float64 `json:"strike" binding:"required"`
	Expiry      *float64 `json:"expiry" binding:"required"`
	Rate        float64  `json:"rate"`
	Dividend    float64  `json:"dividend"`
	CostOfCarry float64  `json:"cost_of_carry"`
}

func (r ContractRequest) spec() application.ContractSpec {
	return application.ContractSpec{Model: r.Model, Steps: r.Steps, OptionType: r.OptionType}
}

func (r ContractRequest) params(volatility float64) domain.ContractParameters {
	return domain.ContractParameters{
		Spot:        *r.Spot,
		Strike:      *r.Strike,
		Expiry:      *r.Expiry,
		Rate:        r.Rate,
		Dividend:    r.Dividend,
		CostOfCarry: r.CostOfCarry,
		Volatility:  volatility,
	}
}

// PriceRequest 估值/希腊字母请求
type PriceRequest struct {
	ContractRequest
	Volatility *float64 `json:"volatility" binding:"required"`
}

// ImpliedVolatilityRequest 隐含波动率请求
type ImpliedVolatilityRequest struct {
	ContractRequest
	Price *float64 `json:"price" binding:"required"`
}

// FlexFloats 接受单个数值或数值数组
type FlexFloats []float64

func (f *FlexFloats) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var values []float64
		if err := json.Unmarshal(b, &values); err != nil {
			return err
		}
		*f = values
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = FlexFloats{v}
	return nil
}

func (f FlexFloats) array() batch.Array {
	if f == nil {
		return nil
	}
	return batch.Float64s(f)
}

// BatchRequest 批量请求，每个字段为标量或等长数组
type BatchRequest struct {
	Model       string     `json:"model"`
	Steps       int        `json:"steps"`
	OptionType  string     `json:"option_type" binding:"required"`
	Unchecked   bool       `json:"unchecked"`
	Spot        FlexFloats `json:"spot" binding:"required"`
	Strike      FlexFloats `json:"strike" binding:"required"`
	Expiry      FlexFloats `json:"expiry" binding:"required"`
	Rate        FlexFloats `json:"rate"`
	Dividend    FlexFloats `json:"dividend"`
	CostOfCarry FlexFloats `json:"cost_of_carry"`
	Volatility  FlexFloats `json:"volatility"`
	Price       FlexFloats `json:"price"`
}

func (r BatchRequest) spec() application.ContractSpec {
	return application.ContractSpec{Model: r.Model, Steps: r.Steps, OptionType: r.OptionType}
}

func (r BatchRequest) inputs() batch.Inputs {
	return batch.Inputs{
		Spot:        r.Spot.array(),
		Strike:      r.Strike.array(),
		Expiry:      r.Expiry.array(),
		Rate:        r.Rate.array(),
		Dividend:    r.Dividend.array(),
		CostOfCarry: r.CostOfCarry.array(),
		Volatility:  r.Volatility.array(),
	}
}

// Number 定点小数输出，NaN/Inf 输出 null
type Number struct {
	value decimal.Decimal
	valid bool
}

func newNumber(v float64, places int32) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{value: decimal.NewFromFloat(v).Round(places), valid: true}
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.valid {
		return []byte("null"), nil
	}
	return []byte(n.value.String()), nil
}

func newNumbers(values []float64, places int32) []Number {
	out := make([]Number, len(values))
	for i, v := range values {
		out[i] = newNumber(v, places)
	}
	return out
}

// GreeksDTO 希腊字母输出
type GreeksDTO struct {
	Delta       Number  `json:"delta"`
	Gamma       Number  `json:"gamma"`
	Vega        Number  `json:"vega"`
	Theta       Number  `json:"theta"`
	Rho         Number  `json:"rho"`
	DividendRho *Number `json:"dividend_rho,omitempty"`
}

func toGreeksDTO(g domain.Greeks, places int32) GreeksDTO {
	dto := GreeksDTO{
		Delta: newNumber(g.Delta, places),
		Gamma: newNumber(g.Gamma, places),
		Vega:  newNumber(g.Vega, places),
		Theta: newNumber(g.Theta, places),
		Rho:   newNumber(g.Rho, places),
	}
	if g.HasDividendRho {
		n := newNumber(g.DividendRho, places)
		dto.DividendRho = &n
	}
	return dto
}

// ValueResponse 单笔结果
type ValueResponse struct {
	Model      string `json:"model"`
	OptionType string `json:"option_type"`
	Value      Number `json:"value"`
}

// GreeksResponse 单笔希腊字母结果
type GreeksResponse struct {
	Model      string    `json:"model"`
	OptionType string    `json:"option_type"`
	Greeks     GreeksDTO `json:"greeks"`
}

// BatchResponse 批量结果
type BatchResponse struct {
	Model      string      `json:"model"`
	OptionType string      `json:"option_type"`
	Count      int         `json:"count"`
	FastPath   bool        `json:"fast_path"`
	Mode       string      `json:"mode"`
	Values     []Number    `json:"values,omitempty"`
	Greeks     []GreeksDTO `json:"greeks,omitempty"`
}

func toBatchResponse(res *application.BatchResult, places int32) BatchResponse {
	out := BatchResponse{
		Model:      res.Model,
		OptionType: string(res.OptionType),
		Count:      res.Plan.Len,
		FastPath:   res.Plan.FastPath,
		Mode:       res.Plan.Mode(),
	}
	if res.Greeks != nil {
		out.Greeks = make([]GreeksDTO, len(res.Greeks))
		for i, g := range res.Greeks {
			out.Greeks[i] = toGreeksDTO(g, places)
		}
	} else {
		out.Values = newNumbers(res.Values, places)
	}
	return out
}
