package application

import (
	"github.com/wyfcoding/optionpricing/internal/pricing/batch"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// ContractSpec 模型与期权类型选择
type ContractSpec struct {
	Model      string // 模型名称，空值为 black_scholes
	Steps      int    // 二叉树步数，<=0 取配置默认值
	OptionType string // call/put
}

// PriceOptionCommand 单笔估值命令
type PriceOptionCommand struct {
	ContractSpec
	Params domain.ContractParameters
}

// GreeksQuery 单笔希腊字母查询
type GreeksQuery struct {
	ContractSpec
	Params domain.ContractParameters
}

// ImpliedVolatilityCommand 单笔隐含波动率命令，Params.Volatility 被忽略
type ImpliedVolatilityCommand struct {
	ContractSpec
	Price  float64
	Params domain.ContractParameters
}

// BatchPriceCommand 批量估值命令
type BatchPriceCommand struct {
	ContractSpec
	Inputs batch.Inputs
	// Unchecked 跳过定义域校验，非法元素输出 NaN
	Unchecked bool
}

// BatchGreeksQuery 批量希腊字母查询
type BatchGreeksQuery struct {
	ContractSpec
	Inputs    batch.Inputs
	Unchecked bool
}

// BatchImpliedVolatilityCommand 批量隐含波动率命令
type BatchImpliedVolatilityCommand struct {
	ContractSpec
	Prices    batch.Array
	Inputs    batch.Inputs
	Unchecked bool
}

// PricingResult 单笔估值结果
type PricingResult struct {
	Model      string
	OptionType domain.OptionType
	Value      float64
}

// GreeksResult 单笔希腊字母结果
type GreeksResult struct {
	Model      string
	OptionType domain.OptionType
	Greeks     domain.Greeks
}

// BatchResult 批量结果，Values 与 Greeks 二选一
type BatchResult struct {
	Model      string
	OptionType domain.OptionType
	Plan       batch.Plan
	Values     []float64
	Greeks     []domain.Greeks
}

// ModelInfo 模型说明
type ModelInfo struct {
	Name           string `json:"name"`
	American       bool   `json:"american"`
	HasDividendRho bool   `json:"has_dividend_rho"`
	Description    string `json:"description"`
}
