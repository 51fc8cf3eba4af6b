package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/response"
)

const (
	// DefaultPrecision 输出保留的小数位数
	DefaultPrecision = 10
	maxPrecision     = 16
)

// PricingHandler HTTP 处理器
// 负责处理与定价相关的 HTTP 请求
type PricingHandler struct {
	svc *application.PricingService
}

// NewPricingHandler 创建 HTTP 处理器实例
func NewPricingHandler(svc *application.PricingService) *PricingHandler {
	return &PricingHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *PricingHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/pricing")
	{
		api.GET("/models", h.ListModels)

		api.POST("/option/price", h.PriceOption)
		api.POST("/option/greeks", h.GetGreeks)
		api.POST("/option/implied-volatility", h.ImpliedVolatility)

		api.POST("/batch/price", h.BatchPrice)
		api.POST("/batch/greeks", h.BatchGreeks)
		api.POST("/batch/implied-volatility", h.BatchImpliedVolatility)
	}
}

// precision 解析 ?precision 查询参数
func precision(c *gin.Context) (int32, bool) {
	raw := c.Query("precision")
	if raw == "" {
		return DefaultPrecision, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxPrecision {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid precision", "precision must be an integer in [0, 16]")
		return 0, false
	}
	return int32(n), true
}

// statusFor 错误到 HTTP 状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidDomain),
		errors.Is(err, domain.ErrShapeMismatch),
		errors.Is(err, domain.ErrUnknownModel),
		errors.Is(err, domain.ErrUnknownOptionType):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrConvergenceFailure):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *PricingHandler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, "error", err)
		response.ErrorWithStatus(c, status, msg, "")
		return
	}
	response.ErrorWithStatus(c, status, msg, err.Error())
}

func badRequest(c *gin.Context, err error) {
	response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
}

// ListModels 列出受支持的模型
func (h *PricingHandler) ListModels(c *gin.Context) {
	response.Success(c, gin.H{"models": h.svc.ListModels(c.Request.Context())})
}

// PriceOption 单笔估值
func (h *PricingHandler) PriceOption(c *gin.Context) {
	places, ok := precision(c)
	if !ok {
		return
	}
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.PriceOption(c.Request.Context(), application.PriceOptionCommand{
		ContractSpec: req.spec(),
		Params:       req.params(*req.Volatility),
	})
	if err != nil {
		h.fail(c, "failed to price option", err)
		return
	}
	response.Success(c, ValueResponse{
		Model:      res.Model,
		OptionType: string(res.OptionType),
		Value:      newNumber(res.Value, places),
	})
}

// GetGreeks 单笔希腊字母
func (h *PricingHandler) GetGreeks(c *gin.Context) {
	places, ok := precision(c)
	if !ok {
		return
	}
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.GetGreeks(c.Request.Context(), application.GreeksQuery{
		ContractSpec: req.spec(),
		Params:       req.params(*req.Volatility),
	})
	if err != nil {
		h.fail(c, "failed to calculate greeks", err)
		return
	}
	response.Success(c, GreeksResponse{
		Model:      res.Model,
		OptionType: string(res.OptionType),
		Greeks:     toGreeksDTO(res.Greeks, places),
	})
}

// ImpliedVolatility 单笔反解隐含波动率
func (h *PricingHandler) ImpliedVolatility(c *gin.Context) {
	places, ok := precision(c)
	if !ok {
		return
	}
	var req ImpliedVolatilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.ImpliedVolatility(c.Request.Context(), application.ImpliedVolatilityCommand{
		ContractSpec: req.spec(),
		Price:        *req.Price,
		Params:       req.params(0),
	})
	if err != nil {
		h.fail(c, "failed to solve implied volatility", err)
		return
	}
	response.Success(c, ValueResponse{
		Model:      res.Model,
		OptionType: string(res.OptionType),
		Value:      newNumber(res.Value, places),
	})
}

// BatchPrice 批量估值
func (h *PricingHandler) BatchPrice(c *gin.Context) {
	places, ok := precision(c)
	if !ok {
		return
	}
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Volatility == nil {
		badRequest(c, errors.New("volatility is required"))
		return
	}

	res, err := h.svc.BatchPrice(c.Request.Context(), application.BatchPriceCommand{
		ContractSpec: req.spec(),
		Inputs:       req.inputs(),
		Unchecked:    req.Unchecked,
	})
	if err != nil {
		h.fail(c, "failed to price batch", err)
		return
	}
	response.Success(c, toBatchResponse(res, places))
}

// BatchGreeks 批量希腊字母
func (h *PricingHandler) BatchGreeks(c *gin.Context) {
	places, ok := precision(c)
	if !ok {
		return
	}
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Volatility == nil {
		badRequest(c, errors.New("volatility is required"))
		return
	}

	res, err := h.svc.BatchGreeks(c.Request.Context(), application.BatchGreeksQuery{
		ContractSpec: req.spec(),
		Inputs:       req.inputs(),
		Unchecked:    req.Unchecked,
	})
	if err != nil {
		h.fail(c, "failed to calculate batch greeks", err)
		return
	}
	response.Success(c, toBatchResponse(res, places))
}

// BatchImpliedVolatility 批量反解隐含波动率
func (h *PricingHandler) BatchImpliedVolatility(c *gin.Context) {
	places, ok := precision(c)
	if !ok {
		return
	}
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Price == nil {
		badRequest(c, errors.New("price is required"))
		return
	}

	in := req.inputs()
	in.Volatility = nil
	res, err := h.svc.BatchImpliedVolatility(c.Request.Context(), application.BatchImpliedVolatilityCommand{
		ContractSpec: req.spec(),
		Prices:       req.Price.array(),
		Inputs:       in,
		Unchecked:    req.Unchecked,
	})
	if err != nil {
		h.fail(c, "failed to solve batch implied volatility", err)
		return
	}
	response.Success(c, toBatchResponse(res, places))
}
