package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/optionpricing/internal/pricing/batch"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
)

// ErrBatchTooLarge 批量元素数超过上限
var ErrBatchTooLarge = errors.New("batch too large")

// Options 估值引擎参数
type Options struct {
	Batch         batch.Config
	Solver        domain.SolverConfig
	DampeningBase float64
	BinomialSteps int
	// 单批最大元素数，<=0 不限制
	MaxBatchSize int
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Batch:         batch.DefaultConfig(),
		Solver:        domain.DefaultSolverConfig(),
		DampeningBase: domain.DefaultDampeningBase,
		BinomialSteps: domain.DefaultBinomialSteps,
	}
}

// engine 命令与查询共享的估值上下文
type engine struct {
	evaluator     *batch.Evaluator
	solver        domain.SolverConfig
	dampeningBase float64
	binomialSteps int
	maxBatchSize  int
	metrics       metrics.Collector
}

func newEngine(opts Options, collector metrics.Collector) *engine {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if opts.BinomialSteps <= 0 {
		opts.BinomialSteps = domain.DefaultBinomialSteps
	}
	return &engine{
		evaluator:     batch.NewEvaluator(opts.Batch, batch.WithSolverConfig(opts.Solver)),
		solver:        opts.Solver,
		dampeningBase: opts.DampeningBase,
		binomialSteps: opts.BinomialSteps,
		maxBatchSize:  opts.MaxBatchSize,
		metrics:       collector,
	}
}

// resolve 解析模型与期权类型
func (e *engine) resolve(spec ContractSpec) (domain.Model, domain.OptionType, error) {
	steps := spec.Steps
	if steps <= 0 {
		steps = e.binomialSteps
	}
	model, err := domain.ParseModel(spec.Model, steps)
	if err != nil {
		return domain.Model{}, "", err
	}
	if model.Kind == domain.ModelAmericanBAW {
		model.DampeningBase = e.dampeningBase
	}
	optionType, err := domain.ParseOptionType(spec.OptionType)
	if err != nil {
		return domain.Model{}, "", err
	}
	return model, optionType, nil
}

// checkSize 按执行计划校验批量规模
func (e *engine) checkSize(plan batch.Plan) error {
	if e.maxBatchSize > 0 && plan.Len > e.maxBatchSize {
		return fmt.Errorf("%w: %d elements exceeds limit %d", ErrBatchTooLarge, plan.Len, e.maxBatchSize)
	}
	return nil
}

// errorKind 错误分类，用作指标标签
func errorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidDomain):
		return "invalid_domain"
	case errors.Is(err, domain.ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, domain.ErrConvergenceFailure):
		return "convergence_failure"
	case errors.Is(err, domain.ErrUnknownModel):
		return "unknown_model"
	case errors.Is(err, domain.ErrUnknownOptionType):
		return "unknown_option_type"
	case errors.Is(err, ErrBatchTooLarge):
		return "batch_too_large"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

// observe 记录一次估值调用的结果
func (e *engine) observe(ctx context.Context, model, operation string, err error) {
	kind := errorKind(err)
	e.metrics.RecordEvaluation(model, operation, kind)
	switch kind {
	case "ok":
		return
	case "convergence_failure":
		e.metrics.RecordConvergenceFailure(model)
		logger.Warn(ctx, "implied volatility did not converge", "model", model, "operation", operation, "error", err)
	case "internal", "canceled":
		logger.Error(ctx, "valuation failed", "model", model, "operation", operation, "error", err)
	default:
		e.metrics.RecordValidationFailure(kind)
		logger.Warn(ctx, "valuation rejected", "model", model, "operation", operation, "kind", kind, "error", err)
	}
}

// runBatch 规划、记录并执行一次批量调用
func (e *engine) runBatch(ctx context.Context, model domain.Model, operation string, planFn func() (batch.Plan, error), exec func() error) (batch.Plan, error) {
	plan, err := planFn()
	if err == nil {
		err = e.checkSize(plan)
	}
	if err != nil {
		e.observe(ctx, model.String(), operation, err)
		return batch.Plan{}, err
	}

	logger.Debug(ctx, "batch dispatch",
		"operation", operation,
		"model", model.String(),
		"elements", plan.Len,
		"fast_path", plan.FastPath,
		"mode", plan.Mode(),
		"chunks", plan.Chunks,
	)
	start := time.Now()
	err = exec()
	e.metrics.RecordBatch(operation, plan.Mode(), plan.Len, time.Since(start))
	e.observe(ctx, model.String(), operation, err)
	return plan, err
}

// PricingService 定价门面服务
type PricingService struct {
	Command *PricingCommandService
	Query   *PricingQueryService
}

// NewPricingService 构造函数
func NewPricingService(opts Options, collector metrics.Collector) *PricingService {
	e := newEngine(opts, collector)
	return &PricingService{
		Command: &PricingCommandService{engine: e},
		Query:   &PricingQueryService{engine: e},
	}
}

// --- Command Facade ---

func (s *PricingService) PriceOption(ctx context.Context, cmd PriceOptionCommand) (*PricingResult, error) {
	return s.Command.PriceOption(ctx, cmd)
}

func (s *PricingService) ImpliedVolatility(ctx context.Context, cmd ImpliedVolatilityCommand) (*PricingResult, error) {
	return s.Command.ImpliedVolatility(ctx, cmd)
}

func (s *PricingService) BatchPrice(ctx context.Context, cmd BatchPriceCommand) (*BatchResult, error) {
	return s.Command.BatchPrice(ctx, cmd)
}

func (s *PricingService) BatchImpliedVolatility(ctx context.Context, cmd BatchImpliedVolatilityCommand) (*BatchResult, error) {
	return s.Command.BatchImpliedVolatility(ctx, cmd)
}

// --- Query Facade ---

func (s *PricingService) GetGreeks(ctx context.Context, q GreeksQuery) (*GreeksResult, error) {
	return s.Query.GetGreeks(ctx, q)
}

func (s *PricingService) BatchGreeks(ctx context.Context, q BatchGreeksQuery) (*BatchResult, error) {
	return s.Query.BatchGreeks(ctx, q)
}

func (s *PricingService) ListModels(ctx context.Context) []ModelInfo {
	return s.Query.ListModels(ctx)
}
