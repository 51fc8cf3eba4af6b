package batch

import (
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// DefaultParallelThreshold 元素数达到该值时切换为并行执行
const DefaultParallelThreshold = 10000

// Config 执行参数
type Config struct {
	ParallelThreshold int `mapstructure:"parallel_threshold"` // 并行阈值
	Workers           int `mapstructure:"workers"`            // 并行工作协程数，<=0 取 GOMAXPROCS
}

// DefaultConfig 默认执行参数
func DefaultConfig() Config {
	return Config{
		ParallelThreshold: DefaultParallelThreshold,
		Workers:           runtime.GOMAXPROCS(0),
	}
}

func (c Config) normalized() Config {
	if c.ParallelThreshold <= 0 {
		c.ParallelThreshold = DefaultParallelThreshold
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// Option 单次调用的执行参数覆盖
type Option func(*Evaluator)

// WithParallelThreshold 覆盖并行阈值
func WithParallelThreshold(n int) Option {
	return func(e *Evaluator) { e.cfg.ParallelThreshold = n }
}

// WithWorkers 覆盖工作协程数
func WithWorkers(n int) Option {
	return func(e *Evaluator) { e.cfg.Workers = n }
}

// WithSolverConfig 覆盖隐含波动率求解参数
func WithSolverConfig(cfg domain.SolverConfig) Option {
	return func(e *Evaluator) { e.solver = cfg }
}

// Evaluator 批量估值器，本身无可变状态，可被多个协程共享
type Evaluator struct {
	cfg    Config
	solver domain.SolverConfig
}

// NewEvaluator 创建批量估值器
func NewEvaluator(cfg Config, opts ...Option) *Evaluator {
	e := &Evaluator{cfg: cfg.normalized(), solver: domain.DefaultSolverConfig()}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg = e.cfg.normalized()
	return e
}

// WithOptions 返回应用了覆盖参数的副本，原估值器不受影响
func (e *Evaluator) WithOptions(opts ...Option) *Evaluator {
	clone := *e
	for _, opt := range opts {
		opt(&clone)
	}
	clone.cfg = clone.cfg.normalized()
	return &clone
}

// Config 返回生效的执行参数
func (e *Evaluator) Config() Config { return e.cfg }

// Inputs 批量合约参数，nil 字段视为标量 0
type Inputs struct {
	Spot        Array
	Strike      Array
	Expiry      Array
	Rate        Array
	Dividend    Array
	CostOfCarry Array
	Volatility  Array
}

func orZero(a Array) Array {
	if a == nil {
		return Scalar(0)
	}
	return a
}

func (in Inputs) fields() []Field {
	return []Field{
		{Name: "spot", Data: orZero(in.Spot)},
		{Name: "strike", Data: orZero(in.Strike)},
		{Name: "expiry", Data: orZero(in.Expiry)},
		{Name: "rate", Data: orZero(in.Rate)},
		{Name: "dividend", Data: orZero(in.Dividend)},
		{Name: "cost_of_carry", Data: orZero(in.CostOfCarry)},
		{Name: "volatility", Data: orZero(in.Volatility)},
	}
}

// Plan 执行计划
type Plan struct {
	Len      int
	FastPath bool
	Parallel bool
	Chunks   int
}

// Mode 执行方式标签
func (p Plan) Mode() string {
	if p.Parallel {
		return "parallel"
	}
	return "sequential"
}

// frame 已解析形状的输入
type frame struct {
	plan Plan

	spot, strike, expiry, rate column
	dividend, carry           column
	volatility, price         column
}

func (f *frame) params(i int) domain.ContractParameters {
	return domain.ContractParameters{
		Spot:        f.spot.at(i),
		Strike:      f.strike.at(i),
		Expiry:      f.expiry.at(i),
		Rate:        f.rate.at(i),
		Dividend:    f.dividend.at(i),
		CostOfCarry: f.carry.at(i),
		Volatility:  f.volatility.at(i),
	}
}

func (e *Evaluator) prepare(in Inputs, prices Array) (*frame, error) {
	fields := in.fields()
	if prices != nil {
		fields = append(fields, Field{Name: "price", Data: prices})
	}
	shape, err := Resolve(fields...)
	if err != nil {
		return nil, err
	}
	n := shape.Len
	f := &frame{
		plan:       e.plan(shape),
		spot:       newColumn(fields[0].Data, n),
		strike:     newColumn(fields[1].Data, n),
		expiry:     newColumn(fields[2].Data, n),
		rate:       newColumn(fields[3].Data, n),
		dividend:   newColumn(fields[4].Data, n),
		carry:      newColumn(fields[5].Data, n),
		volatility: newColumn(fields[6].Data, n),
	}
	if prices != nil {
		f.price = newColumn(prices, n)
	}
	return f, nil
}

func (e *Evaluator) plan(shape Shape) Plan {
	p := Plan{Len: shape.Len, FastPath: shape.FastPath, Chunks: 1}
	if shape.Len >= e.cfg.ParallelThreshold && e.cfg.Workers > 1 {
		p.Parallel = true
		p.Chunks = min(e.cfg.Workers, shape.Len)
	}
	return p
}

// Plan 解析形状并返回执行计划，不做计算
func (e *Evaluator) Plan(in Inputs) (Plan, error) {
	f, err := e.prepare(in, nil)
	if err != nil {
		return Plan{}, err
	}
	return f.plan, nil
}

// PlanImpliedVolatility 同 Plan，额外参与形状解析的价格字段
func (e *Evaluator) PlanImpliedVolatility(prices Array, in Inputs) (Plan, error) {
	f, err := e.prepare(in, orZero(prices))
	if err != nil {
		return Plan{}, err
	}
	return f.plan, nil
}

// run 将 [0, n) 切分为连续区间执行，每个区间独占各自的输出下标。
// 返回下标最小的失败元素的错误，与协程数无关。
func run(plan Plan, kernel func(lo, hi int) error) error {
	if !plan.Parallel {
		return kernel(0, plan.Len)
	}
	n, chunks := plan.Len, plan.Chunks
	size := (n + chunks - 1) / chunks
	errs := make([]error, chunks)

	var g errgroup.Group
	for c := 0; c < chunks; c++ {
		lo := c * size
		hi := min(lo+size, n)
		if lo >= hi {
			break
		}
		c := c
		g.Go(func() error {
			errs[c] = kernel(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
	return firstError(errs)
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// validate 逐元素校验定义域，首个非法元素使整批失败
func (f *frame) validate(skipVolatility bool) error {
	for i := 0; i < f.plan.Len; i++ {
		p := f.params(i)
		if skipVolatility {
			p.Volatility = 0
			if err := domain.ValidatePrice(f.price.at(i)); err != nil {
				return withIndex(err, i)
			}
		}
		if err := p.Validate(); err != nil {
			return withIndex(err, i)
		}
	}
	return nil
}

func withIndex(err error, i int) error {
	var domainErr *domain.InvalidDomainError
	if errors.As(err, &domainErr) {
		indexed := *domainErr
		indexed.Index = i
		return &indexed
	}
	return err
}

// Price 校验后批量估值，任一元素非法时整批失败且不产生输出
func (e *Evaluator) Price(model domain.Model, optionType domain.OptionType, in Inputs) ([]float64, error) {
	if err := domain.ValidateModel(model, optionType); err != nil {
		return nil, err
	}
	f, err := e.prepare(in, nil)
	if err != nil {
		return nil, err
	}
	if err := f.validate(false); err != nil {
		return nil, err
	}
	return e.price(f, model, optionType), nil
}

// PriceUnchecked 跳过定义域校验，非法元素输出 NaN/Inf
func (e *Evaluator) PriceUnchecked(model domain.Model, optionType domain.OptionType, in Inputs) ([]float64, error) {
	f, err := e.prepare(in, nil)
	if err != nil {
		return nil, err
	}
	return e.price(f, model, optionType), nil
}

func (e *Evaluator) price(f *frame, model domain.Model, optionType domain.OptionType) []float64 {
	out := make([]float64, f.plan.Len)
	_ = run(f.plan, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			out[i] = domain.PriceUnchecked(model, optionType, f.params(i))
		}
		return nil
	})
	return out
}

// Greeks 校验后批量计算希腊字母
func (e *Evaluator) Greeks(model domain.Model, optionType domain.OptionType, in Inputs) ([]domain.Greeks, error) {
	if err := domain.ValidateModel(model, optionType); err != nil {
		return nil, err
	}
	f, err := e.prepare(in, nil)
	if err != nil {
		return nil, err
	}
	if err := f.validate(false); err != nil {
		return nil, err
	}
	return e.greeks(f, model, optionType), nil
}

// GreeksUnchecked 跳过定义域校验
func (e *Evaluator) GreeksUnchecked(model domain.Model, optionType domain.OptionType, in Inputs) ([]domain.Greeks, error) {
	f, err := e.prepare(in, nil)
	if err != nil {
		return nil, err
	}
	return e.greeks(f, model, optionType), nil
}

func (e *Evaluator) greeks(f *frame, model domain.Model, optionType domain.OptionType) []domain.Greeks {
	out := make([]domain.Greeks, f.plan.Len)
	_ = run(f.plan, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			out[i] = domain.GreeksUnchecked(model, optionType, f.params(i))
		}
		return nil
	})
	return out
}

// ImpliedVolatility 校验后批量反解隐含波动率，Volatility 字段被忽略。
// 任一元素未收敛时返回下标最小的 ConvergenceError。
func (e *Evaluator) ImpliedVolatility(model domain.Model, optionType domain.OptionType, prices Array, in Inputs) ([]float64, error) {
	if err := domain.ValidateModel(model, optionType); err != nil {
		return nil, err
	}
	f, err := e.prepare(in, orZero(prices))
	if err != nil {
		return nil, err
	}
	if err := f.validate(true); err != nil {
		return nil, err
	}
	return e.impliedVolatility(f, model, optionType)
}

// ImpliedVolatilityUnchecked 跳过定义域校验，未收敛仍然报错
func (e *Evaluator) ImpliedVolatilityUnchecked(model domain.Model, optionType domain.OptionType, prices Array, in Inputs) ([]float64, error) {
	f, err := e.prepare(in, orZero(prices))
	if err != nil {
		return nil, err
	}
	return e.impliedVolatility(f, model, optionType)
}

func (e *Evaluator) impliedVolatility(f *frame, model domain.Model, optionType domain.OptionType) ([]float64, error) {
	out := make([]float64, f.plan.Len)
	err := run(f.plan, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			sigma, err := domain.ImpliedVolatilityUnchecked(model, optionType, f.price.at(i), f.params(i), e.solver)
			if err != nil {
				return withConvergenceIndex(err, i)
			}
			out[i] = sigma
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func withConvergenceIndex(err error, i int) error {
	var convErr *domain.ConvergenceError
	if errors.As(err, &convErr) {
		indexed := *convErr
		indexed.Index = i
		return &indexed
	}
	return err
}
