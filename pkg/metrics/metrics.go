// Package metrics Prometheus 指标：HTTP 请求、估值调用、批量规模与耗时、求解失败
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/optionpricing/pkg/logger"
)

const namespace = "optionpricing"

// Config 指标服务配置
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Metrics 指标集合
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 估值调用次数，按模型、操作（price/greeks/implied_volatility）与结果
	EvaluationsTotal *prometheus.CounterVec
	// 批量元素数
	BatchSize *prometheus.HistogramVec
	// 批量耗时，按执行方式（sequential/parallel）
	BatchDuration *prometheus.HistogramVec
	// 隐含波动率未收敛次数
	ConvergenceFailures *prometheus.CounterVec
	// 定义域/形状校验失败次数
	ValidationFailures *prometheus.CounterVec

	registry *prometheus.Registry
}

// New 创建指标实例，subsystem 为服务名
func New(subsystem string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "evaluations_total",
			Help:      "Total valuation calls by model, operation and outcome",
		}, []string{"model", "operation", "outcome"}),
		BatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_size_elements",
			Help:      "Number of elements per batch evaluation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"operation"}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_duration_seconds",
			Help:      "Batch evaluation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"operation", "mode"}),
		ConvergenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "implied_volatility_convergence_failures_total",
			Help:      "Implied volatility solves that did not converge",
		}, []string{"model"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "validation_failures_total",
			Help:      "Rejected inputs by error kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EvaluationsTotal,
		m.BatchSize,
		m.BatchDuration,
		m.ConvergenceFailures,
		m.ValidationFailures,
	}
}

// Register 注册到指定 registerer，nil 时使用独立的 registry
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		m.registry = prometheus.NewRegistry()
		reg = m.registry
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register metric: %w", err)
		}
	}
	logger.Debug(context.Background(), "metrics registered", "count", len(m.collectors()))
	return nil
}

// Handler 返回 promhttp 处理器
func (m *Metrics) Handler() http.Handler {
	if m.registry != nil {
		return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// NewServer 构造独立端口的指标服务，由调用方负责启动与关闭
func (m *Metrics) NewServer(cfg Config) *http.Server {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve 启动服务直到 ctx 结束
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "metrics server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Collector 指标收集器接口
type Collector interface {
	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration)
	RecordEvaluation(model, operation, outcome string)
	RecordBatch(operation, mode string, size int, duration time.Duration)
	RecordConvergenceFailure(model string)
	RecordValidationFailure(kind string)
}

// DefaultCollector 基于 Metrics 的收集器
type DefaultCollector struct {
	metrics *Metrics
}

// NewDefaultCollector 创建默认指标收集器
func NewDefaultCollector(m *Metrics) *DefaultCollector {
	return &DefaultCollector{metrics: m}
}

// RecordHTTPRequest 记录 HTTP 请求
func (c *DefaultCollector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	c.metrics.HTTPRequestsTotal.WithLabelValues(method, path, fmt.Sprint(statusCode)).Inc()
	c.metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEvaluation 记录估值调用
func (c *DefaultCollector) RecordEvaluation(model, operation, outcome string) {
	c.metrics.EvaluationsTotal.WithLabelValues(model, operation, outcome).Inc()
}

// RecordBatch 记录批量规模与耗时
func (c *DefaultCollector) RecordBatch(operation, mode string, size int, duration time.Duration) {
	c.metrics.BatchSize.WithLabelValues(operation).Observe(float64(size))
	c.metrics.BatchDuration.WithLabelValues(operation, mode).Observe(duration.Seconds())
}

// RecordConvergenceFailure 记录求解未收敛
func (c *DefaultCollector) RecordConvergenceFailure(model string) {
	c.metrics.ConvergenceFailures.WithLabelValues(model).Inc()
}

// RecordValidationFailure 记录校验失败
func (c *DefaultCollector) RecordValidationFailure(kind string) {
	c.metrics.ValidationFailures.WithLabelValues(kind).Inc()
}

// NopCollector 丢弃所有指标
type NopCollector struct{}

func (NopCollector) RecordHTTPRequest(string, string, int, time.Duration) {}
func (NopCollector) RecordEvaluation(string, string, string)              {}
func (NopCollector) RecordBatch(string, string, int, time.Duration)       {}
func (NopCollector) RecordConvergenceFailure(string)                      {}
func (NopCollector) RecordValidationFailure(string)                       {}
