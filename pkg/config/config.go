// Package config TOML 配置加载、APP_ 前缀环境变量覆盖与校验
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
	"github.com/wyfcoding/optionpricing/pkg/ratelimit"
)

// EnvPrefix 环境变量前缀，例如 APP_ENGINE_PARALLEL_THRESHOLD
const EnvPrefix = "APP"

// Config 服务配置
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`

	HTTP      HTTPConfig       `mapstructure:"http"`
	Logger    logger.Config    `mapstructure:"logger"`
	Metrics   metrics.Config   `mapstructure:"metrics"`
	Engine    EngineConfig     `mapstructure:"engine"`
	Solver    SolverConfig     `mapstructure:"solver"`
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // 秒
	WriteTimeout int    `mapstructure:"write_timeout"` // 秒
	// 单个批量请求允许的最大元素数
	MaxBatchSize int `mapstructure:"max_batch_size"`
}

// Addr 监听地址
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// EngineConfig 估值引擎配置
type EngineConfig struct {
	// 元素数达到该值时并行执行
	ParallelThreshold int `mapstructure:"parallel_threshold"`
	// 并行协程数，0 取 GOMAXPROCS
	Workers int `mapstructure:"workers"`
	// BAW 早期行权溢价阻尼基准
	DampeningBase float64 `mapstructure:"dampening_base"`
	// 二叉树默认步数
	BinomialSteps int `mapstructure:"binomial_steps"`
}

// SolverConfig 隐含波动率求解配置
type SolverConfig struct {
	Tolerance     float64 `mapstructure:"tolerance"`
	MaxIterations int     `mapstructure:"max_iterations"`
	LowerBound    float64 `mapstructure:"lower_bound"`
	UpperBound    float64 `mapstructure:"upper_bound"`
	InitialGuess  float64 `mapstructure:"initial_guess"`
}

// Load 读取 TOML 配置，文件缺失时报错
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return unmarshal(v)
}

// LoadWithDefaults 读取 TOML 配置，文件不存在时仅使用默认值与环境变量
func LoadWithDefaults(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			if _, statErr := os.Stat(configPath); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}
	if c.HTTP.MaxBatchSize <= 0 {
		return fmt.Errorf("http.max_batch_size must be positive, got %d", c.HTTP.MaxBatchSize)
	}
	if c.Engine.ParallelThreshold <= 0 {
		return fmt.Errorf("engine.parallel_threshold must be positive, got %d", c.Engine.ParallelThreshold)
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must be non-negative, got %d", c.Engine.Workers)
	}
	if c.Engine.DampeningBase <= 0 || c.Engine.DampeningBase > 1 {
		return fmt.Errorf("engine.dampening_base must be in (0, 1], got %g", c.Engine.DampeningBase)
	}
	if c.Engine.BinomialSteps < 1 {
		return fmt.Errorf("engine.binomial_steps must be at least 1, got %d", c.Engine.BinomialSteps)
	}
	if c.Solver.Tolerance <= 0 {
		return fmt.Errorf("solver.tolerance must be positive, got %g", c.Solver.Tolerance)
	}
	if c.Solver.MaxIterations <= 0 {
		return fmt.Errorf("solver.max_iterations must be positive, got %d", c.Solver.MaxIterations)
	}
	if c.Solver.LowerBound <= 0 || c.Solver.UpperBound <= c.Solver.LowerBound {
		return fmt.Errorf("solver bounds must satisfy 0 < lower_bound < upper_bound, got [%g, %g]", c.Solver.LowerBound, c.Solver.UpperBound)
	}
	if c.RateLimit.Enabled && (c.RateLimit.QPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit qps and burst must be positive when enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "pricing")
	v.SetDefault("version", "dev")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)
	v.SetDefault("http.max_batch_size", 1_000_000)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/pricing.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("engine.parallel_threshold", 10000)
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.dampening_base", 0.75)
	v.SetDefault("engine.binomial_steps", 500)

	v.SetDefault("solver.tolerance", 1e-8)
	v.SetDefault("solver.max_iterations", 100)
	v.SetDefault("solver.lower_bound", 1e-6)
	v.SetDefault("solver.upper_bound", 5.0)
	v.SetDefault("solver.initial_guess", 0.2)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.qps", 200.0)
	v.SetDefault("rate_limit.burst", 400)
}
