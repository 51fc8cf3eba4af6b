package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/batch"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	httphandler "github.com/wyfcoding/optionpricing/internal/pricing/interfaces/http"
	"github.com/wyfcoding/optionpricing/pkg/config"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
	"github.com/wyfcoding/optionpricing/pkg/middleware"
	"github.com/wyfcoding/optionpricing/pkg/ratelimit"
)

const BootstrapName = "pricing"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/pricing/config.toml", "path to config file")
	flag.Parse()

	if err := run(configPath); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Config
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Logger
	if err := logger.Init(cfg.Logger); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	ctx := context.Background()
	logger.Info(ctx, "configuration loaded",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	// 3. Metrics
	m := metrics.New(BootstrapName)
	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	collector := metrics.NewDefaultCollector(m)

	// 4. Application
	svc := application.NewPricingService(serviceOptions(cfg), collector)

	// 5. Interfaces
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := ratelimit.NewLocalRateLimiter()
	r := gin.New()
	r.Use(
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(),
		middleware.GinCORSMiddleware(),
		middleware.GinMetricsMiddleware(collector),
		middleware.RateLimitMiddleware(limiter, cfg.RateLimit),
	)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   cfg.ServiceName,
			"version":   cfg.Version,
			"timestamp": time.Now().Unix(),
		})
	})
	httphandler.NewPricingHandler(svc).RegisterRoutes(r)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 6. Start
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		metricsServer := m.NewServer(cfg.Metrics)
		g.Go(func() error {
			return metrics.Serve(gctx, metricsServer)
		})
	}

	if cfg.RateLimit.Enabled {
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := limiter.Evict(10 * time.Minute); n > 0 {
						logger.Debug(gctx, "evicted idle rate limit buckets", "count", n, "remaining", limiter.Len())
					}
				}
			}
		})
	}

	// 7. Graceful Shutdown
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case <-quit:
			logger.Info(ctx, "shutting down servers...")
		case <-gctx.Done():
			logger.Info(ctx, "context cancelled, shutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	logger.Info(ctx, "server exited")
	return nil
}

// errShutdown 结束 errgroup 以停止其余后台任务
var errShutdown = errors.New("shutdown requested")

// serviceOptions 配置到估值引擎参数的映射
func serviceOptions(cfg *config.Config) application.Options {
	solver := domain.DefaultSolverConfig()
	solver.Tolerance = cfg.Solver.Tolerance
	solver.MaxIterations = cfg.Solver.MaxIterations
	solver.LowerBound = cfg.Solver.LowerBound
	solver.UpperBound = cfg.Solver.UpperBound
	solver.InitialGuess = cfg.Solver.InitialGuess

	return application.Options{
		Batch: batch.Config{
			ParallelThreshold: cfg.Engine.ParallelThreshold,
			Workers:           cfg.Engine.Workers,
		},
		Solver:        solver,
		DampeningBase: cfg.Engine.DampeningBase,
		BinomialSteps: cfg.Engine.BinomialSteps,
		MaxBatchSize:  cfg.HTTP.MaxBatchSize,
	}
}
