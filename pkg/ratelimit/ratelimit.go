// Package ratelimit 进程内令牌桶限流，按 key 维护独立的桶
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config 限流配置
type Config struct {
	Enabled bool    `mapstructure:"enabled"`
	QPS     float64 `mapstructure:"qps"`
	Burst   int     `mapstructure:"burst"`
}

// Limit 单个 key 的限流规则：每 Period 补充 Rate 个令牌，桶容量 Burst
type Limit struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// PerSecond 按 QPS 构造规则
func PerSecond(qps float64, burst int) Limit {
	// 以毫秒粒度表达非整数 QPS
	return Limit{Rate: int(math.Round(qps * 1000)), Period: 1000 * time.Second, Burst: burst}
}

func (l Limit) every() rate.Limit {
	if l.Period <= 0 || l.Rate <= 0 {
		return 0
	}
	return rate.Limit(float64(l.Rate) / l.Period.Seconds())
}

// Result 限流判定结果
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

type bucket struct {
	limiter  *rate.Limiter
	limit    Limit
	lastSeen time.Time
}

// LocalRateLimiter 基于 x/time/rate 的进程内限流器
type LocalRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewLocalRateLimiter 创建进程内限流器
func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow 消耗一个令牌，令牌不足时返回 Allowed=false 与建议的重试间隔
func (l *LocalRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok || b.limit != limit {
		b = &bucket{limiter: rate.NewLimiter(limit.every(), limit.Burst), limit: limit}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := &Result{}
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return res, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
	} else {
		res.Allowed = true
	}

	tokens := b.limiter.TokensAt(now)
	res.Remaining = max(int(tokens), 0)
	if every := limit.every(); every > 0 {
		missing := float64(limit.Burst) - tokens
		res.ResetAfter = time.Duration(missing / float64(every) * float64(time.Second))
	}
	return res, nil
}

// Evict 清理超过 idle 未访问的桶，返回清理数量
func (l *LocalRateLimiter) Evict(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len 当前桶数量
func (l *LocalRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
