package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"costdash/internal/metrics"
	"costdash/internal/model"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardOptions 存储保护参数
type GuardOptions struct {
	RPS              float64       // 每秒分页调用上限，0 表示不限速
	Burst            int           // 令牌桶容量，<=0 时取分段数
	FailureThreshold uint32        // 连续失败多少次后熔断
	OpenTimeout      time.Duration // 熔断持续时间
}

// DefaultGuardOptions 默认保护参数
func DefaultGuardOptions(rps float64) GuardOptions {
	return GuardOptions{
		RPS:              rps,
		Burst:            20,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// GuardedStore 为任意后端加上限速与熔断
// 同一存储被所有运行共享，限速保护的是存储吞吐而非单次运行
type GuardedStore struct {
	inner   SegmentStore
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewGuardedStore(inner SegmentStore, opts GuardOptions) *GuardedStore {
	g := &GuardedStore{inner: inner}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "segment-store",
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// 调用方取消不算存储故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[WARN] 存储熔断器 %s: %s -> %s", name, from, to)
		},
	})
	return g
}

func (g *GuardedStore) ScanSegment(ctx context.Context, req model.ScanRequest) (*model.ScanPage, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	result, err := g.breaker.Execute(func() (any, error) {
		return g.inner.ScanSegment(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.PagesFetched.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("segment %d: store unavailable: %w", req.Segment, err)
		}
		metrics.PagesFetched.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.PagesFetched.WithLabelValues("ok").Inc()
	return result.(*model.ScanPage), nil
}

// Validate 透传给内层存储
func (g *GuardedStore) Validate() error {
	return Validate(g.inner)
}

// Ping 透传给内层存储
func (g *GuardedStore) Ping(ctx context.Context) error {
	return Ping(ctx, g.inner)
}

// Close 透传给内层存储
func (g *GuardedStore) Close() error {
	return Close(g.inner)
}

// BreakerState 熔断器当前状态（健康检查展示）
func (g *GuardedStore) BreakerState() string {
	return g.breaker.State().String()
}
