package app

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"costdash/internal/config"
	"costdash/internal/pricing"
	"costdash/internal/scan"
	"costdash/internal/stats"
	"costdash/internal/storage"
	"costdash/internal/tokens"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ServerDeps Server 的外部协作者
type ServerDeps struct {
	Store     storage.SegmentStore   // 演示模式下可为 nil
	Resolver  *pricing.Resolver      // nil 时使用默认价格表
	Estimator *tokens.Estimator      // nil 时使用默认估算器
	Snapshots *storage.SnapshotCache // nil 时不缓存快照
	Redis     *redis.Client          // nil 时关闭流式请求限流
}

type Server struct {
	// ============================================================================
	// 核心字段
	// ============================================================================
	cfg          *config.Config
	store        storage.SegmentStore
	resolver     *pricing.Resolver
	aggregator   *stats.Aggregator
	exporter     *stats.Exporter
	orchestrator *scan.Orchestrator
	runs         *RunRegistry

	// 快照缓存（非流式接口与导出共享）
	snapshots     *storage.SnapshotCache
	snapshotGroup singleflight.Group

	// 流式请求限流（仅 redis 可用时）
	redis   *redis.Client
	limiter *redis_rate.Limiter

	// 演示模式参数
	demoSteps         int
	demoDelay         time.Duration
	heartbeatInterval time.Duration

	now func() time.Time

	// 优雅关闭机制
	shutdownCh     chan struct{}  // 关闭信号channel
	shutdownDone   chan struct{}  // Shutdown完成信号（幂等）
	isShuttingDown atomic.Bool    // shutdown标志
	wg             sync.WaitGroup // 等待所有后台goroutine结束
}

func NewServer(cfg *config.Config, deps ServerDeps) *Server {
	resolver := deps.Resolver
	if resolver == nil {
		resolver = pricing.NewResolver()
	}
	estimator := deps.Estimator
	if estimator == nil {
		estimator = tokens.NewEstimator()
	}

	s := &Server{
		cfg:               cfg,
		store:             deps.Store,
		resolver:          resolver,
		aggregator:        stats.NewAggregator(resolver),
		exporter:          stats.NewExporter(resolver),
		orchestrator:      scan.NewOrchestrator(deps.Store, estimator),
		runs:              NewRunRegistry(cfg.RunTimeout),
		snapshots:         deps.Snapshots,
		redis:             deps.Redis,
		demoSteps:         config.DemoStepCount,
		demoDelay:         config.DemoStepDelay,
		heartbeatInterval: config.SSEHeartbeatInterval,
		now:               time.Now,
		shutdownCh:        make(chan struct{}),
		shutdownDone:      make(chan struct{}),
	}
	if deps.Redis != nil && cfg.StreamPerMinute > 0 {
		s.limiter = redis_rate.NewLimiter(deps.Redis)
		log.Printf("[INFO] 流式请求限流: 每客户端 %d 次/分钟", cfg.StreamPerMinute)
	}
	if cfg.DemoMode {
		log.Print("[INFO] 演示模式：使用内置示例数据")
	}

	// 卡死运行看门狗
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runs.Watch(s.shutdownCh, watchdogInterval(cfg.RunTimeout))
	}()
	return s
}

// watchdogInterval 检查间隔取超时的1/5，限制在[1s, 30s]
func watchdogInterval(timeout time.Duration) time.Duration {
	return min(max(timeout/5, time.Second), 30*time.Second)
}

// SetupRoutes 注册路由
func (s *Server) SetupRoutes(r *gin.Engine) {
	r.GET("/health", s.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/usage", s.HandleUsage)
		api.GET("/usage-stream", s.HandleUsageStream)
		api.GET("/pricing", s.HandlePricing)
		api.GET("/pricing/audit", s.HandlePricingAudit)

		export := api.Group("/export")
		export.GET("/csv", s.HandleExportCSV)
		export.GET("/report", s.HandleExportReport)
		export.GET("/summary", s.HandleExportSummary)
	}
}

// PrepareShutdown 预关闭：关闭 shutdownCh 并结束所有流式会话
// 应在 httpServer.Shutdown() 之前调用，让长连接主动断开
func (s *Server) PrepareShutdown() {
	if s.isShuttingDown.Swap(true) {
		return // 已经在关闭中
	}
	log.Print("[INFO] 正在通知流式会话关闭...")
	close(s.shutdownCh)
	s.runs.Shutdown()
}

// Shutdown 优雅关闭Server，等待所有后台goroutine完成
// 返回值：nil表示成功，context.DeadlineExceeded表示超时
func (s *Server) Shutdown(ctx context.Context) error {
	// 检查是否已经完成关闭（幂等）
	select {
	case <-s.shutdownDone:
		return nil
	default:
	}

	s.PrepareShutdown()
	defer close(s.shutdownDone)

	log.Print("[INFO] 正在关闭Server，等待后台任务完成...")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		log.Print("[INFO] Server优雅关闭完成")
	case <-ctx.Done():
		log.Print("[WARN] Server关闭超时，部分后台任务可能未完成")
		err = ctx.Err()
	}

	if s.snapshots != nil {
		s.snapshots.Close()
	}
	if s.redis != nil {
		if closeErr := s.redis.Close(); closeErr != nil {
			log.Printf("[WARN] 关闭redis连接失败: %v", closeErr)
		}
	}
	if s.store != nil {
		if closeErr := storage.Close(s.store); closeErr != nil {
			log.Printf("[ERROR] 关闭存储失败: %v", closeErr)
		}
	}
	return err
}
