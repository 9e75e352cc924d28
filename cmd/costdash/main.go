package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"costdash/internal/app"
	"costdash/internal/config"
	"costdash/internal/pricing"
	"costdash/internal/storage"
	"costdash/internal/tokens"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver := pricing.NewResolver()
	if cfg.PricingFile != "" {
		if err := resolver.LoadAndWatch(cfg.PricingFile); err != nil {
			return fmt.Errorf("pricing: %w", err)
		}
	}
	pricing.CheckFreshness(time.Now())
	// 加载失败不影响启动：缺少usage的记录改用字符估算
	_ = tokens.Preload(ctx, config.TokenizerLoadTimeout)

	deps := app.ServerDeps{
		Resolver:  resolver,
		Estimator: tokens.NewEstimator(),
	}

	if !cfg.DemoMode {
		store, err := storage.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		deps.Store = store
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			// redis 只承担缓存与限流，连接失败时降级运行
			log.Printf("[WARN] redis不可用，仅使用进程内缓存: %v", err)
			rdb = nil
		} else {
			log.Print("[INFO] redis已连接")
			deps.Redis = rdb
		}
	}
	snapshots, err := storage.NewSnapshotCache(rdb, cfg.SnapshotTTL)
	if err != nil {
		return fmt.Errorf("snapshot cache: %w", err)
	}
	deps.Snapshots = snapshots

	srv := app.NewServer(cfg, deps)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	srv.SetupRoutes(r)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] 监听 %s (后端=%s, 演示模式=%v)", cfg.Addr, cfg.Backend, cfg.DemoMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Print("[INFO] 收到退出信号")
	}

	// 先断开流式长连接，再关闭HTTP服务
	srv.PrepareShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] HTTP服务关闭超时: %v", err)
	}
	return srv.Shutdown(shutdownCtx)
}
