package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"costdash/internal/pricing"
	"costdash/internal/scan"
	"costdash/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
)

// HandleUsageStream 渐进加载的流式端点
// GET /api/usage-stream?since=<ISO时间>&client=<客户端标识>
func (s *Server) HandleUsageStream(c *gin.Context) {
	since := c.Query("since")
	client := c.Query("client")

	if !s.allowStream(c.Request.Context(), rateLimitKey(c)) {
		RespondErrorMsg(c, http.StatusTooManyRequests, "demasiadas solicitudes, intente nuevamente en un minuto")
		return
	}

	setStreamHeaders(c)
	c.Status(http.StatusOK)

	session := NewStreamSession(newSSEWriter(c.Writer), s.aggregator, since != "", s.cfg.DemoMode)
	ctx, release := s.runs.Start(c.Request.Context(), client, session)
	defer release()
	defer session.Close()

	session.Start()
	go session.keepAlive(s.heartbeatInterval)

	if s.cfg.DemoMode {
		s.streamDemo(ctx, session)
		return
	}

	// 价格新鲜度检查不阻塞扫描
	go pricing.CheckFreshness(s.now())

	started := time.Now()
	result, err := s.orchestrator.Run(ctx, scan.Options{Segments: s.cfg.SegmentCount, Since: since}, session.OnProgress)
	if err != nil {
		if ctx.Err() != nil {
			// 客户端断开、被新请求取代或被看门狗重置：不再写入
			log.Printf("[INFO] 运行 %s 结束: %v", session.RunID(), context.Cause(ctx))
			return
		}
		log.Printf("[ERROR] 运行 %s 失败: %v", session.RunID(), err)
		session.Fail(err)
		return
	}

	log.Printf("[INFO] 运行 %s 完成: %d 条记录, 耗时 %v", session.RunID(), len(result.Records), time.Since(started).Round(time.Millisecond))
	// 只缓存全量扫描的结果
	if since == "" && s.snapshots != nil {
		s.snapshots.Set(context.WithoutCancel(ctx), fullSnapshotKey, &storage.Snapshot{
			Records:     result.Records,
			Stats:       s.aggregator.ComputeFull(result.Records),
			CompletedAt: s.now(),
		})
	}
}

func (s *Server) streamDemo(ctx context.Context, session *StreamSession) {
	records, err := DemoRecords()
	if err != nil {
		session.Fail(err)
		return
	}
	player := &demoPlayer{
		records:    records,
		aggregator: s.aggregator,
		steps:      s.demoSteps,
		delay:      s.demoDelay,
	}
	player.play(ctx, session)
}

func setStreamHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// rateLimitKey 限流按来源IP计数
func rateLimitKey(c *gin.Context) string {
	return c.ClientIP()
}

// allowStream redis 不可用或出错时放行
func (s *Server) allowStream(ctx context.Context, client string) bool {
	if s.limiter == nil {
		return true
	}
	res, err := s.limiter.Allow(ctx, "costdash:stream:"+client, redis_rate.PerMinute(s.cfg.StreamPerMinute))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[WARN] 限流检查失败，放行: %v", err)
		}
		return true
	}
	if res.Allowed == 0 {
		log.Printf("[WARN] 客户端 %s 流式请求过于频繁，%v 后重试", client, res.RetryAfter.Round(time.Second))
		return false
	}
	return true
}
