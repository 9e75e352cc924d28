package app

import (
	"context"
	"net/http"

	"costdash/internal/config"
	"costdash/internal/storage"

	"github.com/gin-gonic/gin"
)

// HealthStatus 健康检查结果
type HealthStatus struct {
	Status     string `json:"status"` // ok | degraded
	Demo       bool   `json:"demo"`
	Backend    string `json:"backend"`
	Store      string `json:"store"`
	Breaker    string `json:"breaker,omitempty"`
	Redis      string `json:"redis"`
	ActiveRuns int    `json:"activeRuns"`
}

// HandleHealth 存储与redis的连通性（每项100ms超时）
// GET /health
func (s *Server) HandleHealth(c *gin.Context) {
	h := HealthStatus{
		Status:     "ok",
		Demo:       s.cfg.DemoMode,
		Backend:    s.cfg.Backend,
		Store:      "ok",
		Redis:      "disabled",
		ActiveRuns: s.runs.Active(),
	}

	switch {
	case s.cfg.DemoMode:
		h.Store = "demo"
	case s.store == nil:
		h.Store = "not configured"
		h.Status = "degraded"
	default:
		ctx, cancel := context.WithTimeout(c.Request.Context(), config.HealthPingTimeout)
		err := storage.Ping(ctx, s.store)
		cancel()
		if err != nil {
			h.Store = "error: " + err.Error()
			h.Status = "degraded"
		}
		if b, ok := s.store.(interface{ BreakerState() string }); ok {
			h.Breaker = b.BreakerState()
		}
	}

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), config.HealthPingTimeout)
		err := s.redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			// redis 只承担缓存与限流，不影响整体状态
			h.Redis = "error: " + err.Error()
		} else {
			h.Redis = "ok"
		}
	}

	code := http.StatusOK
	if h.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, h)
}
