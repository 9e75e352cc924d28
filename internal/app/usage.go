package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"costdash/internal/model"
	"costdash/internal/scan"
	"costdash/internal/stats"
	"costdash/internal/storage"

	"github.com/gin-gonic/gin"
)

// fullSnapshotKey 全量扫描快照的缓存键
const fullSnapshotKey = "full"

// errInvalidRange 日期区间参数无效
var errInvalidRange = errors.New("invalid date range")

// HandleUsage 非流式：一次返回全部记录与统计
// GET /api/usage?start=YYYY-MM-DD&end=YYYY-MM-DD&refresh=1（refresh 丢弃缓存快照重新扫描）
func (s *Server) HandleUsage(c *gin.Context) {
	records, st, ok := s.loadRange(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, model.UsageResponse{
		Success: true,
		Demo:    s.cfg.DemoMode,
		Data:    model.UsageResponseData{Stats: st, Records: records},
	})
}

// loadRange 读取快照并按查询参数过滤；失败时已写出错误响应
func (s *Server) loadRange(c *gin.Context) ([]model.UsageRecord, *model.DashboardStats, bool) {
	start, end, err := parseRange(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, err)
		return nil, nil, false
	}
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh && s.snapshots != nil {
		s.snapshots.Invalidate(c.Request.Context(), fullSnapshotKey)
	}
	snap, err := s.loadSnapshot(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, err)
		return nil, nil, false
	}
	if start.IsZero() && end.IsZero() {
		return snap.Records, snap.Stats, true
	}
	records := stats.FilterByDateRange(snap.Records, start, end)
	return records, s.aggregator.ComputeFull(records), true
}

func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	start, ok := stats.ParseRangeBound(c.Query("start"), false)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start=%q", errInvalidRange, c.Query("start"))
	}
	end, ok := stats.ParseRangeBound(c.Query("end"), true)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end=%q", errInvalidRange, c.Query("end"))
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end before start", errInvalidRange)
	}
	return start, end, nil
}

// loadSnapshot 演示数据 / 缓存 / 阻塞式全量扫描
// 并发请求共享同一次扫描
func (s *Server) loadSnapshot(ctx context.Context) (*storage.Snapshot, error) {
	if s.cfg.DemoMode {
		records, err := DemoRecords()
		if err != nil {
			return nil, err
		}
		return &storage.Snapshot{Records: records, Stats: s.aggregator.ComputeFull(records), CompletedAt: s.now()}, nil
	}
	if s.snapshots != nil {
		if snap, ok := s.snapshots.Get(ctx, fullSnapshotKey); ok {
			return snap, nil
		}
	}

	v, err, _ := s.snapshotGroup.Do(fullSnapshotKey, func() (any, error) {
		// 共享扫描不随首个请求的断开而取消
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RunTimeout)
		defer cancel()
		result, err := s.orchestrator.Run(runCtx, scan.Options{Segments: s.cfg.SegmentCount}, nil)
		if err != nil {
			return nil, err
		}
		snap := &storage.Snapshot{
			Records:     result.Records,
			Stats:       s.aggregator.ComputeFull(result.Records),
			CompletedAt: s.now(),
		}
		if s.snapshots != nil {
			s.snapshots.Set(runCtx, fullSnapshotKey, snap)
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Snapshot), nil
}
