package app

import (
	"log"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"costdash/internal/metrics"
	"costdash/internal/model"
	"costdash/internal/scan"
	"costdash/internal/stats"
)

// EventSink 事件输出端
// Send 返回错误表示对端已不可写，会话随即关闭
type EventSink interface {
	Send(event *model.StreamEvent) error
}

// sseWriter 以 `data: {json}\n\n` 帧写入并立即 Flush
type sseWriter struct {
	w gin.ResponseWriter
}

func newSSEWriter(w gin.ResponseWriter) *sseWriter {
	return &sseWriter{w: w}
}

func (s *sseWriter) Send(event *model.StreamEvent) error {
	data, err := sonic.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := s.w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if _, err := s.w.WriteString("\n\n"); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

// Ping 写入SSE注释保活（不触发前端事件）
func (s *sseWriter) Ping() error {
	if _, err := s.w.WriteString(": heartbeat\n\n"); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

// pinger 支持保活的输出端
type pinger interface {
	Ping() error
}

// StreamSession 单个客户端请求的流式会话
// 所有写入都经过 closed 检查：关闭后的写入静默丢弃；Close 可重复调用
type StreamSession struct {
	runID       string
	sink        EventSink
	aggregator  *stats.Aggregator
	incremental bool // since 模式：stats 只随最终帧发送
	demo        bool

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	prevLen int
	stats   *model.DashboardStats
}

func NewStreamSession(sink EventSink, aggregator *stats.Aggregator, incremental, demo bool) *StreamSession {
	metrics.ActiveSessions.Inc()
	return &StreamSession{
		sink:        sink,
		aggregator:  aggregator,
		incremental: incremental,
		demo:        demo,
		done:        make(chan struct{}),
	}
}

// RunID 注册后分配的运行ID
func (s *StreamSession) RunID() string {
	return s.runID
}

// Done 会话关闭后可读
func (s *StreamSession) Done() <-chan struct{} {
	return s.done
}

func (s *StreamSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Start 发送首帧（任何扫描开始前的0进度）
func (s *StreamSession) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendLocked(&model.StreamEvent{
		Success: true,
		Demo:    s.demo,
		Data:    &model.StreamEventData{NewRecords: []model.UsageRecord{}},
	}, "progress")
}

// OnProgress 扫描进度回调：计算增量记录与统计后转发
// 回调路径内的任何 panic 都在此吞掉，不会传播到调度器
func (s *StreamSession) OnProgress(p scan.Progress) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] 会话 %s 处理进度失败: %v", s.runID, r)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		metrics.EventsSent.WithLabelValues("dropped").Inc()
		return
	}
	// 派发心跳与首帧重复
	if p.CompletedSegments == 0 && !p.IsComplete {
		return
	}

	newRecords := []model.UsageRecord{}
	if len(p.Records) > s.prevLen {
		newRecords = p.Records[s.prevLen:]
	}
	s.stats = s.aggregator.MergeIncrement(s.stats, newRecords)
	s.prevLen = len(p.Records)

	event := &model.StreamEvent{
		Success:    true,
		Demo:       s.demo,
		Progress:   p.Progress,
		IsComplete: p.IsComplete,
		Data: &model.StreamEventData{
			NewRecords:    newRecords,
			TotalRecords:  len(p.Records),
			ExpectedTotal: p.EstimatedTotal,
		},
	}
	if !s.incremental || p.IsComplete {
		event.Data.Stats = s.stats
	}

	kind := "progress"
	if p.IsComplete {
		kind = "final"
	}
	s.sendLocked(event, kind)
	if p.IsComplete {
		s.closeLocked()
	}
}

// Fail 发送唯一的错误帧并关闭；已关闭时忽略
func (s *StreamSession) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	msg := "Error desconocido"
	if err != nil {
		msg = err.Error()
	}
	s.sendLocked(&model.StreamEvent{
		Success:    false,
		Demo:       s.demo,
		IsComplete: true,
		Error:      msg,
	}, "error")
	s.closeLocked()
}

// Ping 长时间无进度时保活；输出端不支持或会话已关闭时忽略
func (s *StreamSession) Ping() {
	p, ok := s.sink.(pinger)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err := p.Ping(); err != nil {
		log.Printf("[WARN] 会话 %s 保活失败，已关闭: %v", s.runID, err)
		s.closeLocked()
	}
}

// keepAlive 按间隔发送保活，直到会话关闭
func (s *StreamSession) keepAlive(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Ping()
		}
	}
}

// Close 幂等关闭
func (s *StreamSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *StreamSession) sendLocked(event *model.StreamEvent, kind string) {
	if s.closed {
		metrics.EventsSent.WithLabelValues("dropped").Inc()
		return
	}
	if err := s.sink.Send(event); err != nil {
		// 对端断开：后续写入全部丢弃
		log.Printf("[WARN] 会话 %s 写入失败，已关闭: %v", s.runID, err)
		metrics.EventsSent.WithLabelValues("dropped").Inc()
		s.closeLocked()
		return
	}
	metrics.EventsSent.WithLabelValues(kind).Inc()
}

func (s *StreamSession) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	metrics.ActiveSessions.Dec()
}

// emit 直接发送一帧（演示模式使用）；完成帧发送后关闭
func (s *StreamSession) emit(event *model.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := "progress"
	if event.IsComplete {
		kind = "final"
	}
	s.sendLocked(event, kind)
	if event.IsComplete {
		s.closeLocked()
	}
}
