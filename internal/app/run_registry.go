package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRunSuperseded 同一客户端发起了新的运行
	ErrRunSuperseded = errors.New("run superseded by a newer request")
	// ErrRunTimeout 运行超过卡死阈值被强制重置
	ErrRunTimeout = errors.New("scan did not complete in time")
	// ErrShuttingDown 服务关闭
	ErrShuttingDown = errors.New("server shutting down")
)

type runEntry struct {
	id      string
	key     string
	client  string
	session *StreamSession
	cancel  context.CancelCauseFunc
	started time.Time
}

// RunRegistry 显式 client 标识下至多一个活跃运行，新请求取代旧运行
// 未带标识的请求各自独立；看门狗重置超时运行，避免后续重试被永久阻塞
type RunRegistry struct {
	mu      sync.Mutex
	runs    map[string]*runEntry // client（无标识时为运行ID） -> 当前运行
	timeout time.Duration
	now     func() time.Time
}

func NewRunRegistry(timeout time.Duration) *RunRegistry {
	return &RunRegistry{
		runs:    make(map[string]*runEntry),
		timeout: timeout,
		now:     time.Now,
	}
}

// Start 注册会话并返回运行上下文；release 必须在运行结束后调用
// client 为空时不取代任何运行
func (r *RunRegistry) Start(parent context.Context, client string, session *StreamSession) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	entry := &runEntry{
		id:      uuid.NewString(),
		client:  client,
		session: session,
		cancel:  cancel,
		started: r.now(),
	}
	entry.key = client
	if entry.key == "" {
		entry.key = entry.id
	}
	session.runID = entry.id

	r.mu.Lock()
	old := r.runs[entry.key]
	r.runs[entry.key] = entry
	r.mu.Unlock()

	if old != nil {
		log.Printf("[INFO] 客户端 %s 的运行 %s 被新请求 %s 取代", client, old.id, entry.id)
		// 先写终止帧，旧连接不会停在半途
		old.session.Fail(ErrRunSuperseded)
		old.cancel(ErrRunSuperseded)
	}

	release := func() {
		r.mu.Lock()
		if r.runs[entry.key] == entry {
			delete(r.runs, entry.key)
		}
		r.mu.Unlock()
		cancel(nil)
	}
	return ctx, release
}

// Active 当前活跃运行数
func (r *RunRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// ResetStuck 重置运行时间超过阈值的运行：发送错误帧、关闭会话并取消扫描
func (r *RunRegistry) ResetStuck() int {
	now := r.now()
	var stuck []*runEntry
	r.mu.Lock()
	for key, e := range r.runs {
		if now.Sub(e.started) > r.timeout {
			stuck = append(stuck, e)
			delete(r.runs, key)
		}
	}
	r.mu.Unlock()

	for _, e := range stuck {
		log.Printf("[WARN] 运行 %s (客户端 %s) 超过 %v 未完成，强制重置", e.id, e.client, r.timeout)
		e.session.Fail(ErrRunTimeout)
		e.cancel(ErrRunTimeout)
	}
	return len(stuck)
}

// Watch 周期检查卡死运行，直到 stop 关闭
func (r *RunRegistry) Watch(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.ResetStuck()
		}
	}
}

// Shutdown 关闭全部会话
func (r *RunRegistry) Shutdown() {
	r.mu.Lock()
	entries := make([]*runEntry, 0, len(r.runs))
	for key, e := range r.runs {
		entries = append(entries, e)
		delete(r.runs, key)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.cancel(ErrShuttingDown)
		e.session.Close()
	}
	if len(entries) > 0 {
		log.Printf("[INFO] 已关闭 %d 个流式会话", len(entries))
	}
}
