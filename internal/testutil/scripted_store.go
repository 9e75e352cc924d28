package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"costdash/internal/model"
)

// ScriptedStore 按分段预先编排页内容、失败、panic与延迟的存储
// 游标为下一页的序号
type ScriptedStore struct {
	mu       sync.Mutex
	pages    map[int][][]model.StoredRecord
	failures map[int]error
	panics   map[int]bool
	delays   map[int]time.Duration
	requests []model.ScanRequest

	calls atomic.Int64

	// ConfigErr 非空时 Validate 返回它
	ConfigErr error
}

func NewScriptedStore() *ScriptedStore {
	return &ScriptedStore{
		pages:    make(map[int][][]model.StoredRecord),
		failures: make(map[int]error),
		panics:   make(map[int]bool),
		delays:   make(map[int]time.Duration),
	}
}

// AddPage 为分段追加一页
func (s *ScriptedStore) AddPage(segment int, items ...model.StoredRecord) *ScriptedStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[segment] = append(s.pages[segment], items)
	return s
}

// Fail 分段的每次调用都返回 err
func (s *ScriptedStore) Fail(segment int, err error) *ScriptedStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[segment] = err
	return s
}

// Panic 分段调用时 panic
func (s *ScriptedStore) Panic(segment int) *ScriptedStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panics[segment] = true
	return s
}

// Delay 分段每页返回前等待 d（尊重ctx）
func (s *ScriptedStore) Delay(segment int, d time.Duration) *ScriptedStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[segment] = d
	return s
}

// Calls 累计分页调用次数
func (s *ScriptedStore) Calls() int64 { return s.calls.Load() }

// Requests 收到的全部请求（按调用顺序）
func (s *ScriptedStore) Requests() []model.ScanRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ScanRequest(nil), s.requests...)
}

func (s *ScriptedStore) Validate() error { return s.ConfigErr }

func (s *ScriptedStore) ScanSegment(ctx context.Context, req model.ScanRequest) (*model.ScanPage, error) {
	s.calls.Add(1)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	pages := s.pages[req.Segment]
	failure := s.failures[req.Segment]
	shouldPanic := s.panics[req.Segment]
	delay := s.delays[req.Segment]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if shouldPanic {
		panic(fmt.Sprintf("scripted panic in segment %d", req.Segment))
	}
	if failure != nil {
		return nil, failure
	}

	idx := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q", req.Cursor)
		}
		idx = n
	}
	if idx >= len(pages) {
		return &model.ScanPage{}, nil
	}

	page := &model.ScanPage{Items: pages[idx]}
	if idx+1 < len(pages) {
		page.NextCursor = strconv.Itoa(idx + 1)
	}
	return page, nil
}
