package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"costdash/internal/model"
)

// DefaultMemoryPageSize 内存存储每页条数
const DefaultMemoryPageSize = 100

// MemoryStore 进程内存储（本地运行与测试使用）
// 分段规则与SQL后端一致：SegmentOf(identity, total)
type MemoryStore struct {
	mu       sync.RWMutex
	records  []model.StoredRecord
	pageSize int
}

func NewMemoryStore(pageSize int) *MemoryStore {
	if pageSize <= 0 {
		pageSize = DefaultMemoryPageSize
	}
	return &MemoryStore{pageSize: pageSize}
}

// Put 追加记录
func (m *MemoryStore) Put(records ...model.StoredRecord) {
	m.mu.Lock()
	m.records = append(m.records, records...)
	m.mu.Unlock()
}

// Len 记录总数
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// ScanSegment 游标为该分段内已返回的条数
func (m *MemoryStore) ScanSegment(ctx context.Context, req model.ScanRequest) (*model.ScanPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	offset := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, req.Cursor)
		}
		offset = n
	}

	segment := m.segmentItems(req)
	if offset >= len(segment) {
		return &model.ScanPage{}, nil
	}
	end := offset + m.pageSize
	if end > len(segment) {
		end = len(segment)
	}
	page := &model.ScanPage{Items: segment[offset:end]}
	if end < len(segment) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (m *MemoryStore) segmentItems(req model.ScanRequest) []model.StoredRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.StoredRecord
	for _, rec := range m.records {
		if model.SegmentOf(rec.Identity(), req.TotalSegments) != req.Segment {
			continue
		}
		if req.Since != "" && !(rec.Timestamp > req.Since) {
			continue
		}
		out = append(out, rec)
	}
	// 按身份排序，保证续扫游标稳定
	sort.SliceStable(out, func(i, j int) bool { return out[i].Identity() < out[j].Identity() })
	return out
}
