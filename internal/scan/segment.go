package scan

import (
	"context"
	"fmt"

	"costdash/internal/model"
	"costdash/internal/storage"
	"costdash/internal/tokens"
)

// SegmentScanner 顺序读取一个分段的所有页
type SegmentScanner struct {
	store     storage.SegmentStore
	estimator *tokens.Estimator
}

// NewSegmentScanner estimator 可为 nil（不估算缺失用量）
func NewSegmentScanner(store storage.SegmentStore, estimator *tokens.Estimator) *SegmentScanner {
	return &SegmentScanner{store: store, estimator: estimator}
}

// Scan 跟随续扫令牌直到存储不再返回令牌，返回规范化后的记录（页内顺序保持不变）
// 每页大小由存储决定；任意一页失败即整个分段失败
func (s *SegmentScanner) Scan(ctx context.Context, segment, total int, since string) ([]model.UsageRecord, error) {
	req := model.ScanRequest{Segment: segment, TotalSegments: total, Since: since}
	var out []model.UsageRecord
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.store.ScanSegment(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("segment %d page %d: %w", segment, pages, err)
		}
		pages++

		for i := range page.Items {
			stored := &page.Items[i]
			rec := stored.Normalize()
			s.estimator.Apply(stored, &rec)
			out = append(out, rec)
		}

		if page.NextCursor == "" {
			return out, nil
		}
		if page.NextCursor == req.Cursor {
			return nil, fmt.Errorf("segment %d: store returned the same cursor twice", segment)
		}
		req.Cursor = page.NextCursor
	}
}
