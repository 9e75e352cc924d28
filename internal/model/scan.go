package model

import "fmt"

// ScanRequest 一次分段扫描调用的参数
type ScanRequest struct {
	Segment       int    // 分段序号 [0, TotalSegments)
	TotalSegments int    // 分段总数
	Cursor        string // 上一页返回的续扫令牌，空表示从头开始
	Since         string // 非空时只返回 timestamp > Since 的记录（由存储端过滤）
}

// ScanPage 一页扫描结果
// NextCursor 为空表示该分段已扫描完毕
type ScanPage struct {
	Items      []StoredRecord
	NextCursor string
}

// Validate 校验分段参数
func (r ScanRequest) Validate() error {
	if r.TotalSegments <= 0 || r.Segment < 0 || r.Segment >= r.TotalSegments {
		return fmt.Errorf("segment %d of %d out of range", r.Segment, r.TotalSegments)
	}
	return nil
}
