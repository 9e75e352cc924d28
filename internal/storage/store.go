package storage

import (
	"context"
	"errors"

	"costdash/internal/model"
)

var (
	// ErrNotConfigured 存储位置缺失（表名/DSN未配置），属于配置错误，不重试
	ErrNotConfigured = errors.New("storage not configured")
	// ErrInvalidCursor 续扫令牌无法解析
	ErrInvalidCursor = errors.New("invalid scan cursor")
)

// SegmentStore 支持分段并行扫描的键值存储
// 实现必须可被多个 goroutine 并发调用（每次调用无状态）
type SegmentStore interface {
	// ScanSegment 读取一页；每页大小由存储自身上限决定
	ScanSegment(ctx context.Context, req model.ScanRequest) (*model.ScanPage, error)
}

// Validator 可选接口：在派发任何扫描前检查配置
type Validator interface {
	Validate() error
}

// Pinger 可选接口：健康检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// Validate 对实现了 Validator 的存储执行配置检查
func Validate(s SegmentStore) error {
	if s == nil {
		return ErrNotConfigured
	}
	if v, ok := s.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// Ping 对实现了 Pinger 的存储执行健康检查；未实现时视为健康
func Ping(ctx context.Context, s SegmentStore) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close 关闭实现了 io.Closer 的存储
func Close(s SegmentStore) error {
	if closer, ok := s.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
