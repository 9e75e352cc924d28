package scan

import (
	"log"
	"sync"

	"costdash/internal/config"
	"costdash/internal/metrics"
	"costdash/internal/model"
)

// Deduplicator 单次运行内的记录去重器（运行级状态，不跨会话共享）
// Admit 的"检查并插入"在同一把锁内完成，多个分段并发提交也不会重复计数
type Deduplicator struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	duplicates int
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Admit 新身份返回 true 并记录；已见过返回 false
func (d *Deduplicator) Admit(rec *model.UsageRecord) bool {
	id := rec.Identity()

	d.mu.Lock()
	if _, ok := d.seen[id]; !ok {
		d.seen[id] = struct{}{}
		d.mu.Unlock()
		return true
	}
	d.duplicates++
	n := d.duplicates
	d.mu.Unlock()

	metrics.DuplicatesDropped.Inc()
	// 只打印前几条，之后采样，避免日志洪水
	if n <= config.DuplicateLogFirstN || n%config.DuplicateLogSampleRate == 0 {
		log.Printf("[DEBUG] 丢弃重复记录 #%d: %s", n, id)
	}
	return false
}

// Duplicates 本次运行丢弃的重复记录数
func (d *Deduplicator) Duplicates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duplicates
}

// Len 已接纳的身份数
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
