package app

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"costdash/internal/model"
	"costdash/internal/stats"
)

//go:embed demo_records.json
var demoRecordsJSON []byte

// demoDataset 内置演示数据（原始形态），首次使用时解析
var demoDataset = sync.OnceValues(func() ([]model.StoredRecord, error) {
	var stored []model.StoredRecord
	if err := sonic.Unmarshal(demoRecordsJSON, &stored); err != nil {
		return nil, fmt.Errorf("decode demo records: %w", err)
	}
	return stored, nil
})

// DemoStoredRecords 原始形态的演示记录（审计使用）
func DemoStoredRecords() ([]model.StoredRecord, error) {
	return demoDataset()
}

// DemoRecords 规范化后的演示记录
func DemoRecords() ([]model.UsageRecord, error) {
	stored, err := demoDataset()
	if err != nil {
		return nil, err
	}
	out := make([]model.UsageRecord, len(stored))
	for i := range stored {
		out[i] = stored[i].Normalize()
	}
	return out, nil
}

// demoPlayer 线性模拟渐进加载：steps 步，每步间隔 delay
// 本步没有新增记录时只推送进度（progressOnly）
type demoPlayer struct {
	records    []model.UsageRecord
	aggregator *stats.Aggregator
	steps      int
	delay      time.Duration
}

func (p *demoPlayer) play(ctx context.Context, session *StreamSession) {
	total := len(p.records)
	current := 0
	var acc *model.DashboardStats

	for step := 1; step <= p.steps; step++ {
		if session.Closed() {
			return
		}
		target := min(step*total/p.steps, total)
		progress := int(math.Round(float64(step) / float64(p.steps) * 100))
		last := step == p.steps

		event := &model.StreamEvent{
			Success:    true,
			Demo:       true,
			Progress:   progress,
			IsComplete: last,
		}
		if target > current || last {
			newRecords := p.records[current:target]
			acc = p.aggregator.MergeIncrement(acc, newRecords)
			current = target
			event.Data = &model.StreamEventData{
				Stats:         acc,
				NewRecords:    newRecords,
				TotalRecords:  current,
				ExpectedTotal: total,
			}
		} else {
			event.ProgressOnly = true
		}
		session.emit(event)

		if last || p.delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			session.Close()
			return
		case <-time.After(p.delay):
		}
	}
}
