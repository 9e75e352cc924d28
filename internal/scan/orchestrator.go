package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"costdash/internal/metrics"
	"costdash/internal/model"
	"costdash/internal/storage"
	"costdash/internal/tokens"
)

// ErrNoSegments 分段数必须为正
var ErrNoSegments = errors.New("segment count must be positive")

// Progress 一次进度回调的内容
// Records 是截至当前的全部已合并记录（副本，调用方可自由持有）
type Progress struct {
	Records           []model.UsageRecord
	Progress          int // 0-100；完成前不超过98
	IsComplete        bool
	EstimatedTotal    int
	CompletedSegments int
	FailedSegments    int
	TotalSegments     int
}

// ProgressFunc 进度回调；按分段完成的真实时间顺序串行调用，不按分段序号
type ProgressFunc func(Progress)

// Options 单次运行参数
type Options struct {
	Segments int
	Since    string // 增量模式：只扫描 timestamp > Since 的记录
}

// Result 运行结束时的汇总
type Result struct {
	Records           []model.UsageRecord
	CompletedSegments int
	FailedSegments    int
	Duplicates        int
}

// Orchestrator 并行分段扫描调度器
// 存储客户端进程级共享；每次 Run 的去重与合并状态独立
type Orchestrator struct {
	store   storage.SegmentStore
	scanner *SegmentScanner
}

func NewOrchestrator(store storage.SegmentStore, estimator *tokens.Estimator) *Orchestrator {
	return &Orchestrator{store: store, scanner: NewSegmentScanner(store, estimator)}
}

// Run 并发启动全部分段，合并去重并在每个分段完成后回调
// 只有派发前的配置错误会作为错误返回；单个分段失败按0条记录处理，运行继续
// ctx 取消后不再回调，返回 ctx 错误
func (o *Orchestrator) Run(ctx context.Context, opts Options, onProgress ProgressFunc) (*Result, error) {
	if opts.Segments <= 0 {
		return nil, ErrNoSegments
	}
	if err := storage.Validate(o.store); err != nil {
		metrics.ScanRuns.WithLabelValues("config_error").Inc()
		return nil, fmt.Errorf("storage configuration: %w", err)
	}

	started := time.Now()
	run := newRunState(opts.Segments, onProgress)
	run.heartbeat()

	var g errgroup.Group
	for seg := range opts.Segments {
		g.Go(func() error {
			records, err := o.scanSegment(ctx, seg, opts)
			run.complete(ctx, seg, records, err)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(started)
	metrics.RunDuration.Observe(elapsed.Seconds())
	result := run.result()

	if err := ctx.Err(); err != nil {
		metrics.ScanRuns.WithLabelValues("cancelled").Inc()
		log.Printf("[INFO] 扫描已取消: 已完成分段 %d/%d, 已合并 %d 条", result.CompletedSegments, opts.Segments, len(result.Records))
		return result, err
	}

	metrics.ScanRuns.WithLabelValues("completed").Inc()
	log.Printf("[INFO] 扫描完成: %d 条记录, 分段 %d/%d (失败 %d), 重复 %d, 耗时 %v",
		len(result.Records), result.CompletedSegments, opts.Segments, result.FailedSegments, result.Duplicates, elapsed.Round(time.Millisecond))
	return result, nil
}

// scanSegment 分段内的 panic 转换为分段错误
func (o *Orchestrator) scanSegment(ctx context.Context, seg int, opts Options) (records []model.UsageRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("segment %d panic: %v", seg, r)
		}
	}()
	return o.scanner.Scan(ctx, seg, opts.Segments, opts.Since)
}

// runState 运行级可变状态，所有修改与回调都在 mu 内串行
type runState struct {
	mu         sync.Mutex
	total      int
	dedup      *Deduplicator
	merged     []model.UsageRecord
	completed  int
	failed     int
	progress   *progressEstimator
	onProgress ProgressFunc
}

func newRunState(total int, onProgress ProgressFunc) *runState {
	return &runState{
		total:      total,
		dedup:      NewDeduplicator(),
		progress:   newProgressEstimator(total),
		onProgress: onProgress,
	}
}

// heartbeat 派发后立即发出的0进度信号，与真实数据无关
func (r *runState) heartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit(Progress{TotalSegments: r.total})
}

func (r *runState) complete(ctx context.Context, seg int, records []model.UsageRecord, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.failed++
		if ctx.Err() == nil {
			metrics.SegmentFailures.Inc()
			log.Printf("[WARN] 分段 %d/%d 扫描失败，按0条记录处理: %v", seg, r.total, err)
		}
	}

	admitted := 0
	for i := range records {
		if r.dedup.Admit(&records[i]) {
			r.merged = append(r.merged, records[i])
			admitted++
		}
	}
	metrics.RecordsAdmitted.Add(float64(admitted))
	r.completed++

	// 已取消：结果丢弃，不再回调
	if ctx.Err() != nil {
		return
	}

	p := Progress{
		CompletedSegments: r.completed,
		FailedSegments:    r.failed,
		TotalSegments:     r.total,
	}
	if r.completed == r.total {
		p.Progress = r.progress.finish(len(r.merged))
		p.IsComplete = true
		p.EstimatedTotal = len(r.merged)
	} else {
		p.Progress = r.progress.update(r.completed, len(r.merged))
		p.EstimatedTotal = r.progress.estimatedTotal
	}
	r.emit(p)
}

// emit 调用方持有 mu；回调 panic 只记录日志
func (r *runState) emit(p Progress) {
	if r.onProgress == nil {
		return
	}
	p.Records = slices.Clone(r.merged)
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[ERROR] 进度回调 panic: %v", rec)
		}
	}()
	r.onProgress(p)
}

func (r *runState) result() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Result{
		Records:           r.merged,
		CompletedSegments: r.completed,
		FailedSegments:    r.failed,
		Duplicates:        r.dedup.Duplicates(),
	}
}
