// Package metrics 定义 Prometheus 指标（/metrics 暴露）
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costdash_scan_runs_total",
		Help: "Parallel scan runs by outcome",
	}, []string{"outcome"}) // completed | cancelled | config_error

	SegmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "costdash_segment_failures_total",
		Help: "Segments that failed and were treated as zero-yield",
	})

	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costdash_store_pages_total",
		Help: "Store scan pages fetched by result",
	}, []string{"result"}) // ok | error | rejected

	RecordsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "costdash_records_admitted_total",
		Help: "Records admitted into merged run results",
	})

	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "costdash_duplicates_dropped_total",
		Help: "Records rejected by the deduplicator",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "costdash_stream_sessions_active",
		Help: "Streaming sessions currently open",
	})

	EventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costdash_stream_events_total",
		Help: "Stream events by kind",
	}, []string{"kind"}) // progress | final | error | dropped

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "costdash_scan_run_seconds",
		Help:    "Wall-clock duration of parallel scan runs",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	SnapshotCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costdash_snapshot_cache_total",
		Help: "Snapshot cache lookups by tier and result",
	}, []string{"tier", "result"}) // memory|redis, hit|miss
)
