// Package audit 统计存储记录的价格覆盖情况：哪些模型精确命中、前缀命中或落入默认档位
package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"costdash/internal/model"
	"costdash/internal/pricing"
	"costdash/internal/stats"
	"costdash/internal/storage"
)

// 问题记录只保留前N条
const maxProblems = 10

// scanConcurrency 审计扫描的并发分段数上限
const scanConcurrency = 8

// ModelCoverage 单个模型的覆盖情况
type ModelCoverage struct {
	Model    string            `json:"model"`
	Records  int               `json:"records"`
	Match    pricing.MatchKind `json:"match"`
	PricedAs string            `json:"pricedAs"` // 命中的价格表键
	Rate     pricing.Rate      `json:"rate"`
	Cost     float64           `json:"cost"`
}

// Problem 无法可靠计费的记录
type Problem struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	Entity    string `json:"entity"`
	Timestamp string `json:"timestamp"`
	Problem   string `json:"problem"`
}

// Report 审计结果
type Report struct {
	GeneratedAt       time.Time         `json:"generatedAt"`
	TotalRecords      int               `json:"totalRecords"`
	ValidRecords      int               `json:"validRecords"`
	WithoutUsage      int               `json:"withoutUsage"`
	ZeroTokens        int               `json:"zeroTokens"`
	MissingModel      int               `json:"missingModel"`
	Problems          []Problem         `json:"problems"`
	Models            []ModelCoverage   `json:"models"`
	Unpriced          []ModelCoverage   `json:"unpriced"`
	AffectedRecords   int               `json:"affectedRecords"`
	AffectedPercent   float64           `json:"affectedPercent"`
	TotalCost         float64           `json:"totalCost"`
	TotalInputTokens  int64             `json:"totalInputTokens"`
	TotalOutputTokens int64             `json:"totalOutputTokens"`
	DailyCosts        []model.DailyCost `json:"dailyCosts"`
	Freshness         pricing.Freshness `json:"freshness"`
}

// Analyze 审计原始记录（需要原始形态以区分"缺少usage"与"usage全为0"）
func Analyze(records []model.StoredRecord, resolver *pricing.Resolver, now time.Time) *Report {
	report := &Report{
		GeneratedAt:  now,
		TotalRecords: len(records),
		Problems:     []Problem{},
		Freshness:    pricing.CurrentMetadata.Check(now),
	}

	normalized := make([]model.UsageRecord, 0, len(records))
	byModel := make(map[string]*ModelCoverage)
	problems := 0
	for i := range records {
		stored := &records[i]
		rec := stored.Normalize()
		normalized = append(normalized, rec)

		problem := ""
		switch {
		case !stored.HasUsage():
			report.WithoutUsage++
			problem = "Sin estructura usage"
		case rec.Usage.InputTokens == 0 && rec.Usage.OutputTokens == 0 && rec.Usage.TotalTokens == 0:
			report.ZeroTokens++
			problem = "Todos los tokens en 0"
		}
		if rec.Model == "" {
			report.MissingModel++
			if problem == "" {
				problem = "Sin modelo"
			}
		}
		if problem != "" {
			problems++
			if len(report.Problems) < maxProblems {
				report.Problems = append(report.Problems, Problem{
					ID:        stored.ID,
					Model:     rec.Model,
					Entity:    rec.Entity(),
					Timestamp: rec.Timestamp,
					Problem:   problem,
				})
			}
		}

		if rec.Model == "" {
			continue
		}
		cov, ok := byModel[rec.Model]
		if !ok {
			rate, kind, key := resolver.Lookup(rec.Model)
			cov = &ModelCoverage{Model: rec.Model, Match: kind, PricedAs: key, Rate: rate}
			byModel[rec.Model] = cov
		}
		cov.Records++
		cov.Cost += resolver.CalculateRecord(&rec).Float64()
	}
	report.ValidRecords = report.TotalRecords - problems

	for _, cov := range byModel {
		report.Models = append(report.Models, *cov)
		if cov.Match == pricing.MatchDefault {
			report.Unpriced = append(report.Unpriced, *cov)
			report.AffectedRecords += cov.Records
		}
	}
	sortCoverage(report.Models)
	sortCoverage(report.Unpriced)
	if report.TotalRecords > 0 {
		report.AffectedPercent = float64(report.AffectedRecords) / float64(report.TotalRecords) * 100
	}

	s := stats.NewAggregator(resolver).ComputeFull(normalized)
	report.TotalCost = s.TotalCost
	report.TotalInputTokens = s.TotalInputTokens
	report.TotalOutputTokens = s.TotalOutputTokens
	report.DailyCosts = s.DailyCosts
	return report
}

// sortCoverage 按记录数降序，相同按模型名升序
func sortCoverage(list []ModelCoverage) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Records != list[j].Records {
			return list[i].Records > list[j].Records
		}
		return list[i].Model < list[j].Model
	})
}

// pricingStub 与价格覆盖文件结构一致，可直接补全后作为 COSTDASH_PRICING_FILE 使用
type pricingStub struct {
	Models map[string]pricing.Rate `yaml:"models"`
}

// PricingStub 为未定价模型生成YAML覆盖文件骨架（费率为0，待人工填写）
func (r *Report) PricingStub() ([]byte, error) {
	stub := pricingStub{Models: make(map[string]pricing.Rate, len(r.Unpriced))}
	for _, cov := range r.Unpriced {
		stub.Models[cov.Model] = pricing.Rate{}
	}
	out, err := yaml.Marshal(stub)
	if err != nil {
		return nil, fmt.Errorf("encode pricing stub: %w", err)
	}
	header := fmt.Sprintf("# 价格来源: %s\n# 以下模型缺少价格，当前按默认档位计费\n", pricing.CurrentMetadata.Source)
	return append([]byte(header), out...), nil
}

// Collect 读取全部原始记录（按身份去重）
// 与仪表盘扫描不同，审计要求数据完整：任一分段失败即返回错误
func Collect(ctx context.Context, store storage.SegmentStore, segments int) ([]model.StoredRecord, error) {
	if err := storage.Validate(store); err != nil {
		return nil, fmt.Errorf("storage configuration: %w", err)
	}
	if segments <= 0 {
		segments = 1
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		out  []model.StoredRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for seg := range segments {
		g.Go(func() error {
			req := model.ScanRequest{Segment: seg, TotalSegments: segments}
			for {
				page, err := store.ScanSegment(gctx, req)
				if err != nil {
					return fmt.Errorf("segment %d: %w", seg, err)
				}
				mu.Lock()
				for _, item := range page.Items {
					id := item.Identity()
					if _, dup := seen[id]; dup {
						continue
					}
					seen[id] = struct{}{}
					out = append(out, item)
				}
				mu.Unlock()
				if page.NextCursor == "" {
					return nil
				}
				req.Cursor = page.NextCursor
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
