// Package stats 负责仪表盘统计的全量计算与增量合并
package stats

import (
	"log"
	"sort"

	"costdash/internal/model"
	"costdash/internal/money"
	"costdash/internal/pricing"
)

// UnknownKey 分类键缺失时使用的占位键
const UnknownKey = "unknown"

// Aggregator 统计聚合器（无状态，可并发使用）
type Aggregator struct {
	resolver *pricing.Resolver
}

func NewAggregator(resolver *pricing.Resolver) *Aggregator {
	return &Aggregator{resolver: resolver}
}

// ledger 以定点金额累加，保证分批合并与一次性计算结果完全一致
type ledger struct {
	totalCost money.Amount
	requests  int64
	input     int64
	output    int64
	tokens    int64

	costByModel      map[string]money.Amount
	costByCandidate  map[string]money.Amount
	costBySearchType map[string]money.Amount
	costByDay        map[string]money.Amount

	requestsByModel      map[string]int64
	requestsByCandidate  map[string]int64
	requestsBySearchType map[string]int64
	requestsByDay        map[string]int64
}

func newLedger() *ledger {
	return &ledger{
		costByModel:          make(map[string]money.Amount),
		costByCandidate:      make(map[string]money.Amount),
		costBySearchType:     make(map[string]money.Amount),
		costByDay:            make(map[string]money.Amount),
		requestsByModel:      make(map[string]int64),
		requestsByCandidate:  make(map[string]int64),
		requestsBySearchType: make(map[string]int64),
		requestsByDay:        make(map[string]int64),
	}
}

// ComputeFull 单次遍历计算全部聚合
func (a *Aggregator) ComputeFull(records []model.UsageRecord) *model.DashboardStats {
	l := newLedger()
	badDates := 0
	for i := range records {
		rec := &records[i]
		cost := a.resolver.CalculateRecord(rec)

		l.totalCost = l.totalCost.Add(cost)
		l.requests++
		l.input += rec.Usage.InputTokens
		l.output += rec.Usage.OutputTokens
		l.tokens += rec.Usage.TotalTokens

		modelKey := keyOrUnknown(rec.Model)
		candidateKey := keyOrUnknown(rec.Entity())
		searchKey := keyOrUnknown(rec.SearchType)

		addAmount(l.costByModel, modelKey, cost)
		addAmount(l.costByCandidate, candidateKey, cost)
		addAmount(l.costBySearchType, searchKey, cost)
		l.requestsByModel[modelKey]++
		l.requestsByCandidate[candidateKey]++
		l.requestsBySearchType[searchKey]++

		day, ok := DayKey(rec.Timestamp)
		if !ok {
			if badDates == 0 {
				log.Printf("[WARN] 无法解析记录时间戳 id=%s timestamp=%q", rec.ID, rec.Timestamp)
			}
			badDates++
			continue
		}
		addAmount(l.costByDay, day, cost)
		l.requestsByDay[day]++
	}
	if badDates > 1 {
		log.Printf("[WARN] 本批共有 %d 条记录时间戳无法解析，未计入按日统计", badDates)
	}
	return l.snapshot()
}

// MergeIncrement 将新记录折叠进已有快照，不重新处理旧记录
// prev 为 nil 时等价于 ComputeFull(newRecords)
func (a *Aggregator) MergeIncrement(prev *model.DashboardStats, newRecords []model.UsageRecord) *model.DashboardStats {
	delta := a.ComputeFull(newRecords)
	if prev == nil {
		return delta
	}
	return Merge(prev, delta)
}

// Merge 合并两个快照：数值相加，映射按键相加（缺失键视为0），按日序列升序
// 满足交换律与结合律，入参不被修改
func Merge(a, b *model.DashboardStats) *model.DashboardStats {
	l := newLedger()
	for _, s := range []*model.DashboardStats{a, b} {
		if s == nil {
			continue
		}
		l.totalCost = l.totalCost.Add(money.FromFloat(s.TotalCost))
		l.requests += s.TotalRequests
		l.input += s.TotalInputTokens
		l.output += s.TotalOutputTokens
		l.tokens += s.TotalTokens

		mergeAmounts(l.costByModel, s.CostByModel)
		mergeAmounts(l.costByCandidate, s.CostByCandidate)
		mergeAmounts(l.costBySearchType, s.CostBySearchType)
		for _, d := range s.DailyCosts {
			addAmount(l.costByDay, d.Date, money.FromFloat(d.Cost))
		}
		mergeCounts(l.requestsByModel, s.RequestsByModel)
		mergeCounts(l.requestsByCandidate, s.RequestsByCandidate)
		mergeCounts(l.requestsBySearchType, s.RequestsBySearchType)
		mergeCounts(l.requestsByDay, s.RequestsByDay)
	}
	return l.snapshot()
}

func (l *ledger) snapshot() *model.DashboardStats {
	out := model.NewDashboardStats()
	out.TotalCost = l.totalCost.Float64()
	out.TotalRequests = l.requests
	out.TotalInputTokens = l.input
	out.TotalOutputTokens = l.output
	out.TotalTokens = l.tokens

	copyAmounts(out.CostByModel, l.costByModel)
	copyAmounts(out.CostByCandidate, l.costByCandidate)
	copyAmounts(out.CostBySearchType, l.costBySearchType)
	for k, v := range l.requestsByModel {
		out.RequestsByModel[k] = v
	}
	for k, v := range l.requestsByCandidate {
		out.RequestsByCandidate[k] = v
	}
	for k, v := range l.requestsBySearchType {
		out.RequestsBySearchType[k] = v
	}
	for k, v := range l.requestsByDay {
		out.RequestsByDay[k] = v
	}

	days := make([]string, 0, len(l.costByDay))
	for d := range l.costByDay {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days {
		out.DailyCosts = append(out.DailyCosts, model.DailyCost{Date: d, Cost: l.costByDay[d].Float64()})
	}
	return out
}

func keyOrUnknown(k string) string {
	if k == "" {
		return UnknownKey
	}
	return k
}

func addAmount(m map[string]money.Amount, key string, v money.Amount) {
	m[key] = m[key].Add(v)
}

func mergeAmounts(dst map[string]money.Amount, src map[string]float64) {
	for k, v := range src {
		addAmount(dst, k, money.FromFloat(v))
	}
}

func mergeCounts(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] += v
	}
}

func copyAmounts(dst map[string]float64, src map[string]money.Amount) {
	for k, v := range src {
		dst[k] = v.Float64()
	}
}
