package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costdash/internal/model"
	"costdash/internal/pricing"
	"costdash/internal/testutil"
)

func normalized(stored []model.StoredRecord) []model.UsageRecord {
	out := make([]model.UsageRecord, len(stored))
	for i := range stored {
		out[i] = stored[i].Normalize()
	}
	return out
}

func TestComputeFull(t *testing.T) {
	agg := NewAggregator(pricing.NewResolver())
	records := []model.UsageRecord{
		testutil.Record("1", "gpt-4o", "Evelyn Matthei", "2025-11-13T10:00:00Z", 1_000_000, 1_000_000),
		testutil.Record("2", "gpt-4o-mini", "Evelyn Matthei", "2025-11-14T10:00:00Z", 15420, 456),
		{ID: "3", Model: "", Timestamp: "not-a-date"},
	}

	s := agg.ComputeFull(records)
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(1_015_420), s.TotalInputTokens)
	assert.Equal(t, int64(1_000_456), s.TotalOutputTokens)
	assert.InDelta(t, 12.502587, s.TotalCost, 1e-9)

	assert.InDelta(t, 12.5, s.CostByModel["gpt-4o"], 1e-9)
	assert.InDelta(t, 0.002587, s.CostByModel["gpt-4o-mini"], 1e-9)
	assert.Equal(t, int64(1), s.RequestsByModel[UnknownKey], "空模型名计入unknown")
	assert.Equal(t, int64(2), s.RequestsByCandidate["Evelyn Matthei"])
	assert.Equal(t, int64(2), s.RequestsBySearchType["trayectoria_politica"])
	assert.Equal(t, int64(1), s.RequestsBySearchType[UnknownKey])

	require.Len(t, s.DailyCosts, 2, "无法解析的时间戳不计入按日统计")
	assert.Equal(t, "2025-11-13", s.DailyCosts[0].Date)
	assert.Equal(t, "2025-11-14", s.DailyCosts[1].Date)
	assert.Equal(t, int64(1), s.RequestsByDay["2025-11-14"])
}

func TestComputeFullEmpty(t *testing.T) {
	s := NewAggregator(pricing.NewResolver()).ComputeFull(nil)
	assert.Zero(t, s.TotalRequests)
	assert.NotNil(t, s.CostByModel)
	assert.NotNil(t, s.DailyCosts)
}

// 任意切分、任意顺序逐批合并，结果与一次性计算完全一致
func TestMergeIncrementPartitionIndependent(t *testing.T) {
	agg := NewAggregator(pricing.NewResolver())
	all := normalized(testutil.Batch("m", 97))
	want := agg.ComputeFull(all)

	rng := rand.New(rand.NewSource(42))
	for trial := range 20 {
		shuffled := append([]model.UsageRecord(nil), all...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		var got *model.DashboardStats
		for start := 0; start < len(shuffled); {
			size := 1 + rng.Intn(15)
			end := min(start+size, len(shuffled))
			got = agg.MergeIncrement(got, shuffled[start:end])
			start = end
		}
		assert.Equal(t, want, got, "trial %d", trial)
	}
}

func TestMergeAssociativeAndCommutative(t *testing.T) {
	agg := NewAggregator(pricing.NewResolver())
	all := normalized(testutil.Batch("x", 30))
	a := agg.ComputeFull(all[:7])
	b := agg.ComputeFull(all[7:19])
	c := agg.ComputeFull(all[19:])

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))
	assert.Equal(t, left, right)
	assert.Equal(t, Merge(a, b), Merge(b, a))
	assert.Equal(t, agg.ComputeFull(all), left)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	agg := NewAggregator(pricing.NewResolver())
	a := agg.ComputeFull(normalized(testutil.Batch("a", 3)))
	before := a.TotalRequests
	beforeModels := len(a.CostByModel)

	_ = Merge(a, agg.ComputeFull(normalized(testutil.Batch("b", 5))))
	assert.Equal(t, before, a.TotalRequests)
	assert.Len(t, a.CostByModel, beforeModels)

	assert.Equal(t, a, agg.MergeIncrement(nil, normalized(testutil.Batch("a", 3))))
	assert.Equal(t, a, Merge(a, nil))
}
