package pricing

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverLookup(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name     string
		model    string
		wantKind MatchKind
		wantKey  string
	}{
		{"精确匹配", "gpt-4o", MatchExact, "gpt-4o"},
		{"最长前缀", "gpt-4o-2024-11-20-custom-suffix", MatchPrefix, "gpt-4o-2024-11-20"},
		{"较短前缀", "gpt-4o-mini-2099-01-01", MatchPrefix, "gpt-4o-mini"},
		{"大小写不敏感", "GPT-4O-MINI", MatchPrefix, "gpt-4o-mini"},
		{"前缀不应被更短的键抢占", "gpt-4-turbo-2030", MatchPrefix, "gpt-4-turbo"},
		{"未知模型回退默认", "claude-3-opus", MatchDefault, DefaultModel},
		{"空模型回退默认", "", MatchDefault, DefaultModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, kind, key := r.Lookup(tt.model)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestResolverWarnsOncePerModel(t *testing.T) {
	r := NewResolver()

	for i := 0; i < 5; i++ {
		r.Resolve("unknown-model")
		r.Resolve("")
	}
	r.Resolve("gpt-4o") // 命中不告警
	assert.Equal(t, 2, r.warnedCount())

	other := NewResolver()
	assert.Equal(t, 0, other.warnedCount(), "告警集合是实例级状态")
}

func TestCalculateExactMatch(t *testing.T) {
	r := NewResolver()
	rate := r.Resolve("gpt-4o")

	cost := r.Calculate("gpt-4o", 1_000_000, 1_000_000)
	assert.Equal(t, rate.Input+rate.Output, cost.TotalCost)
	assert.Equal(t, 12.5, cost.TotalCost)
	assert.Equal(t, 2.5, cost.InputCost)
	assert.Equal(t, 10.0, cost.OutputCost)
}

func TestCalculateMalformedCounts(t *testing.T) {
	r := NewResolver()

	cost := r.Calculate("gpt-4o", math.NaN(), -10)
	assert.Zero(t, cost.TotalCost)

	cost = r.Calculate("gpt-4o-mini", 15420, 456)
	assert.Equal(t, 0.002313, cost.InputCost)
	assert.Equal(t, 0.000274, cost.OutputCost) // 456*0.6/1e6 = 0.0002736
	assert.Equal(t, 0.002587, cost.TotalCost)
}

func TestModelPricing(t *testing.T) {
	r := NewResolver()

	rate, ok := r.ModelPricing("gpt-3.5-turbo-16k")
	require.True(t, ok)
	assert.Equal(t, Rate{Input: 3, Output: 4}, rate)

	_, ok = r.ModelPricing("mystery")
	assert.False(t, ok)
	_, ok = r.ModelPricing("")
	assert.False(t, ok)
}

func TestApplyOverrides(t *testing.T) {
	r := NewResolver()
	r.Resolve("llama-3")
	require.Equal(t, 1, r.warnedCount())

	r.ApplyOverrides(map[string]Rate{
		"gpt-4.1-mini": {Input: 0.40, Output: 1.60},
		"bad":          {Input: -1, Output: 1},
	}, "")

	rate, kind, key := r.Lookup("gpt-4.1-mini-2025-04-14")
	assert.Equal(t, MatchPrefix, kind)
	assert.Equal(t, "gpt-4.1-mini", key, "覆盖项比 gpt-4.1 更长，应优先")
	assert.Equal(t, 0.40, rate.Input)

	_, ok := r.ModelPricing("bad")
	assert.False(t, ok)
	assert.Equal(t, 0, r.warnedCount())
}

func TestLoadAndWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := "default: gpt-4o\nmodels:\n  gpt-4.1-nano:\n    input: 0.1\n    output: 0.4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r := NewResolver()
	require.NoError(t, r.LoadAndWatch(path))

	rate, ok := r.ModelPricing("gpt-4.1-nano")
	require.True(t, ok)
	assert.Equal(t, Rate{Input: 0.1, Output: 0.4}, rate)
	assert.Equal(t, "gpt-4o", r.DefaultModel())

	assert.Error(t, NewResolver().LoadAndWatch(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestFreshness(t *testing.T) {
	m := Metadata{LastUpdate: "2025-11-26"}

	fresh := m.Check(time.Date(2025, 12, 10, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, 14, fresh.DaysSinceUpdate)
	assert.False(t, fresh.Outdated)

	stale := m.Check(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 40, stale.DaysSinceUpdate)
	assert.True(t, stale.Outdated)
}
