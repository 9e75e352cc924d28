package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"costdash/internal/model"
	"costdash/internal/pricing"
	"costdash/internal/storage"
	"costdash/internal/testutil"
)

var auditNow = time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)

func sampleRecords() []model.StoredRecord {
	return []model.StoredRecord{
		testutil.Stored("1", "gpt-4o", "A", "2025-11-13T10:00:00Z", 1_000_000, 1_000_000),
		testutil.Stored("2", "gpt-4o", "B", "2025-11-13T11:00:00Z", 100, 50),
		testutil.Stored("3", "gpt-4.1-mini", "C", "2025-11-14T10:00:00Z", 100, 50), // 前缀命中 gpt-4.1
		testutil.Stored("4", "claude-3-opus", "D", "2025-11-14T11:00:00Z", 100, 50),
		testutil.Stored("5", "gpt-4o", "E", "2025-11-15T10:00:00Z", 0, 0),
		{ID: "6", Model: "gpt-4o", Name: "F", Timestamp: "2025-11-15T11:00:00Z"},
		testutil.Stored("7", "", "G", "2025-11-15T12:00:00Z", 10, 10),
	}
}

func TestAnalyze(t *testing.T) {
	r := Analyze(sampleRecords(), pricing.NewResolver(), auditNow)

	assert.Equal(t, 7, r.TotalRecords)
	assert.Equal(t, 1, r.WithoutUsage)
	assert.Equal(t, 1, r.ZeroTokens)
	assert.Equal(t, 1, r.MissingModel)
	assert.Equal(t, 4, r.ValidRecords)
	require.Len(t, r.Problems, 3)

	require.Len(t, r.Models, 3)
	assert.Equal(t, "gpt-4o", r.Models[0].Model)
	assert.Equal(t, 4, r.Models[0].Records)
	assert.Equal(t, pricing.MatchExact, r.Models[0].Match)

	byName := map[string]ModelCoverage{}
	for _, m := range r.Models {
		byName[m.Model] = m
	}
	assert.Equal(t, pricing.MatchPrefix, byName["gpt-4.1-mini"].Match)
	assert.Equal(t, "gpt-4.1", byName["gpt-4.1-mini"].PricedAs)
	assert.Equal(t, pricing.MatchDefault, byName["claude-3-opus"].Match)

	require.Len(t, r.Unpriced, 1)
	assert.Equal(t, 1, r.AffectedRecords)
	assert.InDelta(t, 100.0/7, r.AffectedPercent, 1e-9)

	assert.Len(t, r.DailyCosts, 3)
	assert.Greater(t, r.TotalCost, 12.5)
	assert.True(t, r.Freshness.Outdated, "价格表超过30天")
}

func TestPricingStub(t *testing.T) {
	r := Analyze(sampleRecords(), pricing.NewResolver(), auditNow)
	raw, err := r.PricingStub()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "# "))

	var parsed struct {
		Models map[string]pricing.Rate `yaml:"models"`
	}
	require.NoError(t, yaml.Unmarshal(raw, &parsed))
	assert.Contains(t, parsed.Models, "claude-3-opus")
	assert.Len(t, parsed.Models, 1)
}

func TestCollect(t *testing.T) {
	store := storage.NewMemoryStore(2)
	store.Put(sampleRecords()...)
	store.Put(sampleRecords()[0]) // 重复

	got, err := Collect(context.Background(), store, 3)
	require.NoError(t, err)
	assert.Len(t, got, 7)
}

func TestCollectFailsOnSegmentError(t *testing.T) {
	store := testutil.NewScriptedStore().
		AddPage(0, sampleRecords()...).
		Fail(1, errors.New("boom"))

	_, err := Collect(context.Background(), store, 2)
	assert.ErrorContains(t, err, "boom")

	_, err = Collect(context.Background(), nil, 2)
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}
