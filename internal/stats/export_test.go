package stats

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costdash/internal/model"
	"costdash/internal/money"
	"costdash/internal/pricing"
	"costdash/internal/testutil"
)

func newTestExporter() *Exporter {
	e := NewExporter(pricing.NewResolver())
	e.now = func() time.Time { return time.Date(2025, 11, 26, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestWriteCSV(t *testing.T) {
	cargo := "Diputado"
	rec := testutil.Record("1", "gpt-4o", "Evelyn Matthei", "2025-11-13T15:20:15Z", 1_000_000, 1_000_000)
	rec.LastPosition = &cargo

	var buf bytes.Buffer
	require.NoError(t, newTestExporter().WriteCSV(&buf, []model.UsageRecord{rec}))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"), "以UTF-8 BOM开头")

	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{
		"13/11/2025, 15:20:15", "Evelyn Matthei", "gpt-4o", "trayectoria_politica", "Diputado",
		"1000000", "1000000", "2000000", "$12,5000",
	}, rows[1])
}

func TestTextReport(t *testing.T) {
	e := newTestExporter()
	records := normalized(testutil.Batch("r", 105))
	s := NewAggregator(pricing.NewResolver()).ComputeFull(records)

	report := e.TextReport(records, s)
	assert.True(t, strings.HasPrefix(report, "REPORTE DE COSTOS OPENAI"))
	assert.Contains(t, report, "Generado: 26/11/2025, 12:00:00")
	assert.Contains(t, report, "Total Consultas: 105")
	assert.Contains(t, report, "TOP 10 CANDIDATOS POR COSTO")
	assert.Contains(t, report, "REGISTROS DETALLADOS (105 registros)")
	assert.Contains(t, report, "\n100. ")
	assert.NotContains(t, report, "\n101. ")
	assert.True(t, strings.HasSuffix(report, "... y 5 registros más"))
}

func TestSummary(t *testing.T) {
	e := newTestExporter()
	records := []model.UsageRecord{
		testutil.Record("1", "gpt-4o", "A", "2025-11-13T10:00:00Z", 1000, 500),
		testutil.Record("2", "gpt-4.1", "B", "2025-11-01T10:00:00Z", 1000, 1500),
		testutil.Record("3", "gpt-4o-mini", "C", "bad", 10, 10),
	}
	s := NewAggregator(pricing.NewResolver()).ComputeFull(records)

	sum := e.Summary(records, s)
	assert.Equal(t, 3, sum.TotalRecords)
	require.NotNil(t, sum.DateRange.Start)
	assert.Equal(t, "2025-11-01T10:00:00Z", *sum.DateRange.Start)
	assert.Equal(t, "2025-11-13T10:00:00Z", *sum.DateRange.End)
	assert.InDelta(t, 2010.0/2010.0, sum.Stats.Efficiency, 1e-9)
	assert.InDelta(t, s.TotalCost/3, sum.Stats.AverageCostPerRequest, 1e-6)
	assert.Equal(t, money.FromFloat(s.TotalCost).Div(3).Float64(), sum.Stats.AverageCostPerRequest)
	require.Len(t, sum.TopModels, 3)
	assert.Equal(t, "gpt-4.1", sum.TopModels[0].Key)

	empty := e.Summary(nil, model.NewDashboardStats())
	assert.Nil(t, empty.DateRange.Start)
	assert.Zero(t, empty.Stats.AverageCostPerRequest)
}

func TestSortedByValueTies(t *testing.T) {
	got := SortedByValue(map[string]float64{"b": 1, "a": 1, "c": 2})
	assert.Equal(t, []KeyedValue{{"c", 2}, {"a", 1}, {"b", 1}}, got)
	assert.Len(t, Top(got, 2), 2)
	assert.Len(t, Top(got, 10), 3)
}
