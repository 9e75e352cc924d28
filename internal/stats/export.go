package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"costdash/internal/model"
	"costdash/internal/money"
	"costdash/internal/pricing"
	"costdash/internal/util"
)

// CSVHeader 导出表头（与前端导出保持一致）
var CSVHeader = []string{
	"Fecha",
	"Candidato",
	"Modelo AI",
	"Tipo Búsqueda",
	"Último Cargo",
	"Tokens Entrada",
	"Tokens Salida",
	"Tokens Total",
	"Costo Estimado",
}

const (
	reportRecordLimit   = 100
	reportTopCandidates = 10
	summaryTopModels    = 5
)

// Exporter 基于真实价格表生成各类导出
type Exporter struct {
	resolver *pricing.Resolver
	now      func() time.Time
}

func NewExporter(resolver *pricing.Resolver) *Exporter {
	return &Exporter{resolver: resolver, now: time.Now}
}

// WriteCSV 写出CSV（带UTF-8 BOM，兼容Excel）
func (e *Exporter) WriteCSV(w io.Writer, records []model.UsageRecord) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range records {
		rec := &records[i]
		lastPosition := ""
		if rec.LastPosition != nil {
			lastPosition = *rec.LastPosition
		}
		row := []string{
			localTime(rec.Timestamp),
			rec.Entity(),
			rec.Model,
			rec.SearchType,
			lastPosition,
			strconv.FormatInt(rec.Usage.InputTokens, 10),
			strconv.FormatInt(rec.Usage.OutputTokens, 10),
			strconv.FormatInt(rec.Usage.TotalTokens, 10),
			util.FormatCost(e.resolver.CalculateRecord(rec).Float64()),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// TextReport 纯文本报告：总览、按模型、前10实体、按搜索类型、前100条明细
func (e *Exporter) TextReport(records []model.UsageRecord, s *model.DashboardStats) string {
	var b strings.Builder

	b.WriteString("REPORTE DE COSTOS OPENAI\n")
	b.WriteString("========================\n")
	fmt.Fprintf(&b, "Generado: %s\n\n", e.now().UTC().Format(localLayout))

	b.WriteString("RESUMEN GENERAL\n")
	b.WriteString("---------------\n")
	fmt.Fprintf(&b, "Costo Total: %s\n", util.FormatCost(s.TotalCost))
	fmt.Fprintf(&b, "Total Consultas: %s\n", util.FormatNumber(s.TotalRequests))
	fmt.Fprintf(&b, "Tokens Totales: %s\n", util.FormatNumber(s.TotalTokens))
	fmt.Fprintf(&b, "  - Entrada: %s\n", util.FormatNumber(s.TotalInputTokens))
	fmt.Fprintf(&b, "  - Salida: %s\n", util.FormatNumber(s.TotalOutputTokens))
	fmt.Fprintf(&b, "Costo Promedio por Consulta: %s\n", util.FormatCost(averageCost(s)))
	fmt.Fprintf(&b, "Eficiencia (Salida/Entrada): %.2fx\n\n", efficiency(s))

	b.WriteString("COSTOS POR MODELO\n")
	b.WriteString("-----------------\n")
	for _, kv := range SortedByValue(s.CostByModel) {
		fmt.Fprintf(&b, "%s: %s\n", kv.Key, util.FormatCost(kv.Value))
	}

	b.WriteString("\nTOP 10 CANDIDATOS POR COSTO\n")
	b.WriteString("---------------------------\n")
	for i, kv := range Top(SortedByValue(s.CostByCandidate), reportTopCandidates) {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, kv.Key, util.FormatCost(kv.Value))
	}

	b.WriteString("\nCOSTOS POR TIPO DE BÚSQUEDA\n")
	b.WriteString("---------------------------\n")
	for _, kv := range SortedByValue(s.CostBySearchType) {
		fmt.Fprintf(&b, "%s: %s\n", kv.Key, util.FormatCost(kv.Value))
	}

	fmt.Fprintf(&b, "\nREGISTROS DETALLADOS (%d registros)\n", len(records))
	b.WriteString("==================\n")
	for i := range records {
		if i >= reportRecordLimit {
			break
		}
		rec := &records[i]
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, localTime(rec.Timestamp))
		fmt.Fprintf(&b, "   Candidato: %s\n", orNA(rec.Entity()))
		fmt.Fprintf(&b, "   Modelo: %s\n", orNA(rec.Model))
		fmt.Fprintf(&b, "   Tipo: %s\n", orNA(rec.SearchType))
		fmt.Fprintf(&b, "   Tokens: %d (%d entrada, %d salida)\n",
			rec.Usage.TotalTokens, rec.Usage.InputTokens, rec.Usage.OutputTokens)
		fmt.Fprintf(&b, "   Costo: %s\n", util.FormatCost(e.resolver.CalculateRecord(rec).Float64()))
	}
	if len(records) > reportRecordLimit {
		fmt.Fprintf(&b, "\n... y %d registros más\n", len(records)-reportRecordLimit)
	}

	return strings.TrimSpace(b.String())
}

// Summary 导出摘要
type Summary struct {
	GeneratedAt   string       `json:"generatedAt"`
	TotalRecords  int          `json:"totalRecords"`
	DateRange     DateRange    `json:"dateRange"`
	Stats         SummaryStats `json:"stats"`
	TopModels     []KeyedValue `json:"topModels"`
	TopCandidates []KeyedValue `json:"topCandidates"`
	SearchTypes   []KeyedValue `json:"searchTypes"`
}

type DateRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type SummaryStats struct {
	TotalCost             float64 `json:"totalCost"`
	TotalRequests         int64   `json:"totalRequests"`
	TotalTokens           int64   `json:"totalTokens"`
	TotalInputTokens      int64   `json:"totalInputTokens"`
	TotalOutputTokens     int64   `json:"totalOutputTokens"`
	AverageCostPerRequest float64 `json:"averageCostPerRequest"`
	Efficiency            float64 `json:"efficiency"` // 输出/输入
}

// Summary 生成导出摘要
func (e *Exporter) Summary(records []model.UsageRecord, s *model.DashboardStats) Summary {
	out := Summary{
		GeneratedAt:  e.now().UTC().Format(time.RFC3339Nano),
		TotalRecords: len(records),
		Stats: SummaryStats{
			TotalCost:             s.TotalCost,
			TotalRequests:         s.TotalRequests,
			TotalTokens:           s.TotalTokens,
			TotalInputTokens:      s.TotalInputTokens,
			TotalOutputTokens:     s.TotalOutputTokens,
			AverageCostPerRequest: averageCost(s),
			Efficiency:            efficiency(s),
		},
		TopModels:     Top(SortedByValue(s.CostByModel), summaryTopModels),
		TopCandidates: Top(SortedByValue(s.CostByCandidate), reportTopCandidates),
		SearchTypes:   SortedByValue(s.CostBySearchType),
	}

	var first, last time.Time
	for i := range records {
		t, ok := ParseTimestamp(records[i].Timestamp)
		if !ok {
			continue
		}
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if last.IsZero() || t.After(last) {
			last = t
		}
	}
	if !first.IsZero() {
		start := first.Format(time.RFC3339Nano)
		end := last.Format(time.RFC3339Nano)
		out.DateRange = DateRange{Start: &start, End: &end}
	}
	return out
}

// KeyedValue 排序后的键值对
type KeyedValue struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// SortedByValue 按值降序（值相同按键升序，保证输出稳定）
func SortedByValue(m map[string]float64) []KeyedValue {
	out := make([]KeyedValue, 0, len(m))
	for k, v := range m {
		out = append(out, KeyedValue{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Top 截取前n项
func Top(list []KeyedValue, n int) []KeyedValue {
	if len(list) > n {
		return list[:n]
	}
	return list
}

const localLayout = "02/01/2006, 15:04:05"

func localTime(ts string) string {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return ts
	}
	return t.Format(localLayout)
}

// averageCost 定点除法，结果保留 money.Scale 位
func averageCost(s *model.DashboardStats) float64 {
	return money.FromFloat(s.TotalCost).Div(s.TotalRequests).Float64()
}

func efficiency(s *model.DashboardStats) float64 {
	if s.TotalInputTokens == 0 {
		return 0
	}
	return float64(s.TotalOutputTokens) / float64(s.TotalInputTokens)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
