// costdash-audit 检查存储中的记录在价格表中的覆盖情况
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"costdash/internal/app"
	"costdash/internal/audit"
	"costdash/internal/config"
	"costdash/internal/model"
	"costdash/internal/pricing"
	"costdash/internal/storage"
	"costdash/internal/util"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB000"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func run() error {
	stubPath := flag.String("stub", "", "write a YAML pricing stub for unpriced models to this path")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	segments := flag.Int("segments", 0, "parallel scan segments (default: COSTDASH_SEGMENTS)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *segments <= 0 {
		*segments = cfg.SegmentCount
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver := pricing.NewResolver()
	if cfg.PricingFile != "" {
		if err := resolver.LoadAndWatch(cfg.PricingFile); err != nil {
			return fmt.Errorf("pricing: %w", err)
		}
	}

	records, err := loadRecords(ctx, cfg, *segments)
	if err != nil {
		return err
	}

	report := audit.Analyze(records, resolver, time.Now())

	if *stubPath != "" && len(report.Unpriced) > 0 {
		stub, err := report.PricingStub()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*stubPath, stub, 0o644); err != nil {
			return fmt.Errorf("write stub: %w", err)
		}
	}

	if *asJSON {
		out, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Println(string(out))
		return err
	}
	printReport(report, *stubPath)
	return nil
}

func loadRecords(ctx context.Context, cfg *config.Config, segments int) ([]model.StoredRecord, error) {
	if cfg.DemoMode {
		fmt.Println(subtleStyle.Render("Modo demo: usando datos de ejemplo"))
		return app.DemoStoredRecords()
	}
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	started := time.Now()
	records, err := audit.Collect(ctx, store, segments)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	fmt.Println(subtleStyle.Render(fmt.Sprintf("Escaneados %d registros en %v", len(records), time.Since(started).Round(time.Millisecond))))
	return records, nil
}

func printReport(r *audit.Report, stubPath string) {
	fmt.Println(titleStyle.Render("VERIFICACIÓN DE MODELOS Y PRECIOS"))
	fmt.Println()

	fmt.Println(sectionStyle.Render("Registros"))
	fmt.Printf("  Total:            %s\n", util.FormatNumber(int64(r.TotalRecords)))
	fmt.Printf("  Válidos:          %s\n", util.FormatNumber(int64(r.ValidRecords)))
	fmt.Printf("  Sin usage:        %s\n", countStyle(r.WithoutUsage).Render(util.FormatNumber(int64(r.WithoutUsage))))
	fmt.Printf("  Tokens en 0:      %s\n", countStyle(r.ZeroTokens).Render(util.FormatNumber(int64(r.ZeroTokens))))
	fmt.Printf("  Sin modelo:       %s\n", countStyle(r.MissingModel).Render(util.FormatNumber(int64(r.MissingModel))))
	fmt.Println()

	if len(r.Problems) > 0 {
		fmt.Println(sectionStyle.Render("Registros con problemas"))
		for _, p := range r.Problems {
			fmt.Printf("  %s  %-24s %-20s %s\n", warnStyle.Render(p.Problem), p.ID, p.Model, p.Entity)
		}
		fmt.Println()
	}

	fmt.Println(sectionStyle.Render("Modelos"))
	for _, m := range r.Models {
		var match string
		switch m.Match {
		case pricing.MatchExact:
			match = okStyle.Render("exacto ")
		case pricing.MatchPrefix:
			match = warnStyle.Render("prefijo")
		default:
			match = errStyle.Render("default")
		}
		fmt.Printf("  %s %-32s %8s registros  $%.2f/$%.2f  %s\n",
			match, m.Model, util.FormatNumber(int64(m.Records)), m.Rate.Input, m.Rate.Output, util.FormatCost(m.Cost))
		if m.Match == pricing.MatchPrefix {
			fmt.Printf("          %s\n", subtleStyle.Render("→ "+m.PricedAs))
		}
	}
	fmt.Println()

	if len(r.Unpriced) > 0 {
		fmt.Println(errStyle.Render(fmt.Sprintf("%d modelos sin precio (%s registros, %.1f%%)",
			len(r.Unpriced), util.FormatNumber(int64(r.AffectedRecords)), r.AffectedPercent)))
		if stubPath != "" {
			fmt.Printf("  Plantilla escrita en %s\n", stubPath)
		}
	} else {
		fmt.Println(okStyle.Render("Todos los modelos tienen precio"))
	}
	fmt.Println()

	fmt.Println(sectionStyle.Render("Costos"))
	fmt.Printf("  Total:   %s\n", util.FormatCost(r.TotalCost))
	fmt.Printf("  Entrada: %s tokens\n", util.FormatNumber(r.TotalInputTokens))
	fmt.Printf("  Salida:  %s tokens\n", util.FormatNumber(r.TotalOutputTokens))
	if chart := dailyChart(r.DailyCosts); chart != "" {
		fmt.Println()
		fmt.Println(chart)
	}
	fmt.Println()

	f := r.Freshness
	freshness := fmt.Sprintf("Precios actualizados %s (%d días) - %s", f.LastUpdate, f.DaysSinceUpdate, f.Source)
	if f.Outdated {
		fmt.Println(warnStyle.Render(freshness))
	} else {
		fmt.Println(subtleStyle.Render(freshness))
	}
}

func countStyle(n int) lipgloss.Style {
	if n > 0 {
		return warnStyle
	}
	return okStyle
}

// dailyChart 按日成本折线；少于2天时不画
func dailyChart(days []model.DailyCost) string {
	if len(days) < 2 {
		return ""
	}
	data := make([]float64, len(days))
	for i, d := range days {
		data[i] = d.Cost
	}
	caption := fmt.Sprintf("Costo diario %s → %s", days[0].Date, days[len(days)-1].Date)
	return asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(min(max(len(days)*2, 20), 80)),
		asciigraph.Caption(caption),
	)
}
