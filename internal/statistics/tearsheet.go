package statistics

import (
	"fmt"
	"io"
	"strings"
)

// EquityCurveASCII plots equity samples into a width by height character
// grid.
func EquityCurveASCII(curve []EquityPoint, width, height int) string {
	if len(curve) == 0 {
		return "No data to display"
	}

	minEquity := curve[0].Equity
	maxEquity := curve[0].Equity
	for _, point := range curve {
		if point.Equity < minEquity {
			minEquity = point.Equity
		}
		if point.Equity > maxEquity {
			maxEquity = point.Equity
		}
	}

	// Add padding
	equityRange := maxEquity - minEquity
	if equityRange == 0 {
		equityRange = 1
	}
	minEquity -= equityRange * 0.05
	maxEquity += equityRange * 0.05
	equityRange = maxEquity - minEquity

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	// Sample points to fit width
	step := len(curve) / width
	if step == 0 {
		step = 1
	}

	for x := 0; x < width && x*step < len(curve); x++ {
		point := curve[x*step]
		y := int((point.Equity - minEquity) / equityRange * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Equity Curve (%.0f - %.0f)\n", minEquity, maxEquity))
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteRune('│')
		sb.WriteRune('\n')
	}
	sb.WriteString(strings.Repeat("─", width+2) + "\n")

	return sb.String()
}

// SummaryRow is one labelled metric with strategy and optional benchmark
// values already formatted.
type SummaryRow struct {
	Label     string
	Strategy  string
	Benchmark string
}

// Summary lists the headline metrics of a strategy and benchmark. bench
// may be nil.
func Summary(strat, bench *Statistics) []SummaryRow {
	pct := func(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }
	num := func(v float64) string { return fmt.Sprintf("%.2f", v) }
	days := func(v int) string { return fmt.Sprintf("%d", v) }

	rows := []SummaryRow{
		{Label: "Total Return", Strategy: pct(strat.TotalReturn)},
		{Label: "CAGR", Strategy: pct(strat.CAGR)},
		{Label: "Sharpe Ratio", Strategy: num(strat.Sharpe)},
		{Label: "Sortino Ratio", Strategy: num(strat.Sortino)},
		{Label: "Annual Volatility", Strategy: pct(strat.AnnualisedVol)},
		{Label: "Max Daily Drawdown", Strategy: pct(strat.MaxDrawdown)},
		{Label: "Max Drawdown Duration", Strategy: days(strat.MaxDrawdownDuration)},
	}
	if bench != nil {
		values := []string{
			pct(bench.TotalReturn), pct(bench.CAGR), num(bench.Sharpe), num(bench.Sortino),
			pct(bench.AnnualisedVol), pct(bench.MaxDrawdown), days(bench.MaxDrawdownDuration),
		}
		for i := range rows {
			rows[i].Benchmark = values[i]
		}
	}
	return rows
}

// WriteTearsheet renders the equity curve and summary table to w.
func WriteTearsheet(w io.Writer, title string, curve []EquityPoint, strat, bench *Statistics) error {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(title + "\n\n")
	}
	sb.WriteString(EquityCurveASCII(curve, 60, 15))
	sb.WriteString("\n")

	header := fmt.Sprintf("%-24s %14s", "Metric", "Strategy")
	if bench != nil {
		header += fmt.Sprintf(" %14s", "Benchmark")
	}
	sb.WriteString(header + "\n")
	sb.WriteString(strings.Repeat("─", len([]rune(header))) + "\n")
	for _, row := range Summary(strat, bench) {
		line := fmt.Sprintf("%-24s %14s", row.Label, row.Strategy)
		if bench != nil {
			line += fmt.Sprintf(" %14s", row.Benchmark)
		}
		sb.WriteString(line + "\n")
	}

	if len(strat.Yearly) > 0 {
		sb.WriteString("\nYearly Returns\n")
		for _, y := range strat.Yearly {
			sb.WriteString(fmt.Sprintf("  %d %10.2f%%\n", y.Year, y.Return*100))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
