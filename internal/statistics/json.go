package statistics

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"backtester/internal/models"
)

// Allocation is the target weight vector in force at Dt.
type Allocation struct {
	Dt      time.Time
	Weights models.Weights
}

// SeriesPoint is a [epoch milliseconds, value] pair.
type SeriesPoint [2]float64

// AllocationSeries is one asset's target weight over time.
type AllocationSeries struct {
	Name string        `json:"name"`
	Data []SeriesPoint `json:"data"`
}

// Report is the serialised block for one curve.
type Report struct {
	*Statistics
	EquityCurve       []SeriesPoint      `json:"equity_curve"`
	ReturnSeries      []SeriesPoint      `json:"returns"`
	CumReturnSeries   []SeriesPoint      `json:"cum_returns"`
	DrawdownSeries    []SeriesPoint      `json:"drawdowns"`
	TargetAllocations []AllocationSeries `json:"target_allocations,omitempty"`
}

// JSONStatistics holds a strategy report and an optional benchmark.
type JSONStatistics struct {
	Strategy      *Report `json:"strategy"`
	Benchmark     *Report `json:"benchmark,omitempty"`
	StrategyID    string  `json:"strategy_id,omitempty"`
	StrategyName  string  `json:"strategy_name,omitempty"`
	BenchmarkID   string  `json:"benchmark_id,omitempty"`
	BenchmarkName string  `json:"benchmark_name,omitempty"`
}

func epochMillis(t time.Time) float64 {
	d := t.UTC()
	return float64(time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).UnixMilli())
}

func toSeries(dates []time.Time, values []float64) []SeriesPoint {
	out := make([]SeriesPoint, 0, len(dates))
	for i, dt := range dates {
		v := values[i]
		if math.IsNaN(v) {
			v = 0
		}
		out = append(out, SeriesPoint{epochMillis(dt), v})
	}
	return out
}

// NewReport builds the serialised form of computed statistics.
func NewReport(s *Statistics) *Report {
	return &Report{
		Statistics:      s,
		EquityCurve:     toSeries(s.Dates, s.Equity),
		ReturnSeries:    toSeries(s.Dates, s.Returns),
		CumReturnSeries: toSeries(s.Dates, s.CumReturns),
		DrawdownSeries:  toSeries(s.Dates, s.Drawdowns),
	}
}

// AllocationColumns pivots allocations into one series per asset with the
// EQ: prefix dropped. Assets missing at a date count as zero.
func AllocationColumns(allocations []Allocation) []AllocationSeries {
	assets := make(map[string]struct{})
	for _, a := range allocations {
		for asset := range a.Weights {
			assets[asset] = struct{}{}
		}
	}
	names := make(models.Weights, len(assets))
	for asset := range assets {
		names[asset] = 0
	}

	var out []AllocationSeries
	for _, asset := range names.Assets() {
		col := AllocationSeries{Name: models.TickerFromSymbol(asset)}
		for _, a := range allocations {
			v := a.Weights[asset]
			if math.IsNaN(v) {
				v = 0
			}
			col.Data = append(col.Data, SeriesPoint{epochMillis(a.Dt), v})
		}
		out = append(out, col)
	}
	return out
}

// WriteFile writes the statistics as JSON to path, creating its directory.
func (j *JSONStatistics) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
