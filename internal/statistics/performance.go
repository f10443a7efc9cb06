// Package statistics computes performance metrics from an equity curve
// and renders them as JSON or a terminal tearsheet.
package statistics

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TradingPeriods is the number of daily periods in a year.
const TradingPeriods = 252

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Dt     time.Time `json:"dt"`
	Equity float64   `json:"equity"`
}

// Returns gives the simple period returns of a series. The first return
// is zero.
func Returns(equity []float64) []float64 {
	out := make([]float64, len(equity))
	for i := 1; i < len(equity); i++ {
		r := equity[i]/equity[i-1] - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = 0
		}
		out[i] = r
	}
	return out
}

// CumReturns compounds returns into a growth curve starting near 1.
func CumReturns(returns []float64) []float64 {
	growth := make([]float64, len(returns))
	for i, r := range returns {
		growth[i] = 1 + r
	}
	return floats.CumProd(make([]float64, len(growth)), growth)
}

// CAGR annualises the final value of a cumulative return curve, taking
// the number of years as len(cum)/periods.
func CAGR(cum []float64, periods int) float64 {
	if len(cum) == 0 {
		return 0
	}
	years := float64(len(cum)) / float64(periods)
	return math.Pow(cum[len(cum)-1], 1/years) - 1
}

// Sharpe is the annualised Sharpe ratio against a zero benchmark. It is
// zero when returns do not vary.
func Sharpe(returns []float64, periods int) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return math.Sqrt(float64(periods)) * mean / std
}

// Sortino is the annualised Sortino ratio against a zero benchmark,
// using the deviation of negative returns only. It is zero when there
// are no negative returns.
func Sortino(returns []float64, periods int) float64 {
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(downside, nil)
	if std == 0 {
		return 0
	}
	return math.Sqrt(float64(periods)) * stat.Mean(returns, nil) / std
}

// Drawdowns measures each point's fall from the high water mark of a
// cumulative return curve. The mark starts at zero and the first point
// has no drawdown. duration is the longest run of consecutive periods in
// drawdown.
func Drawdowns(cum []float64) (series []float64, max float64, duration int) {
	series = make([]float64, len(cum))
	hwm := 0.0
	run := 0
	for t := 1; t < len(cum); t++ {
		hwm = math.Max(hwm, cum[t])
		dd := 0.0
		if hwm != 0 {
			dd = (hwm - cum[t]) / hwm
		}
		series[t] = dd
		if dd > max {
			max = dd
		}
		if dd != 0 {
			run++
			if run > duration {
				duration = run
			}
		} else {
			run = 0
		}
	}
	return series, max, duration
}

// PeriodReturn is the compounded return of one calendar month or year.
// Month is zero for yearly returns.
type PeriodReturn struct {
	Year   int     `json:"year"`
	Month  int     `json:"month,omitempty"`
	Return float64 `json:"return"`
}

func aggregate(dates []time.Time, returns []float64, key func(time.Time) PeriodReturn) []PeriodReturn {
	var out []PeriodReturn
	for i, dt := range dates {
		k := key(dt)
		if n := len(out); n > 0 && out[n-1].Year == k.Year && out[n-1].Month == k.Month {
			out[n-1].Return = (1+out[n-1].Return)*(1+returns[i]) - 1
			continue
		}
		k.Return = returns[i]
		out = append(out, k)
	}
	return out
}

// MonthlyReturns compounds daily returns per calendar month. dates must
// be ordered.
func MonthlyReturns(dates []time.Time, returns []float64) []PeriodReturn {
	return aggregate(dates, returns, func(t time.Time) PeriodReturn {
		return PeriodReturn{Year: t.Year(), Month: int(t.Month())}
	})
}

// YearlyReturns compounds daily returns per calendar year.
func YearlyReturns(dates []time.Time, returns []float64) []PeriodReturn {
	return aggregate(dates, returns, func(t time.Time) PeriodReturn {
		return PeriodReturn{Year: t.Year()}
	})
}

// Quantiles summarises a return distribution.
type Quantiles struct {
	Min    float64 `json:"min"`
	Lower  float64 `json:"lq"`
	Median float64 `json:"med"`
	Upper  float64 `json:"uq"`
	Max    float64 `json:"max"`
}

// percentile interpolates linearly between closest ranks of sorted data,
// the numpy/pandas default. gonum's stat.LinInterp places ranks at i/n and
// gives different quartiles.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func quantiles(values []float64) Quantiles {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return Quantiles{
		Min:    percentile(sorted, 0),
		Lower:  percentile(sorted, 0.25),
		Median: percentile(sorted, 0.5),
		Upper:  percentile(sorted, 0.75),
		Max:    percentile(sorted, 1),
	}
}

func periodValues(p []PeriodReturn) []float64 {
	out := make([]float64, len(p))
	for i, r := range p {
		out[i] = r.Return
	}
	return out
}

// Statistics is the full set of metrics for one equity curve.
type Statistics struct {
	Dates               []time.Time    `json:"-"`
	Equity              []float64      `json:"-"`
	Returns             []float64      `json:"-"`
	CumReturns          []float64      `json:"-"`
	Drawdowns           []float64      `json:"-"`
	TotalReturn         float64        `json:"total_return"`
	CAGR                float64        `json:"cagr"`
	MeanReturns         float64        `json:"mean_returns"`
	StdevReturns        float64        `json:"stdev_returns"`
	AnnualisedVol       float64        `json:"annualised_vol"`
	Sharpe              float64        `json:"sharpe"`
	Sortino             float64        `json:"sortino"`
	MaxDrawdown         float64        `json:"max_drawdown"`
	MaxDrawdownDuration int            `json:"max_drawdown_duration"`
	Monthly             []PeriodReturn `json:"monthly_agg_returns"`
	Yearly              []PeriodReturn `json:"yearly_agg_returns"`
	DailyQuantiles      Quantiles      `json:"daily_quantiles"`
	MonthlyQuantiles    Quantiles      `json:"monthly_quantiles"`
	YearlyQuantiles     Quantiles      `json:"yearly_quantiles"`
}

// Compute derives every metric from an ordered equity curve using
// periods per year.
func Compute(curve []EquityPoint, periods int) *Statistics {
	if periods <= 0 {
		periods = TradingPeriods
	}
	s := &Statistics{
		Dates:  make([]time.Time, len(curve)),
		Equity: make([]float64, len(curve)),
	}
	for i, p := range curve {
		s.Dates[i] = p.Dt
		s.Equity[i] = p.Equity
	}
	if len(curve) == 0 {
		return s
	}

	s.Returns = Returns(s.Equity)
	s.CumReturns = CumReturns(s.Returns)
	s.Drawdowns, s.MaxDrawdown, s.MaxDrawdownDuration = Drawdowns(s.CumReturns)

	s.TotalReturn = s.CumReturns[len(s.CumReturns)-1] - 1
	s.CAGR = CAGR(s.CumReturns, periods)
	s.MeanReturns, s.StdevReturns = stat.PopMeanStdDev(s.Returns, nil)
	if math.IsNaN(s.StdevReturns) {
		s.StdevReturns = 0
	}
	s.AnnualisedVol = s.StdevReturns * math.Sqrt(float64(periods))
	s.Sharpe = Sharpe(s.Returns, periods)
	s.Sortino = Sortino(s.Returns, periods)

	s.Monthly = MonthlyReturns(s.Dates, s.Returns)
	s.Yearly = YearlyReturns(s.Dates, s.Returns)
	s.DailyQuantiles = quantiles(s.Returns)
	s.MonthlyQuantiles = quantiles(periodValues(s.Monthly))
	s.YearlyQuantiles = quantiles(periodValues(s.Yearly))
	return s
}
