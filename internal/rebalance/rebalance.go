// Package rebalance builds the schedules of instants at which a strategy
// is asked for new target weights.
package rebalance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"backtester/internal/errors"
	"backtester/internal/exchange"
	"backtester/internal/simulation"
)

// Schedule is an ordered set of rebalance instants.
type Schedule interface {
	Rebalances() []time.Time
	Contains(dt time.Time) bool
}

// marketTime is the time of day a rebalance happens: market open when
// preMarket is set, market close otherwise.
func marketTime(preMarket bool) time.Duration {
	if preMarket {
		return exchange.MarketOpen
	}
	return exchange.MarketClose
}

// fixed is a precomputed schedule.
type fixed struct {
	times []time.Time
	index map[int64]struct{}
}

func newFixed(times []time.Time) fixed {
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	index := make(map[int64]struct{}, len(times))
	for _, t := range times {
		index[t.UnixNano()] = struct{}{}
	}
	return fixed{times: times, index: index}
}

func (f fixed) Rebalances() []time.Time {
	out := make([]time.Time, len(f.times))
	copy(out, f.times)
	return out
}

func (f fixed) Contains(dt time.Time) bool {
	_, ok := f.index[dt.UnixNano()]
	return ok
}

func atMarketTime(days []time.Time, preMarket bool) []time.Time {
	offset := marketTime(preMarket)
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		out = append(out, simulation.Midnight(d).Add(offset))
	}
	return out
}

// BuyAndHold rebalances once, on the first business day at or after start.
type BuyAndHold struct {
	fixed
	start time.Time
}

func NewBuyAndHold(start time.Time) *BuyAndHold {
	return &BuyAndHold{
		fixed: newFixed([]time.Time{simulation.NextBusinessDay(start)}),
		start: start,
	}
}

func (b *BuyAndHold) Start() time.Time { return b.start }

// Daily rebalances on every business day.
type Daily struct {
	fixed
}

func NewDaily(start, end time.Time, preMarket bool) *Daily {
	return &Daily{fixed: newFixed(atMarketTime(simulation.BusinessDays(start, end), preMarket))}
}

var weekdays = map[string]time.Weekday{
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
}

// ParseWeekday accepts a three letter trading weekday in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdays[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return 0, errors.NewConfigError("rebalance_weekday", s,
			fmt.Sprintf("weekday %q is not recognised or not a trading weekday", s))
	}
	return wd, nil
}

// Weekly rebalances once a week on a given weekday.
type Weekly struct {
	fixed
	weekday time.Weekday
}

func NewWeekly(start, end time.Time, weekday string, preMarket bool) (*Weekly, error) {
	wd, err := ParseWeekday(weekday)
	if err != nil {
		return nil, err
	}
	var days []time.Time
	for _, d := range simulation.BusinessDays(start, end) {
		if d.Weekday() == wd {
			days = append(days, d)
		}
	}
	return &Weekly{fixed: newFixed(atMarketTime(days, preMarket)), weekday: wd}, nil
}

func (w *Weekly) Weekday() time.Weekday { return w.weekday }

// EndOfMonth rebalances on the last business day of each month.
type EndOfMonth struct {
	fixed
}

func NewEndOfMonth(start, end time.Time, preMarket bool) *EndOfMonth {
	days := simulation.BusinessDays(start, end)
	var last []time.Time
	for _, d := range days {
		if next := simulation.NextBusinessDay(d.AddDate(0, 0, 1)); next.Month() != d.Month() {
			last = append(last, d)
		}
	}
	return &EndOfMonth{fixed: newFixed(atMarketTime(last, preMarket))}
}

// Cron rebalances at the instants of a standard five field cron spec,
// evaluated in UTC, between start and end.
type Cron struct {
	spec     string
	schedule cron.Schedule
	start    time.Time
	end      time.Time
}

// ParseCron validates a cron spec. A spec without a CRON_TZ or TZ prefix
// is evaluated in UTC.
func ParseCron(spec string) (cron.Schedule, error) {
	s := strings.TrimSpace(spec)
	if !strings.HasPrefix(s, "CRON_TZ=") && !strings.HasPrefix(s, "TZ=") {
		s = "CRON_TZ=UTC " + s
	}
	schedule, err := cron.ParseStandard(s)
	if err != nil {
		return nil, errors.NewConfigError("rebalance_cron", spec, fmt.Sprintf("invalid cron spec %q: %v", spec, err))
	}
	return schedule, nil
}

func NewCron(start, end time.Time, spec string) (*Cron, error) {
	schedule, err := ParseCron(spec)
	if err != nil {
		return nil, err
	}
	return &Cron{spec: spec, schedule: schedule, start: start, end: end}, nil
}

func (c *Cron) Spec() string { return c.spec }

func (c *Cron) Rebalances() []time.Time {
	var out []time.Time
	for t := c.schedule.Next(c.start.Add(-time.Nanosecond)); !t.After(c.end); t = c.schedule.Next(t) {
		out = append(out, t.UTC())
	}
	return out
}

func (c *Cron) Contains(dt time.Time) bool {
	if dt.Before(c.start) || dt.After(c.end) {
		return false
	}
	return c.schedule.Next(dt.Add(-time.Nanosecond)).Equal(dt)
}
