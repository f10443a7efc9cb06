package rebalance

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/errors"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func expectedTimes(dates []string, hm time.Duration) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, date(d).Add(hm))
	}
	return out
}

const (
	openAt  = 14*time.Hour + 30*time.Minute
	closeAt = 21 * time.Hour
)

func TestBuyAndHold(t *testing.T) {
	for _, start := range []time.Time{date("2020-01-01"), date("2020-01-01").Add(openAt)} {
		b := NewBuyAndHold(start)
		assert.Equal(t, start, b.Start())
		assert.Equal(t, []time.Time{start}, b.Rebalances())
		assert.True(t, b.Contains(start))
	}
}

func TestBuyAndHoldRollsWeekendForwardOnce(t *testing.T) {
	sat := date("2020-02-01").Add(openAt)
	b := NewBuyAndHold(sat)
	assert.Equal(t, []time.Time{date("2020-02-03").Add(openAt)}, b.Rebalances())
	assert.False(t, b.Contains(sat))
	assert.False(t, b.Contains(date("2020-02-04").Add(openAt)))
}

func TestDaily(t *testing.T) {
	tests := []struct {
		start, end string
		preMarket  bool
		dates      []string
		at         time.Duration
	}{
		{"2020-03-11", "2020-03-17", false,
			[]string{"2020-03-11", "2020-03-12", "2020-03-13", "2020-03-16", "2020-03-17"}, closeAt},
		{"2019-12-26", "2020-01-07", true,
			[]string{"2019-12-26", "2019-12-27", "2019-12-30", "2019-12-31", "2020-01-01",
				"2020-01-02", "2020-01-03", "2020-01-06", "2020-01-07"}, openAt},
	}
	for _, tt := range tests {
		d := NewDaily(date(tt.start), date(tt.end), tt.preMarket)
		assert.Equal(t, expectedTimes(tt.dates, tt.at), d.Rebalances())
	}
}

func TestWeekly(t *testing.T) {
	tests := []struct {
		start, end string
		weekday    string
		preMarket  bool
		dates      []string
		at         time.Duration
	}{
		{"2020-03-11", "2020-05-17", "MON", false,
			[]string{"2020-03-16", "2020-03-23", "2020-03-30", "2020-04-06", "2020-04-13",
				"2020-04-20", "2020-04-27", "2020-05-04", "2020-05-11"}, closeAt},
		{"2019-12-26", "2020-02-07", "wed", true,
			[]string{"2020-01-01", "2020-01-08", "2020-01-15", "2020-01-22", "2020-01-29", "2020-02-05"}, openAt},
	}
	for _, tt := range tests {
		w, err := NewWeekly(date(tt.start), date(tt.end), tt.weekday, tt.preMarket)
		require.NoError(t, err)
		assert.Equal(t, expectedTimes(tt.dates, tt.at), w.Rebalances())
	}
}

func TestWeeklyRejectsNonTradingWeekday(t *testing.T) {
	for _, wd := range []string{"SUN", "sat", "MONDAY", ""} {
		_, err := NewWeekly(date("2020-01-01"), date("2020-02-01"), wd, true)
		assert.True(t, errors.Is(err, errors.ErrConfigInvalid), "weekday %q", wd)
	}
}

func TestEndOfMonth(t *testing.T) {
	tests := []struct {
		start, end string
		preMarket  bool
		dates      []string
		at         time.Duration
	}{
		{"2020-03-11", "2020-12-31", false,
			[]string{"2020-03-31", "2020-04-30", "2020-05-29", "2020-06-30", "2020-07-31",
				"2020-08-31", "2020-09-30", "2020-10-30", "2020-11-30", "2020-12-31"}, closeAt},
		{"2019-12-26", "2020-09-01", true,
			[]string{"2019-12-31", "2020-01-31", "2020-02-28", "2020-03-31", "2020-04-30",
				"2020-05-29", "2020-06-30", "2020-07-31", "2020-08-31"}, openAt},
	}
	for _, tt := range tests {
		e := NewEndOfMonth(date(tt.start), date(tt.end), tt.preMarket)
		assert.Equal(t, expectedTimes(tt.dates, tt.at), e.Rebalances())
	}
}

func TestCron(t *testing.T) {
	c, err := NewCron(date("2020-01-01"), date("2020-01-07").Add(23*time.Hour), "0 21 * * 1-5")
	require.NoError(t, err)
	want := expectedTimes([]string{"2020-01-01", "2020-01-02", "2020-01-03", "2020-01-06", "2020-01-07"}, closeAt)
	assert.Equal(t, want, c.Rebalances())

	assert.True(t, c.Contains(date("2020-01-02").Add(closeAt)))
	assert.False(t, c.Contains(date("2020-01-02").Add(openAt)))
	assert.False(t, c.Contains(date("2020-01-04").Add(closeAt)))
	assert.False(t, c.Contains(date("2020-01-08").Add(closeAt)), "after end")
}

func TestCronMonthly(t *testing.T) {
	c, err := NewCron(date("2020-01-01"), date("2020-03-31"), "30 14 1 * *")
	require.NoError(t, err)
	assert.Equal(t, expectedTimes([]string{"2020-01-01", "2020-02-01", "2020-03-01"}, openAt), c.Rebalances())
}

func TestCronRejectsBadSpec(t *testing.T) {
	_, err := NewCron(date("2020-01-01"), date("2020-03-31"), "every tuesday")
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
}

// Property: every daily rebalance is contained in its own schedule and
// falls on a weekday at market closeAt.
func TestProperty_DailyScheduleMembership(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	base := date("2010-01-01")

	properties.Property("membership and weekday", prop.ForAll(
		func(offset, span int) bool {
			start := base.AddDate(0, 0, offset)
			d := NewDaily(start, start.AddDate(0, 0, span), false)
			for _, r := range d.Rebalances() {
				wd := r.Weekday()
				if !d.Contains(r) || wd == time.Saturday || wd == time.Sunday {
					return false
				}
				if r.Hour() != 21 || r.Minute() != 0 {
					return false
				}
				if d.Contains(r.Add(time.Minute)) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 3000),
		gen.IntRange(0, 90),
	))

	properties.TestingRun(t)
}
