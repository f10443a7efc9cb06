// Package exchange models market trading hours.
package exchange

import (
	"time"
)

// Exchange reports whether orders can be filled at a given instant.
type Exchange interface {
	IsOpenAt(dt time.Time) bool
}

// Session times in UTC.
var (
	MarketOpen  = 14*time.Hour + 30*time.Minute
	MarketClose = 21 * time.Hour
)

// SimulatedExchange is open on weekdays between MarketOpen (inclusive)
// and MarketClose (exclusive). There is no holiday calendar.
type SimulatedExchange struct {
	startDt time.Time
}

// NewSimulatedExchange creates a SimulatedExchange.
func NewSimulatedExchange(startDt time.Time) *SimulatedExchange {
	return &SimulatedExchange{startDt: startDt}
}

// StartDt returns the instant the exchange was created for.
func (e *SimulatedExchange) StartDt() time.Time {
	return e.startDt
}

// IsOpenAt implements Exchange.
func (e *SimulatedExchange) IsOpenAt(dt time.Time) bool {
	dt = dt.UTC()
	if wd := dt.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	sinceMidnight := dt.Sub(time.Date(dt.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, time.UTC))
	return sinceMidnight >= MarketOpen && sinceMidnight < MarketClose
}
