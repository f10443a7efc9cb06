// Package simulation generates the timestamped events that drive a
// backtest.
package simulation

import (
	"fmt"
	"time"

	"backtester/internal/errors"
	"backtester/internal/exchange"
)

// EventType names the point in a trading day an Event marks.
type EventType string

const (
	PreMarket   EventType = "pre_market"
	MarketOpen  EventType = "market_open"
	MarketClose EventType = "market_close"
	PostMarket  EventType = "post_market"
)

// PostMarketOffset is the time of the post-market event after midnight UTC.
const PostMarketOffset = 23*time.Hour + 59*time.Minute

// Event is a single simulation tick.
type Event struct {
	Dt   time.Time
	Type EventType
}

func (e Event) Equal(other Event) bool {
	return e.Dt.Equal(other.Dt) && e.Type == other.Type
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Dt.UTC().Format("2006-01-02 15:04:05"), e.Type)
}

// Engine produces an ordered, finite sequence of events.
type Engine interface {
	Events() []Event
}

// DailyBusinessDay emits events for every weekday between two dates
// inclusive. Holidays are not observed.
type DailyBusinessDay struct {
	start      time.Time
	end        time.Time
	preMarket  bool
	postMarket bool
	days       []time.Time
}

// NewDailyBusinessDay fails if end precedes start.
func NewDailyBusinessDay(start, end time.Time, preMarket, postMarket bool) (*DailyBusinessDay, error) {
	if end.Before(start) {
		return nil, errors.NewValidationError("end", end,
			fmt.Sprintf("ending date %s is earlier than starting date %s", end.Format(time.RFC3339), start.Format(time.RFC3339)))
	}
	return &DailyBusinessDay{
		start:      start,
		end:        end,
		preMarket:  preMarket,
		postMarket: postMarket,
		days:       BusinessDays(start, end),
	}, nil
}

func (e *DailyBusinessDay) BusinessDays() []time.Time {
	out := make([]time.Time, len(e.days))
	copy(out, e.days)
	return out
}

func (e *DailyBusinessDay) Events() []Event {
	perDay := 2
	if e.preMarket {
		perDay++
	}
	if e.postMarket {
		perDay++
	}
	events := make([]Event, 0, perDay*len(e.days))
	for _, day := range e.days {
		if e.preMarket {
			events = append(events, Event{Dt: day, Type: PreMarket})
		}
		events = append(events,
			Event{Dt: day.Add(exchange.MarketOpen), Type: MarketOpen},
			Event{Dt: day.Add(exchange.MarketClose), Type: MarketClose},
		)
		if e.postMarket {
			events = append(events, Event{Dt: day.Add(PostMarketOffset), Type: PostMarket})
		}
	}
	return events
}

// Midnight truncates t to 00:00 UTC of its calendar day.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsBusinessDay reports whether t falls on a weekday.
func IsBusinessDay(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDays returns midnight UTC of every weekday from start to end
// inclusive. A start with a time component only admits later days.
func BusinessDays(start, end time.Time) []time.Time {
	first := Midnight(start)
	if first.Before(start) {
		first = first.AddDate(0, 0, 1)
	}
	var days []time.Time
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// NextBusinessDay rolls t forward to the next weekday, keeping its time of
// day. Weekdays are returned unchanged.
func NextBusinessDay(t time.Time) time.Time {
	for !IsBusinessDay(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
