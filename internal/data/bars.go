package data

import (
	"fmt"
	"math"
	"sort"
	"time"

	"backtester/internal/errors"
	"backtester/internal/exchange"
	"backtester/internal/models"
)

// QuoteSeries is a time-ordered list of quotes, looked up by padding to
// the latest quote at or before a given instant.
type QuoteSeries []models.Quote

// At returns the quote in force at dt.
func (s QuoteSeries) At(dt time.Time) (models.Quote, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].At.After(dt) })
	if i == 0 {
		return models.Quote{}, false
	}
	return s[i-1], true
}

// ExpandBars turns daily bars into an open quote at the market open and a
// close quote at the market close of each bar's date. With adjust set,
// the open is scaled by AdjClose/Close and the close replaced by AdjClose.
// NaN prices carry the previous quote forward.
func ExpandBars(symbol string, bars []models.Bar, adjust bool) (QuoteSeries, error) {
	sorted := make([]models.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	series := make(QuoteSeries, 0, 2*len(sorted))
	last := math.NaN()
	push := func(at time.Time, price float64) {
		if math.IsNaN(price) {
			price = last
		}
		last = price
		series = append(series, models.Quote{At: at, Bid: price, Ask: price})
	}

	for _, bar := range sorted {
		open, closePrice := bar.Open, bar.Close
		if adjust {
			if math.IsNaN(bar.AdjClose) {
				return nil, errors.NewDataError("bars", symbol,
					"unable to locate adjusted close prices, prices cannot be adjusted", errors.ErrDataNotFound)
			}
			open = bar.AdjClose / bar.Close * bar.Open
			closePrice = bar.AdjClose
		}
		day := midnight(bar.Date)
		push(day.Add(exchange.MarketOpen), open)
		push(day.Add(exchange.MarketClose), closePrice)
	}
	return series, nil
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BarSource serves prices from in-memory daily bars keyed by asset id.
type BarSource struct {
	bars   map[string][]models.Bar
	quotes map[string]QuoteSeries
}

// NewBarSource expands every asset's bars into quotes up front.
func NewBarSource(bars map[string][]models.Bar, adjust bool) (*BarSource, error) {
	s := &BarSource{
		bars:   make(map[string][]models.Bar, len(bars)),
		quotes: make(map[string]QuoteSeries, len(bars)),
	}
	for asset, rows := range bars {
		series, err := ExpandBars(asset, rows, adjust)
		if err != nil {
			return nil, err
		}
		s.bars[asset] = rows
		s.quotes[asset] = series
	}
	return s, nil
}

// Assets lists the loaded asset ids in sorted order.
func (s *BarSource) Assets() []string {
	out := make([]string, 0, len(s.bars))
	for asset := range s.bars {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}

// Bars returns the raw bars for an asset.
func (s *BarSource) Bars(asset string) []models.Bar {
	return s.bars[asset]
}

// Range returns the first and last bar dates across all assets.
func (s *BarSource) Range() (first, last time.Time, err error) {
	for _, rows := range s.bars {
		for _, bar := range rows {
			if first.IsZero() || bar.Date.Before(first) {
				first = bar.Date
			}
			if bar.Date.After(last) {
				last = bar.Date
			}
		}
	}
	if first.IsZero() {
		return first, last, fmt.Errorf("no bars loaded: %w", errors.ErrDataNotFound)
	}
	return first, last, nil
}

func (s *BarSource) quote(dt time.Time, asset string) (models.Quote, bool) {
	series, ok := s.quotes[asset]
	if !ok {
		return models.Quote{}, false
	}
	return series.At(dt)
}

func (s *BarSource) Bid(dt time.Time, asset string) float64 {
	q, ok := s.quote(dt, asset)
	if !ok {
		return math.NaN()
	}
	return q.Bid
}

func (s *BarSource) Ask(dt time.Time, asset string) float64 {
	q, ok := s.quote(dt, asset)
	if !ok {
		return math.NaN()
	}
	return q.Ask
}

// HistoricalCloses returns unadjusted closes for the requested assets.
// Assets without bars are omitted; nil is returned when none are known.
func (s *BarSource) HistoricalCloses(start, end time.Time, assets []string) (*Closes, error) {
	rows := make(map[string][]barClose, len(assets))
	for _, asset := range assets {
		bars, ok := s.bars[asset]
		if !ok {
			continue
		}
		closes := make([]barClose, 0, len(bars))
		for _, bar := range bars {
			closes = append(closes, barClose{date: midnight(bar.Date), close: bar.Close})
		}
		rows[asset] = closes
	}
	return buildCloses(start, end, assets, rows), nil
}
