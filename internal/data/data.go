// Package data provides price lookup for the simulation.
package data

import (
	"math"
	"sort"
	"time"
)

// Source supplies bid/ask prices for assets. Lookups return NaN when no
// price is known at or before dt.
type Source interface {
	Bid(dt time.Time, asset string) float64
	Ask(dt time.Time, asset string) float64
	HistoricalCloses(start, end time.Time, assets []string) (*Closes, error)
}

// Handler is the price view the broker and the construction pipeline
// consume.
type Handler interface {
	LatestBid(dt time.Time, asset string) float64
	LatestAsk(dt time.Time, asset string) float64
	LatestBidAsk(dt time.Time, asset string) (bid, ask float64)
	LatestMid(dt time.Time, asset string) float64
	HistoricalCloses(start, end time.Time, assets []string) (*Closes, error)
}

// Closes is a date-indexed table of closing prices. Each column in Prices
// is aligned with Dates and holds NaN where an asset has no bar.
type Closes struct {
	Dates  []time.Time
	Assets []string
	Prices map[string][]float64
}

// Len returns the number of rows.
func (c *Closes) Len() int {
	return len(c.Dates)
}

// Column returns the closes for one asset, or nil if it is absent.
func (c *Closes) Column(asset string) []float64 {
	return c.Prices[asset]
}

// BacktestHandler queries its sources in order and returns the first
// non-NaN price.
type BacktestHandler struct {
	sources []Source
}

// NewBacktestHandler creates a handler over the given sources.
func NewBacktestHandler(sources ...Source) *BacktestHandler {
	return &BacktestHandler{sources: sources}
}

func (h *BacktestHandler) first(lookup func(Source) float64) float64 {
	for _, src := range h.sources {
		if v := lookup(src); !math.IsNaN(v) {
			return v
		}
	}
	return math.NaN()
}

func (h *BacktestHandler) LatestBid(dt time.Time, asset string) float64 {
	return h.first(func(s Source) float64 { return s.Bid(dt, asset) })
}

func (h *BacktestHandler) LatestAsk(dt time.Time, asset string) float64 {
	return h.first(func(s Source) float64 { return s.Ask(dt, asset) })
}

// LatestBidAsk returns the bid on both sides. Daily bars carry a single
// traded price, so there is no spread to model.
func (h *BacktestHandler) LatestBidAsk(dt time.Time, asset string) (float64, float64) {
	bid := h.LatestBid(dt, asset)
	return bid, bid
}

// LatestMid averages LatestBidAsk. NaN propagates.
func (h *BacktestHandler) LatestMid(dt time.Time, asset string) float64 {
	bid, ask := h.LatestBidAsk(dt, asset)
	return (bid + ask) / 2.0
}

// HistoricalCloses returns the table from the first source that has one.
func (h *BacktestHandler) HistoricalCloses(start, end time.Time, assets []string) (*Closes, error) {
	for _, src := range h.sources {
		closes, err := src.HistoricalCloses(start, end, assets)
		if err != nil {
			return nil, err
		}
		if closes != nil {
			return closes, nil
		}
	}
	return nil, nil
}

// buildCloses assembles a Closes table from per-asset bars restricted to
// [start, end]. Dates on which no asset traded are dropped.
func buildCloses(start, end time.Time, assets []string, bars map[string][]barClose) *Closes {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	var present []string
	for _, asset := range assets {
		rows, ok := bars[asset]
		if !ok {
			continue
		}
		present = append(present, asset)
		for _, r := range rows {
			if r.date.Before(start) || r.date.After(end) {
				continue
			}
			if _, dup := seen[r.date]; !dup {
				seen[r.date] = struct{}{}
				dates = append(dates, r.date)
			}
		}
	}
	if len(present) == 0 {
		return nil
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	prices := make(map[string][]float64, len(present))
	for _, asset := range present {
		col := make([]float64, len(dates))
		for i := range col {
			col[i] = math.NaN()
		}
		for _, r := range bars[asset] {
			if i, ok := index[r.date]; ok {
				col[i] = r.close
			}
		}
		prices[asset] = col
	}

	return &Closes{Dates: dates, Assets: present, Prices: prices}
}

type barClose struct {
	date  time.Time
	close float64
}
