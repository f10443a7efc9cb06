// Package alpha provides the models that forecast target weights.
package alpha

import (
	"sort"
	"time"

	"backtester/internal/models"
	"backtester/internal/signal"
	"backtester/internal/universe"
)

// FixedSignals returns the same weights at every instant.
type FixedSignals struct {
	weights models.Weights
}

func NewFixedSignals(weights models.Weights) *FixedSignals {
	return &FixedSignals{weights: weights.Copy()}
}

func (m *FixedSignals) Weights(time.Time) models.Weights {
	return m.weights.Copy()
}

// SingleSignal assigns one value to every asset in the universe.
type SingleSignal struct {
	universe universe.Universe
	signal   float64
}

func NewSingleSignal(u universe.Universe, signal float64) *SingleSignal {
	return &SingleSignal{universe: u, signal: signal}
}

func (m *SingleSignal) Weights(dt time.Time) models.Weights {
	assets := m.universe.Assets(dt)
	w := make(models.Weights, len(assets))
	for _, a := range assets {
		w[a] = m.signal
	}
	return w
}

// MomentumSignalName is the collection key TopNMomentum reads.
const MomentumSignalName = "momentum"

// TopNMomentum holds the N assets with the highest trailing momentum in
// equal proportion. Until the signals have warmed up for lookback
// updates every weight is zero.
type TopNMomentum struct {
	signals  *signal.Collection
	lookback int
	topN     int
	universe universe.Universe
}

func NewTopNMomentum(signals *signal.Collection, lookback, topN int, u universe.Universe) *TopNMomentum {
	return &TopNMomentum{signals: signals, lookback: lookback, topN: topN, universe: u}
}

func (m *TopNMomentum) Weights(dt time.Time) models.Weights {
	w := models.ZeroWeights(m.universe.Assets(dt))
	if m.signals.Warmup < m.lookback || m.topN <= 0 {
		return w
	}
	for _, asset := range m.highestMomentum() {
		w[asset] = 1.0 / float64(m.topN)
	}
	return w
}

func (m *TopNMomentum) highestMomentum() []string {
	mom, ok := m.signals.Get(MomentumSignalName)
	if !ok {
		return nil
	}

	type ranked struct {
		asset string
		value float64
	}
	var all []ranked
	for _, asset := range mom.Assets() {
		all = append(all, ranked{asset, mom.Value(asset, m.lookback)})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].value != all[j].value {
			return all[i].value > all[j].value
		}
		return all[i].asset < all[j].asset
	})

	n := m.topN
	if n > len(all) {
		n = len(all)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = all[i].asset
	}
	return out
}
