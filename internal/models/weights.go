package models

import (
	"sort"
)

// Weights maps asset ids to target portfolio weights.
type Weights map[string]float64

// Assets returns the asset ids in ascending order.
func (w Weights) Assets() []string {
	out := make([]string, 0, len(w))
	for asset := range w {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}

// Copy returns an independent copy.
func (w Weights) Copy() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// ZeroWeights assigns zero to every asset.
func ZeroWeights(assets []string) Weights {
	out := make(Weights, len(assets))
	for _, a := range assets {
		out[a] = 0
	}
	return out
}
