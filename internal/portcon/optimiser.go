package portcon

import (
	"time"

	"backtester/internal/models"
)

// Optimiser turns raw alpha weights into final portfolio weights.
type Optimiser interface {
	Optimise(dt time.Time, weights models.Weights) models.Weights
}

// FixedWeight passes weights through unchanged.
type FixedWeight struct{}

func (FixedWeight) Optimise(_ time.Time, weights models.Weights) models.Weights {
	return weights.Copy()
}

// EqualWeight gives every asset scale/N.
type EqualWeight struct {
	Scale float64
}

// NewEqualWeight creates an EqualWeight optimiser; a zero scale means 1.
func NewEqualWeight(scale float64) EqualWeight {
	if scale == 0 {
		scale = 1
	}
	return EqualWeight{Scale: scale}
}

func (o EqualWeight) Optimise(_ time.Time, weights models.Weights) models.Weights {
	out := make(models.Weights, len(weights))
	if len(weights) == 0 {
		return out
	}
	w := o.Scale / float64(len(weights))
	for asset := range weights {
		out[asset] = w
	}
	return out
}
