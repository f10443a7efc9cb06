package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimulatedExchangeHours(t *testing.T) {
	ex := NewSimulatedExchange(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name string
		dt   time.Time
		open bool
	}{
		{"pre-market", time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), false},
		{"before open", time.Date(2020, 1, 2, 14, 29, 59, 0, time.UTC), false},
		{"open", time.Date(2020, 1, 2, 14, 30, 0, 0, time.UTC), true},
		{"midday", time.Date(2020, 1, 2, 18, 0, 0, 0, time.UTC), true},
		{"close", time.Date(2020, 1, 2, 21, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2020, 1, 4, 15, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2020, 1, 5, 15, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.open, ex.IsOpenAt(tt.dt))
		})
	}
}

func TestSimulatedExchangeNormalisesToUTC(t *testing.T) {
	ex := NewSimulatedExchange(time.Time{})
	ny := time.FixedZone("EST", -5*3600)

	assert.True(t, ex.IsOpenAt(time.Date(2020, 1, 2, 9, 30, 0, 0, ny)))
	assert.False(t, ex.IsOpenAt(time.Date(2020, 1, 2, 16, 0, 0, 0, ny)))
}
