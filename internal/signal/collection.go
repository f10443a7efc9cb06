package signal

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/data"
)

// Collection feeds named signals with the latest mid prices.
type Collection struct {
	signals map[string]Signal
	data    data.Handler
	logger  zerolog.Logger

	// Warmup counts the Update calls made so far.
	Warmup int
}

// NewCollection creates a collection over named signals.
func NewCollection(signals map[string]Signal, dh data.Handler, logger zerolog.Logger) *Collection {
	cp := make(map[string]Signal, len(signals))
	for name, s := range signals {
		cp[name] = s
	}
	return &Collection{signals: cp, data: dh, logger: logger}
}

// Get returns a signal by name.
func (c *Collection) Get(name string) (Signal, bool) {
	s, ok := c.signals[name]
	return s, ok
}

// Names lists the signal names in sorted order.
func (c *Collection) Names() []string {
	names := make([]string, 0, len(c.signals))
	for name := range c.signals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Update refreshes each signal's asset list from its universe, then
// appends every asset's latest mid price. Assets without a price yet are
// skipped.
func (c *Collection) Update(dt time.Time) error {
	names := c.Names()
	for _, name := range names {
		c.signals[name].UpdateAssets(dt)
	}
	for _, name := range names {
		s := c.signals[name]
		for _, asset := range s.Assets() {
			price := c.data.LatestMid(dt, asset)
			if math.IsNaN(price) {
				c.logger.Debug().Str("signal", name).Str("asset", asset).Time("dt", dt).Msg("No price for signal update")
				continue
			}
			if err := s.Append(asset, price); err != nil {
				return err
			}
		}
	}
	c.Warmup++
	return nil
}
