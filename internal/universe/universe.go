// Package universe decides which assets a strategy may trade at a given
// instant.
package universe

import (
	"sort"
	"time"
)

// Universe returns the asset ids valid at dt.
type Universe interface {
	Assets(dt time.Time) []string
}

// Static is the same asset list at every instant.
type Static struct {
	assets []string
}

// NewStatic creates a Static universe.
func NewStatic(assets []string) *Static {
	cp := make([]string, len(assets))
	copy(cp, assets)
	return &Static{assets: cp}
}

func (s *Static) Assets(time.Time) []string {
	out := make([]string, len(s.assets))
	copy(out, s.assets)
	return out
}

// Dynamic admits each asset from its entry date onwards.
type Dynamic struct {
	entries map[string]time.Time
}

// NewDynamic creates a Dynamic universe from asset entry dates.
func NewDynamic(entries map[string]time.Time) *Dynamic {
	cp := make(map[string]time.Time, len(entries))
	for asset, dt := range entries {
		cp[asset] = dt
	}
	return &Dynamic{entries: cp}
}

// Assets returns the admitted assets sorted by symbol.
func (d *Dynamic) Assets(dt time.Time) []string {
	var out []string
	for asset, entry := range d.entries {
		if !entry.IsZero() && !dt.Before(entry) {
			out = append(out, asset)
		}
	}
	sort.Strings(out)
	return out
}
