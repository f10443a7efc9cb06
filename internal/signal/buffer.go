// Package signal computes rolling price indicators for alpha models.
package signal

import (
	"fmt"
	"math"

	"backtester/internal/errors"
)

type bufferKey struct {
	asset    string
	lookback int
}

// AssetPriceBuffers keeps a bounded FIFO of recent prices for every
// (asset, lookback) pair.
type AssetPriceBuffers struct {
	lookbacks []int
	prices    map[bufferKey][]float64
}

// NewAssetPriceBuffers creates empty buffers for the given assets.
func NewAssetPriceBuffers(assets []string, lookbacks []int) *AssetPriceBuffers {
	if len(lookbacks) == 0 {
		lookbacks = []int{12}
	}
	b := &AssetPriceBuffers{
		lookbacks: append([]int(nil), lookbacks...),
		prices:    make(map[bufferKey][]float64),
	}
	for _, asset := range assets {
		b.addBuffers(asset)
	}
	return b
}

func (b *AssetPriceBuffers) addBuffers(asset string) {
	for _, lb := range b.lookbacks {
		b.prices[bufferKey{asset, lb}] = make([]float64, 0, lb)
	}
}

// Has reports whether asset has buffers.
func (b *AssetPriceBuffers) Has(asset string) bool {
	_, ok := b.prices[bufferKey{asset, b.lookbacks[0]}]
	return ok
}

// AddAsset creates buffers for a new asset.
func (b *AssetPriceBuffers) AddAsset(asset string) error {
	if b.Has(asset) {
		return fmt.Errorf("unable to add asset %q since it already exists in this price buffer", asset)
	}
	b.addBuffers(asset)
	return nil
}

// Append pushes price onto every buffer of asset, evicting the oldest
// price once a buffer is full. Unknown assets are added.
func (b *AssetPriceBuffers) Append(asset string, price float64) error {
	if math.IsNaN(price) || price <= 0 {
		return errors.NewValidationError("price", price,
			fmt.Sprintf("unable to append non-positive price to buffer for %s", asset))
	}
	if !b.Has(asset) {
		b.addBuffers(asset)
	}
	for _, lb := range b.lookbacks {
		key := bufferKey{asset, lb}
		buf := append(b.prices[key], price)
		if len(buf) > lb {
			buf = buf[len(buf)-lb:]
		}
		b.prices[key] = buf
	}
	return nil
}

// Prices returns a copy of the buffer for (asset, lookback), or nil.
func (b *AssetPriceBuffers) Prices(asset string, lookback int) []float64 {
	buf, ok := b.prices[bufferKey{asset, lookback}]
	if !ok {
		return nil
	}
	return append([]float64(nil), buf...)
}

// Lookbacks returns the buffer lengths.
func (b *AssetPriceBuffers) Lookbacks() []int {
	return append([]int(nil), b.lookbacks...)
}
