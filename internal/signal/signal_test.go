package signal

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/data"
	"backtester/internal/errors"
	"backtester/internal/universe"
)

var (
	startDt = time.Date(2019, 1, 1, 14, 30, 0, 0, time.UTC)
	prices  = []float64{
		99.34, 101.87, 98.32, 92.98, 103.87,
		104.51, 97.62, 95.22, 96.09, 100.34,
		105.14, 107.49, 90.23, 89.43, 87.68,
	}
	spy = universe.NewStatic([]string{"EQ:SPY"})
)

func feed(t *testing.T, s Signal) {
	t.Helper()
	for _, p := range prices {
		require.NoError(t, s.Append("EQ:SPY", p))
	}
}

func TestMomentum(t *testing.T) {
	mom := NewMomentum(startDt, spy, []int{6, 12})
	feed(t, mom)

	assert.InDelta(t, -0.08752211468415028, mom.Value("EQ:SPY", 6), 1e-9)
	assert.InDelta(t, -0.10821806346623242, mom.Value("EQ:SPY", 12), 1e-9)
}

func TestSMA(t *testing.T) {
	sma := NewSMA(startDt, spy, []int{6, 12})
	feed(t, sma)

	assert.InDelta(t, 96.71833333333333, sma.Value("EQ:SPY", 6), 1e-9)
	assert.InDelta(t, 97.55, sma.Value("EQ:SPY", 12), 1e-9)
	assert.True(t, math.IsNaN(sma.Value("EQ:AGG", 6)))
}

func TestVolatility(t *testing.T) {
	vol := NewVolatility(startDt, spy, []int{6, 12})
	assert.Equal(t, 0.0, vol.Value("EQ:SPY", 6), "no returns yet")

	feed(t, vol)
	assert.InDelta(t, 1.1236601626188572, vol.Value("EQ:SPY", 6), 1e-9)
	assert.InDelta(t, 1.0459763553295853, vol.Value("EQ:SPY", 12), 1e-9)
}

func TestSignalsOnPartialBuffers(t *testing.T) {
	mom := NewMomentum(startDt, spy, []int{12})
	require.NoError(t, mom.Append("EQ:SPY", 100))
	assert.Equal(t, 0.0, mom.Value("EQ:SPY", 12))

	require.NoError(t, mom.Append("EQ:SPY", 110))
	assert.InDelta(t, 0.1, mom.Value("EQ:SPY", 12), 1e-12)
}

func TestAssetPriceBuffers(t *testing.T) {
	b := NewAssetPriceBuffers([]string{"EQ:SPY"}, []int{2, 3})

	assert.Error(t, b.AddAsset("EQ:SPY"))
	assert.True(t, errors.Is(b.Append("EQ:SPY", 0), errors.ErrInvalidAmount))
	assert.True(t, errors.Is(b.Append("EQ:SPY", math.NaN()), errors.ErrInvalidAmount))

	for _, p := range []float64{1, 2, 3, 4} {
		require.NoError(t, b.Append("EQ:SPY", p))
	}
	assert.Equal(t, []float64{3, 4}, b.Prices("EQ:SPY", 2))
	assert.Equal(t, []float64{2, 3, 4}, b.Prices("EQ:SPY", 3))

	require.NoError(t, b.Append("EQ:AGG", 5))
	assert.True(t, b.Has("EQ:AGG"), "unknown assets are added on append")
	assert.Equal(t, []float64{5}, b.Prices("EQ:AGG", 3))
	assert.Nil(t, b.Prices("EQ:TLT", 3))
}

// Property: no buffer ever holds more prices than its lookback.
func TestProperty_BuffersAreBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("buffer length is min(appended, lookback)", prop.ForAll(
		func(lookback int, ps []float64) bool {
			b := NewAssetPriceBuffers(nil, []int{lookback})
			for _, p := range ps {
				if err := b.Append("EQ:X", p); err != nil {
					return false
				}
			}
			got := b.Prices("EQ:X", lookback)
			want := len(ps)
			if want > lookback {
				want = lookback
			}
			if len(ps) == 0 {
				return got == nil
			}
			return len(got) == want && got[len(got)-1] == ps[len(ps)-1]
		},
		gen.IntRange(1, 20),
		gen.SliceOf(gen.Float64Range(0.01, 1000)),
	))

	properties.TestingRun(t)
}

type midStub map[string]float64

func (m midStub) price(asset string) float64 {
	if p, ok := m[asset]; ok {
		return p
	}
	return math.NaN()
}

func (m midStub) LatestBid(_ time.Time, a string) float64 { return m.price(a) }
func (m midStub) LatestAsk(_ time.Time, a string) float64 { return m.price(a) }
func (m midStub) LatestBidAsk(_ time.Time, a string) (float64, float64) {
	return m.price(a), m.price(a)
}
func (m midStub) LatestMid(_ time.Time, a string) float64 { return m.price(a) }
func (m midStub) HistoricalCloses(time.Time, time.Time, []string) (*data.Closes, error) {
	return nil, nil
}

func TestCollectionUpdate(t *testing.T) {
	u := universe.NewDynamic(map[string]time.Time{
		"EQ:SPY": startDt,
		"EQ:AGG": startDt.AddDate(0, 0, 1),
		"EQ:GLD": startDt,
	})
	mom := NewMomentum(startDt, u, []int{3})
	c := NewCollection(map[string]Signal{"momentum": mom}, midStub{"EQ:SPY": 100, "EQ:AGG": 50}, zerolog.Nop())

	require.NoError(t, c.Update(startDt))
	assert.Equal(t, 1, c.Warmup)
	assert.Equal(t, []string{"EQ:GLD", "EQ:SPY"}, mom.Assets())

	require.NoError(t, c.Update(startDt.AddDate(0, 0, 1)))
	assert.Equal(t, 2, c.Warmup)
	assert.Equal(t, []string{"EQ:GLD", "EQ:SPY", "EQ:AGG"}, mom.Assets())

	got, ok := c.Get("momentum")
	require.True(t, ok)
	assert.Equal(t, 0.0, got.Value("EQ:SPY", 3))
	assert.Equal(t, []float64{100, 100}, mom.buffers.Prices("EQ:SPY", 4))
	assert.Equal(t, []float64{50}, mom.buffers.Prices("EQ:AGG", 4))
	assert.Empty(t, mom.buffers.Prices("EQ:GLD", 4), "assets without prices are skipped")
}
