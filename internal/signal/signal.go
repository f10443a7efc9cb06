package signal

import (
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"backtester/internal/universe"
)

// TradingDays annualises daily statistics.
const TradingDays = 252

// Signal is a rolling indicator over the assets of a universe.
type Signal interface {
	Assets() []string
	Append(asset string, price float64) error
	UpdateAssets(dt time.Time)
	Value(asset string, lookback int) float64
}

// base holds the asset list and buffers every signal shares. offset is
// added to each lookback so return-based signals see lookback returns.
type base struct {
	universe universe.Universe
	assets   []string
	known    map[string]struct{}
	offset   int
	buffers  *AssetPriceBuffers
}

func newBase(startDt time.Time, u universe.Universe, lookbacks []int, offset int) base {
	assets := u.Assets(startDt)
	bumped := make([]int, len(lookbacks))
	for i, lb := range lookbacks {
		bumped[i] = lb + offset
	}
	known := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		known[a] = struct{}{}
	}
	return base{
		universe: u,
		assets:   assets,
		known:    known,
		offset:   offset,
		buffers:  NewAssetPriceBuffers(assets, bumped),
	}
}

func (s *base) Assets() []string {
	return append([]string(nil), s.assets...)
}

func (s *base) Append(asset string, price float64) error {
	return s.buffers.Append(asset, price)
}

// UpdateAssets adds assets that have joined the universe since the last
// call. Assets are never removed.
func (s *base) UpdateAssets(dt time.Time) {
	for _, a := range s.universe.Assets(dt) {
		if _, ok := s.known[a]; !ok {
			s.known[a] = struct{}{}
			s.assets = append(s.assets, a)
		}
	}
}

func (s *base) window(asset string, lookback int) []float64 {
	return s.buffers.Prices(asset, lookback+s.offset)
}

// SMA is the simple moving average of the last lookback prices.
type SMA struct {
	base
}

func NewSMA(startDt time.Time, u universe.Universe, lookbacks []int) *SMA {
	return &SMA{base: newBase(startDt, u, lookbacks, 0)}
}

func (s *SMA) Value(asset string, lookback int) float64 {
	return simpleMovingAverage(s.window(asset, lookback))
}

func simpleMovingAverage(prices []float64) float64 {
	if len(prices) == 0 {
		return math.NaN()
	}
	if len(prices) < 2 {
		return stat.Mean(prices, nil)
	}
	sma := talib.Sma(prices, len(prices))
	if last := sma[len(sma)-1]; !math.IsNaN(last) {
		return last
	}
	return stat.Mean(prices, nil)
}

// Momentum is the cumulative return over the last lookback periods.
type Momentum struct {
	base
}

func NewMomentum(startDt time.Time, u universe.Universe, lookbacks []int) *Momentum {
	return &Momentum{base: newBase(startDt, u, lookbacks, 1)}
}

func (s *Momentum) Value(asset string, lookback int) float64 {
	return cumulativeReturn(s.window(asset, lookback))
}

func cumulativeReturn(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	rocr := talib.Rocr(prices, len(prices)-1)
	if last := rocr[len(rocr)-1]; !math.IsNaN(last) && last != 0 {
		return last - 1
	}
	return prices[len(prices)-1]/prices[0] - 1
}

// Volatility is the annualised population standard deviation of simple
// returns over the last lookback periods.
type Volatility struct {
	base
}

func NewVolatility(startDt time.Time, u universe.Universe, lookbacks []int) *Volatility {
	return &Volatility{base: newBase(startDt, u, lookbacks, 1)}
}

func (s *Volatility) Value(asset string, lookback int) float64 {
	return annualisedVolatility(s.window(asset, lookback))
}

// Returns computes simple period-on-period returns.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = prices[i]/prices[i-1] - 1
	}
	return out
}

func annualisedVolatility(prices []float64) float64 {
	returns := Returns(prices)
	switch len(returns) {
	case 0, 1:
		return 0
	}
	sd := talib.StdDev(returns, len(returns), 1.0)
	std := sd[len(sd)-1]
	if math.IsNaN(std) {
		_, std = stat.PopMeanStdDev(returns, nil)
	}
	return std * math.Sqrt(TradingDays)
}
