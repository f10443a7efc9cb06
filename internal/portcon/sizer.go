// Package portcon turns target weights into the orders that move a
// portfolio towards them.
package portcon

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"backtester/internal/broker"
	"backtester/internal/data"
	"backtester/internal/errors"
	"backtester/internal/models"
)

// weightEpsilon is the tolerance under which a weight sum counts as zero.
const weightEpsilon = 1e-8

// OrderSizer converts weights into integral target quantities.
type OrderSizer interface {
	Size(dt time.Time, weights models.Weights) (map[string]int, error)
}

// Account is the broker view a sizer and construction model need.
type Account interface {
	GetPortfolioTotalEquity(id string) (float64, error)
	GetPortfolioQuantities(id string) (map[string]int, error)
}

type sizerBase struct {
	account     Account
	portfolioID string
	data        data.Handler
	fees        broker.FeeModel
}

func (s sizerBase) equity() (float64, error) {
	return s.account.GetPortfolioTotalEquity(s.portfolioID)
}

// ask returns the latest ask price and fails on NaN.
func (s sizerBase) ask(dt time.Time, asset string) (float64, error) {
	price := s.data.LatestAsk(dt, asset)
	if math.IsNaN(price) {
		return 0, errors.Wrapf(errors.NewPriceError(asset, "ask", dt),
			"the backtest may start before the first available price for %s", asset)
	}
	return price, nil
}

// afterCost subtracts the estimated fees on a dollar amount. The estimate
// is taken at zero quantity since the share count is not yet known.
func (s sizerBase) afterCost(asset string, dollars float64) float64 {
	return dollars - s.fees.TotalCost(asset, 0, dollars)
}

// weightValues lists weights in ascending asset order so sums are
// reproducible.
func weightValues(w models.Weights) []float64 {
	assets := w.Assets()
	out := make([]float64, len(assets))
	for i, asset := range assets {
		out[i] = w[asset]
	}
	return out
}

// CashBufferedSizer is a long-only sizer that keeps a fraction of equity
// in cash.
type CashBufferedSizer struct {
	sizerBase
	cashBuffer float64
}

// NewCashBufferedSizer fails if cashBuffer is outside [0, 1].
func NewCashBufferedSizer(account Account, portfolioID string, dh data.Handler, fees broker.FeeModel, cashBuffer float64) (*CashBufferedSizer, error) {
	if cashBuffer < 0 || cashBuffer > 1 || math.IsNaN(cashBuffer) {
		return nil, errors.NewValidationError("cash_buffer_percentage", cashBuffer, "must be within [0, 1]")
	}
	if fees == nil {
		fees = broker.ZeroFeeModel{}
	}
	return &CashBufferedSizer{
		sizerBase:  sizerBase{account: account, portfolioID: portfolioID, data: dh, fees: fees},
		cashBuffer: cashBuffer,
	}, nil
}

func (s *CashBufferedSizer) CashBuffer() float64 { return s.cashBuffer }

// Normalise scales weights to sum to one. All-zero weights are returned
// as they are.
func (s *CashBufferedSizer) Normalise(weights models.Weights) (models.Weights, error) {
	for asset, w := range weights {
		if w < 0 {
			return nil, errors.Wrapf(errors.ErrInvalidWeight,
				"cash-buffered sizing does not support negative weight %v for %s", w, asset)
		}
	}
	sum := floats.Sum(weightValues(weights))
	if math.Abs(sum) < weightEpsilon {
		return weights.Copy(), nil
	}
	out := make(models.Weights, len(weights))
	for asset, w := range weights {
		out[asset] = w / sum
	}
	return out, nil
}

func (s *CashBufferedSizer) Size(dt time.Time, weights models.Weights) (map[string]int, error) {
	if len(weights) == 0 {
		return map[string]int{}, nil
	}
	equity, err := s.equity()
	if err != nil {
		return nil, err
	}
	buffered := equity * (1 - s.cashBuffer)

	normalised, err := s.Normalise(weights)
	if err != nil {
		return nil, err
	}

	target := make(map[string]int, len(normalised))
	for _, asset := range normalised.Assets() {
		dollars := s.afterCost(asset, buffered*normalised[asset])
		price, err := s.ask(dt, asset)
		if err != nil {
			return nil, err
		}
		target[asset] = int(math.Floor(dollars / price))
	}
	return target, nil
}

// LongShortSizer allows negative weights and scales gross exposure to a
// fixed leverage.
type LongShortSizer struct {
	sizerBase
	grossLeverage float64
}

// NewLongShortSizer fails if grossLeverage is not positive.
func NewLongShortSizer(account Account, portfolioID string, dh data.Handler, fees broker.FeeModel, grossLeverage float64) (*LongShortSizer, error) {
	if !(grossLeverage > 0) {
		return nil, errors.NewValidationError("gross_leverage", grossLeverage, "must be positive")
	}
	if fees == nil {
		fees = broker.ZeroFeeModel{}
	}
	return &LongShortSizer{
		sizerBase:     sizerBase{account: account, portfolioID: portfolioID, data: dh, fees: fees},
		grossLeverage: grossLeverage,
	}, nil
}

func (s *LongShortSizer) GrossLeverage() float64 { return s.grossLeverage }

// Normalise scales weights so their absolute values sum to the gross
// leverage.
func (s *LongShortSizer) Normalise(weights models.Weights) models.Weights {
	abs := weightValues(weights)
	for i, v := range abs {
		abs[i] = math.Abs(v)
	}
	gross := floats.Sum(abs)
	if gross < weightEpsilon {
		return weights.Copy()
	}
	ratio := s.grossLeverage / gross
	out := make(models.Weights, len(weights))
	for asset, w := range weights {
		out[asset] = w * ratio
	}
	return out
}

func (s *LongShortSizer) Size(dt time.Time, weights models.Weights) (map[string]int, error) {
	if len(weights) == 0 {
		return map[string]int{}, nil
	}
	equity, err := s.equity()
	if err != nil {
		return nil, err
	}

	normalised := s.Normalise(weights)
	target := make(map[string]int, len(normalised))
	for _, asset := range normalised.Assets() {
		dollars := s.afterCost(asset, equity*normalised[asset])
		price, err := s.ask(dt, asset)
		if err != nil {
			return nil, err
		}
		if dollars >= 0 {
			dollars = math.Floor(dollars)
		} else {
			dollars = math.Ceil(dollars)
		}
		target[asset] = int(dollars / price)
	}
	return target, nil
}

func (s *LongShortSizer) String() string {
	return fmt.Sprintf("LongShortSizer(gross_leverage=%.2f)", s.grossLeverage)
}
