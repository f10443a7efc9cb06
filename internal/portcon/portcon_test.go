package portcon

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/broker"
	"backtester/internal/data"
	"backtester/internal/errors"
	"backtester/internal/models"
	"backtester/internal/universe"
)

var sentinelDt = time.Date(2019, 1, 1, 15, 0, 0, 0, time.UTC)

type accountStub struct {
	equity float64
	held   map[string]int
}

func (a accountStub) GetPortfolioTotalEquity(string) (float64, error) { return a.equity, nil }
func (a accountStub) GetPortfolioQuantities(string) (map[string]int, error) {
	out := make(map[string]int, len(a.held))
	for k, v := range a.held {
		out[k] = v
	}
	return out, nil
}

type askStub map[string]float64

func (s askStub) price(asset string) float64 {
	if p, ok := s[asset]; ok {
		return p
	}
	return math.NaN()
}

func (s askStub) LatestBid(_ time.Time, a string) float64 { return s.price(a) }
func (s askStub) LatestAsk(_ time.Time, a string) float64 { return s.price(a) }
func (s askStub) LatestBidAsk(_ time.Time, a string) (float64, float64) {
	return s.price(a), s.price(a)
}
func (s askStub) LatestMid(_ time.Time, a string) float64 { return s.price(a) }
func (s askStub) HistoricalCloses(time.Time, time.Time, []string) (*data.Closes, error) {
	return nil, nil
}

var fourAssetPrices = askStub{
	"EQ:SPY": 1036.23,
	"EQ:AGG": 456.55,
	"EQ:TLT": 987.63,
	"EQ:GLD": 14.76,
}

func TestCashBufferRange(t *testing.T) {
	for _, buf := range []float64{0, 0.5, 0.99, 1} {
		s, err := NewCashBufferedSizer(accountStub{}, "1234", askStub{}, nil, buf)
		require.NoError(t, err)
		assert.Equal(t, buf, s.CashBuffer())
	}
	for _, buf := range []float64{-1, 1.5} {
		_, err := NewCashBufferedSizer(accountStub{}, "1234", askStub{}, nil, buf)
		assert.True(t, errors.Is(err, errors.ErrInvalidAmount), "buffer %v", buf)
	}
}

func TestCashBufferedNormalise(t *testing.T) {
	s, err := NewCashBufferedSizer(accountStub{}, "1234", askStub{}, nil, 0.05)
	require.NoError(t, err)

	tests := []struct {
		in, want models.Weights
	}{
		{models.Weights{"EQ:ABC": 0.2, "EQ:DEF": 0.6}, models.Weights{"EQ:ABC": 0.25, "EQ:DEF": 0.75}},
		{models.Weights{"EQ:ABC": 0.01, "EQ:DEF": 0.01}, models.Weights{"EQ:ABC": 0.5, "EQ:DEF": 0.5}},
		{models.Weights{"EQ:ABC": 0, "EQ:DEF": 0}, models.Weights{"EQ:ABC": 0, "EQ:DEF": 0}},
	}
	for _, tt := range tests {
		got, err := s.Normalise(tt.in)
		require.NoError(t, err)
		for asset, w := range tt.want {
			assert.InDelta(t, w, got[asset], 1e-12)
		}
	}

	_, err = s.Normalise(models.Weights{"EQ:ABC": -0.2, "EQ:DEF": 0.6})
	assert.True(t, errors.Is(err, errors.ErrInvalidWeight))
}

func TestCashBufferedSize(t *testing.T) {
	tests := []struct {
		name    string
		equity  float64
		buffer  float64
		weights models.Weights
		prices  askStub
		want    map[string]int
	}{
		{
			"even split", 1e6, 0.05,
			models.Weights{"EQ:SPY": 0.5, "EQ:AGG": 0.5},
			askStub{"EQ:SPY": 250, "EQ:AGG": 150},
			map[string]int{"EQ:SPY": 1900, "EQ:AGG": 3166},
		},
		{
			"sixty forty", 325000, 0.15,
			models.Weights{"EQ:SPY": 0.6, "EQ:AGG": 0.4},
			askStub{"EQ:SPY": 352, "EQ:AGG": 178},
			map[string]int{"EQ:SPY": 470, "EQ:AGG": 620},
		},
		{
			"unnormalised four assets", 687523, 0.025,
			models.Weights{"EQ:SPY": 0.05, "EQ:AGG": 0.328, "EQ:TLT": 0.842, "EQ:GLD": 0.9113},
			fourAssetPrices,
			map[string]int{"EQ:SPY": 15, "EQ:AGG": 225, "EQ:TLT": 268, "EQ:GLD": 19418},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewCashBufferedSizer(accountStub{equity: tt.equity}, "1234", tt.prices, broker.ZeroFeeModel{}, tt.buffer)
			require.NoError(t, err)
			got, err := s.Size(sentinelDt, tt.weights)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSizingIsDeterministic(t *testing.T) {
	weights := models.Weights{"EQ:A": 0.1, "EQ:B": 0.2, "EQ:C": 0.3}
	prices := askStub{"EQ:A": 1, "EQ:B": 1, "EQ:C": 1}
	account := accountStub{equity: 600}

	cb, err := NewCashBufferedSizer(account, "1234", prices, broker.ZeroFeeModel{}, 0)
	require.NoError(t, err)
	ls, err := NewLongShortSizer(account, "1234", prices, broker.ZeroFeeModel{}, 1)
	require.NoError(t, err)

	wantCB, err := cb.Size(sentinelDt, weights)
	require.NoError(t, err)
	wantLS, err := ls.Size(sentinelDt, weights)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		got, err := cb.Size(sentinelDt, weights.Copy())
		require.NoError(t, err)
		require.Equal(t, wantCB, got, "cash-buffered run %d", i)

		got, err = ls.Size(sentinelDt, weights.Copy())
		require.NoError(t, err)
		require.Equal(t, wantLS, got, "long/short run %d", i)
	}
}

func TestWeightValuesFollowAssetOrder(t *testing.T) {
	w := models.Weights{"EQ:C": 0.3, "EQ:A": 0.1, "EQ:B": 0.2}
	for i := 0; i < 100; i++ {
		assert.Equal(t, []float64{0.1, 0.2, 0.3}, weightValues(w))
	}
}

func TestCashBufferedSizeSubtractsFees(t *testing.T) {
	s, err := NewCashBufferedSizer(accountStub{equity: 100000}, "1234", askStub{"EQ:X": 10},
		broker.PercentFeeModel{CommissionPct: 0.01}, 0)
	require.NoError(t, err)
	got, err := s.Size(sentinelDt, models.Weights{"EQ:X": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"EQ:X": 9900}, got)
}

func TestSizersFailOnMissingPrice(t *testing.T) {
	cb, err := NewCashBufferedSizer(accountStub{equity: 1000}, "1234", askStub{}, nil, 0.05)
	require.NoError(t, err)
	_, err = cb.Size(sentinelDt, models.Weights{"EQ:SPY": 1})
	assert.True(t, errors.Is(err, errors.ErrMissingPrice))

	ls, err := NewLongShortSizer(accountStub{equity: 1000}, "1234", askStub{}, nil, 1)
	require.NoError(t, err)
	_, err = ls.Size(sentinelDt, models.Weights{"EQ:SPY": -1})
	assert.True(t, errors.Is(err, errors.ErrMissingPrice))
}

func TestSizersOnEmptyWeights(t *testing.T) {
	cb, _ := NewCashBufferedSizer(accountStub{equity: 1000}, "1234", askStub{}, nil, 0.05)
	got, err := cb.Size(sentinelDt, models.Weights{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGrossLeverageMustBePositive(t *testing.T) {
	for _, lev := range []float64{0, -1, math.NaN()} {
		_, err := NewLongShortSizer(accountStub{}, "1234", askStub{}, nil, lev)
		assert.Error(t, err)
	}
	s, err := NewLongShortSizer(accountStub{}, "1234", askStub{}, nil, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, s.GrossLeverage())
}

func TestLongShortNormalise(t *testing.T) {
	s, err := NewLongShortSizer(accountStub{}, "1234", askStub{}, nil, 2.0)
	require.NoError(t, err)

	got := s.Normalise(models.Weights{"EQ:ABC": -0.2, "EQ:DEF": 0.6})
	assert.InDelta(t, -0.5, got["EQ:ABC"], 1e-12)
	assert.InDelta(t, 1.5, got["EQ:DEF"], 1e-12)

	zero := s.Normalise(models.Weights{"EQ:ABC": 0})
	assert.Equal(t, models.Weights{"EQ:ABC": 0}, zero)
}

func TestLongShortSize(t *testing.T) {
	tests := []struct {
		name     string
		equity   float64
		leverage float64
		weights  models.Weights
		prices   askStub
		want     map[string]int
	}{
		{
			"unlevered", 1e6, 1.0,
			models.Weights{"EQ:SPY": 0.5, "EQ:AGG": 0.5},
			askStub{"EQ:SPY": 250, "EQ:AGG": 150},
			map[string]int{"EQ:SPY": 2000, "EQ:AGG": 3333},
		},
		{
			"levered sixty forty", 325000, 1.5,
			models.Weights{"EQ:SPY": 0.6, "EQ:AGG": 0.4},
			askStub{"EQ:SPY": 352, "EQ:AGG": 178},
			map[string]int{"EQ:SPY": 830, "EQ:AGG": 1095},
		},
		{
			"four assets", 687523, 2.0,
			models.Weights{"EQ:SPY": 0.05, "EQ:AGG": 0.328, "EQ:TLT": 0.842, "EQ:GLD": 0.9113},
			fourAssetPrices,
			map[string]int{"EQ:SPY": 31, "EQ:AGG": 463, "EQ:TLT": 550, "EQ:GLD": 39833},
		},
		{
			"four assets with shorts", 687523, 2.0,
			models.Weights{"EQ:SPY": 0.05, "EQ:AGG": -0.328, "EQ:TLT": -0.842, "EQ:GLD": 0.9113},
			fourAssetPrices,
			map[string]int{"EQ:SPY": 31, "EQ:AGG": -463, "EQ:TLT": -550, "EQ:GLD": 39833},
		},
		{
			"leverage five", 100000, 5.0,
			models.Weights{"A": 1.0, "B": -0.7},
			askStub{"A": 50, "B": 20},
			map[string]int{"A": 5882, "B": -10294},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewLongShortSizer(accountStub{equity: tt.equity}, "1234", tt.prices, broker.ZeroFeeModel{}, tt.leverage)
			require.NoError(t, err)
			got, err := s.Size(sentinelDt, tt.weights)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Property: long/short normalisation hits the gross leverage and keeps
// every weight's sign.
func TestProperty_LongShortNormalisesToGrossLeverage(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("sum of |w| equals leverage", prop.ForAll(
		func(a, b, leverage float64) bool {
			if math.Abs(a)+math.Abs(b) < 1e-3 {
				return true
			}
			s, err := NewLongShortSizer(accountStub{}, "1", askStub{}, nil, leverage)
			if err != nil {
				return false
			}
			got := s.Normalise(models.Weights{"A": a, "B": b})
			gross := math.Abs(got["A"]) + math.Abs(got["B"])
			return math.Abs(gross-leverage) < 1e-9 &&
				got["A"]*a >= 0 && got["B"]*b >= 0
		},
		gen.Float64Range(-1, 1),
		gen.Float64Range(-1, 1),
		gen.Float64Range(0.1, 10),
	))

	properties.TestingRun(t)
}

func TestEqualWeight(t *testing.T) {
	w := models.Weights{"EQ:ABC": 0.3, "EQ:DEF": 0.7, "EQ:GHI": 0}

	got := NewEqualWeight(1).Optimise(sentinelDt, w)
	for _, asset := range w.Assets() {
		assert.InDelta(t, 1.0/3.0, got[asset], 1e-12)
	}

	got = NewEqualWeight(2).Optimise(sentinelDt, models.Weights{"EQ:ABC": 1, "EQ:DEF": 1})
	assert.Equal(t, models.Weights{"EQ:ABC": 1, "EQ:DEF": 1}, got)

	assert.Empty(t, NewEqualWeight(1).Optimise(sentinelDt, models.Weights{}))
	assert.Equal(t, w, FixedWeight{}.Optimise(sentinelDt, w))
}

func orderTuples(orders []models.Order) [][2]interface{} {
	var out [][2]interface{}
	for _, o := range orders {
		out = append(out, [2]interface{}{o.Asset, o.Quantity})
	}
	return out
}

func TestRebalanceOrders(t *testing.T) {
	tests := []struct {
		name            string
		target, current map[string]int
		want            [][2]interface{}
	}{
		{"empty on both sides", map[string]int{}, map[string]int{}, nil},
		{
			"equal on both sides",
			map[string]int{"EQ:ABC": 100, "EQ:DEF": 250},
			map[string]int{"EQ:ABC": 100, "EQ:DEF": 250},
			nil,
		},
		{
			"empty current",
			map[string]int{"EQ:ABC": 100, "EQ:DEF": 250},
			map[string]int{},
			[][2]interface{}{{"EQ:ABC", 100}, {"EQ:DEF", 250}},
		},
		{
			"empty target",
			map[string]int{},
			map[string]int{"EQ:ABC": 345, "EQ:DEF": 223},
			[][2]interface{}{{"EQ:ABC", -345}, {"EQ:DEF", -223}},
		},
		{
			"non-intersecting",
			map[string]int{"EQ:ABC": 123, "EQ:DEF": 456},
			map[string]int{"EQ:GHI": 217, "EQ:JKL": 48},
			[][2]interface{}{{"EQ:ABC", 123}, {"EQ:DEF", 456}, {"EQ:GHI", -217}, {"EQ:JKL", -48}},
		},
		{
			"partially intersecting",
			map[string]int{"EQ:ABC": 123, "EQ:DEF": 456},
			map[string]int{"EQ:DEF": 217, "EQ:GHI": 48},
			[][2]interface{}{{"EQ:ABC", 123}, {"EQ:DEF", 239}, {"EQ:GHI", -48}},
		},
		{
			"fully intersecting",
			map[string]int{"EQ:ABC": 123, "EQ:DEF": 456},
			map[string]int{"EQ:ABC": 217, "EQ:DEF": 48},
			[][2]interface{}{{"EQ:ABC", -94}, {"EQ:DEF", 408}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := RebalanceOrders(sentinelDt, tt.target, tt.current)
			assert.Equal(t, tt.want, orderTuples(orders))
			for _, o := range orders {
				assert.Equal(t, sentinelDt, o.Dt)
				assert.NotEmpty(t, o.ID)
			}
		})
	}
}

func TestFullAssetList(t *testing.T) {
	m := NewConstructionModel(ConstructionConfig{
		Account:  accountStub{held: map[string]int{"EQ:ABC": 100, "EQ:DEF": 250, "EQ:GHI": 38}},
		Universe: universe.NewStatic([]string{"EQ:123", "EQ:GHI", "EQ:ABC", "EQ:567"}),
	})
	got, err := m.FullAssetList(sentinelDt)
	require.NoError(t, err)
	assert.Equal(t, []string{"EQ:123", "EQ:567", "EQ:ABC", "EQ:DEF", "EQ:GHI"}, got)
}

type fixedAlpha models.Weights

func (a fixedAlpha) Weights(time.Time) models.Weights { return models.Weights(a).Copy() }

type halveRisk struct{}

func (halveRisk) Adjust(_ time.Time, w models.Weights) models.Weights {
	out := w.Copy()
	for k := range out {
		out[k] /= 2
	}
	return out
}

func TestConstructSingleAssetFromEmptyPortfolio(t *testing.T) {
	account := accountStub{equity: 100000}
	prices := askStub{"EQ:SPY": 53.47}
	sizer, err := NewLongShortSizer(account, "1", prices, nil, 1.0)
	require.NoError(t, err)

	m := NewConstructionModel(ConstructionConfig{
		Account:     account,
		PortfolioID: "1",
		Universe:    universe.NewStatic([]string{"EQ:SPY"}),
		Sizer:       sizer,
		Alpha:       fixedAlpha{"EQ:SPY": 1.0},
	})

	rb, err := m.Construct(sentinelDt)
	require.NoError(t, err)
	require.Len(t, rb.Orders, 1)
	assert.Equal(t, "EQ:SPY", rb.Orders[0].Asset)
	assert.Equal(t, int(math.Floor(100000/53.47)), rb.Orders[0].Quantity)
	assert.Equal(t, models.Weights{"EQ:SPY": 1.0}, rb.TargetWeights)
}

func TestConstructLiquidatesAssetsLeavingUniverse(t *testing.T) {
	account := accountStub{equity: 10000, held: map[string]int{"EQ:OLD": 40}}
	prices := askStub{"EQ:NEW": 100, "EQ:OLD": 50}
	sizer, err := NewCashBufferedSizer(account, "1", prices, nil, 0)
	require.NoError(t, err)

	m := NewConstructionModel(ConstructionConfig{
		Account:     account,
		PortfolioID: "1",
		Universe:    universe.NewStatic([]string{"EQ:NEW"}),
		Sizer:       sizer,
		Optimiser:   NewEqualWeight(1),
		Alpha:       fixedAlpha{"EQ:NEW": 0.3},
		Risk:        halveRisk{},
	})

	rb, err := m.Construct(sentinelDt)
	require.NoError(t, err)
	assert.Equal(t, models.Weights{"EQ:NEW": 1, "EQ:OLD": 0}, rb.TargetWeights)
	assert.Equal(t, [][2]interface{}{{"EQ:NEW", 100}, {"EQ:OLD", -40}}, orderTuples(rb.Orders))
}

func TestConstructWithoutAlphaTargetsZero(t *testing.T) {
	account := accountStub{equity: 10000, held: map[string]int{"EQ:SPY": 10}}
	sizer, err := NewCashBufferedSizer(account, "1", askStub{"EQ:SPY": 100}, nil, 0.05)
	require.NoError(t, err)

	m := NewConstructionModel(ConstructionConfig{
		Account:     account,
		PortfolioID: "1",
		Universe:    universe.NewStatic([]string{"EQ:SPY"}),
		Sizer:       sizer,
	})
	rb, err := m.Construct(sentinelDt)
	require.NoError(t, err)
	assert.Equal(t, [][2]interface{}{{"EQ:SPY", -10}}, orderTuples(rb.Orders))
}
