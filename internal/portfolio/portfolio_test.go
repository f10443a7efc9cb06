package portfolio

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/errors"
	"backtester/internal/models"
)

func TestHandlerAddsToExistingPosition(t *testing.T) {
	h := NewPositionHandler()
	require.NoError(t, h.TransactPosition(txn("EQ:AMZN", 100, epoch, 960.0, 26.83)))
	require.NoError(t, h.TransactPosition(txn("EQ:AMZN", 200, epoch.Add(time.Hour), 990.0, 18.53)))

	pos, ok := h.Get("EQ:AMZN")
	require.True(t, ok)
	assert.Equal(t, 300, pos.NetQuantity())
	assert.InDelta(t, 980.1512, pos.AvgPrice(), 1e-9)
}

func TestHandlerRemovesFlatPosition(t *testing.T) {
	h := NewPositionHandler()
	require.NoError(t, h.TransactPosition(txn("EQ:AMZN", 100, epoch, 960.0, 26.83)))
	require.NoError(t, h.TransactPosition(txn("EQ:AMZN", -100, epoch.Add(time.Hour), 980.0, 18.53)))

	_, ok := h.Get("EQ:AMZN")
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0.0, h.TotalMarketValue())
}

func TestHandlerAggregates(t *testing.T) {
	h := NewPositionHandler()
	require.NoError(t, h.TransactPosition(txn("EQ:AMZN", 75, epoch, 483.45, 15.97)))
	require.NoError(t, h.TransactPosition(txn("EQ:MSFT", 250, epoch, 142.58, 8.35)))

	assert.Equal(t, []string{"EQ:AMZN", "EQ:MSFT"}, h.Assets())
	assert.InDelta(t, 71903.75, h.TotalMarketValue(), 1e-6)
	assert.InDelta(t, -24.32, h.TotalUnrealisedPnL(), 1e-6)
	assert.InDelta(t, 0.0, h.TotalRealisedPnL(), 1e-9)
	assert.InDelta(t, -24.32, h.TotalPnL(), 1e-6)

	var sum float64
	for _, pos := range h.Positions() {
		sum += pos.TotalPnL()
	}
	assert.InDelta(t, sum, h.TotalPnL(), 1e-9)
}

// Property: a position is held iff its net quantity is non-zero.
func TestProperty_HandlerHoldsOnlyNonFlatPositions(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	assets := []string{"EQ:AAA", "EQ:BBB", "EQ:CCC"}

	properties.Property("held iff net quantity non-zero", prop.ForAll(
		func(qtys []int, picks []int) bool {
			h := NewPositionHandler()
			net := map[string]int{}
			dt := epoch
			for i, q := range qtys {
				if q == 0 {
					continue
				}
				asset := assets[picks[i%len(picks)]%len(assets)]
				dt = dt.Add(time.Hour)
				if err := h.TransactPosition(txn(asset, q, dt, 50, 0)); err != nil {
					return false
				}
				net[asset] += q
			}
			for _, asset := range assets {
				pos, ok := h.Get(asset)
				if ok != (net[asset] != 0) {
					return false
				}
				if ok && pos.NetQuantity() != net[asset] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-20, 20)),
		gen.SliceOfN(5, gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}

func newPortfolio(t *testing.T, cash float64) *Portfolio {
	t.Helper()
	p, err := New(epoch, Config{ID: "1234", Name: "test", StartingCash: cash})
	require.NoError(t, err)
	return p
}

func TestNewPortfolioSeedsSubscription(t *testing.T) {
	p := newPortfolio(t, 0)
	assert.Empty(t, p.History())
	assert.Equal(t, "USD", p.Currency())

	p = newPortfolio(t, 2000)
	require.Len(t, p.History(), 1)
	assert.True(t, p.History()[0].Equal(models.NewSubscriptionEvent(epoch, 2000, 2000)))

	_, err := New(epoch, Config{StartingCash: -1})
	assert.True(t, errors.Is(err, errors.ErrInvalidAmount))
}

func TestSubscribeAndWithdraw(t *testing.T) {
	p := newPortfolio(t, 0)
	later := epoch.Add(24 * time.Hour)

	require.NoError(t, p.SubscribeFunds(later, 1000))
	require.NoError(t, p.WithdrawFunds(later, 468))
	assert.Equal(t, 532.0, p.Cash())

	history := p.History()
	require.Len(t, history, 2)
	assert.True(t, history[0].Equal(models.NewSubscriptionEvent(later, 1000, 1000)))
	assert.Equal(t, models.PortfolioEvent{
		Dt: later, Type: models.EventWithdrawal, Description: "WITHDRAWAL",
		Debit: 468, Credit: 0, Balance: 532,
	}, history[1])
}

func TestFailedMutationsLeaveStateUntouched(t *testing.T) {
	p := newPortfolio(t, 1000)
	later := epoch.Add(time.Hour)
	require.NoError(t, p.SubscribeFunds(later, 0))

	err := p.WithdrawFunds(later, 1000.01)
	assert.True(t, errors.Is(err, errors.ErrInsufficientFunds))

	err = p.SubscribeFunds(later, -1)
	assert.True(t, errors.Is(err, errors.ErrInvalidAmount))

	err = p.WithdrawFunds(epoch, 10)
	assert.True(t, errors.Is(err, errors.ErrChronology))

	err = p.TransactAsset(txn("EQ:AAA", 1, epoch, 10, 0))
	assert.True(t, errors.Is(err, errors.ErrChronology))

	assert.Equal(t, 1000.0, p.Cash())
	assert.Equal(t, later, p.CurrentDt())
	assert.Len(t, p.History(), 2)
}

func TestTransactAssetLong(t *testing.T) {
	start := time.Date(2017, 10, 5, 8, 0, 0, 0, time.UTC)
	p, err := New(start, Config{ID: "1234"})
	require.NoError(t, err)
	require.NoError(t, p.SubscribeFunds(start.Add(time.Hour), 100000))

	dt := time.Date(2017, 10, 7, 8, 0, 0, 0, time.UTC)
	require.NoError(t, p.TransactAsset(models.NewTransaction("EQ:AAA", 100, dt, 567.0, "1", 15.78)))

	assert.InDelta(t, 43284.22, p.Cash(), 1e-6)
	history := p.History()
	last := history[len(history)-1]
	assert.Equal(t, "LONG 100 EQ:AAA 567.00 07/10/2017", last.Description)
	assert.Equal(t, 56715.78, last.Debit)
	assert.Equal(t, 0.0, last.Credit)
	assert.Equal(t, 43284.22, last.Balance)
	assert.InDelta(t, 56700.0, p.TotalMarketValue(), 1e-6)
	assert.InDelta(t, 99984.22, p.TotalEquity(), 1e-6)
}

func TestTransactAssetShortCreditsCash(t *testing.T) {
	p := newPortfolio(t, 1000)
	dt := epoch.Add(time.Hour)
	require.NoError(t, p.TransactAsset(txn("EQ:AAA", -10, dt, 50, 1)))

	assert.InDelta(t, 1499.0, p.Cash(), 1e-9)
	last := p.History()[len(p.History())-1]
	assert.True(t, strings.HasPrefix(last.Description, "SHORT -10 EQ:AAA 50.00"))
	assert.Equal(t, 499.0, last.Credit)
	assert.Equal(t, 0.0, last.Debit)

	holdings := p.Holdings()
	require.Len(t, holdings, 1)
	assert.Equal(t, "EQ:AAA", holdings[0].Asset)
	assert.Equal(t, -10, holdings[0].Quantity)
	assert.Equal(t, -500.0, holdings[0].MarketValue)
	// cost basis (50*10 - 1) / 10 = 49.9
	assert.InDelta(t, -1.0, holdings[0].UnrealisedPnL, 1e-9)
	assert.InDelta(t, -1.0, holdings[0].TotalPnL, 1e-9)
}

func TestTransactBeyondCashWarnsButProceeds(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	p, err := New(epoch, Config{ID: "1234", StartingCash: 100, Logger: &logger})
	require.NoError(t, err)

	require.NoError(t, p.TransactAsset(txn("EQ:AAA", 10, epoch, 50, 0)))
	assert.Equal(t, -400.0, p.Cash())
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestUpdateMarketValueOfAsset(t *testing.T) {
	p := newPortfolio(t, 10000)
	require.NoError(t, p.UpdateMarketValueOfAsset("EQ:NOPE", -5, epoch), "unheld assets are ignored")

	require.NoError(t, p.TransactAsset(txn("EQ:AAA", 10, epoch, 50, 0)))
	later := epoch.Add(time.Hour)
	require.NoError(t, p.UpdateMarketValueOfAsset("EQ:AAA", 55, later))
	assert.Equal(t, 550.0, p.TotalMarketValue())
	assert.Equal(t, map[string]int{"EQ:AAA": 10}, p.Quantities())

	assert.Error(t, p.UpdateMarketValueOfAsset("EQ:AAA", 0, later))
	assert.True(t, errors.Is(p.UpdateMarketValueOfAsset("EQ:AAA", 60, epoch), errors.ErrChronology))
	assert.Equal(t, 550.0, p.TotalMarketValue())
}

func TestWriteHistoryCSV(t *testing.T) {
	p := newPortfolio(t, 2000)
	var buf bytes.Buffer
	require.NoError(t, p.WriteHistoryCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "date,type,description,debit,credit,balance", lines[0])
	assert.Contains(t, lines[1], "subscription,SUBSCRIPTION")
}
