package execution

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/models"
	"backtester/internal/universe"
)

type recordingBroker struct {
	calls     []string
	submitted []models.Order
	failOn    string
}

func (b *recordingBroker) SubmitOrder(id string, order models.Order) error {
	if order.Asset == b.failOn {
		return errors.New("rejected")
	}
	b.calls = append(b.calls, "submit:"+order.Asset)
	b.submitted = append(b.submitted, order)
	return nil
}

func (b *recordingBroker) Update(time.Time) error {
	b.calls = append(b.calls, "update")
	return nil
}

var dt = time.Date(2020, 3, 2, 21, 0, 0, 0, time.UTC)

func testOrders() []models.Order {
	return []models.Order{
		models.NewOrder(dt, "EQ:ABC", 100),
		models.NewOrder(dt, "EQ:DEF", -50),
	}
}

func TestMarketOrderIsIdentity(t *testing.T) {
	orders := testOrders()
	assert.Equal(t, orders, MarketOrder{}.Orders(dt, orders))
}

func TestExecuteSubmitsAndUpdatesPerOrder(t *testing.T) {
	b := &recordingBroker{}
	h := NewHandler(Config{Broker: b, PortfolioID: "000001", Universe: universe.NewStatic(nil), Submit: true})

	orders := testOrders()
	final, err := h.Execute(dt, orders)
	require.NoError(t, err)
	assert.Equal(t, orders, final)
	assert.Equal(t, []string{"submit:EQ:ABC", "update", "submit:EQ:DEF", "update"}, b.calls)
}

func TestExecuteLogsSubmittedOrders(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	h := NewHandler(Config{Broker: &recordingBroker{}, PortfolioID: "000001", Submit: true, Logger: &logger})

	_, err := h.Execute(dt, testOrders())
	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"portfolio_id":"000001","operation":"execute"`)
	assert.Contains(t, logs.String(), `"status":"submitted"`)
}

func TestExecuteWithoutSubmit(t *testing.T) {
	b := &recordingBroker{}
	h := NewHandler(Config{Broker: b, PortfolioID: "000001", Submit: false})

	final, err := h.Execute(dt, testOrders())
	require.NoError(t, err)
	assert.Len(t, final, 2)
	assert.Empty(t, b.calls)
}

func TestExecuteStopsOnSubmitError(t *testing.T) {
	b := &recordingBroker{failOn: "EQ:ABC"}
	h := NewHandler(Config{Broker: b, PortfolioID: "000001", Submit: true})

	_, err := h.Execute(dt, testOrders())
	assert.Error(t, err)
	assert.Empty(t, b.submitted)
}

type dropShorts struct{}

func (dropShorts) Orders(_ time.Time, orders []models.Order) []models.Order {
	var out []models.Order
	for _, o := range orders {
		if o.Quantity > 0 {
			out = append(out, o)
		}
	}
	return out
}

func TestExecuteUsesAlgorithm(t *testing.T) {
	b := &recordingBroker{}
	h := NewHandler(Config{Broker: b, PortfolioID: "000001", Algo: dropShorts{}, Submit: true})

	final, err := h.Execute(dt, testOrders())
	require.NoError(t, err)
	require.Len(t, final, 1)
	assert.Equal(t, "EQ:ABC", b.submitted[0].Asset)
}
