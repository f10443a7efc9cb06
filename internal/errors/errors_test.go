package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	now := time.Date(2020, 1, 2, 14, 30, 0, 0, time.UTC)

	cases := []struct {
		name   string
		err    error
		target error
	}{
		{"chronology", NewChronologyError("portfolio", "subscribe", now.Add(-time.Hour), now), ErrChronology},
		{"validation", NewValidationError("amount", -1.0, "must be non-negative"), ErrInvalidAmount},
		{"config", NewConfigError("rebalance", "hourly", "unknown"), ErrConfigInvalid},
		{"funds", NewFundsError("portfolio 000001", 200, 100), ErrInsufficientFunds},
		{"price", NewPriceError("EQ:SPY", "ask", now), ErrMissingPrice},
		{"portfolio", NewPortfolioError("1234", ErrPortfolioNotFound), ErrPortfolioNotFound},
		{"data", NewDataError("csv", "EQ:SPY", "no rows", ErrDataNotFound), ErrDataNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, Is(tc.err, tc.target))
			wrapped := Wrapf(tc.err, "step %d", 3)
			assert.True(t, Is(wrapped, tc.target))
			assert.Contains(t, wrapped.Error(), "step 3")
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))
	assert.NoError(t, Wrapf(nil, "ignored %d", 1))
}

func TestAsExtractsContext(t *testing.T) {
	err := fmt.Errorf("withdraw: %w", NewFundsError("account", 500, 120.5))

	var fe *FundsError
	if assert.True(t, As(err, &fe)) {
		assert.Equal(t, 500.0, fe.Requested)
		assert.Equal(t, 120.5, fe.Available)
	}
}
