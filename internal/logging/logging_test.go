package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestNewLoggerWritesToOut(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithConfig(LogConfig{Level: "info", Out: &buf})

	LogTransaction(logger, "000001", "EQ:SPY", "LONG", 100, 307.05, 1.0, 69294.0)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "transaction", entry["event"])
	assert.Equal(t, "EQ:SPY", entry["asset"])
	assert.Equal(t, 100.0, entry["quantity"])
}

func TestDebugHelpersRespectLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithConfig(LogConfig{Level: "info", Out: &buf})

	LogSimulationEvent(logger, time.Date(2020, 1, 1, 14, 30, 0, 0, time.UTC), "market_open")
	assert.Zero(t, buf.Len())
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), logger)
	portfolioLogger := WithPortfolio(FromContext(ctx), "000001")
	portfolioLogger.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"portfolio_id":"000001"`)

	// Missing logger yields a no-op logger rather than panicking.
	noopLogger := FromContext(context.Background())
	noopLogger.Info().Msg("dropped")
}
