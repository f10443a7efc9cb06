// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Out        io.Writer
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       false,
		FilePath:   filepath.Join(home, ".config", "backtester", "logs", "backtester.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	// File writer with rotation
	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = out
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithPortfolio adds a portfolio id to the logger context.
func WithPortfolio(logger zerolog.Logger, portfolioID string) zerolog.Logger {
	return logger.With().Str("portfolio_id", portfolioID).Logger()
}

// WithAsset adds an asset symbol to the logger context.
func WithAsset(logger zerolog.Logger, asset string) zerolog.Logger {
	return logger.With().Str("asset", asset).Logger()
}

// WithOrderID adds an order ID to the logger context.
func WithOrderID(logger zerolog.Logger, orderID string) zerolog.Logger {
	return logger.With().Str("order_id", orderID).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogTransaction logs an executed trade.
func LogTransaction(logger zerolog.Logger, portfolioID, asset, side string, qty int, price, commission, balance float64) {
	logger.Info().
		Str("event", "transaction").
		Str("portfolio_id", portfolioID).
		Str("asset", asset).
		Str("side", side).
		Int("quantity", qty).
		Float64("price", price).
		Float64("commission", commission).
		Float64("balance", balance).
		Msg("Asset transacted")
}

// LogOrder logs an order lifecycle step.
func LogOrder(logger zerolog.Logger, orderID, asset string, qty int, status string) {
	logger.Debug().
		Str("event", "order").
		Str("order_id", orderID).
		Str("asset", asset).
		Int("quantity", qty).
		Str("status", status).
		Msg("Order update")
}

// LogFunds logs a subscription or withdrawal.
func LogFunds(logger zerolog.Logger, target, kind string, amount, balance float64, at time.Time) {
	logger.Info().
		Str("event", "funds").
		Str("target", target).
		Str("kind", kind).
		Float64("amount", amount).
		Float64("balance", balance).
		Time("dt", at).
		Msg("Funds moved")
}

// LogRebalance logs a rebalance with the number of orders generated.
func LogRebalance(logger zerolog.Logger, at time.Time, orders int) {
	logger.Info().
		Str("event", "rebalance").
		Time("dt", at).
		Int("orders", orders).
		Msg("Trading logic and rebalance")
}

// LogSimulationEvent logs a clock tick.
func LogSimulationEvent(logger zerolog.Logger, at time.Time, eventType string) {
	logger.Debug().
		Str("event", "simulation").
		Time("dt", at).
		Str("type", eventType).
		Msg("Simulation event")
}
