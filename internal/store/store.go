// Package store persists daily market data between runs.
package store

import (
	"context"
	"time"

	"backtester/internal/models"
)

// BarStore defines the interface for daily bar persistence.
type BarStore interface {
	// Bars
	SaveBars(ctx context.Context, symbol string, bars []models.Bar) error
	GetBars(ctx context.Context, symbol string, dr DateRange) ([]models.Bar, error)
	Symbols(ctx context.Context) ([]SymbolSummary, error)
	DeleteSymbol(ctx context.Context, symbol string) error

	// Imports
	GetLastImport(symbol string) time.Time
	SetLastImport(symbol, source string, t time.Time) error

	// Lifecycle
	Close() error
}

// DateRange bounds a bar query. A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SymbolSummary describes the bars stored for one symbol.
type SymbolSummary struct {
	Symbol string    `json:"symbol"`
	Bars   int       `json:"bars"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
}
