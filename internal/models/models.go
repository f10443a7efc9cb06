// Package models provides the value types shared by the backtesting engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// AssetKind distinguishes cash-like instruments from tradable equities.
type AssetKind string

const (
	AssetKindCash   AssetKind = "CASH"
	AssetKindEquity AssetKind = "EQUITY"
)

// SupportedCurrencies lists the currency codes a broker may hold.
var SupportedCurrencies = []string{"USD", "GBP", "EUR"}

// IsSupportedCurrency reports whether code is one of SupportedCurrencies.
func IsSupportedCurrency(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// Asset is an instrument identifier with a capability tag.
type Asset interface {
	Symbol() string
	Kind() AssetKind
}

// Cash is a currency held as an asset.
type Cash struct {
	Currency string
}

// NewCash creates a Cash asset, defaulting to USD.
func NewCash(currency string) Cash {
	if currency == "" {
		currency = "USD"
	}
	return Cash{Currency: currency}
}

func (c Cash) Symbol() string  { return c.Currency }
func (c Cash) Kind() AssetKind { return AssetKindCash }

// Equity is a listed share.
type Equity struct {
	Name      string
	Ticker    string
	TaxExempt bool
}

// NewEquity creates an Equity. The ticker is upper-cased.
func NewEquity(name, ticker string, taxExempt bool) Equity {
	return Equity{
		Name:      name,
		Ticker:    strings.ToUpper(ticker),
		TaxExempt: taxExempt,
	}
}

// Symbol returns the engine-wide asset id, e.g. EQ:SPY.
func (e Equity) Symbol() string  { return EquitySymbol(e.Ticker) }
func (e Equity) Kind() AssetKind { return AssetKindEquity }

func (e Equity) String() string {
	return fmt.Sprintf("Equity(%s, %s, tax_exempt=%t)", e.Name, e.Ticker, e.TaxExempt)
}

// EquitySymbol formats a ticker as an equity asset id.
func EquitySymbol(ticker string) string {
	return "EQ:" + strings.ToUpper(ticker)
}

// TickerFromSymbol strips the EQ: prefix from an asset id.
func TickerFromSymbol(symbol string) string {
	return strings.TrimPrefix(symbol, "EQ:")
}

// Bar is a daily OHLCV record.
type Bar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// Quote is a bid/ask pair valid from At onwards.
type Quote struct {
	At  time.Time
	Bid float64
	Ask float64
}
