// Package broker provides the brokerage account that owns portfolios and
// executes their orders.
package broker

import (
	"time"

	"backtester/internal/models"
	"backtester/internal/portfolio"
)

// Broker defines the interface for brokerage operations.
type Broker interface {
	// Account
	SubscribeFundsToAccount(amount float64) error
	WithdrawFundsFromAccount(amount float64) error
	GetAccountCashBalance(currency string) (float64, error)
	GetAccountTotalEquity() AccountEquity

	// Portfolios
	CreatePortfolio(id, name string) error
	ListAllPortfolios() []*portfolio.Portfolio
	SubscribeFundsToPortfolio(id string, amount float64) error
	WithdrawFundsFromPortfolio(id string, amount float64) error
	GetPortfolioCashBalance(id string) (float64, error)
	GetPortfolioTotalEquity(id string) (float64, error)
	GetPortfolioQuantities(id string) (map[string]int, error)

	// Orders
	SubmitOrder(id string, order models.Order) error
	Update(dt time.Time) error
}

// AccountEquity is the equity of every portfolio plus the account-wide
// total, which also counts uninvested master cash.
type AccountEquity struct {
	Master     float64            `json:"master"`
	Portfolios map[string]float64 `json:"portfolios"`
}
