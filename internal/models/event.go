package models

import (
	"fmt"
	"math"
	"time"
)

// PortfolioEventType classifies an entry in a portfolio's history.
type PortfolioEventType string

const (
	EventSubscription     PortfolioEventType = "subscription"
	EventWithdrawal       PortfolioEventType = "withdrawal"
	EventAssetTransaction PortfolioEventType = "asset_transaction"
)

// PortfolioEvent is an append-only audit record of a cash movement.
type PortfolioEvent struct {
	Dt          time.Time
	Type        PortfolioEventType
	Description string
	Debit       float64
	Credit      float64
	Balance     float64
}

// NewSubscriptionEvent records funds credited to a portfolio.
func NewSubscriptionEvent(dt time.Time, credit, balance float64) PortfolioEvent {
	return PortfolioEvent{
		Dt:          dt,
		Type:        EventSubscription,
		Description: "SUBSCRIPTION",
		Debit:       0,
		Credit:      Round2(credit),
		Balance:     Round2(balance),
	}
}

// NewWithdrawalEvent records funds debited from a portfolio.
func NewWithdrawalEvent(dt time.Time, debit, balance float64) PortfolioEvent {
	return PortfolioEvent{
		Dt:          dt,
		Type:        EventWithdrawal,
		Description: "WITHDRAWAL",
		Debit:       Round2(debit),
		Credit:      0,
		Balance:     Round2(balance),
	}
}

// Equal compares events field by field.
func (e PortfolioEvent) Equal(other PortfolioEvent) bool {
	return e.Dt.Equal(other.Dt) &&
		e.Type == other.Type &&
		e.Description == other.Description &&
		e.Debit == other.Debit &&
		e.Credit == other.Credit &&
		e.Balance == other.Balance
}

func (e PortfolioEvent) String() string {
	return fmt.Sprintf("PortfolioEvent(dt=%s, type=%s, description=%s, debit=%.2f, credit=%.2f, balance=%.2f)",
		e.Dt.Format(time.RFC3339), e.Type, e.Description, e.Debit, e.Credit, e.Balance)
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
