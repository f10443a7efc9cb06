package models

import (
	"fmt"
	"time"
)

// Transaction is the record of an executed trade. It is never mutated.
type Transaction struct {
	Asset      string
	Quantity   int
	Dt         time.Time
	Price      float64
	OrderID    string
	Commission float64
}

// NewTransaction creates a Transaction.
func NewTransaction(asset string, quantity int, dt time.Time, price float64, orderID string, commission float64) Transaction {
	return Transaction{
		Asset:      asset,
		Quantity:   quantity,
		Dt:         dt,
		Price:      price,
		OrderID:    orderID,
		Commission: commission,
	}
}

// Direction is the sign of the quantity.
func (t Transaction) Direction() int {
	return sign(t.Quantity)
}

// CostWithoutCommission is price times signed quantity.
func (t Transaction) CostWithoutCommission() float64 {
	return t.Price * float64(t.Quantity)
}

// CostWithCommission adds the commission to the notional.
func (t Transaction) CostWithCommission() float64 {
	return t.CostWithoutCommission() + t.Commission
}

func (t Transaction) String() string {
	return fmt.Sprintf("Transaction(asset=%s, quantity=%d, dt=%s, price=%.4f, order_id=%s)",
		t.Asset, t.Quantity, t.Dt.Format(time.RFC3339), t.Price, t.OrderID)
}
