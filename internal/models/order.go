package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Order is a request to trade a signed quantity of an asset.
type Order struct {
	ID         string
	Dt         time.Time
	Asset      string
	Quantity   int
	Commission float64
}

// OrderOption customises NewOrder.
type OrderOption func(*Order)

// WithOrderID sets a known order id instead of generating one.
func WithOrderID(id string) OrderOption {
	return func(o *Order) { o.ID = id }
}

// WithCommission records a commission already known at order time.
func WithCommission(commission float64) OrderOption {
	return func(o *Order) { o.Commission = commission }
}

// NewOrder creates an order. An id is generated unless WithOrderID is given.
func NewOrder(dt time.Time, asset string, quantity int, opts ...OrderOption) Order {
	o := Order{
		Dt:       dt,
		Asset:    asset,
		Quantity: quantity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return o
}

// Direction is +1 for buys, -1 for sells and 0 for an empty order.
func (o Order) Direction() int {
	return sign(o.Quantity)
}

// Equivalent compares everything but the id.
func (o Order) Equivalent(other Order) bool {
	return o.Dt.Equal(other.Dt) &&
		o.Asset == other.Asset &&
		o.Quantity == other.Quantity &&
		o.Commission == other.Commission
}

func (o Order) String() string {
	return fmt.Sprintf("Order(dt=%s, asset=%s, quantity=%d, commission=%.2f, id=%s)",
		o.Dt.Format(time.RFC3339), o.Asset, o.Quantity, o.Commission, o.ID)
}

func sign(q int) int {
	switch {
	case q > 0:
		return 1
	case q < 0:
		return -1
	default:
		return 0
	}
}
