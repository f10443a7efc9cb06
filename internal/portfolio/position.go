// Package portfolio implements the per-asset ledger and the cash account
// that owns it.
package portfolio

import (
	"fmt"
	"math"
	"time"

	"backtester/internal/errors"
	"backtester/internal/models"
)

// Position is the running account of a single asset. Buys and sells are
// tracked on separate legs, each with its own volume-weighted average price.
type Position struct {
	asset          string
	currentPrice   float64
	currentDt      time.Time
	buyQuantity    int
	sellQuantity   int
	avgBought      float64
	avgSold        float64
	buyCommission  float64
	sellCommission float64
}

// OpenFromTransaction seeds a Position on the long or short leg.
func OpenFromTransaction(txn models.Transaction) (*Position, error) {
	if math.IsNaN(txn.Price) || txn.Price <= 0 {
		return nil, errors.NewValidationError("price", txn.Price, "position price must be positive")
	}

	p := &Position{
		asset:        txn.Asset,
		currentPrice: txn.Price,
		currentDt:    txn.Dt,
	}
	if txn.Direction() > 0 {
		p.buyQuantity = txn.Quantity
		p.avgBought = txn.Price
		p.buyCommission = txn.Commission
	} else {
		p.sellQuantity = -txn.Quantity
		p.avgSold = txn.Price
		p.sellCommission = txn.Commission
	}
	return p, nil
}

func (p *Position) Asset() string          { return p.asset }
func (p *Position) CurrentPrice() float64  { return p.currentPrice }
func (p *Position) CurrentDt() time.Time   { return p.currentDt }
func (p *Position) BuyQuantity() int       { return p.buyQuantity }
func (p *Position) SellQuantity() int      { return p.sellQuantity }
func (p *Position) AvgBought() float64     { return p.avgBought }
func (p *Position) AvgSold() float64       { return p.avgSold }
func (p *Position) BuyCommission() float64 { return p.buyCommission }
func (p *Position) SellCommission() float64 { return p.sellCommission }

// NetQuantity is buy quantity minus sell quantity.
func (p *Position) NetQuantity() int {
	return p.buyQuantity - p.sellQuantity
}

// Direction is the sign of the net quantity.
func (p *Position) Direction() int {
	switch net := p.NetQuantity(); {
	case net > 0:
		return 1
	case net < 0:
		return -1
	default:
		return 0
	}
}

// MarketValue is the current price times the net quantity.
func (p *Position) MarketValue() float64 {
	return p.currentPrice * float64(p.NetQuantity())
}

// AvgPrice is the cost basis of the open side including its commission.
func (p *Position) AvgPrice() float64 {
	switch p.Direction() {
	case 1:
		buy := float64(p.buyQuantity)
		return (p.avgBought*buy + p.buyCommission) / buy
	case -1:
		sell := float64(p.sellQuantity)
		return (p.avgSold*sell - p.sellCommission) / sell
	default:
		return 0
	}
}

func (p *Position) TotalBought() float64 { return p.avgBought * float64(p.buyQuantity) }
func (p *Position) TotalSold() float64   { return p.avgSold * float64(p.sellQuantity) }

// NetTotal is sale proceeds minus purchase outlay, before commission.
func (p *Position) NetTotal() float64 {
	return p.TotalSold() - p.TotalBought()
}

// Commission is the sum of both legs' commission.
func (p *Position) Commission() float64 {
	return p.buyCommission + p.sellCommission
}

// NetInclCommission is NetTotal less all commission.
func (p *Position) NetInclCommission() float64 {
	return p.NetTotal() - p.Commission()
}

// RealisedPnL is the profit locked in by the non-dominant leg.
func (p *Position) RealisedPnL() float64 {
	buy := float64(p.buyQuantity)
	sell := float64(p.sellQuantity)

	switch p.Direction() {
	case 1:
		if p.sellQuantity == 0 {
			return 0
		}
		return (p.avgSold-p.avgBought)*sell - (sell/buy)*p.buyCommission - p.sellCommission
	case -1:
		if p.buyQuantity == 0 {
			return 0
		}
		return (p.avgSold-p.avgBought)*buy - (buy/sell)*p.sellCommission - p.buyCommission
	default:
		return p.NetInclCommission()
	}
}

// UnrealisedPnL marks the open quantity against its cost basis.
func (p *Position) UnrealisedPnL() float64 {
	return (p.currentPrice - p.AvgPrice()) * float64(p.NetQuantity())
}

// TotalPnL is realised plus unrealised.
func (p *Position) TotalPnL() float64 {
	return p.RealisedPnL() + p.UnrealisedPnL()
}

// UpdateCurrentPrice marks the position to market.
func (p *Position) UpdateCurrentPrice(price float64, dt time.Time) error {
	if err := p.checkMark(price, dt); err != nil {
		return err
	}
	p.currentPrice = price
	p.currentDt = dt
	return nil
}

func (p *Position) checkMark(price float64, dt time.Time) error {
	if dt.Before(p.currentDt) {
		return errors.NewChronologyError("position "+p.asset, "mark to market", dt, p.currentDt)
	}
	if math.IsNaN(price) || price <= 0 {
		return errors.NewValidationError("price", price,
			fmt.Sprintf("market price for %s must be positive", p.asset))
	}
	return nil
}

// Transact applies a trade to the matching leg and marks the position at
// the trade price. A valid zero quantity transaction changes nothing.
func (p *Position) Transact(txn models.Transaction) error {
	if p.asset != txn.Asset {
		return errors.Wrapf(errors.ErrAssetMismatch,
			"cannot apply %s transaction to %s position", txn.Asset, p.asset)
	}
	if err := p.checkMark(txn.Price, txn.Dt); err != nil {
		return err
	}
	if txn.Quantity == 0 {
		return nil
	}

	if txn.Direction() > 0 {
		p.transactBuy(txn.Quantity, txn.Price, txn.Commission)
	} else {
		p.transactSell(-txn.Quantity, txn.Price, txn.Commission)
	}
	p.currentPrice = txn.Price
	p.currentDt = txn.Dt
	return nil
}

func (p *Position) transactBuy(quantity int, price, commission float64) {
	total := float64(p.buyQuantity + quantity)
	p.avgBought = (p.avgBought*float64(p.buyQuantity) + float64(quantity)*price) / total
	p.buyQuantity += quantity
	p.buyCommission += commission
}

func (p *Position) transactSell(quantity int, price, commission float64) {
	total := float64(p.sellQuantity + quantity)
	p.avgSold = (p.avgSold*float64(p.sellQuantity) + float64(quantity)*price) / total
	p.sellQuantity += quantity
	p.sellCommission += commission
}
