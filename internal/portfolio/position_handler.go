package portfolio

import (
	"backtester/internal/models"
)

// PositionHandler holds the live positions of a portfolio in insertion
// order. Flat positions are removed immediately.
type PositionHandler struct {
	positions map[string]*Position
	order     []string
}

// NewPositionHandler creates an empty handler.
func NewPositionHandler() *PositionHandler {
	return &PositionHandler{
		positions: make(map[string]*Position),
	}
}

// TransactPosition routes a transaction to its position, opening one if
// needed, and drops the position once it is flat.
func (h *PositionHandler) TransactPosition(txn models.Transaction) error {
	if pos, ok := h.positions[txn.Asset]; ok {
		if err := pos.Transact(txn); err != nil {
			return err
		}
	} else {
		pos, err := OpenFromTransaction(txn)
		if err != nil {
			return err
		}
		h.positions[txn.Asset] = pos
		h.order = append(h.order, txn.Asset)
	}

	if h.positions[txn.Asset].NetQuantity() == 0 {
		h.remove(txn.Asset)
	}
	return nil
}

func (h *PositionHandler) remove(asset string) {
	delete(h.positions, asset)
	for i, a := range h.order {
		if a == asset {
			h.order = append(h.order[:i], h.order[i+1:]...)
			return
		}
	}
}

// Get returns the position for asset if one is open.
func (h *PositionHandler) Get(asset string) (*Position, bool) {
	pos, ok := h.positions[asset]
	return pos, ok
}

// Len returns the number of open positions.
func (h *PositionHandler) Len() int {
	return len(h.order)
}

// Assets returns the held assets in insertion order.
func (h *PositionHandler) Assets() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// Positions returns the open positions in insertion order.
func (h *PositionHandler) Positions() []*Position {
	out := make([]*Position, 0, len(h.order))
	for _, asset := range h.order {
		out = append(out, h.positions[asset])
	}
	return out
}

func (h *PositionHandler) sum(f func(*Position) float64) float64 {
	var total float64
	for _, asset := range h.order {
		total += f(h.positions[asset])
	}
	return total
}

func (h *PositionHandler) TotalMarketValue() float64 {
	return h.sum((*Position).MarketValue)
}

func (h *PositionHandler) TotalUnrealisedPnL() float64 {
	return h.sum((*Position).UnrealisedPnL)
}

func (h *PositionHandler) TotalRealisedPnL() float64 {
	return h.sum((*Position).RealisedPnL)
}

func (h *PositionHandler) TotalPnL() float64 {
	return h.sum((*Position).TotalPnL)
}
