// Package execution hands rebalance orders to the broker.
package execution

import (
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/logging"
	"backtester/internal/models"
	"backtester/internal/universe"
)

// Algorithm transforms rebalance orders before submission.
type Algorithm interface {
	Orders(dt time.Time, orders []models.Order) []models.Order
}

// MarketOrder submits every order as an unconditional market order.
type MarketOrder struct{}

func (MarketOrder) Orders(_ time.Time, orders []models.Order) []models.Order {
	return orders
}

// Submitter is the broker view the handler needs.
type Submitter interface {
	SubmitOrder(id string, order models.Order) error
	Update(dt time.Time) error
}

// Handler runs orders through an Algorithm and optionally submits them.
type Handler struct {
	broker      Submitter
	portfolioID string
	universe    universe.Universe
	algo        Algorithm
	submit      bool
	logger      zerolog.Logger
}

// Config holds Handler collaborators. A nil Algo means MarketOrder.
type Config struct {
	Broker      Submitter
	PortfolioID string
	Universe    universe.Universe
	Algo        Algorithm
	Submit      bool
	Logger      *zerolog.Logger
}

func NewHandler(cfg Config) *Handler {
	algo := cfg.Algo
	if algo == nil {
		algo = MarketOrder{}
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = logging.WithOperation(logging.WithPortfolio(*cfg.Logger, cfg.PortfolioID), "execute")
	}
	return &Handler{
		broker:      cfg.Broker,
		portfolioID: cfg.PortfolioID,
		universe:    cfg.Universe,
		algo:        algo,
		submit:      cfg.Submit,
		logger:      logger,
	}
}

func (h *Handler) Universe() universe.Universe { return h.universe }

// Execute applies the algorithm and, when submitting, sends each order to
// the broker followed by an immediate update at dt. It returns the orders
// produced by the algorithm.
func (h *Handler) Execute(dt time.Time, orders []models.Order) ([]models.Order, error) {
	final := h.algo.Orders(dt, orders)
	if !h.submit {
		return final, nil
	}
	for _, order := range final {
		if err := h.broker.SubmitOrder(h.portfolioID, order); err != nil {
			return final, err
		}
		logging.LogOrder(h.logger, order.ID, order.Asset, order.Quantity, "submitted")
		if err := h.broker.Update(dt); err != nil {
			return final, err
		}
	}
	return final, nil
}
