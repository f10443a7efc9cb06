// Package trading wires the ledger, construction and execution layers
// into a runnable backtest.
package trading

import (
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/broker"
	"backtester/internal/data"
	"backtester/internal/errors"
	"backtester/internal/execution"
	"backtester/internal/logging"
	"backtester/internal/portcon"
	"backtester/internal/universe"
)

// SystemConfig holds the collaborators of a QuantTradingSystem.
type SystemConfig struct {
	Universe    universe.Universe
	Broker      broker.Broker
	PortfolioID string
	Data        data.Handler
	Alpha       portcon.AlphaModel
	Risk        portcon.RiskModel
	Optimiser   portcon.Optimiser
	Fees        broker.FeeModel

	// LongOnly selects cash-buffered sizing, which needs
	// CashBufferPercentage. Otherwise GrossLeverage is required.
	LongOnly             bool
	CashBufferPercentage *float64
	GrossLeverage        *float64

	SubmitOrders bool
	Logger       *zerolog.Logger
}

// QuantTradingSystem turns a point in time into executed rebalance orders.
type QuantTradingSystem struct {
	portfolioID string
	sizer       portcon.OrderSizer
	pcm         *portcon.ConstructionModel
	execution   *execution.Handler
	logger      zerolog.Logger
}

// NewQuantTradingSystem builds the sizer, construction model and execution
// handler.
func NewQuantTradingSystem(cfg SystemConfig) (*QuantTradingSystem, error) {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = logging.WithPortfolio(*cfg.Logger, cfg.PortfolioID)
	}

	sizer, err := newSizer(cfg)
	if err != nil {
		return nil, err
	}

	pcm := portcon.NewConstructionModel(portcon.ConstructionConfig{
		Account:     cfg.Broker,
		PortfolioID: cfg.PortfolioID,
		Universe:    cfg.Universe,
		Sizer:       sizer,
		Optimiser:   cfg.Optimiser,
		Alpha:       cfg.Alpha,
		Risk:        cfg.Risk,
		Logger:      cfg.Logger,
	})

	exec := execution.NewHandler(execution.Config{
		Broker:      cfg.Broker,
		PortfolioID: cfg.PortfolioID,
		Universe:    cfg.Universe,
		Algo:        execution.MarketOrder{},
		Submit:      cfg.SubmitOrders,
		Logger:      cfg.Logger,
	})

	return &QuantTradingSystem{
		portfolioID: cfg.PortfolioID,
		sizer:       sizer,
		pcm:         pcm,
		execution:   exec,
		logger:      logger,
	}, nil
}

func newSizer(cfg SystemConfig) (portcon.OrderSizer, error) {
	if cfg.LongOnly {
		if cfg.CashBufferPercentage == nil {
			return nil, errors.NewConfigError("cash_buffer_percentage", nil,
				"long-only portfolios require a cash buffer percentage")
		}
		return portcon.NewCashBufferedSizer(cfg.Broker, cfg.PortfolioID, cfg.Data, cfg.Fees, *cfg.CashBufferPercentage)
	}
	if cfg.GrossLeverage == nil {
		return nil, errors.NewConfigError("gross_leverage", nil,
			"long/short portfolios require a gross leverage")
	}
	return portcon.NewLongShortSizer(cfg.Broker, cfg.PortfolioID, cfg.Data, cfg.Fees, *cfg.GrossLeverage)
}

// Sizer returns the order sizer chosen for the system.
func (q *QuantTradingSystem) Sizer() portcon.OrderSizer { return q.sizer }

// Run constructs the rebalance for dt and hands its orders to execution.
func (q *QuantTradingSystem) Run(dt time.Time) (*portcon.Rebalance, error) {
	rebalance, err := q.pcm.Construct(dt)
	if err != nil {
		return nil, errors.Wrapf(err, "construct portfolio %s at %s", q.portfolioID, dt.Format(time.RFC3339))
	}
	if _, err := q.execution.Execute(dt, rebalance.Orders); err != nil {
		return nil, errors.Wrapf(err, "execute orders for portfolio %s", q.portfolioID)
	}
	logging.LogRebalance(q.logger, dt, len(rebalance.Orders))
	return rebalance, nil
}
