package trading

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/broker"
	"backtester/internal/data"
	"backtester/internal/errors"
	"backtester/internal/exchange"
	"backtester/internal/logging"
	"backtester/internal/models"
	"backtester/internal/portcon"
	"backtester/internal/portfolio"
	"backtester/internal/rebalance"
	"backtester/internal/signal"
	"backtester/internal/simulation"
	"backtester/internal/statistics"
	"backtester/internal/universe"
)

// Rebalance frequencies understood by a BacktestSession.
const (
	RebalanceBuyAndHold = "buy_and_hold"
	RebalanceDaily      = "daily"
	RebalanceWeekly     = "weekly"
	RebalanceEndOfMonth = "end_of_month"
	RebalanceCron       = "cron"
)

// Session defaults.
const (
	DefaultInitialCash   = 1e6
	DefaultAccountName   = "Backtest Simulated Broker Account"
	DefaultPortfolioID   = "000001"
	DefaultPortfolioName = "Backtest Simulated Broker Portfolio"
)

// SessionConfig describes one backtest.
type SessionConfig struct {
	Start time.Time
	End   time.Time
	// BurnIn drops equity samples and allocations dated before it.
	BurnIn *time.Time

	Universe universe.Universe
	Alpha    portcon.AlphaModel
	Risk     portcon.RiskModel
	Signals  *signal.Collection

	InitialCash      float64
	Rebalance        string
	RebalanceWeekday string
	RebalanceCron    string

	AccountName   string
	PortfolioID   string
	PortfolioName string
	Currency      string

	LongOnly             bool
	CashBufferPercentage *float64
	GrossLeverage        *float64
	Optimiser            portcon.Optimiser
	FeeModel             broker.FeeModel

	// DataHandler takes precedence over CSVDir.
	DataHandler  data.Handler
	CSVDir       string
	AdjustPrices bool

	Logger *zerolog.Logger
}

func (c *SessionConfig) applyDefaults() {
	if c.InitialCash == 0 {
		c.InitialCash = DefaultInitialCash
	}
	if c.Rebalance == "" {
		c.Rebalance = RebalanceWeekly
	}
	if c.AccountName == "" {
		c.AccountName = DefaultAccountName
	}
	if c.PortfolioID == "" {
		c.PortfolioID = DefaultPortfolioID
	}
	if c.PortfolioName == "" {
		c.PortfolioName = DefaultPortfolioName
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.FeeModel == nil {
		c.FeeModel = broker.ZeroFeeModel{}
	}
}

// BacktestSession runs a single strategy over a historical window.
type BacktestSession struct {
	cfg SessionConfig

	data     data.Handler
	exchange *exchange.SimulatedExchange
	broker   *broker.SimulatedBroker
	engine   simulation.Engine
	schedule rebalance.Schedule
	qts      *QuantTradingSystem

	equity      []statistics.EquityPoint
	allocations []statistics.Allocation
	ran         bool

	logger zerolog.Logger
}

// NewBacktestSession assembles the exchange, data handler, broker,
// simulation engine, rebalance schedule and trading system.
func NewBacktestSession(cfg SessionConfig) (*BacktestSession, error) {
	cfg.applyDefaults()
	if cfg.Universe == nil {
		return nil, errors.NewConfigError("universe", nil, "a universe is required")
	}
	if cfg.BurnIn != nil && cfg.BurnIn.Before(cfg.Start) {
		return nil, errors.NewConfigError("burn_in", *cfg.BurnIn, "must not precede the start date")
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "session").Logger()
	}

	s := &BacktestSession{cfg: cfg, logger: logger}

	var err error
	if s.data, err = s.dataHandler(); err != nil {
		return nil, err
	}
	s.exchange = exchange.NewSimulatedExchange(cfg.Start)
	if s.broker, err = s.newBroker(); err != nil {
		return nil, err
	}
	if s.engine, err = simulation.NewDailyBusinessDay(cfg.Start, cfg.End, false, false); err != nil {
		return nil, err
	}
	if s.schedule, err = s.newSchedule(); err != nil {
		return nil, err
	}

	s.qts, err = NewQuantTradingSystem(SystemConfig{
		Universe:             cfg.Universe,
		Broker:               s.broker,
		PortfolioID:          cfg.PortfolioID,
		Data:                 s.data,
		Alpha:                cfg.Alpha,
		Risk:                 cfg.Risk,
		Optimiser:            cfg.Optimiser,
		Fees:                 cfg.FeeModel,
		LongOnly:             cfg.LongOnly,
		CashBufferPercentage: cfg.CashBufferPercentage,
		GrossLeverage:        cfg.GrossLeverage,
		SubmitOrders:         true,
		Logger:               cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BacktestSession) dataHandler() (data.Handler, error) {
	if s.cfg.DataHandler != nil {
		return s.cfg.DataHandler, nil
	}
	if s.cfg.CSVDir == "" {
		return nil, errors.NewConfigError("csv_dir", "", "no data handler or CSV directory supplied")
	}
	src, err := data.NewCSVDailyBarSource(s.cfg.CSVDir, s.cfg.AdjustPrices, s.cfg.Universe.Assets(s.cfg.End), s.logger)
	if err != nil {
		return nil, err
	}
	return data.NewBacktestHandler(src), nil
}

func (s *BacktestSession) newBroker() (*broker.SimulatedBroker, error) {
	b, err := broker.NewSimulatedBroker(s.cfg.Start, s.exchange, s.data, broker.Config{
		AccountID:    s.cfg.AccountName,
		BaseCurrency: s.cfg.Currency,
		InitialFunds: s.cfg.InitialCash,
		FeeModel:     s.cfg.FeeModel,
		Logger:       s.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := b.CreatePortfolio(s.cfg.PortfolioID, s.cfg.PortfolioName); err != nil {
		return nil, err
	}
	if err := b.SubscribeFundsToPortfolio(s.cfg.PortfolioID, s.cfg.InitialCash); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BacktestSession) newSchedule() (rebalance.Schedule, error) {
	switch strings.ToLower(s.cfg.Rebalance) {
	case RebalanceBuyAndHold:
		start := s.cfg.Start
		if start.Equal(simulation.Midnight(start)) {
			start = start.Add(exchange.MarketOpen)
		}
		return rebalance.NewBuyAndHold(start), nil
	case RebalanceDaily:
		return rebalance.NewDaily(s.cfg.Start, s.cfg.End, false), nil
	case RebalanceWeekly:
		if s.cfg.RebalanceWeekday == "" {
			return nil, errors.NewConfigError("rebalance_weekday", "", "weekly rebalancing requires a weekday")
		}
		return rebalance.NewWeekly(s.cfg.Start, s.cfg.End, s.cfg.RebalanceWeekday, false)
	case RebalanceEndOfMonth:
		return rebalance.NewEndOfMonth(s.cfg.Start, s.cfg.End, false), nil
	case RebalanceCron:
		return rebalance.NewCron(s.cfg.Start, s.cfg.End, s.cfg.RebalanceCron)
	default:
		return nil, errors.NewConfigError("rebalance", s.cfg.Rebalance, "unknown rebalance frequency")
	}
}

// Run replays every simulation event. For each event the broker is
// updated first, signals are refreshed at the close, the trading system
// runs when the instant is scheduled, and equity is sampled at the close.
func (s *BacktestSession) Run(ctx context.Context) error {
	if s.ran {
		return errors.ErrSessionCompleted
	}
	s.ran = true

	events := s.engine.Events()
	s.logger.Info().
		Time("start", s.cfg.Start).
		Time("end", s.cfg.End).
		Int("events", len(events)).
		Str("rebalance", s.cfg.Rebalance).
		Msg("Starting backtest")

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		dt := ev.Dt
		logging.LogSimulationEvent(s.logger, dt, string(ev.Type))

		if err := s.broker.Update(dt); err != nil {
			return err
		}
		if ev.Type == simulation.MarketClose && s.cfg.Signals != nil {
			if err := s.cfg.Signals.Update(dt); err != nil {
				return err
			}
		}
		if s.schedule.Contains(dt) {
			reb, err := s.qts.Run(dt)
			if err != nil {
				return err
			}
			s.allocations = append(s.allocations, statistics.Allocation{Dt: dt, Weights: reb.TargetWeights})
		}
		if ev.Type == simulation.MarketClose && s.afterBurnIn(dt) {
			s.equity = append(s.equity, statistics.EquityPoint{
				Dt:     dt,
				Equity: s.broker.GetAccountTotalEquity().Master,
			})
		}
	}

	s.logger.Info().Int("samples", len(s.equity)).Msg("Backtest complete")
	return nil
}

func (s *BacktestSession) afterBurnIn(dt time.Time) bool {
	return s.cfg.BurnIn == nil || !dt.Before(*s.cfg.BurnIn)
}

// Config returns the session configuration with defaults applied.
func (s *BacktestSession) Config() SessionConfig { return s.cfg }

func (s *BacktestSession) Broker() *broker.SimulatedBroker { return s.broker }

func (s *BacktestSession) Schedule() rebalance.Schedule { return s.schedule }

// EquityCurve returns the account equity sampled at each market close.
func (s *BacktestSession) EquityCurve() []statistics.EquityPoint {
	out := make([]statistics.EquityPoint, len(s.equity))
	copy(out, s.equity)
	return out
}

// TargetAllocations maps every equity sample to the target weights most
// recently set on or before its date. Samples preceding the first
// rebalance get zero weights.
func (s *BacktestSession) TargetAllocations() []statistics.Allocation {
	assets := make(map[string]struct{})
	for _, a := range s.allocations {
		for asset := range a.Weights {
			assets[asset] = struct{}{}
		}
	}
	keys := make([]string, 0, len(assets))
	for asset := range assets {
		keys = append(keys, asset)
	}

	out := make([]statistics.Allocation, 0, len(s.equity))
	next := 0
	var current models.Weights
	for _, point := range s.equity {
		day := simulation.Midnight(point.Dt)
		for next < len(s.allocations) && !simulation.Midnight(s.allocations[next].Dt).After(day) {
			current = s.allocations[next].Weights
			next++
		}
		weights := models.ZeroWeights(keys)
		for asset, w := range current {
			weights[asset] = w
		}
		out = append(out, statistics.Allocation{Dt: day, Weights: weights})
	}
	return out
}

// Holdings returns the current positions of the session portfolio.
func (s *BacktestSession) Holdings() ([]portfolio.Holding, error) {
	p, err := s.broker.GetPortfolio(s.cfg.PortfolioID)
	if err != nil {
		return nil, err
	}
	return p.Holdings(), nil
}

// Portfolio returns the session portfolio.
func (s *BacktestSession) Portfolio() (*portfolio.Portfolio, error) {
	return s.broker.GetPortfolio(s.cfg.PortfolioID)
}

// Statistics computes performance metrics over the equity curve.
func (s *BacktestSession) Statistics() *statistics.Statistics {
	return statistics.Compute(s.equity, statistics.TradingPeriods)
}

// Report returns the serialisable statistics including target
// allocations.
func (s *BacktestSession) Report() *statistics.Report {
	r := statistics.NewReport(s.Statistics())
	r.TargetAllocations = statistics.AllocationColumns(s.TargetAllocations())
	return r
}
