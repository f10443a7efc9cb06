package portfolio

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"backtester/internal/errors"
	"backtester/internal/logging"
	"backtester/internal/models"
)

// Config holds the construction parameters of a Portfolio.
type Config struct {
	ID           string
	Name         string
	Currency     string
	StartingCash float64
	Logger       *zerolog.Logger
}

// Portfolio is a cash balance plus the positions bought with it. All
// mutations are dated and must not move the portfolio's clock backwards.
type Portfolio struct {
	id           string
	name         string
	currency     string
	startDt      time.Time
	currentDt    time.Time
	startingCash float64
	cash         float64
	positions    *PositionHandler
	history      []models.PortfolioEvent
	logger       zerolog.Logger
}

// Holding summarises one open position.
type Holding struct {
	Asset         string  `json:"asset"`
	Quantity      int     `json:"quantity"`
	MarketValue   float64 `json:"market_value"`
	UnrealisedPnL float64 `json:"unrealised_pnl"`
	RealisedPnL   float64 `json:"realised_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
}

// New creates a portfolio. A positive starting cash is recorded as a
// subscription at startDt.
func New(startDt time.Time, cfg Config) (*Portfolio, error) {
	if cfg.StartingCash < 0 || math.IsNaN(cfg.StartingCash) {
		return nil, errors.NewValidationError("starting_cash", cfg.StartingCash, "must be non-negative")
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = logging.WithPortfolio(*cfg.Logger, cfg.ID)
	}

	p := &Portfolio{
		id:           cfg.ID,
		name:         cfg.Name,
		currency:     cfg.Currency,
		startDt:      startDt,
		currentDt:    startDt,
		startingCash: cfg.StartingCash,
		cash:         cfg.StartingCash,
		positions:    NewPositionHandler(),
		logger:       logger,
	}

	if p.startingCash > 0 {
		p.history = append(p.history, models.NewSubscriptionEvent(startDt, p.startingCash, p.cash))
	}
	p.logger.Debug().Time("dt", startDt).Float64("cash", p.cash).Msg("Portfolio initialised")

	return p, nil
}

func (p *Portfolio) ID() string           { return p.id }
func (p *Portfolio) Name() string         { return p.name }
func (p *Portfolio) Currency() string     { return p.currency }
func (p *Portfolio) StartDt() time.Time   { return p.startDt }
func (p *Portfolio) CurrentDt() time.Time { return p.currentDt }
func (p *Portfolio) Cash() float64        { return p.cash }

// Positions exposes the position handler for read access.
func (p *Portfolio) Positions() *PositionHandler {
	return p.positions
}

func (p *Portfolio) TotalMarketValue() float64   { return p.positions.TotalMarketValue() }
func (p *Portfolio) TotalEquity() float64        { return p.TotalMarketValue() + p.cash }
func (p *Portfolio) TotalUnrealisedPnL() float64 { return p.positions.TotalUnrealisedPnL() }
func (p *Portfolio) TotalRealisedPnL() float64   { return p.positions.TotalRealisedPnL() }
func (p *Portfolio) TotalPnL() float64           { return p.positions.TotalPnL() }

func (p *Portfolio) checkDt(operation string, dt time.Time) error {
	if dt.Before(p.currentDt) {
		return errors.NewChronologyError("portfolio "+p.id, operation, dt, p.currentDt)
	}
	return nil
}

// SubscribeFunds credits cash to the portfolio.
func (p *Portfolio) SubscribeFunds(dt time.Time, amount float64) error {
	if err := p.checkDt("subscribe funds", dt); err != nil {
		return err
	}
	if amount < 0 || math.IsNaN(amount) {
		return errors.NewValidationError("amount", amount, "cannot credit a negative amount to the portfolio")
	}

	p.currentDt = dt
	p.cash += amount
	p.history = append(p.history, models.NewSubscriptionEvent(dt, amount, p.cash))
	logging.LogFunds(p.logger, p.id, "subscription", amount, p.cash, dt)
	return nil
}

// WithdrawFunds debits cash from the portfolio. The cash balance may not
// go negative through a withdrawal.
func (p *Portfolio) WithdrawFunds(dt time.Time, amount float64) error {
	if err := p.checkDt("withdraw funds", dt); err != nil {
		return err
	}
	if amount < 0 || math.IsNaN(amount) {
		return errors.NewValidationError("amount", amount, "cannot debit a negative amount from the portfolio")
	}
	if amount > p.cash {
		return errors.NewFundsError("portfolio "+p.id, amount, p.cash)
	}

	p.currentDt = dt
	p.cash -= amount
	p.history = append(p.history, models.NewWithdrawalEvent(dt, amount, p.cash))
	logging.LogFunds(p.logger, p.id, "withdrawal", amount, p.cash, dt)
	return nil
}

// TransactAsset applies an executed trade. A trade costing more than the
// available cash still proceeds and leaves a negative balance; the shortfall
// is logged as a warning.
func (p *Portfolio) TransactAsset(txn models.Transaction) error {
	if err := p.checkDt("transact asset", txn.Dt); err != nil {
		return err
	}

	cost := txn.CostWithCommission()
	if cost > p.cash {
		p.logger.Warn().
			Str("asset", txn.Asset).
			Float64("cost", cost).
			Float64("cash", p.cash).
			Msg("Not enough cash to carry out transaction, proceeding with a negative cash balance")
	}

	if err := p.positions.TransactPosition(txn); err != nil {
		return errors.Wrapf(err, "portfolio %s", p.id)
	}

	p.currentDt = txn.Dt
	p.cash -= cost

	side := "LONG"
	if txn.Direction() <= 0 {
		side = "SHORT"
	}
	description := fmt.Sprintf("%s %d %s %0.2f %s",
		side, txn.Quantity, strings.ToUpper(txn.Asset), txn.Price, txn.Dt.Format("02/01/2006"))

	event := models.PortfolioEvent{
		Dt:          txn.Dt,
		Type:        models.EventAssetTransaction,
		Description: description,
		Balance:     models.Round2(p.cash),
	}
	if side == "LONG" {
		event.Debit = models.Round2(cost)
	} else {
		event.Credit = -models.Round2(cost)
	}
	p.history = append(p.history, event)

	logging.LogTransaction(p.logger, p.id, txn.Asset, side, txn.Quantity, txn.Price, txn.Commission, p.cash)
	return nil
}

// UpdateMarketValueOfAsset marks an open position to market. Assets that
// are not held are ignored.
func (p *Portfolio) UpdateMarketValueOfAsset(asset string, price float64, dt time.Time) error {
	pos, ok := p.positions.Get(asset)
	if !ok {
		return nil
	}
	if math.IsNaN(price) || price <= 0 {
		return errors.NewValidationError("price", price,
			fmt.Sprintf("current trade price for %s must be positive", asset))
	}
	if err := p.checkDt("update market value", dt); err != nil {
		return err
	}
	if err := pos.UpdateCurrentPrice(price, dt); err != nil {
		return err
	}
	p.currentDt = dt
	return nil
}

// Holdings lists the open positions in insertion order.
func (p *Portfolio) Holdings() []Holding {
	positions := p.positions.Positions()
	out := make([]Holding, 0, len(positions))
	for _, pos := range positions {
		out = append(out, Holding{
			Asset:         pos.Asset(),
			Quantity:      pos.NetQuantity(),
			MarketValue:   pos.MarketValue(),
			UnrealisedPnL: pos.UnrealisedPnL(),
			RealisedPnL:   pos.RealisedPnL(),
			TotalPnL:      pos.TotalPnL(),
		})
	}
	return out
}

// Quantities maps each held asset to its net quantity.
func (p *Portfolio) Quantities() map[string]int {
	out := make(map[string]int, p.positions.Len())
	for _, pos := range p.positions.Positions() {
		out[pos.Asset()] = pos.NetQuantity()
	}
	return out
}

// History returns a copy of the event log.
func (p *Portfolio) History() []models.PortfolioEvent {
	out := make([]models.PortfolioEvent, len(p.history))
	copy(out, p.history)
	return out
}

type historyRow struct {
	Date        string  `csv:"date"`
	Type        string  `csv:"type"`
	Description string  `csv:"description"`
	Debit       float64 `csv:"debit"`
	Credit      float64 `csv:"credit"`
	Balance     float64 `csv:"balance"`
}

// WriteHistoryCSV writes the event log as CSV.
func (p *Portfolio) WriteHistoryCSV(w io.Writer) error {
	rows := make([]*historyRow, 0, len(p.history))
	for _, ev := range p.history {
		rows = append(rows, &historyRow{
			Date:        ev.Dt.UTC().Format("2006-01-02 15:04:05"),
			Type:        string(ev.Type),
			Description: ev.Description,
			Debit:       ev.Debit,
			Credit:      ev.Credit,
			Balance:     ev.Balance,
		})
	}
	return gocsv.Marshal(rows, w)
}
