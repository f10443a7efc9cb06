package broker

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/data"
	"backtester/internal/errors"
	"backtester/internal/exchange"
	"backtester/internal/logging"
	"backtester/internal/models"
	"backtester/internal/portfolio"
)

// Config holds configuration for a simulated broker.
type Config struct {
	AccountID    string
	BaseCurrency string
	InitialFunds float64
	FeeModel     FeeModel
	Logger       *zerolog.Logger
}

// SimulatedBroker fills orders against historical prices. Orders queue
// per portfolio and are only executed while the exchange is open.
type SimulatedBroker struct {
	accountID    string
	baseCurrency string
	initialFunds float64
	startDt      time.Time
	currentDt    time.Time

	exchange exchange.Exchange
	data     data.Handler
	fees     FeeModel

	cash       map[string]float64
	portfolios map[string]*portfolio.Portfolio
	openOrders map[string][]models.Order

	logger zerolog.Logger
}

var _ Broker = (*SimulatedBroker)(nil)

// NewSimulatedBroker creates a broker whose master account is seeded with
// cfg.InitialFunds in the base currency (USD by default).
func NewSimulatedBroker(startDt time.Time, ex exchange.Exchange, dh data.Handler, cfg Config) (*SimulatedBroker, error) {
	if cfg.BaseCurrency == "" {
		cfg.BaseCurrency = "USD"
	}
	if !models.IsSupportedCurrency(cfg.BaseCurrency) {
		return nil, errors.Wrapf(errors.ErrUnknownCurrency,
			"currency %s is not supported by the simulated broker", cfg.BaseCurrency)
	}
	if cfg.InitialFunds < 0 || math.IsNaN(cfg.InitialFunds) {
		return nil, errors.NewValidationError("initial_funds", cfg.InitialFunds, "must be non-negative")
	}
	if cfg.FeeModel == nil {
		cfg.FeeModel = ZeroFeeModel{}
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "broker").Logger()
	}

	cash := make(map[string]float64, len(models.SupportedCurrencies))
	for _, c := range models.SupportedCurrencies {
		cash[c] = 0
	}
	cash[cfg.BaseCurrency] = cfg.InitialFunds

	return &SimulatedBroker{
		accountID:    cfg.AccountID,
		baseCurrency: cfg.BaseCurrency,
		initialFunds: cfg.InitialFunds,
		startDt:      startDt,
		currentDt:    startDt,
		exchange:     ex,
		data:         dh,
		fees:         cfg.FeeModel,
		cash:         cash,
		portfolios:   make(map[string]*portfolio.Portfolio),
		openOrders:   make(map[string][]models.Order),
		logger:       logger,
	}, nil
}

func (b *SimulatedBroker) AccountID() string    { return b.accountID }
func (b *SimulatedBroker) BaseCurrency() string { return b.baseCurrency }
func (b *SimulatedBroker) InitialFunds() float64 { return b.initialFunds }
func (b *SimulatedBroker) StartDt() time.Time    { return b.startDt }
func (b *SimulatedBroker) CurrentDt() time.Time  { return b.currentDt }
func (b *SimulatedBroker) FeeModel() FeeModel    { return b.fees }

// CashBalances returns a copy of the master balances by currency.
func (b *SimulatedBroker) CashBalances() map[string]float64 {
	out := make(map[string]float64, len(b.cash))
	for k, v := range b.cash {
		out[k] = v
	}
	return out
}

// SubscribeFundsToAccount credits the master balance.
func (b *SimulatedBroker) SubscribeFundsToAccount(amount float64) error {
	if amount < 0 || math.IsNaN(amount) {
		return errors.NewValidationError("amount", amount, "cannot credit a negative amount to the broker account")
	}
	b.cash[b.baseCurrency] += amount
	logging.LogFunds(b.logger, "account", "subscription", amount, b.cash[b.baseCurrency], b.currentDt)
	return nil
}

// WithdrawFundsFromAccount debits the master balance.
func (b *SimulatedBroker) WithdrawFundsFromAccount(amount float64) error {
	if amount < 0 || math.IsNaN(amount) {
		return errors.NewValidationError("amount", amount, "cannot debit a negative amount from the broker account")
	}
	if amount > b.cash[b.baseCurrency] {
		return errors.NewFundsError("broker account", amount, b.cash[b.baseCurrency])
	}
	b.cash[b.baseCurrency] -= amount
	logging.LogFunds(b.logger, "account", "withdrawal", amount, b.cash[b.baseCurrency], b.currentDt)
	return nil
}

// GetAccountCashBalance returns the master balance for a currency.
func (b *SimulatedBroker) GetAccountCashBalance(currency string) (float64, error) {
	if currency == "" {
		currency = b.baseCurrency
	}
	balance, ok := b.cash[currency]
	if !ok {
		return 0, errors.Wrapf(errors.ErrUnknownCurrency, "currency %s not found in broker account", currency)
	}
	return balance, nil
}

// GetAccountTotalEquity sums every portfolio's equity plus master cash.
func (b *SimulatedBroker) GetAccountTotalEquity() AccountEquity {
	eq := AccountEquity{Portfolios: make(map[string]float64, len(b.portfolios))}
	for _, id := range b.portfolioIDs() {
		equity := b.portfolios[id].TotalEquity()
		eq.Portfolios[id] = equity
		eq.Master += equity
	}
	eq.Master += b.cash[b.baseCurrency]
	return eq
}

// CreatePortfolio allocates an empty portfolio and order queue.
func (b *SimulatedBroker) CreatePortfolio(id, name string) error {
	if _, ok := b.portfolios[id]; ok {
		return errors.NewPortfolioError(id, errors.ErrPortfolioExists)
	}
	p, err := portfolio.New(b.currentDt, portfolio.Config{
		ID:       id,
		Name:     name,
		Currency: b.baseCurrency,
		Logger:   &b.logger,
	})
	if err != nil {
		return err
	}
	b.portfolios[id] = p
	b.openOrders[id] = nil
	b.logger.Info().Str("portfolio_id", id).Str("name", name).Msg("Portfolio created")
	return nil
}

// ListAllPortfolios returns the portfolios sorted by id.
func (b *SimulatedBroker) ListAllPortfolios() []*portfolio.Portfolio {
	ids := b.portfolioIDs()
	out := make([]*portfolio.Portfolio, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.portfolios[id])
	}
	return out
}

// GetPortfolio looks up a portfolio by id.
func (b *SimulatedBroker) GetPortfolio(id string) (*portfolio.Portfolio, error) {
	p, ok := b.portfolios[id]
	if !ok {
		return nil, errors.NewPortfolioError(id, errors.ErrPortfolioNotFound)
	}
	return p, nil
}

func (b *SimulatedBroker) portfolioIDs() []string {
	ids := make([]string, 0, len(b.portfolios))
	for id := range b.portfolios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SubscribeFundsToPortfolio moves master cash into a portfolio.
func (b *SimulatedBroker) SubscribeFundsToPortfolio(id string, amount float64) error {
	if amount < 0 || math.IsNaN(amount) {
		return errors.NewValidationError("amount", amount, "cannot add a negative amount to a portfolio")
	}
	p, err := b.GetPortfolio(id)
	if err != nil {
		return err
	}
	if amount > b.cash[b.baseCurrency] {
		return errors.NewFundsError("broker account", amount, b.cash[b.baseCurrency])
	}
	if err := p.SubscribeFunds(b.currentDt, amount); err != nil {
		return err
	}
	b.cash[b.baseCurrency] -= amount
	return nil
}

// WithdrawFundsFromPortfolio moves portfolio cash back to the master
// balance.
func (b *SimulatedBroker) WithdrawFundsFromPortfolio(id string, amount float64) error {
	if amount < 0 || math.IsNaN(amount) {
		return errors.NewValidationError("amount", amount, "cannot withdraw a negative amount from a portfolio")
	}
	p, err := b.GetPortfolio(id)
	if err != nil {
		return err
	}
	if err := p.WithdrawFunds(b.currentDt, amount); err != nil {
		return err
	}
	b.cash[b.baseCurrency] += amount
	return nil
}

func (b *SimulatedBroker) GetPortfolioCashBalance(id string) (float64, error) {
	p, err := b.GetPortfolio(id)
	if err != nil {
		return 0, err
	}
	return p.Cash(), nil
}

func (b *SimulatedBroker) GetPortfolioTotalMarketValue(id string) (float64, error) {
	p, err := b.GetPortfolio(id)
	if err != nil {
		return 0, err
	}
	return p.TotalMarketValue(), nil
}

func (b *SimulatedBroker) GetPortfolioTotalEquity(id string) (float64, error) {
	p, err := b.GetPortfolio(id)
	if err != nil {
		return 0, err
	}
	return p.TotalEquity(), nil
}

// GetPortfolioQuantities maps each held asset to its net quantity.
func (b *SimulatedBroker) GetPortfolioQuantities(id string) (map[string]int, error) {
	p, err := b.GetPortfolio(id)
	if err != nil {
		return nil, err
	}
	return p.Quantities(), nil
}

// OpenOrders returns a copy of a portfolio's pending queue.
func (b *SimulatedBroker) OpenOrders(id string) ([]models.Order, error) {
	queue, ok := b.openOrders[id]
	if !ok {
		return nil, errors.NewPortfolioError(id, errors.ErrPortfolioNotFound)
	}
	out := make([]models.Order, len(queue))
	copy(out, queue)
	return out, nil
}

// SubmitOrder queues an order. It is filled on the next Update at which
// the exchange is open.
func (b *SimulatedBroker) SubmitOrder(id string, order models.Order) error {
	if _, ok := b.portfolios[id]; !ok {
		return errors.NewPortfolioError(id, errors.ErrPortfolioNotFound)
	}
	b.openOrders[id] = append(b.openOrders[id], order)
	logging.LogOrder(b.logger, order.ID, order.Asset, order.Quantity, "queued")
	return nil
}

// Update advances the broker clock to dt, marks every held position to
// the latest mid price and, if the exchange is open, drains each
// portfolio's queue in FIFO order.
func (b *SimulatedBroker) Update(dt time.Time) error {
	if dt.Before(b.currentDt) {
		return errors.NewChronologyError("broker", "update", dt, b.currentDt)
	}
	b.currentDt = dt

	ids := b.portfolioIDs()
	for _, id := range ids {
		p := b.portfolios[id]
		for _, asset := range p.Positions().Assets() {
			mid := b.data.LatestMid(dt, asset)
			if math.IsNaN(mid) {
				b.logger.Debug().Str("asset", asset).Time("dt", dt).Msg("No mid price, position not marked")
				continue
			}
			if err := p.UpdateMarketValueOfAsset(asset, mid, dt); err != nil {
				return errors.NewPortfolioError(id, err)
			}
		}
	}

	if !b.exchange.IsOpenAt(dt) {
		return nil
	}

	for _, id := range ids {
		queue := b.openOrders[id]
		for i, order := range queue {
			if err := b.executeOrder(dt, id, order); err != nil {
				b.openOrders[id] = queue[i:]
				return err
			}
		}
		b.openOrders[id] = nil
	}
	return nil
}

// executeOrder fills a buy at the ask and a sell at the bid.
func (b *SimulatedBroker) executeOrder(dt time.Time, id string, order models.Order) error {
	bid, ask := b.data.LatestBidAsk(dt, order.Asset)
	price, side := bid, "bid"
	if order.Direction() > 0 {
		price, side = ask, "ask"
	}
	if math.IsNaN(price) {
		return errors.NewPriceError(order.Asset, side, dt)
	}

	consideration := price * float64(order.Quantity)
	commission := b.fees.TotalCost(order.Asset, order.Quantity, consideration)

	p := b.portfolios[id]
	if est := consideration + commission; est > p.Cash() {
		logger := logging.WithOrderID(logging.WithAsset(logging.WithPortfolio(b.logger, id), order.Asset), order.ID)
		logger.Warn().
			Float64("estimated_cost", est).
			Float64("cash", p.Cash()).
			Msg("Estimated transaction size exceeds available cash")
	}

	txn := models.NewTransaction(order.Asset, order.Quantity, dt, price, order.ID, commission)
	if err := p.TransactAsset(txn); err != nil {
		return errors.NewPortfolioError(id, err)
	}

	logging.LogOrder(b.logger, order.ID, order.Asset, order.Quantity, "filled")
	return nil
}

func (b *SimulatedBroker) String() string {
	return fmt.Sprintf("SimulatedBroker(account=%s, currency=%s, portfolios=%d)",
		b.accountID, b.baseCurrency, len(b.portfolios))
}
