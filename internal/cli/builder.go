package cli

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"backtester/internal/alpha"
	"backtester/internal/broker"
	"backtester/internal/config"
	"backtester/internal/data"
	"backtester/internal/errors"
	"backtester/internal/models"
	"backtester/internal/portcon"
	"backtester/internal/signal"
	"backtester/internal/store"
	"backtester/internal/trading"
	"backtester/internal/universe"
)

// sessionOptions tweaks a session built from config.
type sessionOptions struct {
	// benchmark, when set, replaces the strategy with a buy-and-hold of
	// this asset id.
	benchmark string
}

// newUniverse builds a dynamic universe when entry dates are configured
// and a static one otherwise. A fixed strategy with no symbols trades the
// assets it weights.
func newUniverse(cfg *config.Config) (universe.Universe, error) {
	if len(cfg.Universe.EntryDates) > 0 {
		entries, err := cfg.EntryDates()
		if err != nil {
			return nil, err
		}
		return universe.NewDynamic(entries), nil
	}
	assets := cfg.Assets()
	if len(assets) == 0 {
		assets = fixedWeights(cfg).Assets()
	}
	if len(assets) == 0 {
		return nil, errors.NewConfigError("universe.symbols", nil, "at least one symbol is required")
	}
	return universe.NewStatic(assets), nil
}

// fixedWeights re-keys configured weights by asset id.
func fixedWeights(cfg *config.Config) models.Weights {
	w := make(models.Weights, len(cfg.Strategy.Weights))
	for ticker, v := range cfg.Strategy.Weights {
		w[models.EquitySymbol(strings.TrimSpace(ticker))] = v
	}
	return w
}

func newFeeModel(cfg *config.Config) broker.FeeModel {
	if cfg.Fees.Model == "percent" {
		return broker.PercentFeeModel{CommissionPct: cfg.Fees.CommissionPct, TaxPct: cfg.Fees.TaxPct}
	}
	return broker.ZeroFeeModel{}
}

func newOptimiser(cfg *config.Config) portcon.Optimiser {
	if cfg.Strategy.Optimiser == "equal" {
		return portcon.NewEqualWeight(cfg.Strategy.Scale)
	}
	return portcon.FixedWeight{}
}

// newDataHandler loads prices from SQLite when configured and returns nil
// otherwise.
func newDataHandler(ctx context.Context, cfg *config.Config, assets []string, logger zerolog.Logger) (data.Handler, error) {
	if cfg.Data.Source != "sqlite" {
		return nil, nil
	}
	db, err := store.NewSQLiteStore(cfg.Data.DBPath, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	src, err := db.Source(ctx, assets, cfg.Data.AdjustPrices)
	if err != nil {
		return nil, err
	}
	return data.NewBacktestHandler(src), nil
}

// buildSession assembles a backtest session from config.
func buildSession(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts sessionOptions) (*trading.BacktestSession, error) {
	start, end, burnIn, err := cfg.Window()
	if err != nil {
		return nil, err
	}

	u, err := newUniverse(cfg)
	if err != nil {
		return nil, err
	}

	sc := trading.SessionConfig{
		Start:                start,
		End:                  end,
		BurnIn:               burnIn,
		Universe:             u,
		InitialCash:          cfg.Backtest.InitialCash,
		Rebalance:            cfg.Backtest.Rebalance,
		RebalanceWeekday:     cfg.Backtest.RebalanceWeekday,
		RebalanceCron:        cfg.Backtest.RebalanceCron,
		AccountName:          cfg.Backtest.AccountName,
		PortfolioID:          cfg.Backtest.PortfolioID,
		PortfolioName:        cfg.Backtest.PortfolioName,
		Currency:             cfg.Backtest.Currency,
		LongOnly:             cfg.Backtest.LongOnly,
		CashBufferPercentage: floatPtr(cfg.Backtest.CashBufferPercentage),
		GrossLeverage:        floatPtr(cfg.Backtest.GrossLeverage),
		Optimiser:            newOptimiser(cfg),
		FeeModel:             newFeeModel(cfg),
		Logger:               &logger,
	}

	if opts.benchmark != "" {
		sc.Universe = universe.NewStatic([]string{opts.benchmark})
		sc.Alpha = alpha.NewFixedSignals(models.Weights{opts.benchmark: 1})
		sc.Rebalance = trading.RebalanceBuyAndHold
		sc.LongOnly = true
		sc.Optimiser = portcon.FixedWeight{}
	}

	if sc.DataHandler, err = newDataHandler(ctx, cfg, sc.Universe.Assets(end), logger); err != nil {
		return nil, err
	}
	if sc.DataHandler == nil {
		// Load CSVs once so the momentum signals and the broker share them.
		src, err := data.NewCSVDailyBarSource(cfg.Data.CSVDir, cfg.Data.AdjustPrices, sc.Universe.Assets(end), logger)
		if err != nil {
			return nil, err
		}
		sc.DataHandler = data.NewBacktestHandler(src)
	}

	if opts.benchmark == "" {
		switch cfg.Strategy.Kind {
		case "fixed":
			sc.Alpha = alpha.NewFixedSignals(fixedWeights(cfg))
		case "single":
			sc.Alpha = alpha.NewSingleSignal(u, cfg.Strategy.Signal)
		case "momentum":
			lookback := cfg.Strategy.Lookback
			mom := signal.NewMomentum(start, u, []int{lookback})
			sc.Signals = signal.NewCollection(map[string]signal.Signal{alpha.MomentumSignalName: mom}, sc.DataHandler, logger)
			sc.Alpha = alpha.NewTopNMomentum(sc.Signals, lookback, cfg.Strategy.TopN, u)
		default:
			return nil, errors.NewConfigError("strategy.kind", cfg.Strategy.Kind, "unknown strategy")
		}
	}

	return trading.NewBacktestSession(sc)
}

func floatPtr(v float64) *float64 { return &v }
