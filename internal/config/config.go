// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"backtester/internal/errors"
	"backtester/internal/models"
	"backtester/internal/rebalance"
)

// DateLayout is the layout of every date in the config file.
const DateLayout = "2006-01-02"

// FileName is the config file name without extension.
const FileName = "backtest"

// Config holds all application configuration.
type Config struct {
	Backtest BacktestConfig `mapstructure:"backtest"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Universe UniverseConfig `mapstructure:"universe"`
	Fees     FeesConfig     `mapstructure:"fees"`
	Data     DataConfig     `mapstructure:"data"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
}

// BacktestConfig holds the simulation window and portfolio settings.
type BacktestConfig struct {
	Start                string  `mapstructure:"start"`
	End                  string  `mapstructure:"end"`
	BurnIn               string  `mapstructure:"burn_in"`
	InitialCash          float64 `mapstructure:"initial_cash"`
	Rebalance            string  `mapstructure:"rebalance"`         // buy_and_hold, daily, weekly, end_of_month, cron
	RebalanceWeekday     string  `mapstructure:"rebalance_weekday"` // MON..FRI
	RebalanceCron        string  `mapstructure:"rebalance_cron"`
	LongOnly             bool    `mapstructure:"long_only"`
	CashBufferPercentage float64 `mapstructure:"cash_buffer_percentage"`
	GrossLeverage        float64 `mapstructure:"gross_leverage"`
	PortfolioID          string  `mapstructure:"portfolio_id"`
	AccountName          string  `mapstructure:"account_name"`
	PortfolioName        string  `mapstructure:"portfolio_name"`
	Currency             string  `mapstructure:"currency"`
}

// StrategyConfig selects the alpha model and optimiser.
type StrategyConfig struct {
	Kind      string             `mapstructure:"kind"` // fixed, single, momentum
	Weights   map[string]float64 `mapstructure:"weights"`
	Signal    float64            `mapstructure:"signal"`
	Lookback  int                `mapstructure:"lookback"`
	TopN      int                `mapstructure:"top_n"`
	Optimiser string             `mapstructure:"optimiser"` // fixed, equal
	Scale     float64            `mapstructure:"scale"`
}

// UniverseConfig lists the tradable tickers. EntryDates, when set, makes
// the universe dynamic.
type UniverseConfig struct {
	Symbols    []string          `mapstructure:"symbols"`
	EntryDates map[string]string `mapstructure:"entry_dates"`
}

// FeesConfig holds the fee model settings.
type FeesConfig struct {
	Model         string  `mapstructure:"model"` // zero, percent
	CommissionPct float64 `mapstructure:"commission_pct"`
	TaxPct        float64 `mapstructure:"tax_pct"`
}

// DataConfig holds market data settings.
type DataConfig struct {
	Source       string `mapstructure:"source"` // csv, sqlite
	CSVDir       string `mapstructure:"csv_dir"`
	DBPath       string `mapstructure:"db_path"`
	AdjustPrices bool   `mapstructure:"adjust_prices"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// OutputConfig holds report settings.
type OutputConfig struct {
	Dir            string `mapstructure:"dir"`
	JSONStatistics bool   `mapstructure:"json_statistics"`
	HistoryCSV     bool   `mapstructure:"history_csv"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/backtester"
	}
	return filepath.Join(home, ".config", "backtester")
}

// Path returns the config file path inside configDir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, FileName+".toml")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("backtest.initial_cash", 1e6)
	v.SetDefault("backtest.rebalance", "weekly")
	v.SetDefault("backtest.rebalance_weekday", "MON")
	v.SetDefault("backtest.long_only", true)
	v.SetDefault("backtest.cash_buffer_percentage", 0.05)
	v.SetDefault("backtest.gross_leverage", 1.0)
	v.SetDefault("backtest.portfolio_id", "000001")
	v.SetDefault("backtest.account_name", "Backtest Simulated Broker Account")
	v.SetDefault("backtest.portfolio_name", "Backtest Simulated Broker Portfolio")
	v.SetDefault("backtest.currency", "USD")

	v.SetDefault("strategy.kind", "fixed")
	v.SetDefault("strategy.optimiser", "fixed")
	v.SetDefault("strategy.scale", 1.0)
	v.SetDefault("strategy.lookback", 126)
	v.SetDefault("strategy.top_n", 3)
	v.SetDefault("strategy.signal", 1.0)

	v.SetDefault("fees.model", "zero")

	v.SetDefault("data.source", "csv")
	v.SetDefault("data.csv_dir", ".")
	v.SetDefault("data.db_path", filepath.Join(configDir, "bars.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "backtester.log"))

	v.SetDefault("output.dir", "out")
	v.SetDefault("output.json_statistics", true)
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads backtest.toml from configDir, applies .env and environment
// overrides, then validates. If the file is missing a commented template
// is written and an error returned.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// Missing .env files are fine.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName(FileName)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, createTemplateConfig(configDir)
		}
		return nil, fmt.Errorf("loading %s.toml: %w", FileName, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s.toml: %w", FileName, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKTESTER_CSV_DATA_DIR"); v != "" {
		cfg.Data.CSVDir = v
	}
	if v := os.Getenv("BACKTESTER_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("BACKTESTER_DB_PATH"); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv("BACKTESTER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, errors.NewConfigError(field, value, "expected a date in YYYY-MM-DD form")
	}
	return t, nil
}

// Window parses the start, end and optional burn-in dates.
func (c *Config) Window() (start, end time.Time, burnIn *time.Time, err error) {
	if start, err = parseDate("backtest.start", c.Backtest.Start); err != nil {
		return
	}
	if end, err = parseDate("backtest.end", c.Backtest.End); err != nil {
		return
	}
	if c.Backtest.BurnIn != "" {
		var b time.Time
		if b, err = parseDate("backtest.burn_in", c.Backtest.BurnIn); err != nil {
			return
		}
		burnIn = &b
	}
	return
}

// EntryDates parses the dynamic universe entry dates keyed by asset id.
func (c *Config) EntryDates() (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(c.Universe.EntryDates))
	for ticker, date := range c.Universe.EntryDates {
		t, err := parseDate("universe.entry_dates."+ticker, date)
		if err != nil {
			return nil, err
		}
		out[models.EquitySymbol(ticker)] = t
	}
	return out, nil
}

// Assets returns the configured tickers as asset ids. Viper lower-cases
// map keys so tickers are upper-cased here.
func (c *Config) Assets() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(ticker string) {
		id := models.EquitySymbol(strings.TrimSpace(ticker))
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, s := range c.Universe.Symbols {
		add(s)
	}
	for s := range c.Universe.EntryDates {
		add(s)
	}
	return out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	start, end, burnIn, err := c.Window()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return errors.NewConfigError("backtest.end", c.Backtest.End, "must not precede backtest.start")
	}
	if burnIn != nil && (burnIn.Before(start) || burnIn.After(end)) {
		return errors.NewConfigError("backtest.burn_in", c.Backtest.BurnIn, "must fall within the backtest window")
	}
	if c.Backtest.InitialCash < 0 {
		return errors.NewConfigError("backtest.initial_cash", c.Backtest.InitialCash, "must be non-negative")
	}

	switch c.Backtest.Rebalance {
	case "buy_and_hold", "daily", "end_of_month":
	case "weekly":
		if _, err := rebalance.ParseWeekday(c.Backtest.RebalanceWeekday); err != nil {
			return err
		}
	case "cron":
		if _, err := rebalance.ParseCron(c.Backtest.RebalanceCron); err != nil {
			return err
		}
	default:
		return errors.NewConfigError("backtest.rebalance", c.Backtest.Rebalance,
			"must be one of buy_and_hold, daily, weekly, end_of_month, cron")
	}

	if c.Backtest.LongOnly {
		if b := c.Backtest.CashBufferPercentage; b < 0 || b > 1 {
			return errors.NewConfigError("backtest.cash_buffer_percentage", b, "must be within [0, 1]")
		}
	} else if c.Backtest.GrossLeverage <= 0 {
		return errors.NewConfigError("backtest.gross_leverage", c.Backtest.GrossLeverage, "must be positive")
	}

	if !models.IsSupportedCurrency(c.Backtest.Currency) {
		return errors.NewConfigError("backtest.currency", c.Backtest.Currency, "unsupported currency")
	}

	switch c.Fees.Model {
	case "zero", "":
	case "percent":
		if c.Fees.CommissionPct < 0 || c.Fees.TaxPct < 0 {
			return errors.NewConfigError("fees", c.Fees, "percentages must be non-negative")
		}
	default:
		return errors.NewConfigError("fees.model", c.Fees.Model, "must be zero or percent")
	}

	switch c.Strategy.Kind {
	case "fixed":
		if len(c.Strategy.Weights) == 0 {
			return errors.NewConfigError("strategy.weights", nil, "fixed strategies need at least one weight")
		}
	case "single":
	case "momentum":
		if c.Strategy.Lookback <= 0 || c.Strategy.TopN <= 0 {
			return errors.NewConfigError("strategy", strconv.Itoa(c.Strategy.Lookback)+"/"+strconv.Itoa(c.Strategy.TopN),
				"momentum needs a positive lookback and top_n")
		}
	default:
		return errors.NewConfigError("strategy.kind", c.Strategy.Kind, "must be fixed, single or momentum")
	}

	switch c.Strategy.Optimiser {
	case "fixed", "equal", "":
	default:
		return errors.NewConfigError("strategy.optimiser", c.Strategy.Optimiser, "must be fixed or equal")
	}

	switch c.Data.Source {
	case "csv", "sqlite":
	default:
		return errors.NewConfigError("data.source", c.Data.Source, "must be csv or sqlite")
	}

	if c.Strategy.Kind != "fixed" && len(c.Assets()) == 0 {
		return errors.NewConfigError("universe.symbols", nil, "at least one symbol is required")
	}
	return nil
}
