package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Backtester Configuration

[backtest]
# Simulation window (YYYY-MM-DD, UTC)
start = "2020-01-02"
end = "2020-12-31"
# Equity samples before this date are dropped from the statistics
# burn_in = "2020-03-02"
initial_cash = 1000000.0
# Rebalance frequency: buy_and_hold, daily, weekly, end_of_month, cron
rebalance = "weekly"
# Weekday for weekly rebalancing: MON, TUE, WED, THU, FRI
rebalance_weekday = "MON"
# Five field cron spec for cron rebalancing, evaluated in UTC
rebalance_cron = "0 21 * * 1-5"
# Long-only portfolios keep a cash buffer, long/short ones use gross leverage
long_only = true
cash_buffer_percentage = 0.05
gross_leverage = 1.0
portfolio_id = "000001"
account_name = "Backtest Simulated Broker Account"
portfolio_name = "Backtest Simulated Broker Portfolio"
currency = "USD"

[strategy]
# Alpha model: fixed, single, momentum
kind = "fixed"
# Optimiser: fixed (pass-through) or equal
optimiser = "fixed"
scale = 1.0
# Signal applied to every asset when kind = "single"
signal = 1.0
# Momentum lookback in bars and number of assets held when kind = "momentum"
lookback = 126
top_n = 3

[strategy.weights]
SPY = 0.6
AGG = 0.4

[universe]
symbols = ["SPY", "AGG"]

# Assets join the universe on their entry date when set
# [universe.entry_dates]
# SPY = "2020-01-02"
# AGG = "2020-06-01"

[fees]
# Fee model: zero or percent. Percentages are fractions of the traded
# value, 0.001 is 0.1%
model = "zero"
commission_pct = 0.0
tax_pct = 0.0

[data]
# Price source: csv or sqlite
source = "csv"
# Directory holding one <TICKER>.csv per asset
csv_dir = "."
# db_path = "~/.config/backtester/bars.db"
adjust_prices = true

[logging]
# Log level: debug, info, warn, error
level = "info"
console = true
file = false

[output]
dir = "out"
# Write statistics.json to the output directory
json_statistics = true
# Write the portfolio event history as CSV
history_csv = false
`

// WriteTemplate writes a commented config file to configDir. An existing
// file is kept unless overwrite is set.
func WriteTemplate(configDir string, overwrite bool) (string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, FileName+".toml")
	if _, err := os.Stat(path); err == nil && !overwrite {
		return path, fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}
	return path, nil
}

func createTemplateConfig(configDir string) error {
	path, err := WriteTemplate(configDir, false)
	if err != nil {
		return err
	}
	return fmt.Errorf("config file not found, created template at %s", path)
}
