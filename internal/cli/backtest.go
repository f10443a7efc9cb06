package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"backtester/internal/logging"
	"backtester/internal/models"
	"backtester/internal/performance"
	"backtester/internal/statistics"
	"backtester/internal/trading"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured backtest",
		Long: `Run the backtest described by backtest.toml and print a tearsheet.

With --json the full statistics report is printed instead. When
output.json_statistics is set, statistics.json is also written to the
output directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
				app.Config.Output.Dir = dir
			}

			sess, err := buildSession(ctx, app.Config, app.Logger, sessionOptions{})
			if err != nil {
				return err
			}

			began := time.Now()
			if err := sess.Run(ctx); err != nil {
				return fmt.Errorf("running backtest: %w", err)
			}
			elapsed := time.Since(began)
			mem := performance.MemoryStats()
			app.Logger.Debug().
				Dur("elapsed", elapsed).
				Str("heap_inuse", performance.FormatBytes(mem.HeapInuse)).
				Uint32("num_gc", mem.NumGC).
				Msg("Backtest finished")

			report := sess.Report()
			if err := writeOutputs(app, sess, report, nil); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(report)
			}

			if err := statistics.WriteTearsheet(output.writer, "Strategy", sess.EquityCurve(), report.Statistics, nil); err != nil {
				return err
			}
			output.Println()
			if err := printHoldings(output, sess); err != nil {
				return err
			}
			output.Dim("Completed in %s", FormatDuration(elapsed))
			return nil
		},
	}
	cmd.Flags().String("output-dir", "", "override output.dir")
	return cmd
}

func newCompareCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the strategy with a buy-and-hold benchmark",
		Long: `Run the configured strategy and a buy-and-hold of the benchmark
concurrently, then rank them by Sharpe ratio.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			benchmark, _ := cmd.Flags().GetString("benchmark")
			if benchmark == "" {
				assets := app.Config.Assets()
				if len(assets) == 0 {
					return fmt.Errorf("no benchmark given and no universe symbols configured")
				}
				benchmark = assets[0]
			} else {
				benchmark = models.EquitySymbol(benchmark)
			}
			workers, _ := cmd.Flags().GetInt("workers")

			strategy, err := buildSession(ctx, app.Config, app.Logger, sessionOptions{})
			if err != nil {
				return err
			}
			bench, err := buildSession(ctx, app.Config, app.Logger, sessionOptions{benchmark: benchmark})
			if err != nil {
				return err
			}

			pool := performance.NewWorkerPool(workers)
			pool.Start()
			defer pool.Stop()

			benchName := models.TickerFromSymbol(benchmark) + " buy & hold"
			results := trading.Compare(logging.WithLogger(ctx, app.Logger), pool, []trading.NamedSession{
				{Name: "Strategy", Session: strategy},
				{Name: benchName, Session: bench},
			})
			stats := pool.Stats()
			app.Logger.Debug().
				Int("workers", stats.Workers).
				Uint64("tasks", stats.TasksDone).
				Msg("Comparison finished")
			for _, r := range results {
				if r.Err != nil {
					return fmt.Errorf("%s: %w", r.Name, r.Err)
				}
			}

			benchReport := statistics.NewReport(bench.Statistics())
			report := strategy.Report()
			if err := writeOutputs(app, strategy, report, benchReport); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(results)
			}

			if err := statistics.WriteTearsheet(output.writer, "Strategy vs "+benchName,
				strategy.EquityCurve(), report.Statistics, benchReport.Statistics); err != nil {
				return err
			}
			output.Println()

			table := NewTable(output, "Rank", "Name", "Total Return", "CAGR", "Sharpe", "Max DD")
			for _, r := range results {
				s := r.Statistics
				table.AddRow(
					fmt.Sprintf("%d", r.Rank),
					r.Name,
					output.FormatPercent(s.TotalReturn),
					output.FormatPercent(s.CAGR),
					FormatRatio(s.Sharpe),
					FormatPercent(-s.MaxDrawdown*100),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("benchmark", "", "benchmark ticker (default: first universe symbol)")
	cmd.Flags().Int("workers", runtime.NumCPU(), "worker pool size")
	return cmd
}

func printHoldings(output *Output, sess *trading.BacktestSession) error {
	holdings, err := sess.Holdings()
	if err != nil {
		return err
	}
	if len(holdings) == 0 {
		output.Dim("No open positions")
		return nil
	}
	table := NewTable(output, "Asset", "Quantity", "Market Value", "Unrealised", "Realised", "Total PnL")
	for _, h := range holdings {
		table.AddRow(
			models.TickerFromSymbol(h.Asset),
			FormatQuantity(h.Quantity),
			FormatCurrency(h.MarketValue),
			output.FormatPnL(h.UnrealisedPnL),
			output.FormatPnL(h.RealisedPnL),
			output.FormatPnL(h.TotalPnL),
		)
	}
	table.Render()
	return nil
}

// writeOutputs writes statistics.json and the portfolio history CSV when
// enabled in config.
func writeOutputs(app *App, sess *trading.BacktestSession, strategy, benchmark *statistics.Report) error {
	out := app.Config.Output
	if !out.JSONStatistics && !out.HistoryCSV {
		return nil
	}

	if out.JSONStatistics {
		js := &statistics.JSONStatistics{
			Strategy:     strategy,
			Benchmark:    benchmark,
			StrategyID:   app.Config.Backtest.PortfolioID,
			StrategyName: app.Config.Strategy.Kind,
		}
		if benchmark != nil {
			js.BenchmarkName = "buy_and_hold"
		}
		path := filepath.Join(out.Dir, "statistics.json")
		if err := js.WriteFile(path); err != nil {
			return err
		}
		app.Logger.Info().Str("path", path).Msg("Wrote statistics")
	}

	if out.HistoryCSV {
		p, err := sess.Portfolio()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(out.Dir, 0755); err != nil {
			return err
		}
		path := filepath.Join(out.Dir, "history.csv")
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := p.WriteHistoryCSV(f); err != nil {
			return err
		}
		app.Logger.Info().Str("path", path).Msg("Wrote portfolio history")
	}
	return nil
}
