package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"backtester/internal/config"
	"backtester/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// skipConfig marks commands that run without a loaded config file.
const skipConfig = "skip-config"

// App holds the application dependencies.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
}

// NewRootCmd creates the root command for the CLI. The config file is
// loaded from --config before any command that needs it runs.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "backtester",
		Short: "Discrete-event backtester for quantitative trading strategies",
		Long: `Backtester replays historical daily bars through a simulated broker.

A strategy's target weights are turned into integral share orders at each
scheduled rebalance, executed against the simulated ledger, and summarised
as an equity curve with performance statistics.

Use 'backtester config init' to write a commented backtest.toml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.ConfigDir, _ = cmd.Flags().GetString("config")
			if app.ConfigDir == "" {
				app.ConfigDir = config.DefaultConfigDir()
			}
			debug, _ := cmd.Flags().GetBool("debug")

			if cmd.Annotations[skipConfig] == "" {
				cfg, err := config.Load(app.ConfigDir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = newLogger(cmd, cfg.Logging, debug)
			} else if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/backtester)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newCompareCmd(app))
	rootCmd.AddCommand(newDataCmd(app))

	return rootCmd
}

func newLogger(cmd *cobra.Command, lc config.LoggingConfig, debug bool) zerolog.Logger {
	cfg := logging.DefaultLogConfig()
	cfg.Level = lc.Level
	cfg.Console = lc.Console
	cfg.File = lc.File
	if lc.FilePath != "" {
		cfg.FilePath = lc.FilePath
	}
	if debug {
		cfg.Level = "debug"
	}
	cfg.Out = cmd.ErrOrStderr()
	return logging.NewLoggerWithConfig(cfg)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Backtester v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage the backtest configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.ConfigDir, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration file path",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.Path(app.ConfigDir)})
			} else {
				output.Println(config.Path(app.ConfigDir))
			}
		},
	})

	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented configuration template",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			force, _ := cmd.Flags().GetBool("force")
			path, err := config.WriteTemplate(app.ConfigDir, force)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("✓ Wrote %s", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func showConfig(output *Output, dir string, cfg *config.Config) {
	bt := cfg.Backtest
	lines := []string{
		"Window:      " + bt.Start + " → " + bt.End,
		"Rebalance:   " + bt.Rebalance,
		"Capital:     " + FormatCurrency(bt.InitialCash) + " " + bt.Currency,
		"Strategy:    " + cfg.Strategy.Kind + " (" + cfg.Strategy.Optimiser + " optimiser)",
		"Fees:        " + cfg.Fees.Model,
		"Data:        " + cfg.Data.Source,
		"Output:      " + cfg.Output.Dir,
	}
	if bt.BurnIn != "" {
		lines = append(lines, "Burn-in:     "+bt.BurnIn)
	}
	if bt.LongOnly {
		lines = append(lines, "Sizing:      long-only, cash buffer "+FormatPercent(bt.CashBufferPercentage*100))
	} else {
		lines = append(lines, "Sizing:      long/short, gross leverage "+FormatRatio(bt.GrossLeverage))
	}
	output.Box(config.Path(dir), lines)
}
