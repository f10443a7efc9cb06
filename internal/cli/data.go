package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"backtester/internal/models"
	"backtester/internal/store"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage the daily bar store",
		Long:  "Import CSV daily bars into the SQLite store and inspect what is stored.",
	}
	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataListCmd(app))
	cmd.AddCommand(newDataDeleteCmd(app))
	return cmd
}

func openStore(app *App) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(app.Config.Data.DBPath, app.Logger)
}

func newDataImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [dir]",
		Short: "Import <TICKER>.csv files into the store",
		Long: `Import daily bars from a directory of <TICKER>.csv files with columns
Date, Open, High, Low, Close, Adj Close and Volume. The directory defaults
to data.csv_dir.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir := app.Config.Data.CSVDir
			if len(args) == 1 {
				dir = args[0]
			}
			symbols, _ := cmd.Flags().GetStringSlice("symbols")

			db, err := openStore(app)
			if err != nil {
				return err
			}
			defer db.Close()

			counts, err := db.ImportCSVDir(cmd.Context(), dir, symbols)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(counts)
			}
			names := make([]string, 0, len(counts))
			for s := range counts {
				names = append(names, s)
			}
			sort.Strings(names)
			table := NewTable(output, "Symbol", "Bars")
			total := 0
			for _, s := range names {
				table.AddRow(models.TickerFromSymbol(s), FormatQuantity(counts[s]))
				total += counts[s]
			}
			table.Render()
			output.Success("✓ Imported %s bars for %d symbols into %s", FormatQuantity(total), len(names), app.Config.Data.DBPath)
			return nil
		},
	}
	cmd.Flags().StringSlice("symbols", nil, "only import these tickers")
	return cmd
}

func newDataListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			db, err := openStore(app)
			if err != nil {
				return err
			}
			defer db.Close()

			summaries, err := db.Symbols(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(summaries)
			}
			if len(summaries) == 0 {
				output.Dim("No bars stored in %s", app.Config.Data.DBPath)
				return nil
			}

			table := NewTable(output, "Symbol", "Bars", "First", "Last", "Imported")
			for _, s := range summaries {
				imported := "-"
				if t := db.GetLastImport(s.Symbol); !t.IsZero() {
					imported = t.Format("2006-01-02 15:04")
				}
				table.AddRow(
					models.TickerFromSymbol(s.Symbol),
					FormatQuantity(s.Bars),
					FormatDate(s.First),
					FormatDate(s.Last),
					imported,
				)
			}
			table.Render()
			return nil
		},
	}
}

func newDataDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ticker>...",
		Short: "Delete stored bars for tickers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			db, err := openStore(app)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, ticker := range args {
				symbol := models.EquitySymbol(strings.TrimSpace(ticker))
				if err := db.DeleteSymbol(cmd.Context(), symbol); err != nil {
					return fmt.Errorf("deleting %s: %w", ticker, err)
				}
				if !output.IsJSON() {
					output.Success("✓ Deleted %s", symbol)
				}
			}
			if output.IsJSON() {
				return output.JSON(map[string][]string{"deleted": args})
			}
			return nil
		},
	}
}
