package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"backtester/internal/data"
	"backtester/internal/errors"
	"backtester/internal/models"
)

const dateLayout = "2006-01-02"

// SQLiteStore implements BarStore using SQLite.
type SQLiteStore struct {
	db          *sql.DB
	mu          sync.RWMutex
	importTimes map[string]time.Time
	logger      zerolog.Logger
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to open database: %v", err))
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:          db,
		importTimes: make(map[string]time.Time),
		logger:      logger.With().Str("component", "store").Str("db", dbPath).Logger(),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to initialize schema: %v", err))
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily bars; adj_close is NULL when the vendor did not supply it
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		open REAL,
		high REAL,
		low REAL,
		close REAL,
		adj_close REAL,
		volume INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, date)
	);

	-- Import status table
	CREATE TABLE IF NOT EXISTS import_status (
		symbol TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		last_import DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bars_symbol ON bars(symbol);
	CREATE INDEX IF NOT EXISTS idx_bars_date ON bars(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullable maps NaN to SQL NULL.
func nullable(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// SaveBars upserts bars for a symbol in one transaction.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to begin transaction: %v", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, date, open, high, low, close, adj_close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to prepare statement: %v", err))
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, symbol, b.Date.UTC().Format(dateLayout),
			nullable(b.Open), nullable(b.High), nullable(b.Low), nullable(b.Close), nullable(b.AdjClose), b.Volume)
		if err != nil {
			return errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to insert bar: %v", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to commit transaction: %v", err))
	}

	s.logger.Debug().Str("asset", symbol).Int("bars", len(bars)).Msg("Saved bars")
	return nil
}

// GetBars retrieves a symbol's bars in date order.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, dr DateRange) ([]models.Bar, error) {
	query := `
		SELECT date, open, high, low, close, adj_close, volume
		FROM bars
		WHERE symbol = ?`
	args := []interface{}{symbol}
	if !dr.Start.IsZero() {
		query += " AND date >= ?"
		args = append(args, dr.Start.UTC().Format(dateLayout))
	}
	if !dr.End.IsZero() {
		query += " AND date <= ?"
		args = append(args, dr.End.UTC().Format(dateLayout))
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to query bars: %v", err))
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var (
			date                     string
			open, high, low, cl, adj sql.NullFloat64
			volume                   int64
		)
		if err := rows.Scan(&date, &open, &high, &low, &cl, &adj, &volume); err != nil {
			return nil, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to scan bar: %v", err))
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, errors.NewDataError("bar", symbol, "bad stored date "+date, err)
		}
		bars = append(bars, models.Bar{
			Date:     d,
			Open:     orNaN(open),
			High:     orNaN(high),
			Low:      orNaN(low),
			Close:    orNaN(cl),
			AdjClose: orNaN(adj),
			Volume:   volume,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("error iterating bars: %v", err))
	}

	return bars, nil
}

// Symbols summarises every stored symbol.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]SymbolSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, COUNT(*), MIN(date), MAX(date)
		FROM bars
		GROUP BY symbol
		ORDER BY symbol ASC
	`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to query symbols: %v", err))
	}
	defer rows.Close()

	out := make([]SymbolSummary, 0)
	for rows.Next() {
		var (
			sum         SymbolSummary
			first, last string
		)
		if err := rows.Scan(&sum.Symbol, &sum.Bars, &first, &last); err != nil {
			return nil, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to scan symbol: %v", err))
		}
		sum.First, _ = time.Parse(dateLayout, first)
		sum.Last, _ = time.Parse(dateLayout, last)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSymbol removes every bar and the import record for a symbol.
func (s *SQLiteStore) DeleteSymbol(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bars WHERE symbol = ?`, symbol); err != nil {
		return errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to delete bars: %v", err))
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM import_status WHERE symbol = ?`, symbol); err != nil {
		return errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to delete import status: %v", err))
	}
	s.mu.Lock()
	delete(s.importTimes, symbol)
	s.mu.Unlock()
	return nil
}

// GetLastImport returns when a symbol was last imported, or the zero time.
func (s *SQLiteStore) GetLastImport(symbol string) time.Time {
	s.mu.RLock()
	if t, ok := s.importTimes[symbol]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastImport time.Time
	err := s.db.QueryRow(`SELECT last_import FROM import_status WHERE symbol = ?`, symbol).Scan(&lastImport)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.importTimes[symbol] = lastImport
	s.mu.Unlock()

	return lastImport
}

// SetLastImport records an import of symbol from source.
func (s *SQLiteStore) SetLastImport(symbol, source string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO import_status (symbol, source, last_import, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, symbol, source, t)
	if err != nil {
		return errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to set import time: %v", err))
	}

	s.mu.Lock()
	s.importTimes[symbol] = t
	s.mu.Unlock()

	return nil
}

// ImportCSVDir loads every CSV file in dir, or the named symbols only,
// into the store. It returns the number of bars saved per symbol.
func (s *SQLiteStore) ImportCSVDir(ctx context.Context, dir string, symbols []string) (map[string]int, error) {
	files, err := data.CSVFiles(dir, symbols)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		symbol := data.SymbolFromFilename(file)
		bars, err := data.ReadBarsFile(file)
		if err != nil {
			return counts, errors.NewDataError("csv", symbol, "failed to load "+file, err)
		}
		if err := s.SaveBars(ctx, symbol, bars); err != nil {
			return counts, err
		}
		if err := s.SetLastImport(symbol, file, time.Now().UTC()); err != nil {
			return counts, err
		}
		counts[symbol] = len(bars)
		s.logger.Info().Str("asset", symbol).Int("bars", len(bars)).Str("file", file).Msg("Imported CSV")
	}
	return counts, nil
}

// Source loads the named symbols, or every stored symbol when none are
// given, into a data.BarSource.
func (s *SQLiteStore) Source(ctx context.Context, symbols []string, adjust bool) (*data.BarSource, error) {
	if len(symbols) == 0 {
		summaries, err := s.Symbols(ctx)
		if err != nil {
			return nil, err
		}
		for _, sum := range summaries {
			symbols = append(symbols, sum.Symbol)
		}
	}
	bars := make(map[string][]models.Bar, len(symbols))
	for _, symbol := range symbols {
		rows, err := s.GetBars(ctx, symbol, DateRange{})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, errors.NewDataError("bar", symbol, "no bars stored", errors.ErrDataNotFound)
		}
		bars[symbol] = rows
	}
	return data.NewBarSource(bars, adjust)
}

var _ BarStore = (*SQLiteStore)(nil)
