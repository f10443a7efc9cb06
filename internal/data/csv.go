package data

import (
	"bytes"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"backtester/internal/errors"
	"backtester/internal/models"
)

const adjCloseColumn = "Adj Close"

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

type csvDate struct {
	time.Time
}

func (d *csvDate) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, time.UTC); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return err
}

func (d csvDate) MarshalCSV() (string, error) {
	return d.Format("2006-01-02"), nil
}

// csvFloat reads blank and "null" cells as NaN.
type csvFloat float64

func (f *csvFloat) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "nan") {
		*f = csvFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = csvFloat(v)
	return nil
}

func (f csvFloat) MarshalCSV() (string, error) {
	if math.IsNaN(float64(f)) {
		return "", nil
	}
	return strconv.FormatFloat(float64(f), 'f', -1, 64), nil
}

type csvBar struct {
	Date     csvDate  `csv:"Date"`
	Open     csvFloat `csv:"Open"`
	High     csvFloat `csv:"High"`
	Low      csvFloat `csv:"Low"`
	Close    csvFloat `csv:"Close"`
	AdjClose csvFloat `csv:"Adj Close"`
	Volume   csvFloat `csv:"Volume"`
}

// ReadBarsCSV parses daily bars with the columns Date, Open, High, Low,
// Close, Adj Close and Volume. A missing Adj Close column yields NaN
// adjusted closes.
func ReadBarsCSV(r io.Reader) ([]models.Bar, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	header, err := csv.NewReader(bytes.NewReader(raw)).Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read csv header")
	}
	hasAdj := false
	for _, col := range header {
		if strings.TrimSpace(col) == adjCloseColumn {
			hasAdj = true
			break
		}
	}

	var rows []*csvBar
	if err := gocsv.UnmarshalBytes(raw, &rows); err != nil {
		return nil, errors.Wrap(err, "failed to parse bars")
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, row := range rows {
		bar := models.Bar{
			Date:     row.Date.Time,
			Open:     float64(row.Open),
			High:     float64(row.High),
			Low:      float64(row.Low),
			Close:    float64(row.Close),
			AdjClose: float64(row.AdjClose),
		}
		if !hasAdj {
			bar.AdjClose = math.NaN()
		}
		if v := float64(row.Volume); !math.IsNaN(v) {
			bar.Volume = int64(v)
		}
		bars = append(bars, bar)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// WriteBarsCSV writes bars in the format ReadBarsCSV accepts.
func WriteBarsCSV(w io.Writer, bars []models.Bar) error {
	rows := make([]*csvBar, 0, len(bars))
	for _, bar := range bars {
		rows = append(rows, &csvBar{
			Date:     csvDate{bar.Date},
			Open:     csvFloat(bar.Open),
			High:     csvFloat(bar.High),
			Low:      csvFloat(bar.Low),
			Close:    csvFloat(bar.Close),
			AdjClose: csvFloat(bar.AdjClose),
			Volume:   csvFloat(bar.Volume),
		})
	}
	return gocsv.Marshal(rows, w)
}

// ReadBarsFile reads one CSV file of daily bars.
func ReadBarsFile(path string) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBarsCSV(f)
}

// SymbolFromFilename maps SPY.csv to EQ:SPY.
func SymbolFromFilename(name string) string {
	return models.EquitySymbol(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
}

// CSVFiles lists the CSV files in dir, or the files for the given tickers
// when symbols is non-empty.
func CSVFiles(dir string, symbols []string) ([]string, error) {
	if len(symbols) > 0 {
		files := make([]string, 0, len(symbols))
		for _, sym := range symbols {
			files = append(files, filepath.Join(dir, models.TickerFromSymbol(sym)+".csv"))
		}
		return files, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewDataError("csv", dir, "cannot read directory", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// CSVDailyBarSource loads one <TICKER>.csv per asset from a directory.
type CSVDailyBarSource struct {
	*BarSource
	dir string
}

// NewCSVDailyBarSource loads the directory. symbols restricts loading to
// the named tickers; empty loads every CSV file found.
func NewCSVDailyBarSource(dir string, adjust bool, symbols []string, logger zerolog.Logger) (*CSVDailyBarSource, error) {
	files, err := CSVFiles(dir, symbols)
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("dir", dir).Int("files", len(files)).Msg("Loading CSV files")

	bars := make(map[string][]models.Bar, len(files))
	for _, file := range files {
		symbol := SymbolFromFilename(file)
		rows, err := ReadBarsFile(file)
		if err != nil {
			return nil, errors.NewDataError("csv", symbol, "failed to load "+file, err)
		}
		logger.Debug().Str("asset", symbol).Int("bars", len(rows)).Msg("Loaded CSV file")
		bars[symbol] = rows
	}

	src, err := NewBarSource(bars, adjust)
	if err != nil {
		return nil, err
	}
	return &CSVDailyBarSource{BarSource: src, dir: dir}, nil
}

// Dir returns the directory the source was loaded from.
func (s *CSVDailyBarSource) Dir() string {
	return s.dir
}
