package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"txdata/internal/domain"
	"txdata/internal/util"
)

// utf8BOM is prepended to every CSV so spreadsheet tools on Windows detect
// the encoding (the original exports used utf-8-sig).
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

const timestampLayout = "2006-01-02 15:04:05"

// Compile-time interface checks.
var _ BarSink = (*CSVBarSink)(nil)
var _ TickSink = (*CSVTickSink)(nil)

// CSVBarSink writes one bar series to a single CSV file in dir.
type CSVBarSink struct {
	dir    string
	symbol string
}

// NewCSVBarSink creates a bar sink writing under dir.
func NewCSVBarSink(dir, symbol string) *CSVBarSink {
	return &CSVBarSink{dir: dir, symbol: symbol}
}

// Name returns "csv".
func (s *CSVBarSink) Name() string { return "csv" }

// WriteBars writes bars to {SYMBOL}_1m_data_{start}_to_{end}.csv. The file
// is written to a temp path and renamed so a crash never leaves a partial
// file behind.
func (s *CSVBarSink) WriteBars(_ context.Context, bars []domain.Bar, r domain.DateRange) error {
	rows := make([][]string, 0, len(bars)+1)
	rows = append(rows, []string{"datetime", "Open", "High", "Low", "Close", "Volume"})
	for _, b := range bars {
		rows = append(rows, []string{
			b.Timestamp.Format(timestampLayout),
			formatPrice(b.Open),
			formatPrice(b.High),
			formatPrice(b.Low),
			formatPrice(b.Close),
			strconv.FormatInt(b.Volume, 10),
		})
	}
	return writeCSV(filepath.Join(s.dir, BarFileName(s.symbol, r)), rows)
}

// CSVTickSink writes tick chunks to CSV files in dir. Chunks of a run
// spanning more than seven days get per-week file names; shorter runs get a
// single plainly named file.
type CSVTickSink struct {
	dir      string
	symbol   string
	runRange domain.DateRange
}

// NewCSVTickSink creates a tick sink for one run over runRange.
func NewCSVTickSink(dir, symbol string, runRange domain.DateRange) *CSVTickSink {
	return &CSVTickSink{dir: dir, symbol: symbol, runRange: runRange}
}

// Name returns "csv".
func (s *CSVTickSink) Name() string { return "csv" }

// WriteTicks writes one chunk's ticks, naming the file per the run span.
func (s *CSVTickSink) WriteTicks(_ context.Context, ticks []domain.Tick, chunk domain.DateRange) error {
	var name string
	if s.runRange.Days() > 7 {
		name = WeeklyTickFileName(s.symbol, chunk)
	} else {
		name = TickFileName(s.symbol, chunk)
	}

	loc := util.MarketLocation()
	rows := make([][]string, 0, len(ticks)+1)
	rows = append(rows, []string{
		"datetime", "close", "volume",
		"bid_price", "bid_volume", "ask_price", "ask_volume", "tick_type",
	})
	for _, t := range ticks {
		rows = append(rows, []string{
			t.Time(loc).Format(timestampLayout + ".000000000"),
			formatPrice(t.Price),
			strconv.FormatInt(t.Size, 10),
			formatPrice(t.BidPrice),
			strconv.FormatInt(t.BidSize, 10),
			formatPrice(t.AskPrice),
			strconv.FormatInt(t.AskSize, 10),
			string(t.Side),
		})
	}
	return writeCSV(filepath.Join(s.dir, name), rows)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	if _, err := f.Write(utf8BOM); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing BOM: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing rows: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing %s: %w", path, err)
	}
	return nil
}
