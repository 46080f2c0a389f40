package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"txdata/internal/domain"
)

// Compile-time interface check.
var _ TickSink = (*ParquetTickSink)(nil)

// TickRecord is the Parquet schema for archived ticks.
type TickRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(nanosecond)"` // Unix ns
	Price     float64 `parquet:"price"`
	Size      int64   `parquet:"size"`
	BidPrice  float64 `parquet:"bid_price"`
	BidSize   int64   `parquet:"bid_size"`
	AskPrice  float64 `parquet:"ask_price"`
	AskSize   int64   `parquet:"ask_size"`
	Side      string  `parquet:"side"`
}

// ParquetTickSink archives tick chunks as Parquet files at
// <dir>/ticks/<SYMBOL>/<chunk_start>.parquet, a compact companion to the
// CSV exports for downstream analytical reads.
type ParquetTickSink struct {
	dir    string
	symbol string
}

// NewParquetTickSink creates a Parquet archive rooted at dir.
func NewParquetTickSink(dir, symbol string) *ParquetTickSink {
	return &ParquetTickSink{dir: dir, symbol: symbol}
}

// Name returns "parquet".
func (s *ParquetTickSink) Name() string { return "parquet" }

// WriteTicks writes one chunk; rewriting the same chunk replaces the file.
func (s *ParquetTickSink) WriteTicks(_ context.Context, ticks []domain.Tick, chunk domain.DateRange) error {
	records := make([]TickRecord, 0, len(ticks))
	for _, t := range ticks {
		records = append(records, TickRecord{
			Timestamp: t.TimestampNS,
			Price:     t.Price,
			Size:      t.Size,
			BidPrice:  t.BidPrice,
			BidSize:   t.BidSize,
			AskPrice:  t.AskPrice,
			AskSize:   t.AskSize,
			Side:      string(t.Side),
		})
	}

	path := s.chunkPath(chunk)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (s *ParquetTickSink) chunkPath(chunk domain.DateRange) string {
	return filepath.Join(s.dir, "ticks", s.symbol, chunk.Start.Format(domain.DateLayout)+".parquet")
}
