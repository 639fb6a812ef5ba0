package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/pkg/models"
)

// parquetBar is the row layout of a <SYMBOL>.parquet file. The timestamp
// column holds exchange wall time with no zone.
type parquetBar struct {
	Timestamp time.Time `parquet:"timestamp"`
	Open      float64   `parquet:"open"`
	High      float64   `parquet:"high"`
	Low       float64   `parquet:"low"`
	Close     float64   `parquet:"close"`
	Volume    int64     `parquet:"volume"`
}

const parquetBatch = 4096

// ParquetSource reads one <SYMBOL>.parquet file per instrument from a
// directory.
type ParquetSource struct {
	dir string
}

// NewParquetSource creates a source over dir.
func NewParquetSource(dir string) *ParquetSource {
	return &ParquetSource{dir: dir}
}

// Name returns "parquet".
func (s *ParquetSource) Name() string { return "parquet" }

func (s *ParquetSource) path(symbol string) string {
	return filepath.Join(s.dir, market.NormalizeSymbol(symbol)+".parquet")
}

// Load reads every bar of symbol.
func (s *ParquetSource) Load(ctx context.Context, symbol string, loc *time.Location) ([]models.OHLCV, error) {
	f, err := os.Open(s.path(symbol))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", market.NormalizeSymbol(symbol), ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", symbol, err)
	}
	defer f.Close()

	return ReadParquet(ctx, f, loc)
}

// ReadParquet reads every bar from a Parquet file. Rows come back sorted
// by time.
func ReadParquet(ctx context.Context, f io.ReaderAt, loc *time.Location) (bars []models.OHLCV, err error) {
	// The reader panics on files it cannot open.
	defer func() {
		if rec := recover(); rec != nil {
			bars, err = nil, fmt.Errorf("open parquet: %v", rec)
		}
	}()
	r := parquet.NewGenericReader[parquetBar](f)
	defer r.Close()

	bars = make([]models.OHLCV, 0, r.NumRows())
	buf := make([]parquetBar, parquetBatch)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(buf)
		for _, row := range buf[:n] {
			bars = append(bars, models.OHLCV{
				Timestamp: wallTime(row.Timestamp, loc),
				Open:      row.Open,
				High:      row.High,
				Low:       row.Low,
				Close:     row.Close,
				Volume:    row.Volume,
			})
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet: %w", err)
		}
	}
	if len(bars) == 0 {
		return nil, ErrEmpty
	}
	return sortBars(bars), nil
}

// Symbols lists the .parquet files in the directory.
func (s *ParquetSource) Symbols(_ context.Context) ([]string, error) {
	return listSymbols(s.dir, ".parquet")
}

// Write replaces symbol's file with bars.
func (s *ParquetSource) Write(_ context.Context, symbol string, bars []models.OHLCV) (int, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.Create(s.path(symbol))
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", symbol, err)
	}
	defer f.Close()

	rows := make([]parquetBar, len(bars))
	for i, b := range bars {
		rows[i] = parquetBar{
			Timestamp: naive(b.Timestamp),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	w := parquet.NewGenericWriter[parquetBar](f)
	if _, err := w.Write(rows); err != nil {
		return 0, fmt.Errorf("write %s: %w", symbol, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", symbol, err)
	}
	return len(bars), f.Close()
}

// wallTime reads the clock fields of t as wall time in loc.
func wallTime(t time.Time, loc *time.Location) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// naive is the inverse of wallTime: t's wall clock labelled UTC.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
