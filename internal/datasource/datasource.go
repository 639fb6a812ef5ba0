// Package datasource loads OHLCV bars for an instrument from local storage.
// It defines a common Source interface with CSV, SQLite and Parquet
// implementations, and a Store that loads each instrument once and serves
// it as an immutable table.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/seenimoa/barb/internal/config"
	"github.com/seenimoa/barb/pkg/models"
)

// Source defines the interface every bar store implements.
type Source interface {
	// Name returns the driver name ("csv", "sqlite", "parquet").
	Name() string

	// Load returns every bar of symbol. Timestamps without a zone are read
	// in loc, the instrument's exchange timezone.
	Load(ctx context.Context, symbol string, loc *time.Location) ([]models.OHLCV, error)

	// Symbols lists the instruments the store holds data for.
	Symbols(ctx context.Context) ([]string, error)
}

// Writer is implemented by sources that can persist bars.
type Writer interface {
	Write(ctx context.Context, symbol string, bars []models.OHLCV) (int, error)
}

// --- Sentinel errors ---

// ErrNotFound is returned when no data exists for a symbol.
var ErrNotFound = errors.New("no data for symbol")

// ErrEmpty is returned when a symbol's data holds no bars.
var ErrEmpty = errors.New("data holds no bars")

// ErrNotSupported is returned when a source does not support an operation.
var ErrNotSupported = errors.New("operation not supported by this data source")

// New builds the source selected by cfg.Driver.
func New(cfg config.DataConfig) (Source, error) {
	switch cfg.Driver {
	case "", "csv":
		return NewCSVSource(cfg.Dir), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "parquet":
		return NewParquetSource(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("unknown data driver %q", cfg.Driver)
	}
}

// ReadFile reads bars from a standalone file: Parquet for a .parquet
// extension, CSV otherwise.
func ReadFile(ctx context.Context, path string, loc *time.Location) ([]models.OHLCV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bars []models.OHLCV
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		bars, err = ReadParquet(ctx, f, loc)
	} else {
		bars, err = ReadCSV(ctx, f, loc)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ── Timestamps ──

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp reads a bar timestamp. RFC 3339 values keep their offset
// and are converted to loc; zone-less values are taken as loc wall time.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// sortBars orders bars by time and drops exact duplicate timestamps,
// keeping the last one read.
func sortBars(bars []models.OHLCV) []models.OHLCV {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
