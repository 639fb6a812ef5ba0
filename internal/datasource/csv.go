package datasource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/pkg/models"
)

// CSVSource reads one <SYMBOL>.csv file per instrument from a directory.
//
// Files may carry a header naming the columns (timestamp or date, open,
// high, low, close, volume; extra columns are ignored). Headerless files are
// read positionally as timestamp, open, high, low, close, volume, with any
// trailing columns such as open interest ignored.
type CSVSource struct {
	dir string
}

// NewCSVSource creates a source over dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

// Name returns "csv".
func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) path(symbol string) string {
	return filepath.Join(s.dir, market.NormalizeSymbol(symbol)+".csv")
}

// Load reads every bar of symbol.
func (s *CSVSource) Load(ctx context.Context, symbol string, loc *time.Location) ([]models.OHLCV, error) {
	f, err := os.Open(s.path(symbol))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", market.NormalizeSymbol(symbol), ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", symbol, err)
	}
	defer f.Close()

	bars, err := ReadCSV(ctx, f, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	return bars, nil
}

// Symbols lists the .csv files in the directory.
func (s *CSVSource) Symbols(_ context.Context) ([]string, error) {
	return listSymbols(s.dir, ".csv")
}

// Write replaces symbol's file with bars, header included.
func (s *CSVSource) Write(_ context.Context, symbol string, bars []models.OHLCV) (int, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.Create(s.path(symbol))
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", symbol, err)
	}
	if err := WriteCSV(f, bars); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return len(bars), nil
}

// ════════════════════════════════════════════════════════════════════
// Reading and writing
// ════════════════════════════════════════════════════════════════════

type csvLayout struct {
	ts, open, high, low, close, volume int
}

var positional = csvLayout{ts: 0, open: 1, high: 2, low: 3, close: 4, volume: 5}

// ReadCSV parses bars from r. Rows come back sorted by time.
func ReadCSV(ctx context.Context, r io.Reader, loc *time.Location) ([]models.OHLCV, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	layout := positional
	var bars []models.OHLCV
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++
		if line == 1 && isHeader(rec) {
			if layout, err = headerLayout(rec); err != nil {
				return nil, err
			}
			continue
		}
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		bar, err := parseRecord(rec, layout, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, ErrEmpty
	}
	return sortBars(bars), nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := ParseTimestamp(rec[0], time.UTC)
	return err != nil
}

func headerLayout(rec []string) (csvLayout, error) {
	l := csvLayout{-1, -1, -1, -1, -1, -1}
	for i, name := range rec {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "timestamp", "datetime", "date", "time":
			if l.ts < 0 {
				l.ts = i
			}
		case "open", "o":
			l.open = i
		case "high", "h":
			l.high = i
		case "low", "l":
			l.low = i
		case "close", "c":
			l.close = i
		case "volume", "vol", "v":
			l.volume = i
		}
	}
	var missing []string
	for name, idx := range map[string]int{"timestamp": l.ts, "open": l.open, "high": l.high, "low": l.low, "close": l.close} {
		if idx < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return l, fmt.Errorf("csv header missing columns: %s", strings.Join(missing, ", "))
	}
	return l, nil
}

func parseRecord(rec []string, l csvLayout, loc *time.Location) (models.OHLCV, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	if len(rec) < 5 {
		return models.OHLCV{}, fmt.Errorf("want at least 5 fields, got %d", len(rec))
	}

	ts, err := ParseTimestamp(field(l.ts), loc)
	if err != nil {
		return models.OHLCV{}, err
	}
	bar := models.OHLCV{Timestamp: ts}
	for _, p := range []struct {
		name string
		idx  int
		dst  *float64
	}{
		{"open", l.open, &bar.Open},
		{"high", l.high, &bar.High},
		{"low", l.low, &bar.Low},
		{"close", l.close, &bar.Close},
	} {
		v, err := strconv.ParseFloat(field(p.idx), 64)
		if err != nil {
			return models.OHLCV{}, fmt.Errorf("invalid %s %q", p.name, field(p.idx))
		}
		*p.dst = v
	}
	if raw := field(l.volume); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.OHLCV{}, fmt.Errorf("invalid volume %q", raw)
		}
		bar.Volume = int64(v)
	}
	return bar, nil
}

// WriteCSV writes bars with a header row. Timestamps are written as wall
// time in their own location.
func WriteCSV(w io.Writer, bars []models.OHLCV) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Timestamp.Format("2006-01-02 15:04:05"),
			formatPrice(b.Open),
			formatPrice(b.High),
			formatPrice(b.Low),
			formatPrice(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// listSymbols returns the upper-cased base names of files in dir with ext.
func listSymbols(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, market.NormalizeSymbol(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))))
	}
	sort.Strings(out)
	return out, nil
}
