package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol TEXT    NOT NULL,
	ts     TEXT    NOT NULL,
	open   REAL    NOT NULL,
	high   REAL    NOT NULL,
	low    REAL    NOT NULL,
	close  REAL    NOT NULL,
	volume INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, ts)
);`

// sqliteTime is the stored form of a timestamp: exchange wall time, so
// lexical order is time order within a symbol.
const sqliteTime = "2006-01-02 15:04:05"

// SQLiteSource keeps bars for every instrument in one SQLite table.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteSource, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// Name returns "sqlite".
func (s *SQLiteSource) Name() string { return "sqlite" }

// Load reads every bar of symbol in time order.
func (s *SQLiteSource) Load(ctx context.Context, symbol string, loc *time.Location) ([]models.OHLCV, error) {
	sym := market.NormalizeSymbol(symbol)
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, volume FROM bars WHERE symbol = ? ORDER BY ts`, sym)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", sym, err)
	}
	defer rows.Close()

	var bars []models.OHLCV
	for rows.Next() {
		var (
			ts  string
			bar models.OHLCV
		)
		if err := rows.Scan(&ts, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scan %s: %w", sym, err)
		}
		if bar.Timestamp, err = ParseTimestamp(ts, loc); err != nil {
			return nil, fmt.Errorf("%s: %w", sym, err)
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", sym, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", sym, ErrNotFound)
	}
	return bars, nil
}

// Symbols lists the distinct symbols stored.
func (s *SQLiteSource) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// Write upserts bars for symbol in a single transaction. Bars already
// stored at the same timestamp are replaced.
func (s *SQLiteSource) Write(ctx context.Context, symbol string, bars []models.OHLCV) (int, error) {
	sym := market.NormalizeSymbol(symbol)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, sym, b.Timestamp.Format(sqliteTime),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return 0, fmt.Errorf("insert %s %s: %w", sym, b.Timestamp.Format(sqliteTime), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(bars), nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
