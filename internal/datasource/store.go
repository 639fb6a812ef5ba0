package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/seenimoa/barb/internal/infra"
	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/internal/table"
	"github.com/seenimoa/barb/pkg/models"
)

// Store serves each instrument's bars as an immutable table, reading the
// source at most once per cache lifetime.
type Store struct {
	src   Source
	reg   *market.Registry
	cache *infra.Cache[*table.Table]
	group singleflight.Group
	log   logrus.FieldLogger

	// MaxRows keeps only the most recent rows of a loaded instrument; 0 keeps all.
	MaxRows int
}

// NewStore creates a store over src. A ttl of 0 keeps tables until
// Invalidate is called.
func NewStore(src Source, reg *market.Registry, ttl time.Duration, log logrus.FieldLogger) *Store {
	if reg == nil {
		reg = market.MustDefault()
	}
	if log == nil {
		log = infra.Discard()
	}
	return &Store{
		src:   src,
		reg:   reg,
		cache: infra.NewCache[*table.Table](ttl),
		log:   log,
	}
}

// Source returns the underlying source.
func (s *Store) Source() Source { return s.src }

// Registry returns the instrument registry.
func (s *Store) Registry() *market.Registry { return s.reg }

// Load returns symbol's bars. Concurrent first loads of the same symbol
// share one read.
func (s *Store) Load(ctx context.Context, symbol string) (*table.Table, error) {
	sym := market.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("empty symbol: %w", ErrNotFound)
	}
	if t, ok := s.cache.Get(sym); ok {
		return t, nil
	}

	v, err, shared := s.group.Do(sym, func() (any, error) {
		if t, ok := s.cache.Get(sym); ok {
			return t, nil
		}
		start := time.Now()
		bars, err := s.src.Load(ctx, sym, s.reg.Location(sym))
		if err != nil {
			return nil, err
		}
		bars = sortBars(bars)
		if s.MaxRows > 0 && len(bars) > s.MaxRows {
			bars = bars[len(bars)-s.MaxRows:]
		}
		t := table.FromBars(bars)
		s.cache.Set(sym, t)
		s.log.WithFields(logrus.Fields{
			"symbol":  sym,
			"source":  s.src.Name(),
			"rows":    t.Len(),
			"elapsed": time.Since(start).String(),
		}).Info("Loaded instrument")
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.WithField("symbol", sym).Debug("Shared in-flight load")
	}
	return v.(*table.Table), nil
}

// Preload loads several instruments concurrently. Missing instruments are
// logged and skipped; any other failure cancels the rest.
func (s *Store) Preload(ctx context.Context, symbols []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sym := range symbols {
		g.Go(func() error {
			_, err := s.Load(gctx, sym)
			if errors.Is(err, ErrNotFound) {
				s.log.WithField("symbol", sym).Warn("No data to preload")
				return nil
			}
			if err != nil {
				return fmt.Errorf("preload %s: %w", sym, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Import writes bars for symbol through the source and drops any cached
// table for it.
func (s *Store) Import(ctx context.Context, symbol string, bars []models.OHLCV) (int, error) {
	w, ok := s.src.(Writer)
	if !ok {
		return 0, fmt.Errorf("import into %s: %w", s.src.Name(), ErrNotSupported)
	}
	sym := market.NormalizeSymbol(symbol)
	n, err := w.Write(ctx, sym, sortBars(bars))
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", sym, err)
	}
	s.cache.Invalidate(sym)
	s.log.WithFields(logrus.Fields{"symbol": sym, "rows": n}).Info("Imported bars")
	return n, nil
}

// Invalidate drops symbol's cached table.
func (s *Store) Invalidate(symbol string) {
	s.cache.Invalidate(market.NormalizeSymbol(symbol))
}

// Close releases the source when it holds resources.
func (s *Store) Close() error {
	if c, ok := s.src.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
