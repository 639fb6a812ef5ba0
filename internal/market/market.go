// Package market holds the instrument registry: symbols, exchange
// timezones, tick sizes and the named trading sessions queries filter by.
package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Instrument describes one tradable symbol. Session bounds are HH:MM in
// the exchange's local time.
type Instrument struct {
	Symbol         string              `json:"symbol"          yaml:"symbol"          mapstructure:"symbol"`
	Name           string              `json:"name"            yaml:"name"            mapstructure:"name"`
	Exchange       string              `json:"exchange"        yaml:"exchange"        mapstructure:"exchange"`
	Timezone       string              `json:"timezone"        yaml:"timezone"        mapstructure:"timezone"`
	TickSize       float64             `json:"tick_size"       yaml:"tick_size"       mapstructure:"tick_size"`
	DefaultSession string              `json:"default_session" yaml:"default_session" mapstructure:"default_session"`
	Sessions       map[string][]string `json:"sessions"        yaml:"sessions"        mapstructure:"sessions"`
}

// DefaultSessionName is used when an instrument does not name one.
const DefaultSessionName = "RTH"

// Registry is an immutable symbol → instrument lookup built once at startup.
type Registry struct {
	instruments map[string]Instrument
	sessions    map[string]Sessions
	locations   map[string]*time.Location
}

// NewRegistry validates the instruments and indexes them by symbol.
func NewRegistry(instruments []Instrument) (*Registry, error) {
	r := &Registry{
		instruments: make(map[string]Instrument, len(instruments)),
		sessions:    make(map[string]Sessions, len(instruments)),
		locations:   make(map[string]*time.Location, len(instruments)),
	}
	for _, inst := range instruments {
		sym := NormalizeSymbol(inst.Symbol)
		if sym == "" {
			return nil, fmt.Errorf("instrument %q: empty symbol", inst.Name)
		}
		if _, dup := r.instruments[sym]; dup {
			return nil, fmt.Errorf("instrument %s: defined twice", sym)
		}
		sessions, err := parseSessions(inst.Sessions)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", sym, err)
		}
		inst.Symbol = sym
		if inst.DefaultSession == "" {
			inst.DefaultSession = DefaultSessionName
		}
		inst.DefaultSession = strings.ToUpper(inst.DefaultSession)

		r.instruments[sym] = inst
		r.sessions[sym] = sessions
		r.locations[sym] = loadLocation(inst.Timezone)
	}
	return r, nil
}

// MustDefault returns a registry over the built-in instrument set.
func MustDefault() *Registry {
	r, err := NewRegistry(DefaultInstruments())
	if err != nil {
		panic(err)
	}
	return r
}

// ValidateSessions checks that every session has well-formed [start, end] bounds.
func ValidateSessions(raw map[string][]string) error {
	_, err := parseSessions(raw)
	return err
}

func parseSessions(raw map[string][]string) (Sessions, error) {
	out := make(Sessions, len(raw))
	for name, bounds := range raw {
		if len(bounds) != 2 {
			return nil, fmt.Errorf("session %s: want [start, end], got %d values", name, len(bounds))
		}
		s, err := NewSession(name, bounds[0], bounds[1])
		if err != nil {
			return nil, err
		}
		out[s.Name] = s
	}
	return out, nil
}

// loadLocation resolves an IANA zone, falling back to UTC when the zone
// database is unavailable or the name is empty.
func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NormalizeSymbol upper-cases and trims a symbol and strips a leading '/'
// (the /ES futures convention).
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "/")
}

// Get returns the instrument for symbol.
func (r *Registry) Get(symbol string) (Instrument, bool) {
	inst, ok := r.instruments[NormalizeSymbol(symbol)]
	return inst, ok
}

// Sessions returns the named sessions of symbol.
func (r *Registry) Sessions(symbol string) (Sessions, bool) {
	s, ok := r.sessions[NormalizeSymbol(symbol)]
	return s, ok
}

// Location returns the exchange timezone of symbol, UTC when unknown.
func (r *Registry) Location(symbol string) *time.Location {
	if loc, ok := r.locations[NormalizeSymbol(symbol)]; ok {
		return loc
	}
	return time.UTC
}

// List returns every instrument sorted by symbol.
func (r *Registry) List() []Instrument {
	out := make([]Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns every registered symbol, sorted.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.instruments))
	for sym := range r.instruments {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
