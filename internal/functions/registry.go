// Package functions is the registry of callable functions available to
// Barb expressions. Every function receives the table being evaluated as
// implicit context plus its evaluated positional arguments, so functions
// such as atr() or hour() can read OHLCV columns and the timestamp index
// without the caller passing them.
package functions

import (
	"sort"
	"strings"
	"time"

	"github.com/seenimoa/barb/internal/table"
)

// Func is the implementation of a registered function.
type Func func(t *table.Table, args []table.Value) (table.Value, error)

// Variadic marks a Spec without an upper argument bound.
const Variadic = -1

// Spec describes one registered function.
type Spec struct {
	Name        string `json:"name"`
	Signature   string `json:"signature"`
	Description string `json:"description"`
	Category    string `json:"category"`
	MinArgs     int    `json:"min_args"`
	MaxArgs     int    `json:"max_args"`
	Fn          Func   `json:"-"`
}

// accepts reports whether n arguments fit the signature.
func (s Spec) accepts(n int) bool {
	return n >= s.MinArgs && (s.MaxArgs == Variadic || n <= s.MaxArgs)
}

// Registry maps function names to their specs. A Registry is read-only
// after construction and safe for concurrent use.
type Registry struct {
	specs      map[string]Spec
	sessionGap time.Duration
}

// Option configures a builtin registry.
type Option func(*Registry)

// WithSessionGap sets the idle gap that starts a new session when a table
// carries no explicit session ids. Non-positive values keep the default.
func WithSessionGap(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sessionGap = d
		}
	}
}

// DefaultSessionGap is the fallback session boundary used by the session_*
// functions.
const DefaultSessionGap = 90 * time.Minute

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec), sessionGap: DefaultSessionGap}
}

// Builtin creates a registry holding every built-in function.
func Builtin(opts ...Option) *Registry {
	r := NewRegistry()
	for _, opt := range opts {
		opt(r)
	}

	registerCore(r)
	registerLag(r)
	registerWindow(r)
	registerCumulative(r)
	registerPattern(r)
	registerAggregate(r)
	registerTime(r)
	registerConvenience(r)
	registerOscillators(r)
	registerTrend(r)
	registerVolatility(r)
	registerVolume(r)
	registerSession(r)
	return r
}

// Register adds or replaces a function.
func (r *Registry) Register(s Spec) {
	r.specs[s.Name] = s
}

// registerGroup registers specs under one category.
func (r *Registry) registerGroup(category string, specs []Spec) {
	for _, s := range specs {
		s.Category = category
		r.Register(s)
	}
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available returns the sorted names joined for error messages.
func (r *Registry) Available() string {
	return strings.Join(r.Names(), ", ")
}

// Specs returns every spec ordered by category, then name.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Info is the public description of a function for catalogues.
type Info struct {
	Name           string `json:"name"            yaml:"name"`
	Category       string `json:"category"        yaml:"category"`
	Signature      string `json:"signature"       yaml:"signature"`
	Description    string `json:"description"     yaml:"description"`
	GroupAggregate bool   `json:"group_aggregate" yaml:"group_aggregate"`
}

// Catalogue describes every function, ordered like Specs.
func (r *Registry) Catalogue() []Info {
	specs := r.Specs()
	out := make([]Info, len(specs))
	for i, s := range specs {
		_, agg := GroupAggregate(s.Name)
		out[i] = Info{
			Name:           s.Name,
			Category:       s.Category,
			Signature:      s.Signature,
			Description:    s.Description,
			GroupAggregate: agg || s.Name == "count",
		}
	}
	return out
}

// Call invokes name with args after checking that it exists and that the
// argument count fits its signature.
func (r *Registry) Call(t *table.Table, name string, args []table.Value) (table.Value, error) {
	s, ok := r.specs[name]
	if !ok {
		return table.Value{}, &UnknownFunctionError{Name: name, Available: r.Available()}
	}
	if !s.accepts(len(args)) {
		return table.Value{}, &ArityError{Name: name, Got: len(args)}
	}
	return s.Fn(t, args)
}
