package backtest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/seenimoa/barb/internal/barbql"
	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/query"
	"github.com/seenimoa/barb/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Level
// ════════════════════════════════════════════════════════════════════

// Level is a distance from the entry price, either in price points or as
// a percentage of the entry price. In JSON a number means points and a
// string such as "2%" means percent.
type Level struct {
	Value   float64
	Percent bool
}

// Points returns a level of v price points.
func Points(v float64) *Level { return &Level{Value: v} }

// Percent returns a level of v percent of the entry price.
func Percent(v float64) *Level { return &Level{Value: v, Percent: true} }

// ParseLevel parses "12.5" (points) or "1.5%" (percent).
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	pct := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil {
		return Level{}, fmt.Errorf("invalid level %q: want points (20) or percent (\"2%%\")", s)
	}
	if v < 0 {
		return Level{}, fmt.Errorf("invalid level %q: must not be negative", s)
	}
	return Level{Value: v, Percent: pct}, nil
}

// Distance converts the level to price points for a position entered at entry.
func (l Level) Distance(entry float64) float64 {
	if l.Percent {
		return entry * l.Value / 100
	}
	return l.Value
}

func (l Level) String() string {
	v := strconv.FormatFloat(l.Value, 'f', -1, 64)
	if l.Percent {
		return v + "%"
	}
	return v
}

// UnmarshalJSON accepts a number or a string.
func (l *Level) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseLevel(s)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid level %s: want a number or a string like \"2%%\"", data)
	}
	if v < 0 {
		return fmt.Errorf("invalid level %s: must not be negative", data)
	}
	*l = Level{Value: v}
	return nil
}

// MarshalJSON writes points as a number and percentages as "x%".
func (l Level) MarshalJSON() ([]byte, error) {
	if l.Percent {
		return json.Marshal(l.String())
	}
	return json.Marshal(l.Value)
}

// MarshalYAML mirrors MarshalJSON.
func (l Level) MarshalYAML() (any, error) {
	if l.Percent {
		return l.String(), nil
	}
	return l.Value, nil
}

// ════════════════════════════════════════════════════════════════════
// Strategy
// ════════════════════════════════════════════════════════════════════

// Strategy describes one rule set. Entry is a boolean expression over the
// backtest bars; a true value on a bar opens a position at the next bar's
// open. ExitTarget is evaluated once at entry and fixes an absolute price.
// ExitBars and BreakevenBars are disabled when not positive. Slippage is
// in points per side, Commission in points per round trip.
type Strategy struct {
	Entry         string           `json:"entry"                    yaml:"entry"`
	Direction     models.Direction `json:"direction"                yaml:"direction"`
	ExitTarget    string           `json:"exit_target,omitempty"    yaml:"exit_target,omitempty"`
	StopLoss      *Level           `json:"stop_loss,omitempty"      yaml:"stop_loss,omitempty"`
	TakeProfit    *Level           `json:"take_profit,omitempty"    yaml:"take_profit,omitempty"`
	TrailingStop  *Level           `json:"trailing_stop,omitempty"  yaml:"trailing_stop,omitempty"`
	ExitBars      int              `json:"exit_bars,omitempty"      yaml:"exit_bars,omitempty"`
	BreakevenBars int              `json:"breakeven_bars,omitempty" yaml:"breakeven_bars,omitempty"`
	Slippage      float64          `json:"slippage,omitempty"       yaml:"slippage,omitempty"`
	Commission    float64          `json:"commission,omitempty"     yaml:"commission,omitempty"`
}

var strategyFields = map[string]bool{
	"entry": true, "direction": true, "exit_target": true, "stop_loss": true,
	"take_profit": true, "trailing_stop": true, "exit_bars": true,
	"breakeven_bars": true, "slippage": true, "commission": true,
}

// DecodeStrategy parses a strategy object, rejecting unknown fields by name.
func DecodeStrategy(data []byte) (Strategy, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return Strategy{}, invalid("", "strategy must be a JSON object")
	}
	var unknown []string
	for k := range raw {
		if !strategyFields[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Strategy{}, invalid("", "Unknown strategy fields: %s", strings.Join(unknown, ", "))
	}

	var s Strategy
	if err := json.Unmarshal(data, &s); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return Strategy{}, invalid("", "%s must be a %s", te.Field, te.Type.String())
		}
		return Strategy{}, invalid("", "%s", err.Error())
	}
	return s, nil
}

func (s Strategy) isLong() bool { return s.Direction == models.DirectionLong }

// Validate checks the strategy shape and both expressions without touching
// any data. Expression problems are reported together.
func (s Strategy) Validate(reg *functions.Registry) error {
	switch s.Direction {
	case models.DirectionLong, models.DirectionShort:
	default:
		return invalid(string(s.Direction), "Invalid direction '%s'. Must be 'long' or 'short'", s.Direction)
	}
	if strings.TrimSpace(s.Entry) == "" {
		return invalid("", "entry expression is required")
	}
	if s.Slippage < 0 || s.Commission < 0 {
		return invalid("", "slippage and commission must not be negative")
	}

	in := barbql.ValidateInput{Where: s.Entry}
	if s.ExitTarget != "" {
		in.Map = []barbql.Field{{Name: "exit_target", Value: s.ExitTarget}}
	}
	err := barbql.Validate(in, reg)
	var ve *barbql.ValidationError
	if errors.As(err, &ve) {
		for i := range ve.Findings {
			switch ve.Findings[i].Step {
			case "where":
				ve.Findings[i].Step = "entry"
			case "map":
				ve.Findings[i].Step = "exit_target"
			}
		}
		return query.AsError(ve)
	}
	return err
}

func invalid(expr, format string, args ...any) *query.Error {
	return &query.Error{
		Type:       query.TypeValidation,
		Step:       stepName,
		Expression: expr,
		Message:    fmt.Sprintf(format, args...),
	}
}
