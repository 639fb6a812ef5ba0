package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/seenimoa/barb/internal/query"
)

// Output formats.
const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatText = "text"
)

// render writes v as indented JSON or YAML. Text output is command
// specific and falls back to JSON here.
func render(w io.Writer, format string, v any) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// newTable returns a tabwriter for aligned column output.
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// writeRow writes cells as one tab-separated line.
func writeRow(tw *tabwriter.Writer, cells ...any) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = textValue(c)
	}
	fmt.Fprintln(tw, strings.Join(parts, "\t"))
}

// textValue formats one result cell for text output.
func textValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

// writeResponse prints a query result as text: the rows as an aligned
// table, or the scalar or named values one per line.
func writeResponse(w io.Writer, resp *query.Response) error {
	if rows, ok := resp.Result.([]query.Record); ok && len(rows) == 0 {
		fmt.Fprintln(w, "(no rows)")
	} else if len(resp.Table) > 0 {
		tw := newTable(w)
		keys := resp.Table[0].Keys()
		header := make([]any, len(keys))
		for i, k := range keys {
			header[i] = strings.ToUpper(k)
		}
		writeRow(tw, header...)
		for _, rec := range resp.Table {
			row := make([]any, len(keys))
			for i, k := range keys {
				row[i], _ = rec.Get(k)
			}
			writeRow(tw, row...)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	} else if rec, ok := resp.Result.(query.Record); ok {
		tw := newTable(w)
		for _, k := range rec.Keys() {
			v, _ := rec.Get(k)
			writeRow(tw, k+":", v)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, textValue(resp.Result))
	}

	for _, warning := range resp.Metadata.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}
