// Package report renders backtest results as a standalone HTML page with
// inline SVG charts: the equity curve with its drawdown, P&L by year and
// P&L by exit reason, followed by the trade log.
package report

import (
	"fmt"
	"math"
	"strings"
)

// ════════════════════════════════════════════════════════════════════
// SVG Charts
// ════════════════════════════════════════════════════════════════════

// ChartConfig holds rendering parameters for SVG charts.
type ChartConfig struct {
	Width        int    // SVG width in pixels (default: 800)
	Height       int    // SVG height in pixels (default: 320)
	MarginTop    int    // top margin (default: 40)
	MarginRight  int    // right margin (default: 30)
	MarginBottom int    // bottom margin (default: 40)
	MarginLeft   int    // left margin (default: 70)
	BgColor      string // background color (default: "#ffffff")
	GridColor    string // grid line color (default: "#e8e8e8")
	TextColor    string // axis label color (default: "#333333")
	FontSize     int    // axis label font size (default: 11)
	Title        string // chart title
}

// DefaultChartConfig returns the defaults for chart rendering.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:        800,
		Height:       320,
		MarginTop:    40,
		MarginRight:  30,
		MarginBottom: 40,
		MarginLeft:   70,
		BgColor:      "#ffffff",
		GridColor:    "#e8e8e8",
		TextColor:    "#333333",
		FontSize:     11,
	}
}

func (c ChartConfig) plotArea() (x, y, w, h int) {
	return c.MarginLeft, c.MarginTop,
		c.Width - c.MarginLeft - c.MarginRight,
		c.Height - c.MarginTop - c.MarginBottom
}

const (
	colorEquity   = "#2563eb"
	colorDrawdown = "#dc2626"
	colorGain     = "#16a34a"
	colorLoss     = "#ef5350"
)

// ── Line chart ──

// Series is a named line.
type Series struct {
	Name   string
	Values []float64
	Color  string
}

// EquityChart plots cumulative P&L after each trade together with the
// drawdown from the running peak. Labels name the x positions, usually
// the exit dates.
func EquityChart(curve []float64, labels []string, cfg ChartConfig) string {
	if cfg.Title == "" {
		cfg.Title = "Equity (points)"
	}
	drawdown := make([]float64, len(curve))
	peak := 0.0
	for i, v := range curve {
		peak = math.Max(peak, v)
		drawdown[i] = v - peak
	}
	return LineChart([]Series{
		{Name: "Equity", Values: curve, Color: colorEquity},
		{Name: "Drawdown", Values: drawdown, Color: colorDrawdown},
	}, labels, cfg)
}

// LineChart draws one or more series over a shared y axis. NaN values
// leave gaps. A zero line is drawn when the range spans zero.
func LineChart(series []Series, labels []string, cfg ChartConfig) string {
	if cfg.Width == 0 {
		title := cfg.Title
		cfg = DefaultChartConfig()
		cfg.Title = title
	}

	minVal, maxVal := math.Inf(1), math.Inf(-1)
	points := 0
	for _, s := range series {
		points = max(points, len(s.Values))
		for _, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	if points == 0 || math.IsInf(minVal, 1) {
		return emptySVG(cfg, "No trades")
	}

	vRange := maxVal - minVal
	if vRange < 1e-9 {
		vRange = 1
	}
	minVal -= vRange * 0.05
	maxVal += vRange * 0.05
	vRange = maxVal - minVal

	px, py, pw, ph := cfg.plotArea()
	xAt := func(i int) float64 {
		if points == 1 {
			return float64(px) + float64(pw)/2
		}
		return float64(px) + float64(i)*float64(pw)/float64(points-1)
	}
	yAt := func(v float64) float64 {
		return float64(py+ph) - (v-minVal)/vRange*float64(ph)
	}

	var sb strings.Builder
	sb.WriteString(svgHeader(cfg))
	writeFrame(&sb, cfg)

	const gridLines = 5
	for i := 0; i <= gridLines; i++ {
		val := minVal + vRange*float64(i)/gridLines
		y := yAt(val)
		fmt.Fprintf(&sb, `<line x1="%d" y1="%.1f" x2="%d" y2="%.1f" stroke="%s" stroke-dasharray="3,3"/>`,
			px, y, px+pw, y, cfg.GridColor)
		fmt.Fprintf(&sb, `<text x="%d" y="%.1f" font-size="%d" fill="%s" text-anchor="end">%.1f</text>`,
			px-5, y+4, cfg.FontSize, cfg.TextColor, val)
	}
	if minVal < 0 && maxVal > 0 {
		y := yAt(0)
		fmt.Fprintf(&sb, `<line x1="%d" y1="%.1f" x2="%d" y2="%.1f" stroke="#999" stroke-width="1"/>`,
			px, y, px+pw, y)
	}

	for si, s := range series {
		var (
			path   []string
			lx, ly float64
		)
		for i, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			cmd := "L"
			if len(path) == 0 {
				cmd = "M"
			}
			lx, ly = xAt(i), yAt(v)
			path = append(path, fmt.Sprintf("%s%.1f,%.1f", cmd, lx, ly))
		}
		switch {
		case len(path) > 1:
			fmt.Fprintf(&sb, `<path d="%s" fill="none" stroke="%s" stroke-width="2"/>`,
				strings.Join(path, " "), s.Color)
		case len(path) == 1:
			fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>`, lx, ly, s.Color)
		}

		legendY := py + 10 + si*16
		fmt.Fprintf(&sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2"/>`,
			px+10, legendY, px+30, legendY, s.Color)
		fmt.Fprintf(&sb, `<text x="%d" y="%d" font-size="10" fill="%s">%s</text>`,
			px+35, legendY+4, cfg.TextColor, escapeXML(s.Name))
	}

	if len(labels) > 0 {
		step := max(1, points/6)
		for i := 0; i < len(labels) && i < points; i += step {
			fmt.Fprintf(&sb, `<text x="%.1f" y="%d" font-size="%d" fill="%s" text-anchor="middle">%s</text>`,
				xAt(i), py+ph+18, cfg.FontSize-1, cfg.TextColor, escapeXML(labels[i]))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// ── Bar chart ──

// BarItem is one bar of a horizontal bar chart.
type BarItem struct {
	Label string
	Value float64
}

// BarChart draws horizontal bars from a zero axis, green for gains and
// red for losses.
func BarChart(items []BarItem, cfg ChartConfig) string {
	if cfg.Width == 0 {
		title := cfg.Title
		cfg = DefaultChartConfig()
		cfg.Title = title
	}
	if len(items) == 0 {
		return emptySVG(cfg, "No trades")
	}
	cfg.MarginLeft = 120
	cfg.Height = max(120, cfg.MarginTop+cfg.MarginBottom+len(items)*28)

	px, py, pw, ph := cfg.plotArea()
	minVal, maxVal := 0.0, 0.0
	for _, item := range items {
		minVal = math.Min(minVal, item.Value)
		maxVal = math.Max(maxVal, item.Value)
	}
	valRange := maxVal - minVal
	if valRange < 1e-9 {
		valRange = 1
	}
	// Leave room for the value text right of the longest bar.
	scale := float64(pw) * 0.85 / valRange
	zeroX := float64(px) - minVal*scale

	barH := math.Min(22, float64(ph)/float64(len(items))*0.7)
	gap := (float64(ph) - barH*float64(len(items))) / float64(len(items)+1)

	var sb strings.Builder
	sb.WriteString(svgHeader(cfg))
	writeFrame(&sb, cfg)
	fmt.Fprintf(&sb, `<line x1="%.1f" y1="%d" x2="%.1f" y2="%d" stroke="#999" stroke-width="1"/>`,
		zeroX, py, zeroX, py+ph)

	for i, item := range items {
		by := float64(py) + gap + float64(i)*(barH+gap)
		bw := math.Abs(item.Value) * scale
		bx, color := zeroX, colorGain
		if item.Value < 0 {
			bx, color = zeroX-bw, colorLoss
		}
		fmt.Fprintf(&sb, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" rx="2"/>`,
			bx, by, bw, barH, color)
		fmt.Fprintf(&sb, `<text x="%d" y="%.1f" font-size="%d" fill="%s" text-anchor="end">%s</text>`,
			px-5, by+barH/2+4, cfg.FontSize, cfg.TextColor, escapeXML(item.Label))
		fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" font-size="%d" fill="%s">%+.1f</text>`,
			math.Max(bx+bw, zeroX)+5, by+barH/2+4, cfg.FontSize, cfg.TextColor, item.Value)
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// ── SVG helpers ──

func svgHeader(cfg ChartConfig) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="sans-serif">`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height)
}

func writeFrame(sb *strings.Builder, cfg ChartConfig) {
	fmt.Fprintf(sb, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, cfg.Width, cfg.Height, cfg.BgColor)
	fmt.Fprintf(sb, `<text x="%d" y="20" font-size="14" font-weight="bold" fill="%s" text-anchor="middle">%s</text>`,
		cfg.Width/2, cfg.TextColor, escapeXML(cfg.Title))
}

func emptySVG(cfg ChartConfig, msg string) string {
	if cfg.Width == 0 {
		cfg.Width = 400
	}
	if cfg.Height == 0 {
		cfg.Height = 200
	}
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="%d" height="%d" fill="#f5f5f5"/><text x="%d" y="%d" text-anchor="middle" fill="#999" font-size="14">%s</text></svg>`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height, cfg.Width/2, cfg.Height/2, escapeXML(msg))
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escapeXML(s string) string { return xmlEscaper.Replace(s) }
