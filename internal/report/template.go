package report

// backtestTemplate is the HTML page for one backtest. Charts arrive as
// pre-rendered SVG.
const backtestTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
  :root {
    --bg: #ffffff;
    --text: #1a1a2e;
    --muted: #6b7280;
    --border: #e5e7eb;
    --accent: #2563eb;
    --green: #16a34a;
    --red: #dc2626;
    --section-bg: #f8fafc;
  }
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    color: var(--text);
    background: var(--bg);
    line-height: 1.6;
    max-width: 900px;
    margin: 0 auto;
    padding: 20px;
  }
  h1 { font-size: 1.5rem; color: var(--accent); margin-bottom: 4px; }
  h2 { font-size: 1.2rem; margin: 24px 0 12px; padding-bottom: 6px; border-bottom: 2px solid var(--accent); }
  .muted { color: var(--muted); font-size: 0.85rem; }
  .header { border-bottom: 3px solid var(--accent); padding-bottom: 12px; margin-bottom: 16px; }
  .badge {
    display: inline-block;
    background: var(--accent);
    color: white;
    padding: 2px 12px;
    border-radius: 4px;
    font-weight: 700;
    margin-right: 8px;
  }
  .stats {
    display: grid;
    grid-template-columns: repeat(auto-fill, minmax(150px, 1fr));
    gap: 8px;
    background: var(--section-bg);
    padding: 12px;
    border-radius: 8px;
  }
  .stat { text-align: center; }
  .stat .label { font-size: 0.75rem; color: var(--muted); text-transform: uppercase; }
  .stat .value { font-size: 1rem; font-weight: 600; }
  .positive { color: var(--green); }
  .negative { color: var(--red); }
  pre { background: var(--section-bg); padding: 12px; border-radius: 6px; font-size: 0.85rem; white-space: pre-wrap; }
  table { width: 100%; border-collapse: collapse; margin: 8px 0 16px; font-size: 0.9rem; }
  th { background: var(--section-bg); text-align: left; padding: 6px 8px; font-weight: 600; }
  td { padding: 6px 8px; border-bottom: 1px solid var(--border); }
  td.num, th.num { text-align: right; font-variant-numeric: tabular-nums; }
  .chart { margin: 12px 0; overflow-x: auto; }
  footer { margin-top: 32px; font-size: 0.75rem; color: var(--muted); }
</style>
</head>
<body>

<div class="header">
  <h1>{{.Title}}</h1>
  <span class="badge">{{.Symbol}}</span>
  <span class="muted">{{.Timeframe}} bars · run {{.RunID}} · generated {{.GeneratedAt}}</span>
</div>

<h2>Strategy</h2>
<table>
{{- range .Rules}}
  <tr><th>{{.Name}}</th><td><code>{{.Value}}</code></td></tr>
{{- end}}
</table>

<h2>Performance</h2>
<div class="stats">
{{- range .Stats}}
  <div class="stat"><div class="label">{{.Label}}</div><div class="value {{.Class}}">{{.Value}}</div></div>
{{- end}}
</div>
<pre>{{.Summary}}</pre>

<div class="chart">{{.EquityChart}}</div>
{{- if .ByYear}}
<div class="chart">{{.YearChart}}</div>
{{- end}}
{{- if .ByExit}}
<div class="chart">{{.ExitChart}}</div>

<h2>Exits</h2>
<table>
  <tr><th>Reason</th><th class="num">Trades</th><th class="num">Wins</th><th class="num">Losses</th><th class="num">P&amp;L</th></tr>
{{- range .ByExit}}
  <tr><td>{{.Key}}</td><td class="num">{{.Trades}}</td><td class="num">{{.Wins}}</td><td class="num">{{.Losses}}</td><td class="num">{{points .PnL}}</td></tr>
{{- end}}
</table>
{{- end}}

<h2>Trades</h2>
{{- if .Trades}}
<table>
  <tr><th>#</th><th>Entry</th><th class="num">Price</th><th>Exit</th><th class="num">Price</th><th>Side</th><th>Reason</th><th class="num">Bars</th><th class="num">P&amp;L</th></tr>
{{- range .Trades}}
  <tr><td>{{.N}}</td><td>{{.Entry}}</td><td class="num">{{.EntryPrice}}</td><td>{{.Exit}}</td><td class="num">{{.ExitPrice}}</td><td>{{.Direction}}</td><td>{{.Reason}}</td><td class="num">{{.Bars}}</td><td class="num {{.Class}}">{{.PnL}}</td></tr>
{{- end}}
</table>
{{- if .Omitted}}
<p class="muted">{{.Omitted}} earlier trades omitted.</p>
{{- end}}
{{- else}}
<p class="muted">Entry condition never triggered in this period.</p>
{{- end}}

<footer>Generated by Barb {{.Version}}</footer>
</body>
</html>
`
