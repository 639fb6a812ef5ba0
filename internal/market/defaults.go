package market

// CME Globex hours in US/Eastern. The trading day is the ETH session,
// which opens the evening before.
var (
	equityIndexSessions = map[string][]string{
		"RTH": {"09:30", "16:15"},
		"ETH": {"18:00", "17:00"},
	}
	energySessions = map[string][]string{
		"RTH": {"09:00", "14:30"},
		"ETH": {"18:00", "17:00"},
	}
	metalSessions = map[string][]string{
		"RTH": {"08:20", "13:30"},
		"ETH": {"18:00", "17:00"},
	}
)

// DefaultInstruments is the built-in instrument set used when configuration
// does not list any.
func DefaultInstruments() []Instrument {
	const ny = "America/New_York"
	return []Instrument{
		{Symbol: "ES", Name: "E-mini S&P 500", Exchange: "CME", Timezone: ny, TickSize: 0.25, Sessions: equityIndexSessions},
		{Symbol: "NQ", Name: "E-mini Nasdaq-100", Exchange: "CME", Timezone: ny, TickSize: 0.25, Sessions: equityIndexSessions},
		{Symbol: "YM", Name: "E-mini Dow", Exchange: "CBOT", Timezone: ny, TickSize: 1, Sessions: equityIndexSessions},
		{Symbol: "RTY", Name: "E-mini Russell 2000", Exchange: "CME", Timezone: ny, TickSize: 0.1, Sessions: equityIndexSessions},
		{Symbol: "CL", Name: "Crude Oil", Exchange: "NYMEX", Timezone: ny, TickSize: 0.01, Sessions: energySessions},
		{Symbol: "GC", Name: "Gold", Exchange: "COMEX", Timezone: ny, TickSize: 0.1, Sessions: metalSessions},
	}
}
