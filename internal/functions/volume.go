package functions

import (
	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

func registerVolume(r *Registry) {
	r.registerGroup("volume", []Spec{
		{Name: "obv", Signature: "obv()", Description: "On Balance Volume", MinArgs: 0, MaxArgs: 0, Fn: fnOBV},
		{Name: "vwap_day", Signature: "vwap_day()", Description: "VWAP resetting each calendar day", MinArgs: 0, MaxArgs: 0, Fn: fnVWAPDay},
		{Name: "ad_line", Signature: "ad_line()", Description: "Accumulation/Distribution line", MinArgs: 0, MaxArgs: 0, Fn: fnADLine},
		{Name: "volume_ratio", Signature: "volume_ratio(n=20)", Description: "volume / SMA(volume, n), above 2 is a spike", MinArgs: 0, MaxArgs: 1, Fn: fnVolumeRatio},
		{Name: "volume_sma", Signature: "volume_sma(n=20)", Description: "moving average of volume", MinArgs: 0, MaxArgs: 1, Fn: fnVolumeSMA},
	})
}

func fnOBV(t *table.Table, _ []table.Value) (table.Value, error) {
	cols, err := columns("obv", t, table.ColClose, table.ColVolume)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.OBV(cols[0], cols[1])), nil
}

func fnVWAPDay(t *table.Table, _ []table.Value) (table.Value, error) {
	if !t.HasIndex() {
		return table.Value{}, argTypeErrorf("vwap_day", "requires a timestamp index")
	}
	cols, err := columns("vwap_day", t, table.ColHigh, table.ColLow, table.ColClose, table.ColVolume)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.VWAPDaily(t.Index(), cols[0], cols[1], cols[2], cols[3])), nil
}

func fnADLine(t *table.Table, _ []table.Value) (table.Value, error) {
	cols, err := columns("ad_line", t, table.ColHigh, table.ColLow, table.ColClose, table.ColVolume)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.ADLine(cols[0], cols[1], cols[2], cols[3])), nil
}

func fnVolumeRatio(t *table.Table, args []table.Value) (table.Value, error) {
	n, err := window("volume_ratio", args, 0, 20, "n")
	if err != nil {
		return table.Value{}, err
	}
	cols, err := columns("volume_ratio", t, table.ColVolume)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.Div(cols[0], technical.SMA(cols[0], n))), nil
}

func fnVolumeSMA(t *table.Table, args []table.Value) (table.Value, error) {
	n, err := window("volume_sma", args, 0, 20, "n")
	if err != nil {
		return table.Value{}, err
	}
	cols, err := columns("volume_sma", t, table.ColVolume)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.SMA(cols[0], n)), nil
}
