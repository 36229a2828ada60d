package asfs

import "github.com/herlein/asfs/pkg/radio"

// cadTable holds the tuned CAD thresholds per spreading factor
var cadTable = map[radio.SpreadingFactor]radio.CadParams{
	radio.SF7:  {DetectMin: 10, DetectPeak: 22, SymbolCount: 2},
	radio.SF8:  {DetectMin: 10, DetectPeak: 22, SymbolCount: 2},
	radio.SF9:  {DetectMin: 10, DetectPeak: 23, SymbolCount: 4},
	radio.SF10: {DetectMin: 10, DetectPeak: 24, SymbolCount: 4},
	radio.SF11: {DetectMin: 10, DetectPeak: 25, SymbolCount: 4},
}

// Lookup returns the tuned detect-min, detect-peak and symbol count for sf.
// Only those three fields are set. ok is false for spreading factors without
// a table entry.
func Lookup(sf radio.SpreadingFactor) (params radio.CadParams, ok bool) {
	params, ok = cadTable[sf]
	return params, ok
}

// applyCadTable overwrites the thresholds in params with the table entry for
// sf, leaving exit mode and timeout alone
func applyCadTable(sf radio.SpreadingFactor, params *radio.CadParams) bool {
	entry, ok := Lookup(sf)
	if !ok {
		return false
	}
	params.DetectMin = entry.DetectMin
	params.DetectPeak = entry.DetectPeak
	params.SymbolCount = entry.SymbolCount
	return true
}

// optimizeCadParams tunes params for sf unless the caller supplied its own
func (s *Session) optimizeCadParams(sf radio.SpreadingFactor, params *radio.CadParams) {
	if s.cfg.UserCadParams {
		return
	}
	if !applyCadTable(sf, params) {
		s.log.Warn().
			Stringer("sf", sf).
			Msg("CAD may not function properly while using these radio parameters")
	}
}
