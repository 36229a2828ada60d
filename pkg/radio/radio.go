// Package radio defines the SX126x command contract consumed by the
// spreading factor search, together with the parameter types it exchanges.
package radio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/soypat/lora"
)

// SpreadingFactor is the LoRa spreading factor. Values are ordinal so that
// stepping is plain arithmetic.
type SpreadingFactor uint8

const (
	SF7  SpreadingFactor = 7
	SF8  SpreadingFactor = 8
	SF9  SpreadingFactor = 9
	SF10 SpreadingFactor = 10
	SF11 SpreadingFactor = 11
	SF12 SpreadingFactor = 12 // accepted, but CAD thresholds are not tuned for it
)

// Supported reports whether CAD thresholds exist for the spreading factor
func (sf SpreadingFactor) Supported() bool {
	return sf >= SF7 && sf <= SF11
}

// Valid reports whether the radio accepts the spreading factor at all
func (sf SpreadingFactor) Valid() bool {
	return sf >= SF7 && sf <= SF12
}

// Lora converts to the soypat/lora representation used for air time math
func (sf SpreadingFactor) Lora() lora.SpreadingFactor {
	return lora.SpreadingFactor(sf)
}

func (sf SpreadingFactor) String() string {
	if !sf.Valid() {
		return fmt.Sprintf("SF?(%d)", uint8(sf))
	}
	return fmt.Sprintf("SF%d", uint8(sf))
}

func (sf SpreadingFactor) MarshalText() ([]byte, error) {
	return []byte(sf.String()), nil
}

// UnmarshalText accepts "SF9" or "9"
func (sf *SpreadingFactor) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(strings.ToUpper(string(text)), "SF")
	n, err := strconv.Atoi(s)
	if err != nil || !SpreadingFactor(n).Valid() {
		return fmt.Errorf("invalid spreading factor %q", text)
	}
	*sf = SpreadingFactor(n)
	return nil
}

// CadExitMode selects what the radio does after a CAD completes
type CadExitMode uint8

const (
	CadOnly CadExitMode = 0x00 // back to standby
	CadRx   CadExitMode = 0x01 // go to RX on detection
	CadLBT  CadExitMode = 0x10 // listen before talk
)

func (m CadExitMode) String() string {
	switch m {
	case CadOnly:
		return "CAD_ONLY"
	case CadRx:
		return "CAD_RX"
	case CadLBT:
		return "CAD_LBT"
	default:
		return fmt.Sprintf("Unknown (0x%02X)", uint8(m))
	}
}

func (m CadExitMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *CadExitMode) UnmarshalText(text []byte) error {
	mode, err := ParseCadExitMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseCadExitMode accepts the names produced by CadExitMode.String
func ParseCadExitMode(s string) (CadExitMode, error) {
	switch s {
	case "CAD_ONLY", "cad_only", "only":
		return CadOnly, nil
	case "CAD_RX", "cad_rx", "rx":
		return CadRx, nil
	case "CAD_LBT", "cad_lbt", "lbt":
		return CadLBT, nil
	}
	return 0, fmt.Errorf("unknown CAD exit mode %q", s)
}

// CadParams holds the CAD configuration committed to the radio
type CadParams struct {
	SymbolCount uint8       // symbols sampled per CAD
	DetectPeak  uint8       // correlation peak threshold
	DetectMin   uint8       // minimum peak to noise ratio
	ExitMode    CadExitMode // behaviour after CAD done
	// TimeoutTicks bounds the RX window after a detection. Only meaningful
	// for CadRx and CadLBT.
	TimeoutTicks uint32
}

// ModulationParams holds the LoRa modulation committed to the radio
type ModulationParams struct {
	SF         SpreadingFactor
	Bandwidth  lora.Frequency
	CodingRate lora.CodingRate
	LDRO       bool // low data rate optimisation, left to the radio init
}
