// Package asfs implements the adaptive spreading factor search: a receiver
// that cycles Channel Activity Detection across spreading factors until a
// transmitter of unknown SF is found, then opens receive windows.
package asfs

import (
	"time"

	"github.com/soypat/lora"

	"github.com/herlein/asfs/pkg/radio"
)

// Search policy
const (
	// MaxConsecutiveFailures is the number of undetected CADs tolerated
	// before the search restarts from SF7
	MaxConsecutiveFailures = 5
)

// Default receive parameters
const (
	// DefaultRxTimeout is the base length of a receive window
	DefaultRxTimeout = 600 * time.Millisecond

	// DefaultRxJitter bounds the random extension of each receive window
	DefaultRxJitter = 500 * time.Millisecond

	// DefaultPayloadCapacity is the receive buffer size (bytes)
	DefaultPayloadCapacity = 64

	// DefaultPreambleLength is the expected preamble (symbols)
	DefaultPreambleLength uint16 = 8
)

// Default CAD parameters
const (
	DefaultCadSymbols    uint8 = 2
	DefaultCadDetectPeak uint8 = 22
	DefaultCadDetectMin  uint8 = 10

	// DefaultCadSettleDelay is waited before every CAD start
	DefaultCadSettleDelay = 500 * time.Millisecond

	// DefaultCadTimeout bounds the RX window opened by a CAD_RX detection
	DefaultCadTimeout = 1000 * time.Millisecond
)

// Default modulation and boot settings
const (
	DefaultBandwidth  = lora.BW125k
	DefaultCodingRate = lora.CR4_5

	DefaultSpreadingFactor = radio.SF7
	DefaultExitMode        = radio.CadRx
)
