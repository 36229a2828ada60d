package asfs

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/soypat/lora"

	"github.com/herlein/asfs/pkg/radio"
)

// InitFunc (re)initialises a session. The default is (*Session).InitSession;
// integrators may replace it to add their own bring-up around it.
type InitFunc func(s *Session, sf radio.SpreadingFactor, mode radio.CadExitMode) error

// Config defines the session parameters fixed at construction
type Config struct {
	// Receive windows
	RxTimeout       time.Duration // base RX window
	RxJitter        time.Duration // random extension, drawn from [0, RxJitter)
	PayloadCapacity int           // receive buffer size (bytes)

	// CAD parameters. With UserCadParams unset these are only the base values,
	// overridden per SF from the CAD table.
	CadSymbols     uint8
	CadDetectPeak  uint8
	CadDetectMin   uint8
	CadSettleDelay time.Duration // wait before every CAD start
	CadTimeout     time.Duration // RX window after a CAD_RX detection
	UserCadParams  bool          // keep the values above verbatim

	// Modulation (fixed for the session, only SF changes)
	Bandwidth      lora.Frequency
	CodingRate     lora.CodingRate
	PreambleLength uint16
	CRC            bool
	ImplicitHeader bool

	// Interrupt sources enabled at Start
	IRQMask radio.IRQMask

	// Logger receives session diagnostics
	Logger zerolog.Logger

	// Optional hooks (nil selects the default)
	Sleep    func(time.Duration) // settle delay implementation
	Rand     *rand.Rand          // jitter source
	Init     InitFunc            // boot initialiser
	OnPacket func(Packet)        // called for every received frame, must not block
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		RxTimeout:       DefaultRxTimeout,
		RxJitter:        DefaultRxJitter,
		PayloadCapacity: DefaultPayloadCapacity,
		CadSymbols:      DefaultCadSymbols,
		CadDetectPeak:   DefaultCadDetectPeak,
		CadDetectMin:    DefaultCadDetectMin,
		CadSettleDelay:  DefaultCadSettleDelay,
		CadTimeout:      DefaultCadTimeout,
		Bandwidth:       DefaultBandwidth,
		CodingRate:      DefaultCodingRate,
		PreambleLength:  DefaultPreambleLength,
		CRC:             true,
		IRQMask:         radio.DefaultIRQMask,
		Logger:          log.Logger,
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.PayloadCapacity < 1 || c.PayloadCapacity > 255 {
		return fmt.Errorf("%w: payload capacity %d outside 1-255", ErrInvalidConfig, c.PayloadCapacity)
	}

	switch c.CadSymbols {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("%w: CAD symbol count %d not in {1,2,4,8,16}", ErrInvalidConfig, c.CadSymbols)
	}

	if c.RxTimeout <= 0 {
		return fmt.Errorf("%w: RX timeout must be positive", ErrInvalidConfig)
	}

	if c.RxJitter < 0 || c.CadSettleDelay < 0 || c.CadTimeout < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}

	if c.Bandwidth <= 0 {
		return fmt.Errorf("%w: bandwidth must be positive", ErrInvalidConfig)
	}

	if c.CodingRate < lora.CR4_5 || c.CodingRate > lora.CR4_8 {
		return fmt.Errorf("%w: coding rate %d outside 4/5-4/8", ErrInvalidConfig, c.CodingRate)
	}

	return nil
}

// ms converts a duration to the millisecond units the radio driver expects
func ms(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Millisecond)
}
