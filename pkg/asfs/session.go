package asfs

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/herlein/asfs/pkg/radio"
)

// State is the receive state of a session
type State uint8

const (
	StateAwaitingCAD State = iota // CAD commanded, waiting for CAD done
	StateRxArmed                  // preamble found under CAD_RX, radio went to RX
	StateReceiving                // receive window re-armed after a frame
)

func (s State) String() string {
	switch s {
	case StateAwaitingCAD:
		return "AwaitingCAD"
	case StateRxArmed:
		return "RxArmed"
	case StateReceiving:
		return "Receiving"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stats counts session activity since construction
type Stats struct {
	CadAttempts        uint64 `json:"cad_attempts"`
	Detections         uint64 `json:"detections"`
	Undetected         uint64 `json:"undetected"`
	PreambleDetections uint64 `json:"preamble_detections"`
	PreambleTimeouts   uint64 `json:"preamble_timeouts"`
	Packets            uint64 `json:"packets"`
	RxErrors           uint64 `json:"rx_errors"`
	SFResets           uint64 `json:"sf_resets"`
}

type exitHandler func(s *Session) error

// Session owns all search state for one radio. Every handler runs under a
// single mutex, so handlers never interleave: the read-modify-write of SF and
// failure count is atomic with respect to every other event.
type Session struct {
	mu sync.Mutex

	id     uuid.UUID
	driver radio.Driver
	cfg    Config
	log    zerolog.Logger
	sleep  func(time.Duration)
	rng    *rand.Rand

	sf         radio.SpreadingFactor
	failures   uint
	mode       radio.CadExitMode
	state      State
	modulation radio.ModulationParams
	cad        radio.CadParams

	buffer     []byte
	length     int
	lastPacket *Packet

	stats        Stats
	exitHandlers map[radio.CadExitMode]exitHandler
}

// NewSession creates a session on driver. A nil config selects DefaultConfig.
// No radio command is issued until Start or InitSession.
func NewSession(driver radio.Driver, config *Config) (*Session, error) {
	if driver == nil {
		return nil, ErrNilDriver
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.New(),
		driver: driver,
		cfg:    *config,
		sleep:  config.Sleep,
		rng:    config.Rand,
		sf:     DefaultSpreadingFactor,
		mode:   DefaultExitMode,
		buffer: make([]byte, config.PayloadCapacity),
		exitHandlers: map[radio.CadExitMode]exitHandler{
			radio.CadOnly: (*Session).restartCad,
			radio.CadRx:   (*Session).armReceive,
			radio.CadLBT:  (*Session).restartCad,
		},
	}

	if s.sleep == nil {
		s.sleep = time.Sleep
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.cfg.Init == nil {
		s.cfg.Init = (*Session).InitSession
	}

	s.log = config.Logger.With().Str("session", s.id.String()).Logger()
	return s, nil
}

// ID returns the session identifier used in logs and forwarded packets
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Start is the boot entry point: it enables the interrupt sources, clears
// anything pending and runs the configured initialiser.
func (s *Session) Start(sf radio.SpreadingFactor, mode radio.CadExitMode) error {
	s.mu.Lock()
	s.driver.ConfigureInterruptSources(s.cfg.IRQMask)
	s.driver.ClearPendingInterrupts()
	s.mu.Unlock()

	return s.cfg.Init(s, sf, mode)
}

// InitSession reprograms the radio for sf and mode and starts a CAD after the
// settle delay. The failure count is reset. Calling it twice with the same
// arguments commits identical parameters.
func (s *Session) InitSession(sf radio.SpreadingFactor, mode radio.CadExitMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initSession(sf, mode)
}

func (s *Session) initSession(sf radio.SpreadingFactor, mode radio.CadExitMode) error {
	if !sf.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidSpreadingFactor, sf)
	}
	s.failures = 0
	return s.reconfigure(sf, mode)
}

// reconfigure commits modulation and CAD parameters for sf and starts CAD.
// The failure count is left to the caller.
func (s *Session) reconfigure(sf radio.SpreadingFactor, mode radio.CadExitMode) error {
	s.sf = sf
	s.modulation = radio.ModulationParams{
		SF:         sf,
		Bandwidth:  s.cfg.Bandwidth,
		CodingRate: s.cfg.CodingRate,
		LDRO:       false,
	}

	s.mode = mode
	s.cad = radio.CadParams{
		SymbolCount: s.cfg.CadSymbols,
		DetectPeak:  s.cfg.CadDetectPeak,
		DetectMin:   s.cfg.CadDetectMin,
		ExitMode:    mode,
	}

	if err := check("ApplyModulationParams", s.driver.ApplyModulationParams(s.modulation)); err != nil {
		return err
	}

	s.optimizeCadParams(sf, &s.cad)

	if s.cad.ExitMode == radio.CadRx {
		s.cad.TimeoutTicks = s.driver.ConvertMillisecondsToTicks(ms(s.cfg.CadTimeout))
	}

	if err := check("ApplyCadParams", s.driver.ApplyCadParams(s.cad)); err != nil {
		return err
	}

	s.log.Debug().
		Stringer("sf", s.sf).
		Uint("failures", s.failures).
		Stringer("mode", s.mode).
		Uint8("detect_peak", s.cad.DetectPeak).
		Uint8("detect_min", s.cad.DetectMin).
		Uint8("symbols", s.cad.SymbolCount).
		Msg("session configured")

	return s.startCadAfterDelay()
}

// startCadAfterDelay waits the settle delay and commands a CAD
func (s *Session) startCadAfterDelay() error {
	s.sleep(s.cfg.CadSettleDelay)
	return s.startCad()
}

func (s *Session) startCad() error {
	if err := check("StartCad", s.driver.StartCad()); err != nil {
		return err
	}
	s.stats.CadAttempts++
	s.setState(StateAwaitingCAD)
	return nil
}

func (s *Session) setState(next State) {
	if s.state != next {
		s.log.Debug().
			Stringer("from", s.state).
			Stringer("to", next).
			Stringer("sf", s.sf).
			Msg("state change")
	}
	s.state = next
}

// onCadDoneDetected hands the detection to the handler of the exit mode
func (s *Session) onCadDoneDetected() error {
	s.stats.Detections++

	handler, ok := s.exitHandlers[s.cad.ExitMode]
	if !ok {
		s.log.Error().
			Uint8("mode", uint8(s.cad.ExitMode)).
			Msgf("Unknown CAD exit mode: 0x%02x", uint8(s.cad.ExitMode))
		return nil
	}
	return handler(s)
}

// restartCad serves CAD_ONLY and CAD_LBT: detection only, search again
func (s *Session) restartCad() error {
	return s.startCadAfterDelay()
}

// armReceive serves CAD_RX: the radio is already listening, prepare for RX
func (s *Session) armReceive() error {
	s.driver.PreReceiveHousekeeping()
	s.setState(StateRxArmed)
	return nil
}

// onCadDoneUndetected steps the search and reprograms the radio
func (s *Session) onCadDoneUndetected() error {
	s.stats.Undetected++

	sf, failures := NextState(s.sf, s.failures)
	if failures == 0 {
		s.stats.SFResets++
		s.log.Info().
			Stringer("from", s.sf).
			Msg("too many undetected CADs, restarting search from SF7")
	}
	s.failures = failures

	return s.reconfigure(sf, radio.CadRx)
}

func (s *Session) onPreambleDetected() error {
	s.stats.PreambleDetections++
	return nil
}

// onPreambleUndetected restarts CAD without the settle delay
func (s *Session) onPreambleUndetected() error {
	s.stats.PreambleTimeouts++
	return s.startCad()
}

// Snapshot is a consistent copy of the session state
type Snapshot struct {
	ID         uuid.UUID              `json:"id"`
	SF         radio.SpreadingFactor  `json:"sf"`
	Failures   uint                   `json:"consecutive_failures"`
	Mode       radio.CadExitMode      `json:"mode"`
	State      State                  `json:"state"`
	Modulation radio.ModulationParams `json:"modulation"`
	Cad        radio.CadParams        `json:"cad"`
	Stats      Stats                  `json:"stats"`
	LastPacket *Packet                `json:"last_packet,omitempty"`
}

// Snapshot returns the current session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		SF:         s.sf,
		Failures:   s.failures,
		Mode:       s.mode,
		State:      s.state,
		Modulation: s.modulation,
		Cad:        s.cad,
		Stats:      s.stats,
	}
	if s.lastPacket != nil {
		p := s.lastPacket.clone()
		snap.LastPacket = &p
	}
	return snap
}
