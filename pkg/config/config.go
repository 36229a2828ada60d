// Package config reads and writes the YAML receiver configuration file
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/soypat/lora"

	"github.com/herlein/asfs/pkg/asfs"
	"github.com/herlein/asfs/pkg/radio"
)

// Version is the only configuration file version understood
const Version = "1.0"

// DefaultSubjectPrefix roots the NATS subjects packets are published on
const DefaultSubjectPrefix = "asfs"

// File represents the YAML configuration file structure
type File struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Version     string    `yaml:"version"`
	Created     time.Time `yaml:"created"`

	Radio   RadioYAML   `yaml:"radio"`
	CAD     CADYAML     `yaml:"cad"`
	Receive ReceiveYAML `yaml:"receive"`
	NATS    NATSYAML    `yaml:"nats"`
	Status  StatusYAML  `yaml:"status"`
	Log     LogYAML     `yaml:"log"`
}

// RadioYAML holds the modulation and boot search settings
type RadioYAML struct {
	SpreadingFactor uint8  `yaml:"spreading_factor"` // initial SF, 7-12
	ExitMode        string `yaml:"exit_mode"`        // CAD_ONLY, CAD_RX or CAD_LBT
	BandwidthHz     int64  `yaml:"bandwidth_hz"`
	CodingRate      string `yaml:"coding_rate"` // 4/5 .. 4/8
	PreambleLength  uint16 `yaml:"preamble_length"`
	CRC             *bool  `yaml:"crc,omitempty"`
	ImplicitHeader  bool   `yaml:"implicit_header"`
	IRQMask         uint16 `yaml:"irq_mask,omitempty"`
}

// CADYAML holds channel activity detection settings
type CADYAML struct {
	Symbols       uint8  `yaml:"symbols"`
	DetectPeak    uint8  `yaml:"detect_peak"`
	DetectMin     uint8  `yaml:"detect_min"`
	SettleDelayMs uint32 `yaml:"settle_delay_ms"`
	TimeoutMs     uint32 `yaml:"timeout_ms"`
	UserParams    bool   `yaml:"user_params"` // skip the per-SF table
}

// ReceiveYAML holds receive window settings
type ReceiveYAML struct {
	TimeoutMs       uint32 `yaml:"timeout_ms"`
	JitterMs        uint32 `yaml:"jitter_ms"`
	PayloadCapacity int    `yaml:"payload_capacity"`
}

// NATSYAML configures packet forwarding. An empty URL disables it.
type NATSYAML struct {
	URL                 string `yaml:"url,omitempty"`
	Name                string `yaml:"name,omitempty"`
	SubjectPrefix       string `yaml:"subject_prefix,omitempty"`
	Username            string `yaml:"username,omitempty"`
	Password            string `yaml:"password,omitempty"`
	MaxReconnects       int    `yaml:"max_reconnects,omitempty"`
	ReconnectIntervalMs uint32 `yaml:"reconnect_interval_ms,omitempty"`
}

// StatusYAML configures the HTTP status endpoint. An empty address disables it.
type StatusYAML struct {
	Listen string `yaml:"listen,omitempty"`
}

// LogYAML configures logging
type LogYAML struct {
	Level string `yaml:"level"`
}

// DefaultFile returns a File populated with the session defaults
func DefaultFile() *File {
	crc := true
	return &File{
		Name:    "default",
		Version: Version,
		Radio: RadioYAML{
			SpreadingFactor: uint8(asfs.DefaultSpreadingFactor),
			ExitMode:        asfs.DefaultExitMode.String(),
			BandwidthHz:     asfs.DefaultBandwidth.Hertz(),
			CodingRate:      FormatCodingRate(asfs.DefaultCodingRate),
			PreambleLength:  asfs.DefaultPreambleLength,
			CRC:             &crc,
			IRQMask:         uint16(radio.DefaultIRQMask),
		},
		CAD: CADYAML{
			Symbols:       asfs.DefaultCadSymbols,
			DetectPeak:    asfs.DefaultCadDetectPeak,
			DetectMin:     asfs.DefaultCadDetectMin,
			SettleDelayMs: uint32(asfs.DefaultCadSettleDelay / time.Millisecond),
			TimeoutMs:     uint32(asfs.DefaultCadTimeout / time.Millisecond),
		},
		Receive: ReceiveYAML{
			TimeoutMs:       uint32(asfs.DefaultRxTimeout / time.Millisecond),
			JitterMs:        uint32(asfs.DefaultRxJitter / time.Millisecond),
			PayloadCapacity: asfs.DefaultPayloadCapacity,
		},
		Log: LogYAML{Level: "info"},
	}
}

// Validate checks the configuration file for errors
func (f *File) Validate() error {
	if f.Version != Version {
		return fmt.Errorf("%w: %q", ErrConfigVersion, f.Version)
	}

	if sf := radio.SpreadingFactor(f.Radio.SpreadingFactor); sf != 0 && !sf.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSpreadingFactor, f.Radio.SpreadingFactor)
	}

	if f.Radio.ExitMode != "" {
		if _, err := radio.ParseCadExitMode(f.Radio.ExitMode); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidExitMode, err)
		}
	}

	if f.Radio.CodingRate != "" {
		if _, err := ParseCodingRate(f.Radio.CodingRate); err != nil {
			return err
		}
	}

	if f.Radio.BandwidthHz < 0 {
		return fmt.Errorf("%w: %d Hz", ErrInvalidBandwidth, f.Radio.BandwidthHz)
	}

	if f.NATS.MaxReconnects < -1 {
		return fmt.Errorf("%w: max_reconnects %d", ErrInvalidNATS, f.NATS.MaxReconnects)
	}

	// the rest is checked where it is used
	if err := f.ToSessionConfig().Validate(); err != nil {
		return err
	}

	return nil
}

// StartParams returns the spreading factor and exit mode the search boots with
func (f *File) StartParams() (radio.SpreadingFactor, radio.CadExitMode) {
	sf := radio.SpreadingFactor(f.Radio.SpreadingFactor)
	if sf == 0 {
		sf = asfs.DefaultSpreadingFactor
	}

	mode, err := radio.ParseCadExitMode(f.Radio.ExitMode)
	if err != nil {
		mode = asfs.DefaultExitMode
	}

	return sf, mode
}

// ToSessionConfig converts the file to a runtime session config. Zero values
// select the session defaults. Logger and hooks are left to the caller.
func (f *File) ToSessionConfig() *asfs.Config {
	cfg := asfs.DefaultConfig()

	if f.Radio.BandwidthHz != 0 {
		cfg.Bandwidth = lora.Frequency(f.Radio.BandwidthHz) * lora.Hertz
	}
	if cr, err := ParseCodingRate(f.Radio.CodingRate); err == nil {
		cfg.CodingRate = cr
	}
	if f.Radio.PreambleLength != 0 {
		cfg.PreambleLength = f.Radio.PreambleLength
	}
	if f.Radio.CRC != nil {
		cfg.CRC = *f.Radio.CRC
	}
	cfg.ImplicitHeader = f.Radio.ImplicitHeader
	if f.Radio.IRQMask != 0 {
		cfg.IRQMask = radio.IRQMask(f.Radio.IRQMask)
	}

	if f.CAD.Symbols != 0 {
		cfg.CadSymbols = f.CAD.Symbols
	}
	if f.CAD.DetectPeak != 0 {
		cfg.CadDetectPeak = f.CAD.DetectPeak
	}
	if f.CAD.DetectMin != 0 {
		cfg.CadDetectMin = f.CAD.DetectMin
	}
	if f.CAD.SettleDelayMs != 0 {
		cfg.CadSettleDelay = millis(f.CAD.SettleDelayMs)
	}
	if f.CAD.TimeoutMs != 0 {
		cfg.CadTimeout = millis(f.CAD.TimeoutMs)
	}
	cfg.UserCadParams = f.CAD.UserParams

	if f.Receive.TimeoutMs != 0 {
		cfg.RxTimeout = millis(f.Receive.TimeoutMs)
	}
	if f.Receive.JitterMs != 0 {
		cfg.RxJitter = millis(f.Receive.JitterMs)
	}
	if f.Receive.PayloadCapacity != 0 {
		cfg.PayloadCapacity = f.Receive.PayloadCapacity
	}

	return cfg
}

// SubjectPrefix returns the NATS subject prefix, defaulted
func (f *File) SubjectPrefix() string {
	if f.NATS.SubjectPrefix == "" {
		return DefaultSubjectPrefix
	}
	return f.NATS.SubjectPrefix
}

// ReconnectInterval returns the NATS reconnect wait, defaulted to 2s
func (f *File) ReconnectInterval() time.Duration {
	if f.NATS.ReconnectIntervalMs == 0 {
		return 2 * time.Second
	}
	return millis(f.NATS.ReconnectIntervalMs)
}

// ParseCodingRate accepts "4/5" through "4/8"
func ParseCodingRate(s string) (lora.CodingRate, error) {
	switch strings.TrimSpace(s) {
	case "4/5", "4_5":
		return lora.CR4_5, nil
	case "4/6", "4_6":
		return lora.CR4_6, nil
	case "4/7", "4_7":
		return lora.CR4_7, nil
	case "4/8", "4_8":
		return lora.CR4_8, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCodingRate, s)
}

// FormatCodingRate is the inverse of ParseCodingRate
func FormatCodingRate(cr lora.CodingRate) string {
	return fmt.Sprintf("4/%d", uint8(cr)+4)
}

func millis(v uint32) time.Duration {
	return time.Duration(v) * time.Millisecond
}
