package config

import "errors"

// Configuration file errors
var (
	// ErrConfigVersion indicates unsupported config file version
	ErrConfigVersion = errors.New("unsupported configuration version")

	// ErrInvalidSpreadingFactor indicates a spreading factor outside SF7-SF12
	ErrInvalidSpreadingFactor = errors.New("spreading factor must be between 7-12")

	// ErrInvalidExitMode indicates an unrecognised CAD exit mode name
	ErrInvalidExitMode = errors.New("invalid CAD exit mode")

	// ErrInvalidCodingRate indicates a coding rate other than 4/5-4/8
	ErrInvalidCodingRate = errors.New("coding rate must be 4/5-4/8")

	// ErrInvalidBandwidth indicates a negative bandwidth
	ErrInvalidBandwidth = errors.New("invalid bandwidth")

	// ErrInvalidNATS indicates invalid forwarding settings
	ErrInvalidNATS = errors.New("invalid NATS configuration")
)
