package asfs

import (
	"errors"
	"fmt"

	"github.com/herlein/asfs/pkg/radio"
)

// Session errors
var (
	// ErrRadioCommand indicates the radio rejected a command. It is fatal:
	// the radio configuration can no longer be trusted.
	ErrRadioCommand = errors.New("radio command failed")

	// ErrInvalidSpreadingFactor indicates a spreading factor the radio cannot use
	ErrInvalidSpreadingFactor = errors.New("invalid spreading factor")

	// ErrInvalidConfig indicates invalid session configuration
	ErrInvalidConfig = errors.New("invalid session configuration")

	// ErrUnknownEvent indicates an event with no handler
	ErrUnknownEvent = errors.New("unknown radio event")

	// ErrNilDriver indicates a session was created without a driver
	ErrNilDriver = errors.New("radio driver is nil")
)

// CommandError records which radio command failed and with what status
type CommandError struct {
	Op     string
	Status radio.Status
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s returned %s", ErrRadioCommand, e.Op, e.Status)
}

func (e *CommandError) Unwrap() error {
	return ErrRadioCommand
}

// IsFatal reports whether err must halt the receiver
func IsFatal(err error) bool {
	return errors.Is(err, ErrRadioCommand)
}

func check(op string, st radio.Status) error {
	if st.OK() {
		return nil
	}
	return &CommandError{Op: op, Status: st}
}
