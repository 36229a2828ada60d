package radio

import "fmt"

// Status is the result code returned by every radio command
type Status uint8

const (
	StatusOK                 Status = 0x00
	StatusUnsupportedFeature Status = 0x01
	StatusUnknownValue       Status = 0x02
	StatusError              Status = 0x03
)

// OK reports whether the command succeeded
func (s Status) OK() bool {
	return s == StatusOK
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusUnsupportedFeature:
		return "UNSUPPORTED_FEATURE"
	case StatusUnknownValue:
		return "UNKNOWN_VALUE"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Unknown (0x%02X)", uint8(s))
	}
}
