package radio

import "fmt"

// IRQMask is an SX126x interrupt status or enable word
type IRQMask uint16

const (
	IRQNone             IRQMask = 0
	IRQTxDone           IRQMask = 1 << 0
	IRQRxDone           IRQMask = 1 << 1
	IRQPreambleDetected IRQMask = 1 << 2
	IRQSyncWordValid    IRQMask = 1 << 3
	IRQHeaderValid      IRQMask = 1 << 4
	IRQHeaderError      IRQMask = 1 << 5
	IRQCRCError         IRQMask = 1 << 6
	IRQCadDone          IRQMask = 1 << 7
	IRQCadDetected      IRQMask = 1 << 8
	IRQTimeout          IRQMask = 1 << 9
	IRQLrFhssHop        IRQMask = 1 << 14
	IRQAll              IRQMask = 0x43FF
)

// DefaultIRQMask enables the sources the search reacts to
const DefaultIRQMask = IRQCadDetected | IRQCadDone | IRQTxDone | IRQRxDone |
	IRQTimeout | IRQHeaderError | IRQCRCError

// Has reports whether every bit of flag is set
func (m IRQMask) Has(flag IRQMask) bool {
	return m&flag == flag
}

// Event is a named radio interrupt delivered to the session
type Event uint8

const (
	EventCadDoneDetected Event = iota + 1
	EventCadDoneUndetected
	EventPreambleDetected
	EventPreambleUndetected
	EventRxDone
	EventRxError
)

func (e Event) String() string {
	switch e {
	case EventCadDoneDetected:
		return "cadDoneDetected"
	case EventCadDoneUndetected:
		return "cadDoneUndetected"
	case EventPreambleDetected:
		return "preambleDetected"
	case EventPreambleUndetected:
		return "preambleUndetected"
	case EventRxDone:
		return "rxDone"
	case EventRxError:
		return "rxError"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}

// DecodeIRQ turns an interrupt status word into the events it carries, in
// the order they must be handled. A preamble detection always precedes the
// RX result of the same frame.
func DecodeIRQ(status IRQMask) []Event {
	var events []Event

	if status.Has(IRQPreambleDetected) {
		events = append(events, EventPreambleDetected)
	}

	switch {
	case status.Has(IRQRxDone) && status.Has(IRQCRCError):
		events = append(events, EventRxError)
	case status.Has(IRQRxDone):
		events = append(events, EventRxDone)
	case status.Has(IRQHeaderError):
		events = append(events, EventRxError)
	}

	if status.Has(IRQCadDone) {
		if status.Has(IRQCadDetected) {
			events = append(events, EventCadDoneDetected)
		} else {
			events = append(events, EventCadDoneUndetected)
		}
	}

	// With CAD_RX the RX window times out when no preamble follows the detection
	if status.Has(IRQTimeout) {
		events = append(events, EventPreambleUndetected)
	}

	return events
}
