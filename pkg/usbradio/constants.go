package usbradio

import "time"

// USB Device Identifiers
const (
	VendorID  = 0x1D50
	ProductID = 0x614C // SX126x LoRa bridge firmware
)

// USB Endpoint Configuration
const (
	EPNumber       = 5 // EP5 IN 0x85, EP5 OUT 0x05
	EPReadSize     = 512
	ResponseMarker = 0x40 // '@' character marks start of response
	HeaderSize     = 5    // marker + app + cmd + length(2 LE)
)

// USB Timeouts
const (
	USBDefaultTimeout = 1000 * time.Millisecond
	USBReadPoll       = 100 * time.Millisecond
)

// Application IDs for EP5 protocol
const (
	AppLoRa   = 0x4C // SX126x command passthrough
	AppSystem = 0xFF // System/administrative commands
)

// System Commands (APP_SYSTEM = 0xFF)
const (
	SysCmdPing = 0x82 // Echo test
)

// LoRa Commands (APP_LORA = 0x4C). Opcodes follow the SX126x command set;
// parameters are forwarded to the radio unchanged.
const (
	CmdClearIrqStatus      = 0x02
	CmdSetDioIrqParams     = 0x08
	CmdReadBuffer          = 0x1E // bridge reads GetRxBufferStatus first
	CmdSetRx               = 0x82
	CmdSetCadParams        = 0x88
	CmdSetModulationParams = 0x8B
	CmdSetCad              = 0xC5

	// Bridge commands, no SX126x equivalent
	CmdIRQNotify = 0xE0 // device to host: latched IRQ status(2 BE)
	CmdPreRx     = 0xF0 // RF switch to RX path
	CmdPostRx    = 0xF1 // RF switch back to standby
)

// TicksPerMillisecond is the SX126x RTC step of 15.625 us
const TicksPerMillisecond = 64

// MaxTimeoutTicks is the largest finite 24 bit timeout. 0xFFFFFF selects
// continuous RX on the radio.
const MaxTimeoutTicks = 0xFFFFFE

// SX126x LoRa bandwidth codes
var bandwidthCodes = map[int64]uint8{
	7810:   0x00,
	10420:  0x08,
	15630:  0x01,
	20830:  0x09,
	31250:  0x02,
	41670:  0x0A,
	62500:  0x03,
	125000: 0x04,
	250000: 0x05,
	500000: 0x06,
}

// SX126x CAD symbol count codes
var cadSymbolCodes = map[uint8]uint8{
	1:  0x00,
	2:  0x01,
	4:  0x02,
	8:  0x03,
	16: 0x04,
}
