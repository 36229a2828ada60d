package usbradio

import (
	"encoding/binary"
	"fmt"

	"github.com/herlein/asfs/pkg/radio"
)

// frame is one parsed response or notification from the bridge
type frame struct {
	app     uint8
	cmd     uint8
	payload []byte
}

// encodeCommand builds a host to device packet
// Protocol: app(1) + cmd(1) + length(2 LE) + payload
func encodeCommand(app, cmd uint8, payload []byte) []byte {
	packet := make([]byte, 4+len(payload))
	packet[0] = app
	packet[1] = cmd
	binary.LittleEndian.PutUint16(packet[2:4], uint16(len(payload)))
	copy(packet[4:], payload)
	return packet
}

// parseFrame extracts the first complete frame from buf
// Response format: '@'(1) + app(1) + cmd(1) + length(2 LE) + payload
// ok is false when more data is needed. rest is what remains to be parsed;
// bytes before the marker are discarded.
func parseFrame(buf []byte) (f frame, rest []byte, ok bool) {
	markerIdx := -1
	for i, b := range buf {
		if b == ResponseMarker {
			markerIdx = i
			break
		}
	}
	if markerIdx == -1 {
		return frame{}, nil, false
	}

	data := buf[markerIdx:]
	if len(data) < HeaderSize {
		return frame{}, data, false
	}

	length := binary.LittleEndian.Uint16(data[3:5])
	totalLen := HeaderSize + int(length)
	if len(data) < totalLen {
		return frame{}, data, false
	}

	payload := make([]byte, length)
	copy(payload, data[HeaderSize:totalLen])

	f = frame{app: data[1], cmd: data[2], payload: payload}
	return f, data[totalLen:], true
}

// encodeFrame builds a device to host frame. The bridge side of parseFrame.
func encodeFrame(app, cmd uint8, payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	out[0] = ResponseMarker
	out[1] = app
	out[2] = cmd
	binary.LittleEndian.PutUint16(out[3:5], uint16(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

// SetModulationParams: sf(1) bw(1) cr(1) ldro(1)
func encodeModulation(params radio.ModulationParams) ([]byte, error) {
	bw, ok := bandwidthCodes[params.Bandwidth.Hertz()]
	if !ok {
		return nil, fmt.Errorf("unsupported bandwidth %d Hz", params.Bandwidth.Hertz())
	}
	if !params.SF.Valid() {
		return nil, fmt.Errorf("unsupported spreading factor %d", uint8(params.SF))
	}
	ldro := uint8(0)
	if params.LDRO {
		ldro = 1
	}
	return []byte{uint8(params.SF), bw, uint8(params.CodingRate), ldro}, nil
}

// SetCadParams: symbols(1) peak(1) min(1) exit(1) timeout(3 BE)
func encodeCad(params radio.CadParams) ([]byte, error) {
	symbols, ok := cadSymbolCodes[params.SymbolCount]
	if !ok {
		return nil, fmt.Errorf("unsupported CAD symbol count %d", params.SymbolCount)
	}
	out := []byte{symbols, params.DetectPeak, params.DetectMin, uint8(params.ExitMode), 0, 0, 0}
	putTimeout(out[4:], params.TimeoutTicks)
	return out, nil
}

func putTimeout(dst []byte, ticks uint32) {
	if ticks > 0xFFFFFF {
		ticks = 0xFFFFFF
	}
	dst[0] = uint8(ticks >> 16)
	dst[1] = uint8(ticks >> 8)
	dst[2] = uint8(ticks)
}

// SetRx: timeout(3 BE)
func encodeRx(ticks uint32) []byte {
	out := make([]byte, 3)
	putTimeout(out, ticks)
	return out
}

// SetDioIrqParams: irq(2) dio1(2) dio2(2) dio3(2), all BE. Every enabled
// source is routed to DIO1, which the bridge watches.
func encodeIrqParams(mask radio.IRQMask) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint16(out[0:2], uint16(mask))
	binary.BigEndian.PutUint16(out[2:4], uint16(mask))
	return out
}

// ClearIrqStatus: mask(2 BE)
func encodeClearIrq(mask radio.IRQMask) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(mask))
	return out
}

// decodeIRQNotify reads the latched IRQ status of a notification
func decodeIRQNotify(payload []byte) (radio.IRQMask, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("short IRQ notification: %d bytes", len(payload))
	}
	return radio.IRQMask(binary.BigEndian.Uint16(payload[0:2])), nil
}

// decodeStatus reads the command status that leads every LoRa response
func decodeStatus(payload []byte) radio.Status {
	if len(payload) < 1 {
		return radio.StatusError
	}
	return radio.Status(payload[0])
}

func (f frame) String() string {
	return fmt.Sprintf("app=0x%02X cmd=0x%02X len=%d", f.app, f.cmd, len(f.payload))
}
