package usbradio

import (
	"bytes"
	"testing"

	"github.com/soypat/lora"

	"github.com/herlein/asfs/pkg/radio"
)

func TestEncodeCommand(t *testing.T) {
	got := encodeCommand(AppLoRa, CmdSetRx, []byte{0x01, 0x02, 0x03})
	want := []byte{AppLoRa, CmdSetRx, 0x03, 0x00, 0x01, 0x02, 0x03}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeCommand = % X, want % X", got, want)
	}
}

func TestParseFrame(t *testing.T) {
	full := encodeFrame(AppLoRa, CmdReadBuffer, []byte{0x00, 0xAA, 0xBB})

	tests := []struct {
		name     string
		buf      []byte
		ok       bool
		wantRest int
	}{
		{"complete", full, true, 0},
		{"leading garbage", append([]byte{0x11, 0x22}, full...), true, 0},
		{"trailing data", append(append([]byte{}, full...), ResponseMarker, AppLoRa), true, 2},
		{"short header", full[:3], false, 3},
		{"short payload", full[:6], false, 6},
		{"no marker", []byte{0x01, 0x02, 0x03}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, rest, ok := parseFrame(tt.buf)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if len(rest) != tt.wantRest {
				t.Errorf("rest = % X, want %d bytes", rest, tt.wantRest)
			}
			if !ok {
				return
			}
			if f.app != AppLoRa || f.cmd != CmdReadBuffer || !bytes.Equal(f.payload, []byte{0x00, 0xAA, 0xBB}) {
				t.Errorf("frame = %v % X", f, f.payload)
			}
		})
	}
}

func TestParseFrameSplitAcrossReads(t *testing.T) {
	full := append(encodeFrame(AppLoRa, CmdSetCad, []byte{0x00}),
		encodeFrame(AppLoRa, CmdIRQNotify, []byte{0x01, 0x80})...)

	var pending []byte
	var frames []frame
	for _, b := range full {
		pending = append(pending, b)
		for {
			f, rest, ok := parseFrame(pending)
			pending = rest
			if !ok {
				break
			}
			frames = append(frames, f)
		}
	}

	if len(frames) != 2 {
		t.Fatalf("parsed %d frames, want 2", len(frames))
	}
	if frames[0].cmd != CmdSetCad || frames[1].cmd != CmdIRQNotify {
		t.Errorf("frames = %v, %v", frames[0], frames[1])
	}
}

func TestEncodeModulation(t *testing.T) {
	got, err := encodeModulation(radio.ModulationParams{
		SF:         radio.SF9,
		Bandwidth:  lora.BW125k,
		CodingRate: lora.CR4_5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{9, 0x04, 0x01, 0}; !bytes.Equal(got, want) {
		t.Errorf("encodeModulation = % X, want % X", got, want)
	}

	if _, err := encodeModulation(radio.ModulationParams{SF: radio.SF7, Bandwidth: 100 * lora.KiloHertz}); err == nil {
		t.Error("expected error for unsupported bandwidth")
	}
	if _, err := encodeModulation(radio.ModulationParams{SF: 5, Bandwidth: lora.BW125k}); err == nil {
		t.Error("expected error for unsupported spreading factor")
	}
}

func TestEncodeCad(t *testing.T) {
	got, err := encodeCad(radio.CadParams{
		SymbolCount:  4,
		DetectPeak:   23,
		DetectMin:    10,
		ExitMode:     radio.CadRx,
		TimeoutTicks: 64000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x02, 23, 10, 0x01, 0x00, 0xFA, 0x00}; !bytes.Equal(got, want) {
		t.Errorf("encodeCad = % X, want % X", got, want)
	}

	if _, err := encodeCad(radio.CadParams{SymbolCount: 3}); err == nil {
		t.Error("expected error for unsupported symbol count")
	}
}

func TestEncodeTimeoutSaturates(t *testing.T) {
	if got := encodeRx(0x01234567); !bytes.Equal(got, []byte{0xFF, 0xFF, 0xFF}) {
		t.Errorf("encodeRx = % X", got)
	}
	if got := encodeRx(0x123456); !bytes.Equal(got, []byte{0x12, 0x34, 0x56}) {
		t.Errorf("encodeRx = % X", got)
	}
}

func TestIRQEncoding(t *testing.T) {
	mask := radio.DefaultIRQMask
	params := encodeIrqParams(mask)
	if len(params) != 8 || params[0] != uint8(mask>>8) || params[1] != uint8(mask) ||
		params[2] != uint8(mask>>8) || params[3] != uint8(mask) {
		t.Errorf("encodeIrqParams = % X", params)
	}

	got, err := decodeIRQNotify(encodeClearIrq(radio.IRQCadDone | radio.IRQCadDetected))
	if err != nil || got != radio.IRQCadDone|radio.IRQCadDetected {
		t.Errorf("decodeIRQNotify = %#x, %v", got, err)
	}
	if _, err := decodeIRQNotify([]byte{0x01}); err == nil {
		t.Error("expected error for short notification")
	}
}

func TestDecodeStatus(t *testing.T) {
	if decodeStatus(nil) != radio.StatusError {
		t.Error("empty response must be an error")
	}
	if decodeStatus([]byte{0x02, 0xFF}) != radio.StatusUnknownValue {
		t.Error("status byte not decoded")
	}
}
