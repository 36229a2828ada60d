package usbradio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/soypat/lora"

	"github.com/herlein/asfs/pkg/radio"
)

// fakeBridge plays the firmware side of EP5
type fakeBridge struct {
	mu       sync.Mutex
	received [][]byte
	toHost   chan []byte

	// respond returns the response payload for a command, or false to stay silent
	respond func(app, cmd uint8, payload []byte) ([]byte, bool)
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		toHost: make(chan []byte, 64),
		respond: func(app, cmd uint8, payload []byte) ([]byte, bool) {
			if app == AppSystem {
				return payload, true
			}
			return []byte{uint8(radio.StatusOK)}, true
		},
	}
}

func (b *fakeBridge) ReadContext(ctx context.Context, buf []byte) (int, error) {
	select {
	case data := <-b.toHost:
		return copy(buf, data), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (b *fakeBridge) WriteContext(ctx context.Context, buf []byte) (int, error) {
	packet := append([]byte(nil), buf...)
	b.mu.Lock()
	b.received = append(b.received, packet)
	respond := b.respond
	b.mu.Unlock()

	app, cmd := packet[0], packet[1]
	length := binary.LittleEndian.Uint16(packet[2:4])
	if resp, ok := respond(app, cmd, packet[4:4+int(length)]); ok {
		b.toHost <- encodeFrame(app, cmd, resp)
	}
	return len(buf), nil
}

func (b *fakeBridge) notify(mask radio.IRQMask) {
	b.toHost <- encodeFrame(AppLoRa, CmdIRQNotify, encodeClearIrq(mask))
}

func (b *fakeBridge) last() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.received) == 0 {
		return nil
	}
	return b.received[len(b.received)-1]
}

func (b *fakeBridge) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.received)
}

func openFake(t *testing.T) (*Device, *fakeBridge) {
	t.Helper()
	b := newFakeBridge()
	d := newDevice(b, b, zerolog.Nop())
	t.Cleanup(func() { d.Close() })
	return d, b
}

func TestDriverCommandEncoding(t *testing.T) {
	d, b := openFake(t)

	tests := []struct {
		name string
		run  func() radio.Status
		want []byte
	}{
		{
			"modulation",
			func() radio.Status {
				return d.ApplyModulationParams(radio.ModulationParams{SF: radio.SF10, Bandwidth: lora.BW250k, CodingRate: lora.CR4_8})
			},
			encodeCommand(AppLoRa, CmdSetModulationParams, []byte{10, 0x05, 0x04, 0}),
		},
		{
			"cad",
			func() radio.Status {
				return d.ApplyCadParams(radio.CadParams{SymbolCount: 2, DetectPeak: 22, DetectMin: 10, ExitMode: radio.CadRx, TimeoutTicks: 64000})
			},
			encodeCommand(AppLoRa, CmdSetCadParams, []byte{0x01, 22, 10, 0x01, 0x00, 0xFA, 0x00}),
		},
		{
			"start cad",
			d.StartCad,
			encodeCommand(AppLoRa, CmdSetCad, nil),
		},
		{
			"start rx",
			func() radio.Status { return d.StartReceive(0x123456) },
			encodeCommand(AppLoRa, CmdSetRx, []byte{0x12, 0x34, 0x56}),
		},
	}

	for _, tt := range tests {
		if st := tt.run(); st != radio.StatusOK {
			t.Errorf("%s: status %v", tt.name, st)
		}
		if got := b.last(); !bytes.Equal(got, tt.want) {
			t.Errorf("%s: sent % X, want % X", tt.name, got, tt.want)
		}
	}

	d.ConfigureInterruptSources(radio.DefaultIRQMask)
	if got := b.last(); got[1] != CmdSetDioIrqParams {
		t.Errorf("ConfigureInterruptSources sent % X", got)
	}
	d.PreReceiveHousekeeping()
	if got := b.last(); got[1] != CmdPreRx {
		t.Errorf("PreReceiveHousekeeping sent % X", got)
	}
	d.PostReceiveHousekeeping()
	if got := b.last(); got[1] != CmdPostRx {
		t.Errorf("PostReceiveHousekeeping sent % X", got)
	}
}

func TestDriverUnencodableParams(t *testing.T) {
	d, b := openFake(t)

	if st := d.ApplyModulationParams(radio.ModulationParams{SF: radio.SF7, Bandwidth: 1}); st != radio.StatusUnknownValue {
		t.Errorf("status %v, want UNKNOWN_VALUE", st)
	}
	if st := d.ApplyCadParams(radio.CadParams{SymbolCount: 5}); st != radio.StatusUnknownValue {
		t.Errorf("status %v, want UNKNOWN_VALUE", st)
	}
	if b.count() != 0 {
		t.Error("unencodable parameters were sent")
	}
}

func TestDriverStatusPropagation(t *testing.T) {
	d, b := openFake(t)
	b.respond = func(app, cmd uint8, payload []byte) ([]byte, bool) {
		return []byte{uint8(radio.StatusUnsupportedFeature)}, true
	}

	if st := d.StartCad(); st != radio.StatusUnsupportedFeature {
		t.Errorf("status %v, want UNSUPPORTED_FEATURE", st)
	}
}

func TestDriverReadPayload(t *testing.T) {
	d, b := openFake(t)
	b.respond = func(app, cmd uint8, payload []byte) ([]byte, bool) {
		if cmd != CmdReadBuffer {
			return []byte{0}, true
		}
		if !bytes.Equal(payload, []byte{4}) {
			t.Errorf("read request % X", payload)
		}
		return []byte{0x00, 1, 2, 3, 4, 5, 6}, true
	}

	buf := make([]byte, 4)
	n, st := d.ReadReceivedPayload(buf)
	if st != radio.StatusOK || n != 4 || !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Errorf("read = %d %v % X", n, st, buf)
	}
}

func TestDriverTimeout(t *testing.T) {
	d, b := openFake(t)
	b.respond = func(app, cmd uint8, payload []byte) ([]byte, bool) { return nil, false }

	if _, err := d.Send(AppLoRa, CmdSetCad, nil, 50*time.Millisecond); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestPing(t *testing.T) {
	d, _ := openFake(t)
	if err := d.Ping([]byte{0x55, 0xAA}); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	d, _ := openFake(t)
	d.Close()

	if _, err := d.Send(AppLoRa, CmdSetCad, nil, 0); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("got %v, want ErrDeviceClosed", err)
	}
	if st := d.StartCad(); st != radio.StatusError {
		t.Errorf("status %v, want ERROR", st)
	}
}

func TestConvertMillisecondsToTicks(t *testing.T) {
	d := &Device{}
	if got := d.ConvertMillisecondsToTicks(1000); got != 64000 {
		t.Errorf("1000 ms = %d ticks", got)
	}
	if got := d.ConvertMillisecondsToTicks(1 << 20); got != MaxTimeoutTicks {
		t.Errorf("saturation = %#x", got)
	}
}

func receive(t *testing.T, events <-chan radio.Event) radio.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return 0
}

func TestEvents(t *testing.T) {
	d, b := openFake(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := d.Events(ctx)

	b.notify(radio.IRQCadDone | radio.IRQCadDetected)
	if ev := receive(t, events); ev != radio.EventCadDoneDetected {
		t.Errorf("got %v, want cadDoneDetected", ev)
	}

	b.notify(radio.IRQPreambleDetected | radio.IRQRxDone)
	if ev := receive(t, events); ev != radio.EventPreambleDetected {
		t.Errorf("got %v, want preambleDetected", ev)
	}
	if ev := receive(t, events); ev != radio.EventRxDone {
		t.Errorf("got %v, want rxDone", ev)
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Error("unexpected event after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestClearPendingInterruptsDropsLatched(t *testing.T) {
	d, b := openFake(t)

	d.latch(radio.IRQCadDone)
	d.ClearPendingInterrupts()

	if mask := d.takeIRQ(); mask != 0 {
		t.Errorf("latched IRQ survived clear: %#x", mask)
	}
	want := encodeCommand(AppLoRa, CmdClearIrqStatus, encodeClearIrq(radio.IRQAll))
	if got := b.last(); !bytes.Equal(got, want) {
		t.Errorf("sent % X, want % X", got, want)
	}
}
