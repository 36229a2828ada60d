// Package usbradio drives an SX126x LoRa radio behind a USB bridge. The
// bridge forwards SX126x commands received on EP5 and reports latched
// interrupts as asynchronous notifications on the same endpoint.
package usbradio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/herlein/asfs/pkg/radio"
)

// ErrDeviceClosed indicates the bridge stopped answering or was closed
var ErrDeviceClosed = errors.New("device closed")

type endpointReader interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

type endpointWriter interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// Device represents an SX126x USB bridge
type Device struct {
	usbDevice    *gousb.Device
	usbConfig    *gousb.Config
	usbInterface *gousb.Interface
	in           endpointReader
	out          endpointWriter
	Serial       string
	Manufacturer string
	Product      string
	Bus          int
	Address      int

	log zerolog.Logger

	sendMu    sync.Mutex // one command in flight
	responses chan frame

	irqMu     sync.Mutex
	irq       radio.IRQMask // latched, cleared by ClearPendingInterrupts
	irqNotify chan struct{}

	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// FindAllDevices finds all connected bridges
func FindAllDevices(context *gousb.Context) ([]*Device, error) {
	devices := []*Device{}

	usbDevices, err := context.OpenDevices(func(descriptor *gousb.DeviceDesc) bool {
		return descriptor.Vendor == gousb.ID(VendorID) && descriptor.Product == gousb.ID(ProductID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	for _, usbDev := range usbDevices {
		device, err := wrapDevice(usbDev)
		if err != nil {
			log.Warn().Err(err).Msg("skipping bridge")
			usbDev.Close()
			continue
		}
		devices = append(devices, device)
	}

	return devices, nil
}

func wrapDevice(usbDev *gousb.Device) (*Device, error) {
	manufacturer, _ := usbDev.Manufacturer()
	product, _ := usbDev.Product()
	serial, _ := usbDev.SerialNumber()

	usbDev.SetAutoDetach(true)

	config, err := usbDev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}

	iface, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}

	epIn, err := iface.InEndpoint(EPNumber)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, fmt.Errorf("failed to get IN endpoint: %w", err)
	}

	epOut, err := iface.OutEndpoint(EPNumber)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, fmt.Errorf("failed to get OUT endpoint: %w", err)
	}

	device := newDevice(epIn, epOut, log.With().Str("bridge", serial).Logger())
	device.usbDevice = usbDev
	device.usbConfig = config
	device.usbInterface = iface
	device.Serial = serial
	device.Manufacturer = manufacturer
	device.Product = product
	device.Bus = usbDev.Desc.Bus
	device.Address = usbDev.Desc.Address

	return device, nil
}

// newDevice starts the endpoint reader. Stale data queued before the reader
// started is discarded by frame parsing.
func newDevice(in endpointReader, out endpointWriter, logger zerolog.Logger) *Device {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Device{
		in:        in,
		out:       out,
		log:       logger,
		responses: make(chan frame, 4),
		irqNotify: make(chan struct{}, 1),
		stop:      cancel,
		done:      make(chan struct{}),
	}
	go d.readLoop(ctx)
	return d
}

// Close stops the reader and releases all resources
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.stop()
		<-d.done

		if d.usbInterface != nil {
			d.usbInterface.Close()
		}
		if d.usbConfig != nil {
			d.usbConfig.Close()
		}
		if d.usbDevice != nil {
			err = d.usbDevice.Close()
		}
	})
	return err
}

// String returns a human-readable description of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s %s (Serial: %s)", d.Manufacturer, d.Product, d.Serial)
}

// readLoop owns the IN endpoint: responses go to Send, IRQ notifications
// are latched
func (d *Device) readLoop(ctx context.Context) {
	defer close(d.done)

	buf := make([]byte, EPReadSize)
	var pending []byte

	for {
		if ctx.Err() != nil {
			return
		}

		readCtx, cancel := context.WithTimeout(ctx, USBReadPoll)
		n, err := d.in.ReadContext(readCtx, buf)
		timedOut := readCtx.Err() != nil
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if timedOut || isTimeout(err) {
				continue
			}
			d.log.Error().Err(err).Msg("failed to read from EP5, bridge reader stopped")
			return
		}
		if n == 0 {
			continue
		}

		pending = append(pending, buf[:n]...)
		for {
			f, rest, ok := parseFrame(pending)
			pending = rest
			if !ok {
				break
			}
			d.route(f)
		}
	}
}

func isTimeout(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "canceled")
}

func (d *Device) route(f frame) {
	if f.app == AppLoRa && f.cmd == CmdIRQNotify {
		mask, err := decodeIRQNotify(f.payload)
		if err != nil {
			d.log.Warn().Err(err).Msg("dropping IRQ notification")
			return
		}
		d.latch(mask)
		return
	}

	select {
	case d.responses <- f:
	default:
		d.log.Warn().Stringer("frame", f).Msg("dropping unsolicited response")
	}
}

func (d *Device) latch(mask radio.IRQMask) {
	d.irqMu.Lock()
	d.irq |= mask
	d.irqMu.Unlock()

	select {
	case d.irqNotify <- struct{}{}:
	default:
	}
}

func (d *Device) takeIRQ() radio.IRQMask {
	d.irqMu.Lock()
	defer d.irqMu.Unlock()
	mask := d.irq
	d.irq = 0
	return mask
}

// Send sends a command to the device via EP5 and waits for its response
func (d *Device) Send(app uint8, cmd uint8, payload []byte, timeout time.Duration) ([]byte, error) {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	if timeout == 0 {
		timeout = USBDefaultTimeout
	}

	select {
	case <-d.done:
		return nil, ErrDeviceClosed
	default:
	}

	d.drainResponses()

	packet := encodeCommand(app, cmd, payload)

	writeCtx, writeCancel := context.WithTimeout(context.Background(), timeout)
	n, err := d.out.WriteContext(writeCtx, packet)
	writeCancel()
	if err != nil {
		if writeCtx.Err() != nil || isTimeout(err) {
			return nil, fmt.Errorf("write timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to write to EP5: %w", err)
	}
	if n != len(packet) {
		return nil, fmt.Errorf("short write: wrote %d of %d bytes", n, len(packet))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case f := <-d.responses:
			if f.app == app && f.cmd == cmd {
				return f.payload, nil
			}
			d.log.Debug().Stringer("frame", f).Msg("skipping mismatched response")
		case <-timer.C:
			return nil, fmt.Errorf("timeout waiting for response to app=0x%02X cmd=0x%02X", app, cmd)
		case <-d.done:
			return nil, ErrDeviceClosed
		}
	}
}

// drainResponses discards responses left from timed out commands
func (d *Device) drainResponses() {
	for {
		select {
		case <-d.responses:
		default:
			return
		}
	}
}

// Ping sends a ping command and verifies the response
func (d *Device) Ping(data []byte) error {
	response, err := d.Send(AppSystem, SysCmdPing, data, USBDefaultTimeout)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	if len(response) != len(data) {
		return fmt.Errorf("ping response length mismatch: sent %d bytes, got %d", len(data), len(response))
	}

	for i := range data {
		if response[i] != data[i] {
			return fmt.Errorf("ping response data mismatch at byte %d: sent 0x%02X, got 0x%02X", i, data[i], response[i])
		}
	}

	return nil
}
