package usbradio

import (
	"context"

	"github.com/herlein/asfs/pkg/radio"
)

var _ radio.Driver = (*Device)(nil)

// command sends one LoRa command and returns the radio status. Transport
// failures are reported as StatusError.
func (d *Device) command(name string, cmd uint8, payload []byte) (radio.Status, []byte) {
	resp, err := d.Send(AppLoRa, cmd, payload, USBDefaultTimeout)
	if err != nil {
		d.log.Error().Err(err).Str("cmd", name).Msg("bridge command failed")
		return radio.StatusError, nil
	}
	st := decodeStatus(resp)
	if !st.OK() {
		d.log.Warn().Str("cmd", name).Stringer("status", st).Msg("radio rejected command")
	}
	if len(resp) > 1 {
		return st, resp[1:]
	}
	return st, nil
}

func (d *Device) ApplyModulationParams(params radio.ModulationParams) radio.Status {
	payload, err := encodeModulation(params)
	if err != nil {
		d.log.Error().Err(err).Msg("cannot encode modulation")
		return radio.StatusUnknownValue
	}
	st, _ := d.command("SetModulationParams", CmdSetModulationParams, payload)
	return st
}

func (d *Device) ApplyCadParams(params radio.CadParams) radio.Status {
	payload, err := encodeCad(params)
	if err != nil {
		d.log.Error().Err(err).Msg("cannot encode CAD parameters")
		return radio.StatusUnknownValue
	}
	st, _ := d.command("SetCadParams", CmdSetCadParams, payload)
	return st
}

func (d *Device) StartCad() radio.Status {
	st, _ := d.command("SetCad", CmdSetCad, nil)
	return st
}

func (d *Device) StartReceive(timeoutTicks uint32) radio.Status {
	st, _ := d.command("SetRx", CmdSetRx, encodeRx(timeoutTicks))
	return st
}

// ConvertMillisecondsToTicks converts to RTC steps, saturating below the
// continuous RX value
func (d *Device) ConvertMillisecondsToTicks(ms uint32) uint32 {
	ticks := uint64(ms) * TicksPerMillisecond
	if ticks > MaxTimeoutTicks {
		return MaxTimeoutTicks
	}
	return uint32(ticks)
}

// ClearPendingInterrupts clears the radio IRQ status and anything latched
// but not yet delivered
func (d *Device) ClearPendingInterrupts() {
	d.takeIRQ()
	d.command("ClearIrqStatus", CmdClearIrqStatus, encodeClearIrq(radio.IRQAll))
}

func (d *Device) ConfigureInterruptSources(enabled radio.IRQMask) {
	d.command("SetDioIrqParams", CmdSetDioIrqParams, encodeIrqParams(enabled))
}

func (d *Device) ReadReceivedPayload(buf []byte) (int, radio.Status) {
	max := len(buf)
	if max > 255 {
		max = 255
	}
	st, data := d.command("ReadBuffer", CmdReadBuffer, []byte{uint8(max)})
	if !st.OK() {
		return 0, st
	}
	return copy(buf, data), st
}

func (d *Device) PreReceiveHousekeeping() {
	d.command("PreRx", CmdPreRx, nil)
}

func (d *Device) PostReceiveHousekeeping() {
	d.command("PostRx", CmdPostRx, nil)
}

// Events delivers decoded interrupts until ctx is done or the bridge reader
// stops. Interrupts raised while the consumer is busy are latched and
// coalesced, as in the radio IRQ register.
func (d *Device) Events(ctx context.Context) <-chan radio.Event {
	out := make(chan radio.Event)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.done:
				return
			case <-d.irqNotify:
			}

			mask := d.takeIRQ()
			for _, ev := range radio.DecodeIRQ(mask) {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
