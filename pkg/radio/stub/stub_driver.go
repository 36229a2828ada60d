// Package stub provides a recording radio driver for host-side testing and
// simulation.
package stub

import (
	"sync"

	"github.com/herlein/asfs/pkg/radio"
)

// Op names a driver command in the call log
type Op string

const (
	OpApplyModulation Op = "ApplyModulationParams"
	OpApplyCad        Op = "ApplyCadParams"
	OpStartCad        Op = "StartCad"
	OpStartReceive    Op = "StartReceive"
	OpClearIRQ        Op = "ClearPendingInterrupts"
	OpConfigureIRQ    Op = "ConfigureInterruptSources"
	OpReadPayload     Op = "ReadReceivedPayload"
	OpPreRx           Op = "PreReceiveHousekeeping"
	OpPostRx          Op = "PostReceiveHousekeeping"
)

// Call is one recorded driver command with the arguments it carried
type Call struct {
	Op           Op
	Modulation   radio.ModulationParams
	Cad          radio.CadParams
	TimeoutTicks uint32
	IRQ          radio.IRQMask
}

// TicksPerMillisecond matches the SX126x RTC step of 15.625 us
const TicksPerMillisecond = 64

// Driver implements radio.Driver by recording every command
type Driver struct {
	mu       sync.Mutex
	calls    []Call
	statuses map[Op]radio.Status
	rxBuf    ringBuffer

	// OnStartCad, when set, runs after every successful StartCad with the
	// CAD and modulation parameters in effect. Simulators use it to raise
	// the next interrupt.
	OnStartCad func(mod radio.ModulationParams, cad radio.CadParams)

	modulation radio.ModulationParams
	cad        radio.CadParams
}

// New returns an empty recording driver
func New() *Driver {
	return &Driver{statuses: make(map[Op]radio.Status)}
}

// FailWith makes every subsequent call of op return status
func (d *Driver) FailWith(op Op, status radio.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[op] = status
}

func (d *Driver) status(op Op) radio.Status {
	if s, ok := d.statuses[op]; ok {
		return s
	}
	return radio.StatusOK
}

func (d *Driver) record(c Call) radio.Status {
	d.calls = append(d.calls, c)
	return d.status(c.Op)
}

func (d *Driver) ApplyModulationParams(params radio.ModulationParams) radio.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.record(Call{Op: OpApplyModulation, Modulation: params})
	if st.OK() {
		d.modulation = params
	}
	return st
}

func (d *Driver) ApplyCadParams(params radio.CadParams) radio.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.record(Call{Op: OpApplyCad, Cad: params})
	if st.OK() {
		d.cad = params
	}
	return st
}

func (d *Driver) StartCad() radio.Status {
	d.mu.Lock()
	st := d.record(Call{Op: OpStartCad, Cad: d.cad, Modulation: d.modulation})
	hook, mod, cad := d.OnStartCad, d.modulation, d.cad
	d.mu.Unlock()

	if st.OK() && hook != nil {
		hook(mod, cad)
	}
	return st
}

func (d *Driver) StartReceive(timeoutTicks uint32) radio.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record(Call{Op: OpStartReceive, TimeoutTicks: timeoutTicks})
}

func (d *Driver) ConvertMillisecondsToTicks(ms uint32) uint32 {
	return ms * TicksPerMillisecond
}

func (d *Driver) ClearPendingInterrupts() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: OpClearIRQ})
}

func (d *Driver) ConfigureInterruptSources(enabled radio.IRQMask) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: OpConfigureIRQ, IRQ: enabled})
}

func (d *Driver) ReadReceivedPayload(buf []byte) (int, radio.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.record(Call{Op: OpReadPayload})
	if !st.OK() {
		return 0, st
	}
	frame, ok := d.rxBuf.pop()
	if !ok {
		return 0, st
	}
	return copy(buf, frame), st
}

func (d *Driver) PreReceiveHousekeeping() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: OpPreRx})
}

func (d *Driver) PostReceiveHousekeeping() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: OpPostRx})
}

// InjectRx queues a frame for the next ReadReceivedPayload
func (d *Driver) InjectRx(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	frame := make([]byte, len(data))
	copy(frame, data)
	d.rxBuf.push(frame)
}

// Calls returns a copy of the call log
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallsOf returns the recorded calls of a single op
func (d *Driver) CallsOf(op Op) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Ops returns the op sequence of the call log
func (d *Driver) Ops() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Op, len(d.calls))
	for i, c := range d.calls {
		out[i] = c.Op
	}
	return out
}

// Reset clears the call log but keeps queued frames and forced statuses
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Active returns the parameters last committed to the radio
func (d *Driver) Active() (radio.ModulationParams, radio.CadParams) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modulation, d.cad
}

const ringCapacity = 16

type ringBuffer struct {
	data       [ringCapacity][]byte
	head, tail int // head = next pop, tail = next push
	count      int
}

func (rb *ringBuffer) push(frame []byte) {
	if rb.count == ringCapacity {
		// Overwrite the oldest when buffer is full to keep memory bounded
		rb.data[rb.tail] = nil
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
	}
	rb.data[rb.tail] = frame
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
}

func (rb *ringBuffer) pop() ([]byte, bool) {
	if rb.count == 0 {
		return nil, false
	}
	frame := rb.data[rb.head]
	rb.data[rb.head] = nil
	rb.head = (rb.head + 1) % ringCapacity
	rb.count--
	return frame, true
}
