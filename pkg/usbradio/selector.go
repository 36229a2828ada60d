package usbradio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gousb"
)

// DeviceSelector specifies how to identify a bridge
// Supported formats:
//   - ""           : Use first available device
//   - "serial"     : Match by serial number (e.g., "009a")
//   - "bus:addr"   : Match by USB bus and address (e.g., "1:10")
//   - "#N"         : Use Nth device, 0-indexed (e.g., "#0", "#1")
type DeviceSelector string

type selectorKind int

const (
	selectFirst selectorKind = iota
	selectIndex
	selectBusAddr
	selectSerial
)

type parsedSelector struct {
	kind   selectorKind
	index  int
	bus    int
	addr   int
	serial string
}

func (s DeviceSelector) parse() (parsedSelector, error) {
	sel := string(s)

	if sel == "" {
		return parsedSelector{kind: selectFirst}, nil
	}

	// Index selector: #0, #1, etc.
	if strings.HasPrefix(sel, "#") {
		index, err := strconv.Atoi(sel[1:])
		if err != nil || index < 0 {
			return parsedSelector{}, fmt.Errorf("invalid device index: %s", sel)
		}
		return parsedSelector{kind: selectIndex, index: index}, nil
	}

	// Bus:Address selector: 1:10, 2:5, etc.
	if strings.Contains(sel, ":") {
		parts := strings.SplitN(sel, ":", 2)
		bus, err := strconv.Atoi(parts[0])
		if err != nil {
			return parsedSelector{}, fmt.Errorf("invalid bus number: %s", parts[0])
		}
		addr, err := strconv.Atoi(parts[1])
		if err != nil {
			return parsedSelector{}, fmt.Errorf("invalid address number: %s", parts[1])
		}
		return parsedSelector{kind: selectBusAddr, bus: bus, addr: addr}, nil
	}

	return parsedSelector{kind: selectSerial, serial: sel}, nil
}

// pick returns the index of the selected device in devices
func (p parsedSelector) pick(devices []*Device) (int, error) {
	if len(devices) == 0 {
		return -1, fmt.Errorf("no LoRa bridge devices found")
	}

	switch p.kind {
	case selectFirst:
		return 0, nil

	case selectIndex:
		if p.index >= len(devices) {
			return -1, fmt.Errorf("device index %d out of range (found %d devices)", p.index, len(devices))
		}
		return p.index, nil

	case selectBusAddr:
		for i, d := range devices {
			if d.Bus == p.bus && d.Address == p.addr {
				return i, nil
			}
		}
		return -1, fmt.Errorf("no LoRa bridge found at bus %d address %d", p.bus, p.addr)
	}

	match := -1
	for i, d := range devices {
		if d.Serial != p.serial {
			continue
		}
		if match != -1 {
			return -1, fmt.Errorf("multiple devices found with serial %s; use bus:addr format (e.g., 1:10) or index format (e.g., #0)", p.serial)
		}
		match = i
	}
	if match == -1 {
		return -1, fmt.Errorf("no LoRa bridge found with serial %s", p.serial)
	}
	return match, nil
}

// SelectDevice opens the bridge matching the selector and closes the others
func SelectDevice(context *gousb.Context, selector DeviceSelector) (*Device, error) {
	parsed, err := selector.parse()
	if err != nil {
		return nil, err
	}

	devices, err := FindAllDevices(context)
	if err != nil {
		return nil, err
	}

	index, err := parsed.pick(devices)
	for i, d := range devices {
		if i != index {
			d.Close()
		}
	}
	if err != nil {
		return nil, err
	}

	return devices[index], nil
}

// DeviceFlagUsage returns usage string for the -d flag
func DeviceFlagUsage() string {
	return `Device selector. Formats:
    ""        - Use first available device
    "serial"  - Match by serial number (e.g., "009a")
    "bus:addr"- Match by USB location (e.g., "1:10")
    "#N"      - Use Nth device, 0-indexed (e.g., "#0", "#1")`
}
