package usbradio

import "testing"

func TestSelectorParse(t *testing.T) {
	tests := []struct {
		sel     DeviceSelector
		kind    selectorKind
		wantErr bool
	}{
		{"", selectFirst, false},
		{"#2", selectIndex, false},
		{"#x", 0, true},
		{"#-1", 0, true},
		{"1:10", selectBusAddr, false},
		{"a:10", 0, true},
		{"1:b", 0, true},
		{"009a", selectSerial, false},
	}

	for _, tt := range tests {
		p, err := tt.sel.parse()
		if (err != nil) != tt.wantErr {
			t.Errorf("parse(%q) error = %v, wantErr %v", tt.sel, err, tt.wantErr)
			continue
		}
		if err == nil && p.kind != tt.kind {
			t.Errorf("parse(%q) kind = %v, want %v", tt.sel, p.kind, tt.kind)
		}
	}
}

func TestSelectorPick(t *testing.T) {
	devices := []*Device{
		{Serial: "0001", Bus: 1, Address: 4},
		{Serial: "0002", Bus: 1, Address: 7},
		{Serial: "0002", Bus: 2, Address: 3},
	}

	tests := []struct {
		sel     DeviceSelector
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"#1", 1, false},
		{"#3", -1, true},
		{"2:3", 2, false},
		{"2:4", -1, true},
		{"0001", 0, false},
		{"0002", -1, true}, // ambiguous
		{"ffff", -1, true},
	}

	for _, tt := range tests {
		p, err := tt.sel.parse()
		if err != nil {
			t.Fatalf("parse(%q): %v", tt.sel, err)
		}
		got, err := p.pick(devices)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("pick(%q) = %d, %v; want %d, err=%v", tt.sel, got, err, tt.want, tt.wantErr)
		}
	}

	if _, err := (parsedSelector{}).pick(nil); err == nil {
		t.Error("expected error with no devices")
	}
}
