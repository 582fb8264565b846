package bestin

import (
	"errors"
	"testing"
)

// energyFrame builds an energy response frame from the given meter blocks.
func energyFrame(count byte, blocks ...byte) Frame {
	data := []byte{0x02, 0xD1, 0x00, 0x91, 0x05, 0x00, count}
	data = append(data, blocks...)
	data = append(data, 0x00) // checksum slot
	data[2] = byte(len(data))
	return Frame{Class: ClassEnergy, Kind: KindResponse, Data: stamp(data)}
}

func TestDecode_Energy(t *testing.T) {
	d := NewDecoder(nil)
	// One active electric block: total 00012345 (packed decimal), one
	// reserved byte, realtime 0678; then an inactive marker byte.
	frame := energyFrame(2,
		0x11, 0x00, 0x01, 0x23, 0x45, 0x00, 0x06, 0x78,
		0x84,
	)

	readings, dialect := d.Decode(frame)
	if dialect != DialectUnknown {
		t.Errorf("dialect = %q, want unknown", dialect)
	}
	if len(readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(readings))
	}

	total := findReading(t, readings, DeviceEnergyTotal, "total usage")
	if total.Room != "electric" {
		t.Errorf("Room = %q, want electric", total.Room)
	}
	if total.State != 123.45 {
		t.Errorf("total = %v, want 123.45 (12345 hundredths of kWh)", total.State)
	}

	realtime := findReading(t, readings, DeviceEnergyReal, "realtime usage")
	if realtime.State != 678.0 {
		t.Errorf("realtime = %v, want 678", realtime.State)
	}
}

func TestDecode_EnergyGasScaling(t *testing.T) {
	d := NewDecoder(nil)
	// Gas: totals scale by 1/1000, realtime by 1/10.
	frame := energyFrame(1,
		0x14, 0x00, 0x01, 0x23, 0x45, 0x00, 0x00, 0x32,
	)

	readings, _ := d.Decode(frame)
	if len(readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(readings))
	}

	total := findReading(t, readings, DeviceEnergyTotal, "total usage")
	if total.Room != "gas" {
		t.Errorf("Room = %q, want gas", total.Room)
	}
	if total.State != 12.35 {
		t.Errorf("total = %v, want 12.35 (12345/1000 rounded)", total.State)
	}

	realtime := findReading(t, readings, DeviceEnergyReal, "realtime usage")
	if realtime.State != 3.2 {
		t.Errorf("realtime = %v, want 3.2 (32/10)", realtime.State)
	}
}

func TestDecode_EnergyMalformedBlockDropsFrame(t *testing.T) {
	d := NewDecoder(nil)
	// 0xAB is not a packed-decimal byte; the whole frame is rejected.
	frame := energyFrame(1,
		0x11, 0xAB, 0x01, 0x23, 0x45, 0x00, 0x06, 0x78,
	)

	readings, _ := d.Decode(frame)
	if readings != nil {
		t.Errorf("got %+v readings from malformed frame, want none", readings)
	}
}

func TestDecode_EnergyUnknownMeterSkipped(t *testing.T) {
	log := &recordingLogger{}
	d := NewDecoder(log)
	// Meter nibble 0x7 is not a known resource; its block is skipped and
	// the following electric block still decodes.
	frame := energyFrame(2,
		0x17, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x01,
		0x11, 0x00, 0x01, 0x23, 0x45, 0x00, 0x06, 0x78,
	)

	readings, _ := d.Decode(frame)
	if len(readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(readings))
	}
	if readings[0].Room != "electric" {
		t.Errorf("Room = %q, want electric", readings[0].Room)
	}
	if got := log.count("unknown energy meter type"); got != 1 {
		t.Errorf("unknown meter logged %d times, want 1", got)
	}
}

func TestPackedDecimal(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    float64
		wantErr bool
	}{
		{"four bytes", []byte{0x00, 0x01, 0x23, 0x45}, 12345, false},
		{"two bytes", []byte{0x06, 0x78}, 678, false},
		{"zero", []byte{0x00, 0x00}, 0, false},
		{"all nines", []byte{0x99, 0x99}, 9999, false},
		{"high nibble invalid", []byte{0xA0}, 0, true},
		{"low nibble invalid", []byte{0x0F}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := packedDecimal(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFrame) {
					t.Errorf("error = %v, want ErrInvalidFrame", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("packedDecimal(%x) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("packedDecimal(%x) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestScaleEnergy(t *testing.T) {
	tests := []struct {
		name      string
		meterType byte
		total     bool
		in        float64
		want      float64
	}{
		{"electric total", energyElectric, true, 12345, 123.45},
		{"water total", energyWater, true, 12345, 12.35},
		{"heat total", energyHeat, true, 1500, 1.5},
		{"gas realtime", energyGas, false, 32, 3.2},
		{"electric realtime passthrough", energyElectric, false, 678, 678},
		{"water realtime passthrough", energyWater, false, 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scaleEnergy(tt.meterType, tt.total, tt.in); got != tt.want {
				t.Errorf("scaleEnergy(%#x, %v, %v) = %v, want %v",
					tt.meterType, tt.total, tt.in, got, tt.want)
			}
		})
	}
}
