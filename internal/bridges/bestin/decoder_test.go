package bestin

import (
	"reflect"
	"strings"
	"sync"
	"testing"
)

// recordingLogger captures log messages for assertions.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) log(msg string) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.log(msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.log(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.log(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.log(msg) }

func (l *recordingLogger) count(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

// ecFrame wraps raw EC payload bytes in a Frame for the decoder.
func ecFrame(data []byte) Frame {
	return Frame{Class: ClassEC, Kind: KindResponse, Data: data}
}

// findReading returns the first reading matching deviceType and sub.
func findReading(t *testing.T, readings []Reading, deviceType, sub string) Reading {
	t.Helper()
	for _, r := range readings {
		if r.DeviceType == deviceType && r.Sub == sub {
			return r
		}
	}
	t.Fatalf("no reading with device type %q sub %q in %+v", deviceType, sub, readings)
	return Reading{}
}

func TestDecode_Gas(t *testing.T) {
	d := NewDecoder(nil)
	frame := Frame{Class: ClassGas, Kind: KindResponse,
		Data: []byte{0x02, 0x31, 0x80, 0x05, 0x05, 0x01, 0x00, 0x00, 0x00, 0x00}}

	readings, dialect := d.Decode(frame)
	if dialect != DialectUnknown {
		t.Errorf("dialect = %q, want unknown", dialect)
	}
	if len(readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(readings))
	}
	r := readings[0]
	if r.DeviceType != DeviceGas || r.Room != "5" {
		t.Errorf("reading = %+v, want gas room 5", r)
	}
	if r.State != true {
		t.Errorf("State = %v, want true", r.State)
	}
}

func TestDecode_GasBadLength(t *testing.T) {
	d := NewDecoder(nil)
	frame := Frame{Class: ClassGas, Data: []byte{0x02, 0x31, 0x80, 0x05, 0x05, 0x01, 0x00, 0x00}}

	readings, _ := d.Decode(frame)
	if readings != nil {
		t.Errorf("got %+v readings from short gas frame, want none", readings)
	}
}

func TestDecode_Doorlock(t *testing.T) {
	d := NewDecoder(nil)

	tests := []struct {
		name  string
		state byte
		want  bool
	}{
		{"locked bits set", 0xAE, true},
		{"single masked bit", 0x02, true},
		{"outside mask", 0x51, false},
		{"zero", 0x00, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := Frame{Class: ClassDoorlock,
				Data: []byte{0x02, 0x41, 0x80, 0x01, 0x01, tt.state, 0x00, 0x00, 0x00, 0x00}}
			readings, _ := d.Decode(frame)
			if len(readings) != 1 {
				t.Fatalf("got %d readings, want 1", len(readings))
			}
			if readings[0].State != tt.want {
				t.Errorf("State = %v, want %v", readings[0].State, tt.want)
			}
		})
	}
}

func TestDecode_Fan(t *testing.T) {
	d := NewDecoder(nil)
	frame := Frame{Class: ClassFan, Kind: KindResponse,
		Data: []byte{0x02, 0x61, 0x80, 0x03, 0x01, 0x11, 0x02, 0x3C, 0x00, 0x00}}

	readings, _ := d.Decode(frame)
	if len(readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(readings))
	}

	fan := findReading(t, readings, DeviceFan, "")
	state, ok := fan.State.(FanState)
	if !ok {
		t.Fatalf("fan state is %T, want FanState", fan.State)
	}
	if !state.Power || !state.Natural || state.Speed != 2 {
		t.Errorf("FanState = %+v, want power+natural, speed 2", state)
	}

	timer := findReading(t, readings, DeviceFanTimer, "timer")
	ts, ok := timer.State.(TimerState)
	if !ok {
		t.Fatalf("timer state is %T, want TimerState", timer.State)
	}
	if ts.Current != 60 || ts.Max != 240 || ts.Step != 10 {
		t.Errorf("TimerState = %+v, want current 60, max 240, step 10", ts)
	}
}

func TestDecode_ThermostatRoomState(t *testing.T) {
	d := NewDecoder(nil)
	// Room 2, powered, target 22.5 (0x16|0x40), current 21.3 (213/10).
	frame := Frame{Class: ClassThermostat, Kind: KindResponse,
		Data: []byte{
			0x02, 0x28, 0x10, 0x91, 0x07, 0x02, 0x01, 0x56,
			0x00, 0xD5, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		}}

	readings, _ := d.Decode(frame)
	if len(readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(readings))
	}
	r := readings[0]
	if r.DeviceType != DeviceThermostat || r.Room != "2" {
		t.Errorf("reading = %+v, want thermostat room 2", r)
	}
	state, ok := r.State.(ThermostatState)
	if !ok {
		t.Fatalf("state is %T, want ThermostatState", r.State)
	}
	if !state.Power {
		t.Error("Power = false, want true")
	}
	if state.Target != 22.5 {
		t.Errorf("Target = %v, want 22.5", state.Target)
	}
	if state.Current != 21.3 {
		t.Errorf("Current = %v, want 21.3", state.Current)
	}
}

func TestDecode_ThermostatControllerBroadcast(t *testing.T) {
	d := NewDecoder(nil)
	// 14-byte broadcast: heat-water range 40..80 current 55, hot-water
	// range 35..60 current 45.
	frame := Frame{Class: ClassThermostat, Kind: KindPrompt,
		Data: []byte{
			0x02, 0x28, 0x0E, 0x12, 0x01, 0x01, 0x28, 0x50,
			0x37, 0x23, 0x3C, 0x2D, 0x00, 0x00,
		}}

	readings, _ := d.Decode(frame)
	if len(readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(readings))
	}

	heat := findReading(t, readings, DeviceHeatwaterSet, "set")
	hs, ok := heat.State.(SetpointState)
	if !ok {
		t.Fatalf("heat state is %T, want SetpointState", heat.State)
	}
	if hs.Min != 0x28 || hs.Max != 0x50 || hs.Current != 0x37 || hs.Step != 5 {
		t.Errorf("heat SetpointState = %+v", hs)
	}

	hot := findReading(t, readings, DeviceHotwaterSet, "set")
	ws, ok := hot.State.(SetpointState)
	if !ok {
		t.Fatalf("hot state is %T, want SetpointState", hot.State)
	}
	if ws.Min != 0x23 || ws.Max != 0x3C || ws.Current != 0x2D || ws.Step != 1 {
		t.Errorf("hot SetpointState = %+v", ws)
	}
}

func TestDecode_EC5(t *testing.T) {
	d := NewDecoder(nil)
	// Room 1, three lights (0 and 2 on), one outlet block: on at 0x21
	// drawing 10.0W with standby cutoff clear.
	data := stamp([]byte{
		0x02, 0x51, 0x10, 0x91, 0x02, 0x03, 0x05, 0x00,
		0x01, 0x21, 0x00, 0x64, 0x00, 0x00, 0x00, 0x00,
	})

	readings, dialect := d.Decode(ecFrame(data))
	if dialect != Dialect5 {
		t.Fatalf("dialect = %q, want 5", dialect)
	}
	if len(readings) != 6 {
		t.Fatalf("got %d readings, want 6", len(readings))
	}

	if r := findReading(t, readings, DeviceLight, "0"); r.State != true || r.Room != "1" {
		t.Errorf("light 0 = %+v, want on in room 1", r)
	}
	if r := findReading(t, readings, DeviceLight, "1"); r.State != false {
		t.Errorf("light 1 = %+v, want off", r)
	}
	if r := findReading(t, readings, DeviceLight, "2"); r.State != true {
		t.Errorf("light 2 = %+v, want on", r)
	}
	if r := findReading(t, readings, DeviceOutlet, "0"); r.State != true {
		t.Errorf("outlet 0 = %+v, want on", r)
	}
	if r := findReading(t, readings, DeviceOutletPower, "power usage 0"); r.State != 10.0 {
		t.Errorf("outlet power = %+v, want 10.0", r)
	}
	if r := findReading(t, readings, DeviceOutletCutoff, "standby cutoff 0"); r.State != false {
		t.Errorf("standby cutoff = %+v, want false", r)
	}
}

func TestDecode_ECE(t *testing.T) {
	d := NewDecoder(nil)
	// Gen2 30-byte frame for room 1: four lights, three outlets.
	data := make([]byte, 30)
	data[0] = 0x02
	data[1] = 0x31
	data[2] = 0x1E
	data[3] = 0x91
	data[4] = 0x04
	data[5] = 0xE1 // room 1, Gen2 marker nibble
	data[6] = 0x09 // lights 0 and 3 on
	data[7] = 0x13 // outlets 0 and 1 on, cutoff nibble set
	data[8], data[9] = 0x00, 0x64 // cutoff value 0: 10.0
	data[12], data[13] = 0x00, 0xC8 // light power usage: 20.0
	data[14], data[15] = 0x01, 0x2C // outlet 0 power: 30.0
	stamp(data)

	readings, dialect := d.Decode(ecFrame(data))
	if dialect != DialectE {
		t.Fatalf("dialect = %q, want e", dialect)
	}

	if r := findReading(t, readings, DeviceLight, "0"); r.State != true {
		t.Errorf("light 0 = %+v, want on", r)
	}
	if r := findReading(t, readings, DeviceLight, "3"); r.State != true {
		t.Errorf("light 3 = %+v, want on", r)
	}
	if r := findReading(t, readings, DeviceLight, "1"); r.State != false {
		t.Errorf("light 1 = %+v, want off", r)
	}
	if r := findReading(t, readings, DeviceLightPower, "power usage"); r.State != 20.0 {
		t.Errorf("light power = %+v, want 20.0", r)
	}
	if r := findReading(t, readings, DeviceOutlet, "2"); r.State != false {
		t.Errorf("outlet 2 = %+v, want off", r)
	}
	if r := findReading(t, readings, DeviceOutletPower, "power usage 0"); r.State != 30.0 {
		t.Errorf("outlet 0 power = %+v, want 30.0", r)
	}
	if r := findReading(t, readings, DeviceOutletCutoff, "standby cutoff"); r.State != true {
		t.Errorf("standby cutoff = %+v, want true", r)
	}
	if r := findReading(t, readings, DeviceCutoffValue, "cutoff value 0"); r.State != 10.0 {
		t.Errorf("cutoff value 0 = %+v, want 10.0", r)
	}
}

func TestDecode_EC3(t *testing.T) {
	d := NewDecoder(nil)
	// Oldest generation: room 2, two light slots, slot 0 on at
	// brightness 100, slot 1 off.
	data := stamp([]byte{
		0x02, 0x32, 0x0C, 0x91, 0x01, 0x02, 0x01, 0x64,
		0x00, 0x00, 0x00, 0x00,
	})

	readings, dialect := d.Decode(ecFrame(data))
	if dialect != Dialect3 {
		t.Fatalf("dialect = %q, want 3", dialect)
	}
	if len(readings) != 4 {
		t.Fatalf("got %d readings, want 4", len(readings))
	}

	if r := findReading(t, readings, DeviceLight, "0"); r.State != true || r.Room != "2" {
		t.Errorf("light 0 = %+v, want on in room 2", r)
	}
	if r := findReading(t, readings, DeviceDimming, "0"); r.State != byte(0x64) {
		t.Errorf("dimming 0 = %+v, want 0x64", r)
	}
	if r := findReading(t, readings, DeviceLight, "1"); r.State != false {
		t.Errorf("light 1 = %+v, want off", r)
	}
}

func TestDecode_UndecodedClasses(t *testing.T) {
	d := NewDecoder(nil)
	for _, class := range []DeviceClass{ClassIgnore, ClassAirQuality, ClassElevator} {
		frame := Frame{Class: class,
			Data: []byte{0x02, 0xB1, 0x80, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}}
		readings, dialect := d.Decode(frame)
		if readings != nil || dialect != DialectUnknown {
			t.Errorf("class %v decoded to %+v, want nothing", class, readings)
		}
	}
}

func TestDecode_Idempotent(t *testing.T) {
	d := NewDecoder(nil)
	frames := []Frame{
		{Class: ClassGas, Kind: KindResponse,
			Data: []byte{0x02, 0x31, 0x80, 0x05, 0x05, 0x01, 0x00, 0x00, 0x00, 0x00}},
		ecFrame(stamp([]byte{
			0x02, 0x51, 0x10, 0x91, 0x02, 0x03, 0x05, 0x00,
			0x01, 0x21, 0x00, 0x64, 0x00, 0x00, 0x00, 0x00,
		})),
	}

	for _, frame := range frames {
		first, d1 := d.Decode(frame)
		second, d2 := d.Decode(frame)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("repeated decode differs: %+v vs %+v", first, second)
		}
		if d1 != d2 {
			t.Errorf("repeated decode dialect differs: %q vs %q", d1, d2)
		}
	}
}

func TestDecode_UnknownHeaderLoggedOnce(t *testing.T) {
	log := &recordingLogger{}
	d := NewDecoder(log)
	frame := Frame{Class: ClassUnknown,
		Data: []byte{0x02, 0x77, 0x80, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}}

	d.Decode(frame)
	d.Decode(frame)

	if got := log.count("unknown frame header"); got != 1 {
		t.Errorf("unknown header logged %d times, want 1", got)
	}
}
