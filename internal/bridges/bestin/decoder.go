package bestin

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
)

// Device type identifiers carried on readings and commands. Composite types
// use a colon-separated sub-facet suffix.
const (
	DeviceLight        = "light"
	DeviceDimming      = "dimming"
	DeviceOutlet       = "outlet"
	DeviceThermostat   = "thermostat"
	DeviceFan          = "fan"
	DeviceGas          = "gas"
	DeviceDoorlock     = "doorlock"
	DeviceEnergy       = "energy"
	DeviceElevator     = "elevator"
	DeviceAirQuality   = "airquality"
	DeviceFanTimer     = "fan:timer"
	DeviceLightPower   = "light:powerusage"
	DeviceOutletPower  = "outlet:powerusage"
	DeviceOutletCutoff = "outlet:standbycutoff"
	DeviceCutoffValue  = "outlet:cutoffvalue"
	DeviceHeatwaterSet = "heatwater:set"
	DeviceHotwaterSet  = "hotwater:set"
	DeviceEnergyTotal  = "energy:totalusage"
	DeviceEnergyReal   = "energy:realtimeusage"
)

// Reading is one decoded observation from a response or prompt frame.
// A single frame can yield many readings (EC composites, energy blocks).
type Reading struct {
	// DeviceType is the dotted device type, e.g. "outlet:powerusage".
	DeviceType string

	// Room is the room identifier, decimal for roomed devices or the
	// meter name for energy readings.
	Room string

	// Sub is the sub-address within the room ("0".."3" for light channels,
	// "timer", "power usage 1", ...). Empty for single-unit devices.
	Sub string

	// State is the decoded state value. One of bool, uint8, float64, or
	// one of the composite state structs in this package.
	State any
}

// FanState is the composite state of a ventilation fan.
type FanState struct {
	Power   bool  `json:"power"`
	Natural bool  `json:"natural"`
	Speed   uint8 `json:"speed"`
}

// TimerState is a bounded numeric state with its adjustment step, used for
// the fan off-timer (minutes).
type TimerState struct {
	Current uint8 `json:"current"`
	Min     uint8 `json:"min"`
	Max     uint8 `json:"max"`
	Step    uint8 `json:"step"`
}

// SetpointState is a bounded setpoint reported by the heat/hot-water
// controller broadcast.
type SetpointState struct {
	Current uint8 `json:"current"`
	Min     uint8 `json:"min"`
	Max     uint8 `json:"max"`
	Step    uint8 `json:"step"`
}

// ThermostatState is the per-room heating state.
type ThermostatState struct {
	Power   bool    `json:"power"`
	Target  float64 `json:"target"`
	Current float64 `json:"current"`
}

// Decoder turns classified frames into device readings.
//
// Decoding is stateless apart from log-once suppression for unknown
// headers. EC dialect detection is reported to the caller on every EC
// frame; the engine turns the first change into an event.
type Decoder struct {
	logger Logger

	mu          sync.Mutex
	seenUnknown map[byte]struct{}
}

// NewDecoder creates a Decoder. A nil logger disables logging.
func NewDecoder(logger Logger) *Decoder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Decoder{
		logger:      logger,
		seenUnknown: make(map[byte]struct{}),
	}
}

// Decode extracts the readings carried by frame.
//
// Frames that carry no device state (queries never reach here; ignore,
// air-quality, and elevator frames have no bus-side decode) yield no
// readings. Structurally malformed payloads are logged and dropped without
// affecting the surrounding stream.
//
// Returns:
//   - []Reading: Zero or more decoded readings
//   - Dialect: The EC dialect implied by the frame shape, or DialectUnknown
//     for non-EC frames and unrecognised EC shapes
func (d *Decoder) Decode(frame Frame) ([]Reading, Dialect) {
	data := frame.Data
	if len(data) < minFrameLen {
		return nil, DialectUnknown
	}

	switch frame.Class {
	case ClassThermostat:
		return d.decodeThermostat(data), DialectUnknown
	case ClassGas:
		return d.decodeGas(data), DialectUnknown
	case ClassDoorlock:
		return d.decodeDoorlock(data), DialectUnknown
	case ClassFan:
		return d.decodeFan(data), DialectUnknown
	case ClassEnergy:
		return d.decodeEnergy(data), DialectUnknown
	case ClassEC:
		return d.decodeEC(data)
	case ClassIgnore, ClassAirQuality, ClassElevator:
		// Recognised traffic with no bus-side state decode.
		return nil, DialectUnknown
	default:
		d.logUnknownHeader(data)
		return nil, DialectUnknown
	}
}

// logUnknownHeader logs an unrecognised header byte once per process.
func (d *Decoder) logUnknownHeader(data []byte) {
	header := data[1]
	d.mu.Lock()
	_, seen := d.seenUnknown[header]
	d.seenUnknown[header] = struct{}{}
	d.mu.Unlock()
	if !seen {
		d.logger.Warn("unknown frame header",
			"header", fmt.Sprintf("%#02x", header),
			"frame", fmt.Sprintf("%x", data))
	}
}

func (d *Decoder) decodeGas(data []byte) []Reading {
	if len(data) != shortFrameLen {
		d.logBadLength(DeviceGas, data)
		return nil
	}
	return []Reading{{
		DeviceType: DeviceGas,
		Room:       strconv.Itoa(int(data[4])),
		State:      data[5] != 0,
	}}
}

func (d *Decoder) decodeDoorlock(data []byte) []Reading {
	if len(data) != shortFrameLen {
		d.logBadLength(DeviceDoorlock, data)
		return nil
	}
	return []Reading{{
		DeviceType: DeviceDoorlock,
		Room:       strconv.Itoa(int(data[4])),
		State:      data[5]&0xAE != 0,
	}}
}

func (d *Decoder) decodeFan(data []byte) []Reading {
	if len(data) != shortFrameLen {
		d.logBadLength(DeviceFan, data)
		return nil
	}
	room := strconv.Itoa(int(data[4]))
	return []Reading{
		{
			DeviceType: DeviceFan,
			Room:       room,
			State: FanState{
				Power:   data[5]&0x01 != 0,
				Natural: data[5]>>4&1 != 0,
				Speed:   data[6],
			},
		},
		{
			DeviceType: DeviceFanTimer,
			Room:       room,
			Sub:        "timer",
			State: TimerState{
				Current: data[7],
				Min:     0,
				Max:     240,
				Step:    10,
			},
		},
	}
}

// decodeThermostat handles the two thermostat frame layouts: the 14-byte
// controller broadcast with heat/hot-water setpoint ranges and the 16-byte
// per-room state.
func (d *Decoder) decodeThermostat(data []byte) []Reading {
	switch len(data) {
	case 14:
		room := strconv.Itoa(int(data[5]))
		return []Reading{
			{
				DeviceType: DeviceHeatwaterSet,
				Room:       room,
				Sub:        "set",
				State: SetpointState{
					Min:     data[6],
					Max:     data[7],
					Current: data[8],
					Step:    5,
				},
			},
			{
				DeviceType: DeviceHotwaterSet,
				Room:       room,
				Sub:        "set",
				State: SetpointState{
					Min:     data[9],
					Max:     data[10],
					Current: data[11],
					Step:    1,
				},
			},
		}
	case 16:
		target := float64(data[7] & 0x3F)
		if data[7]&0x40 != 0 {
			target += 0.5
		}
		return []Reading{{
			DeviceType: DeviceThermostat,
			Room:       strconv.Itoa(int(data[5] & 0x0F)),
			State: ThermostatState{
				Power:   data[6]&0x01 != 0,
				Target:  target,
				Current: float64(binary.BigEndian.Uint16(data[8:10])) / 10.0,
			},
		}}
	default:
		d.logBadLength(DeviceThermostat, data)
		return nil
	}
}

// decodeEC dispatches an energy-controller composite frame to the dialect
// decoder implied by its shape and reports which dialect matched.
func (d *Decoder) decodeEC(data []byte) ([]Reading, Dialect) {
	switch {
	case data[1]&0xF0 == 0x30 && len(data) != 30:
		return d.decodeEC3(data), Dialect3
	case data[1]&0xF0 == 0x50:
		return d.decodeEC5(data), Dialect5
	case data[5]&0xF0 == 0xE0 && len(data) == 30:
		return d.decodeECE(data), DialectE
	default:
		d.logger.Warn("unrecognised EC frame shape",
			"header", fmt.Sprintf("%#02x", data[1]),
			"frame", fmt.Sprintf("%x", data))
		return nil, DialectUnknown
	}
}

// decodeEC3 decodes the oldest EC generation: per-room frames with a light
// slot count at byte 5, on/off bits at byte 6, and one brightness byte per
// slot from byte 7. Slots on non-dimmable circuits report brightness 0.
func (d *Decoder) decodeEC3(data []byte) []Reading {
	room := strconv.Itoa(int(data[1] & 0x0F))
	count := int(data[5])

	var readings []Reading
	for i := 0; i < count; i++ {
		if 7+i >= len(data)-1 {
			break
		}
		readings = append(readings,
			Reading{
				DeviceType: DeviceLight,
				Room:       room,
				Sub:        strconv.Itoa(i),
				State:      bitSet(data[6], i),
			},
			Reading{
				DeviceType: DeviceDimming,
				Room:       room,
				Sub:        strconv.Itoa(i),
				State:      data[7+i],
			},
		)
	}
	return readings
}

// decodeEC5 decodes the AIO generation: light channel count at byte 5 with
// state bits at byte 6, then outlet blocks of five bytes each from byte 9.
func (d *Decoder) decodeEC5(data []byte) []Reading {
	room := strconv.Itoa(int(data[1] & 0x0F))

	var readings []Reading
	for i := 0; i < int(data[5]); i++ {
		readings = append(readings, Reading{
			DeviceType: DeviceLight,
			Room:       room,
			Sub:        strconv.Itoa(i),
			State:      bitSet(data[6], i),
		})
	}
	for i := 0; i < int(data[8]); i++ {
		base := 9 + 5*i
		if base+3 > len(data)-1 {
			break
		}
		readings = append(readings,
			Reading{
				DeviceType: DeviceOutlet,
				Room:       room,
				Sub:        strconv.Itoa(i),
				State:      data[base] == 0x21 || data[base] == 0x11,
			},
			Reading{
				DeviceType: DeviceOutletPower,
				Room:       room,
				Sub:        fmt.Sprintf("power usage %d", i),
				State:      float64(binary.BigEndian.Uint16(data[base+1:base+3])) / 10,
			},
			Reading{
				DeviceType: DeviceOutletCutoff,
				Room:       room,
				Sub:        fmt.Sprintf("standby cutoff %d", i),
				State:      data[base] == 0x11 || data[base] == 0x13 || data[base] == 0x12,
			},
		)
	}
	return readings
}

// decodeECE decodes the Gen2 generation: fixed 30-byte frames with the room
// in byte 5. Room 1 carries four lights and three outlets; all other rooms
// two of each.
func (d *Decoder) decodeECE(data []byte) []Reading {
	room := strconv.Itoa(int(data[5] & 0x0F))
	lights, outlets := 2, 2
	if data[5]&0x0F == 0x1 {
		lights, outlets = 4, 3
	}

	var readings []Reading
	for i := 0; i < lights; i++ {
		readings = append(readings,
			Reading{
				DeviceType: DeviceLight,
				Room:       room,
				Sub:        strconv.Itoa(i),
				State:      bitSet(data[6], i),
			},
			Reading{
				DeviceType: DeviceLightPower,
				Room:       room,
				Sub:        "power usage",
				State:      float64(binary.BigEndian.Uint16(data[12:14])) / 10,
			},
		)
	}
	for i := 0; i < outlets; i++ {
		readings = append(readings,
			Reading{
				DeviceType: DeviceOutlet,
				Room:       room,
				Sub:        strconv.Itoa(i),
				State:      bitSet(data[7], i),
			},
			Reading{
				DeviceType: DeviceOutletPower,
				Room:       room,
				Sub:        fmt.Sprintf("power usage %d", i),
				State:      float64(binary.BigEndian.Uint16(data[14+2*i:16+2*i])) / 10,
			},
			Reading{
				DeviceType: DeviceOutletCutoff,
				Room:       room,
				Sub:        "standby cutoff",
				State:      data[7]>>4&1 != 0,
			},
		)
		if i <= 1 {
			readings = append(readings, Reading{
				DeviceType: DeviceCutoffValue,
				Room:       room,
				Sub:        fmt.Sprintf("cutoff value %d", i),
				State:      float64(binary.BigEndian.Uint16(data[8+2*i:10+2*i])) / 10,
			})
		}
	}
	return readings
}

// bitSet reports whether bit i of b is set. Indices past the top bit read
// as clear, matching channel counts larger than the status byte.
func bitSet(b byte, i int) bool {
	if i >= 8 {
		return false
	}
	return b>>uint(i)&1 == 1
}

func (d *Decoder) logBadLength(deviceType string, data []byte) {
	d.logger.Warn("unexpected frame length",
		"device_type", deviceType,
		"length", len(data),
		"frame", fmt.Sprintf("%x", data))
}
