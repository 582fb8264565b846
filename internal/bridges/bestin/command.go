package bestin

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Command sub-types refining how a device command is encoded.
const (
	SubTypeBrightness    = "brightness"
	SubTypeColorTemp     = "colortemp"
	SubTypeStandbyCutoff = "standbycutoff"
	SubTypeSetTemp       = "set_temperature"
	SubTypeSetPercentage = "set_percentage"
	SubTypePresetMode    = "preset_mode"
)

// Command is a logical state-change request for one device. The engine
// assigns the sequence number and appends the checksum before transmission.
type Command struct {
	// DeviceType is the base device type ("light", "thermostat", ...).
	DeviceType string

	// SubType refines the command encoding (brightness, standbycutoff,
	// set_temperature, ...). Empty for plain on/off.
	SubType string

	// Room is the decimal room identifier.
	Room string

	// Sub is the sub-address the command targets, in the same form the
	// decoder reports ("2", "standby cutoff 1"). Empty for single units.
	Sub string

	// Value is the requested state: bool for switching, a number for
	// levels and setpoints.
	Value any
}

// Per-dialect room header offsets for EC command frames.
var dialectRoomOffset = map[Dialect]byte{
	Dialect3: 0x30,
	Dialect5: 0x50,
}

// Headers that are fixed on the bus and never carry a room offset.
const (
	headerThermostat = 0x28
	headerGasEC      = 0x31
	headerDoorlock   = 0x41
	headerFan        = 0x61
)

// EncodeCommand builds the wire frame for cmd under the given EC dialect.
//
// The returned frame has its final byte zeroed; the caller writes the
// checksum there before sending. Encoding failures distinguish device
// types the encoder has no layout for (ErrUnknownDeviceType) from
// commands whose fields cannot be expressed (ErrEncodingFailed); in both
// cases no frame is produced.
//
// Parameters:
//   - cmd: The logical command to encode
//   - dialect: The detected EC dialect, used for light/outlet layouts
//   - seq: Sequence number to stamp into the frame
//
// Returns:
//   - []byte: Complete frame with zero checksum placeholder
//   - error: nil on success
func EncodeCommand(cmd Command, dialect Dialect, seq byte) ([]byte, error) {
	room, err := roomID(cmd.Room)
	if err != nil {
		return nil, err
	}
	sub := subIndex(cmd.Sub)

	switch cmd.DeviceType {
	case DeviceLight, DeviceDimming:
		return encodeLight(cmd, dialect, room, sub, seq), nil
	case DeviceOutlet:
		return encodeOutlet(cmd, dialect, room, sub, seq), nil
	case DeviceThermostat:
		return encodeThermostat(cmd, room, seq)
	case DeviceGas:
		return fixedFrame(headerGasEC, seq), nil
	case DeviceDoorlock:
		frame := fixedFrame(headerDoorlock, seq)
		frame[4] = 0x01
		return frame, nil
	case DeviceFan:
		return encodeFan(cmd, seq), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeviceType, cmd.DeviceType)
	}
}

// commonFrame builds the shared command frame skeleton: sentinel, room
// header (offset per dialect unless the header is a fixed bus address),
// length, type byte, and sequence number, zero-padded to length.
func commonFrame(header byte, length int, typeByte, seq byte, dialect Dialect) []byte {
	if header != headerThermostat && header != headerGasEC {
		header += dialectRoomOffset[dialect]
	}
	frame := make([]byte, length)
	frame[0] = frameSentinel
	frame[1] = header
	frame[2] = byte(length)
	frame[3] = typeByte
	frame[4] = seq
	return frame
}

// fixedFrame builds the ten-byte short command frame used by the gas valve
// and doorlock, which carry the type byte where longer frames carry the
// length.
func fixedFrame(header byte, seq byte) []byte {
	frame := make([]byte, shortFrameLen)
	frame[0] = frameSentinel
	frame[1] = header
	frame[2] = 0x02
	frame[3] = seq
	return frame
}

func encodeLight(cmd Command, dialect Dialect, room byte, sub int, seq byte) []byte {
	on := truthy(cmd.Value)
	level, isLevel := levelByte(cmd.Value)

	switch dialect {
	case Dialect3:
		onoff := byte(0x01)
		if !on {
			onoff = 0x02
		}
		frame := commonFrame(room, 0x0E, 0x21, seq, dialect)
		frame[5] = 0x01
		frame[7] = byte(sub + 1)
		frame[8] = onoff
		frame[9] = 0xFF
		frame[10] = 0xFF
		frame[12] = 0xFF
		if isLevel {
			frame[8] = 0xFF
			if cmd.SubType == SubTypeBrightness {
				frame[9] = level
			} else {
				frame[10] = level
			}
		}
		return frame
	case Dialect5:
		frame := commonFrame(room, 0x0A, 0x12, seq, dialect)
		if on {
			frame[5] = 0x01
		}
		if sub == 4 {
			frame[6] = 10
		} else {
			frame[6] = 1 << uint(sub)
		}
		return frame
	default:
		frame := commonFrame(headerGasEC, 0x0D, 0x01, seq, dialect)
		frame[5] = room & 0x0F
		frame[6] = byte(1 << uint(sub))
		if on {
			frame[6] |= 0x80
			frame[11] = 0x04
		}
		return frame
	}
}

func encodeOutlet(cmd Command, dialect Dialect, room byte, sub int, seq byte) []byte {
	on := truthy(cmd.Value)
	onoff, flag := byte(0x02), byte(0x00)
	if on {
		onoff, flag = 0x01, 0x80
	}

	switch dialect {
	case Dialect3:
		frame := commonFrame(room, 0x09, 0x22, seq, dialect)
		frame[5] = 0x01
		frame[6] = byte(sub+1) & 0x0F
		frame[7] = onoff
		if cmd.SubType == SubTypeStandbyCutoff {
			frame[7] = onoff * 0x10
		}
		return frame
	case Dialect5:
		frame := commonFrame(room, 0x0C, 0x12, seq, dialect)
		frame[8] = 0x01
		frame[9] = byte(sub+1) & 0x0F
		if cmd.SubType != "" {
			frame[10] = onoff >> (onoff + 3)
		} else {
			frame[10] = onoff
		}
		return frame
	default:
		frame := commonFrame(headerGasEC, 0x0D, 0x01, seq, dialect)
		frame[5] = room & 0x0F
		if cmd.SubType == SubTypeStandbyCutoff {
			frame[8] = flag + 0x03
		} else {
			frame[7] = byte(1<<uint(sub)) | flag
			if on {
				frame[11] = byte(0x09 << uint(sub))
			}
		}
		return frame
	}
}

func encodeThermostat(cmd Command, room byte, seq byte) ([]byte, error) {
	frame := commonFrame(headerThermostat, 14, 0x12, seq, DialectUnknown)
	frame[5] = room & 0x0F

	if cmd.SubType == SubTypeSetTemp {
		target, ok := floatValue(cmd.Value)
		if !ok {
			return nil, fmt.Errorf("%w: thermostat setpoint needs a numeric value, got %T",
				ErrEncodingFailed, cmd.Value)
		}
		whole, frac := math.Modf(target)
		frame[7] = byte(whole)
		if frac != 0 {
			frame[7] |= 0x40
		}
		return frame, nil
	}

	if truthy(cmd.Value) {
		frame[6] = 0x01
	} else {
		frame[6] = 0x02
	}
	return frame, nil
}

func encodeFan(cmd Command, seq byte) []byte {
	frame := make([]byte, shortFrameLen)
	frame[0] = frameSentinel
	frame[1] = headerFan
	frame[3] = seq

	switch cmd.SubType {
	case SubTypeSetPercentage:
		frame[2] = 0x03
		level, _ := levelByte(cmd.Value)
		frame[6] = level
	case SubTypePresetMode:
		frame[2] = 0x07
		if truthy(cmd.Value) {
			frame[5] = 0x10
		}
	default:
		frame[2] = 0x01
		if truthy(cmd.Value) {
			frame[5] = 0x01
		}
		frame[6] = 0x01
	}
	return frame
}

// roomID parses the decimal room identifier of a command.
func roomID(room string) (byte, error) {
	n, err := strconv.Atoi(room)
	if err != nil || n < 0 || n > 0xFF {
		return 0, fmt.Errorf("%w: bad room id %q", ErrEncodingFailed, room)
	}
	return byte(n), nil
}

// subIndex extracts the channel index from a sub-address. Sub-addresses
// are either a bare index ("2") or a spaced facet name with a trailing
// index ("standby cutoff 1"); anything else addresses channel 0.
func subIndex(sub string) int {
	if sub == "" {
		return 0
	}
	parts := strings.Fields(sub)
	if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
		return n
	}
	return 0
}

// truthy reports whether a command value requests the "on" state.
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != "" && val != "off" && val != "0"
	default:
		f, ok := floatValue(v)
		return ok && f != 0
	}
}

// levelByte converts a numeric command value to a level byte, reporting
// whether the value was numeric at all (a bool is not a level).
func levelByte(v any) (byte, bool) {
	f, ok := floatValue(v)
	if !ok {
		return 0, false
	}
	if f < 0 {
		f = 0
	}
	if f > 0xFF {
		f = 0xFF
	}
	return byte(f), true
}

func floatValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint8:
		return float64(val), true
	default:
		return 0, false
	}
}
