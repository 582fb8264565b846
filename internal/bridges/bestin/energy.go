package bestin

import (
	"fmt"
	"math"
)

// Energy meter types carried in the low nibble of each block tag.
const (
	energyElectric = 0x1
	energyWater    = 0x2
	energyHotwater = 0x3
	energyGas      = 0x4
	energyHeat     = 0x5
)

// energyRooms maps meter type nibbles to the room name used on readings.
var energyRooms = map[byte]string{
	energyElectric: "electric",
	energyWater:    "water",
	energyHotwater: "hotwater",
	energyGas:      "gas",
	energyHeat:     "heat",
}

// energyBlockLen is the stride of an active meter block within an energy
// frame: tag byte, four total-usage digit bytes, reserved byte, two
// realtime digit bytes.
const energyBlockLen = 8

// decodeEnergy walks the tagged meter blocks of an energy frame.
//
// Byte 6 holds the block count; blocks start at byte 7. Each block's tag
// carries the meter type in the low nibble; a high nibble of 0x8 marks an
// inactive meter occupying a single byte. Totals and realtime values are
// packed as decimal digits, two per byte.
func (d *Decoder) decodeEnergy(data []byte) []Reading {
	var readings []Reading
	idx := 7

	for n := 0; n < int(data[6]); n++ {
		if idx >= len(data)-1 {
			break
		}
		tag := data[idx]
		if tag>>4&0xF == 0x8 {
			idx++
			continue
		}

		room, ok := energyRooms[tag&0x0F]
		if !ok {
			d.logger.Warn("unknown energy meter type",
				"type", fmt.Sprintf("%#x", tag&0x0F))
			idx += energyBlockLen
			continue
		}
		if idx+energyBlockLen > len(data)-1 {
			break
		}

		total, err := packedDecimal(data[idx+1 : idx+5])
		if err != nil {
			d.logger.Warn("malformed energy block",
				"room", room, "err", err,
				"frame", fmt.Sprintf("%x", data))
			return nil
		}
		realtime, err := packedDecimal(data[idx+6 : idx+8])
		if err != nil {
			d.logger.Warn("malformed energy block",
				"room", room, "err", err,
				"frame", fmt.Sprintf("%x", data))
			return nil
		}

		readings = append(readings,
			Reading{
				DeviceType: DeviceEnergyTotal,
				Room:       room,
				Sub:        "total usage",
				State:      scaleEnergy(tag&0x0F, true, total),
			},
			Reading{
				DeviceType: DeviceEnergyReal,
				Room:       room,
				Sub:        "realtime usage",
				State:      scaleEnergy(tag&0x0F, false, realtime),
			},
		)
		idx += energyBlockLen
	}
	return readings
}

// packedDecimal reads bytes whose nibbles are decimal digits (two digits
// per byte, most significant first) into a float. A nibble above 9 means a
// corrupted block.
func packedDecimal(b []byte) (float64, error) {
	var v float64
	for _, digit := range b {
		hi := digit >> 4
		lo := digit & 0x0F
		if hi > 9 || lo > 9 {
			return 0, fmt.Errorf("%w: non-decimal digit %#02x", ErrInvalidFrame, digit)
		}
		v = v*100 + float64(hi)*10 + float64(lo)
	}
	return v, nil
}

// scaleEnergy converts raw packed-decimal meter values to engineering
// units per meter type. Electric totals are in hundredths of kWh; the
// volumetric meters report thousandths of m3 with realtime flow in tenths.
func scaleEnergy(meterType byte, total bool, val float64) float64 {
	if total {
		switch meterType {
		case energyElectric:
			return round2(val / 100)
		default:
			return round2(val / 1000)
		}
	}
	switch meterType {
	case energyGas:
		return val / 10
	default:
		return val
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
