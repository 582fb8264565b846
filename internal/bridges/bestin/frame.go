package bestin

// Frame sentinel and structural offsets.
const (
	// frameSentinel marks the start of every frame on the bus.
	frameSentinel = 0x02

	// shortFrameLen is the implied length for frame families that do not
	// carry an explicit length byte (gas, fan, and the short ignore frames).
	shortFrameLen = 10
)

// DeviceClass identifies the device family a frame belongs to, derived from
// the frame's header byte. The set is closed: headers outside the table
// classify as ClassUnknown and undecoded-but-recognised traffic as
// ClassIgnore.
type DeviceClass uint8

// Device classes in header-table order.
const (
	ClassUnknown DeviceClass = iota
	ClassThermostat
	ClassGas
	ClassDoorlock
	ClassFan
	ClassAirQuality
	ClassElevator
	ClassEnergy
	ClassEC
	ClassIgnore
)

// String returns the lowercase name of the device class.
func (c DeviceClass) String() string {
	switch c {
	case ClassThermostat:
		return "thermostat"
	case ClassGas:
		return "gas"
	case ClassDoorlock:
		return "doorlock"
	case ClassFan:
		return "fan"
	case ClassAirQuality:
		return "airquality"
	case ClassElevator:
		return "elevator"
	case ClassEnergy:
		return "energy"
	case ClassEC:
		return "ec"
	case ClassIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// FrameKind distinguishes the three roles a frame can play on the bus.
type FrameKind uint8

const (
	// KindQuery is a poll from the wallpad; carries no state of interest.
	KindQuery FrameKind = iota

	// KindResponse is a device answering a poll with its current state.
	KindResponse

	// KindPrompt is an unsolicited state announcement, including the echo
	// a device sends after accepting a command.
	KindPrompt
)

// String returns the lowercase name of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindResponse:
		return "response"
	default:
		return "prompt"
	}
}

// Frame is one checksum-delimited unit extracted from the byte stream.
// Data holds the complete frame bytes including sentinel and checksum;
// it is a private copy and never aliases the read buffer.
type Frame struct {
	Class DeviceClass
	Kind  FrameKind
	Seq   byte
	Data  []byte
}

// Dialect identifies the EC (energy controller) frame generation in use on
// a given installation. Detected once from frame shape and then persisted.
type Dialect string

const (
	// DialectUnknown means no EC frame has been observed yet.
	DialectUnknown Dialect = ""

	// Dialect3 is the oldest generation (0x3n room headers, 38400 baud).
	Dialect3 Dialect = "3"

	// Dialect5 is the AIO generation (0x5n room headers).
	Dialect5 Dialect = "5"

	// DialectE is the Gen2 generation (30-byte composite frames).
	DialectE Dialect = "e"
)

// headerEntry describes how a header byte maps to a device class. Ambiguous
// headers carry an alternate class selected by the frame's length/type byte.
type headerEntry struct {
	primary   DeviceClass
	alternate DeviceClass
	ambiguous bool
}

// headerClasses is the classification table for the third-party devices on
// the bus. Headers absent from the table classify as unknown unless they
// match the EC room-header shape.
var headerClasses = map[byte]headerEntry{
	0x28: {primary: ClassThermostat},
	0x31: {primary: ClassGas, alternate: ClassEC, ambiguous: true},
	0x32: {primary: ClassIgnore, alternate: ClassEC, ambiguous: true},
	0x41: {primary: ClassDoorlock, alternate: ClassIgnore, ambiguous: true},
	0x42: {primary: ClassIgnore},
	0x61: {primary: ClassFan},
	0xB1: {primary: ClassAirQuality},
	0xC1: {primary: ClassElevator},
	0xD1: {primary: ClassEnergy},
}

// shortTypeBytes are the length/type values that select the primary class
// of an ambiguous header and imply the fixed short frame length.
func isShortTypeByte(b byte) bool {
	return b == 0x00 || b == 0x80 || b == 0x02 || b == 0x82
}

// isECHeader reports whether header has the EC room-header shape: upper
// nibble 1-9 with a room number 1-6 or the broadcast nibble 0xF below it.
func isECHeader(header byte) bool {
	hi := header >> 4
	lo := header & 0x0F
	if hi < 0x1 || hi > 0x9 {
		return false
	}
	return (lo >= 0x1 && lo <= 0x6) || lo == 0xF
}

// classifyHeader resolves a header byte to a device class. typeByte is the
// byte at frame offset 2, used to disambiguate headers shared between two
// families.
func classifyHeader(header, typeByte byte) DeviceClass {
	if entry, ok := headerClasses[header]; ok {
		if entry.ambiguous && !isShortTypeByte(typeByte) {
			return entry.alternate
		}
		return entry.primary
	}
	if isECHeader(header) {
		return ClassEC
	}
	return ClassUnknown
}

// frameLength returns the byte length of a frame of the given class.
// Gas, fan, and short ignore frames have no length byte and are always ten
// bytes; every other class carries its length at offset 2.
func frameLength(class DeviceClass, typeByte byte) int {
	switch class {
	case ClassGas, ClassIgnore:
		if isShortTypeByte(typeByte) {
			return shortFrameLen
		}
	case ClassFan:
		return shortFrameLen
	}
	return int(typeByte)
}

// frameKind classifies the frame's role from its kind byte. The kind byte
// sits at offset 2 on short frames (where it doubles as the type byte) and
// at offset 3 on length-prefixed frames; the sequence number follows it.
func frameKind(kindByte byte) FrameKind {
	switch kindByte {
	case 0x00, 0x01, 0x02, 0x11, 0x21:
		return KindQuery
	case 0x80, 0x82, 0x91, 0xA1, 0xB1:
		return KindResponse
	default:
		return KindPrompt
	}
}

// kindSeqOffsets returns the in-frame offsets of the kind byte and the
// sequence number for a frame of the given length.
func kindSeqOffsets(length int) (kindOff, seqOff int) {
	if length == shortFrameLen {
		return 2, 3
	}
	return 3, 4
}
