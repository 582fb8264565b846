// Package bestin implements the HDC BESTIN wallpad protocol bridge.
//
// This package speaks the BESTIN RS-485 bus protocol used by HDC wallpad
// installations, either over a local serial port or over a serial-to-TCP
// converter (EW11 and similar). It translates between the raw bus frames
// and the bridge's internal device representation.
//
// # Architecture
//
// The bridge operates as a translator between two buses:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   MQTT broker   │   MQTT   │  BESTIN Bridge  │  RS-485 / TCP
//	│  (host surface) │◄────────►│   (this pkg)    │◄────────► wallpad bus
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Connect to the bus via serial (9600 8N1) or TCP with automatic reconnect
//   - Split the raw byte stream into checksum-verified frames
//   - Classify frames by header byte and decode them into device readings
//   - Encode state-change commands per device type and EC dialect
//   - Run the half-duplex send/receive engine with a single-outstanding
//     command queue and geometric retry backoff
//   - Publish state changes and acknowledgements over MQTT
//
// # Frames
//
// Every frame starts with the 0x02 sentinel, carries its device class in the
// header byte, its length (or an implied fixed length for short frame
// families), a type byte, an echoed sequence number, and a trailing rolling
// checksum. See Checksum and ParseFrames for the byte-level rules.
//
// # EC Dialects
//
// Light/outlet ("energy controller") frames come in three incompatible
// generations. The decoder detects the dialect from frame shape on first
// contact and the engine surfaces it as an event; the host persists it so
// command encoding survives restarts.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package bestin
