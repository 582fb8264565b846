package bestin

import (
	"encoding/json"
	"fmt"
	"time"
)

// MQTT message payloads exchanged between the bridge and its consumers.
// Topic construction lives in internal/infrastructure/mqtt (Topics).

// CommandMessage is received on bestin/command/{device_id} to request a
// device action on the wallpad bus.
type CommandMessage struct {
	// DeviceType is the bus device type (e.g., "light", "outlet", "thermostat").
	DeviceType string `json:"device_type"`

	// SubType refines the command (e.g., "brightness", "set_temperature").
	// Empty for plain on/off.
	SubType string `json:"sub_type,omitempty"`

	// Room is the room identifier as reported by the bus.
	Room string `json:"room"`

	// Sub is the channel within the room (e.g., "1" for the second light).
	Sub string `json:"sub,omitempty"`

	// Value is the command value. Booleans and the strings "on"/"off"
	// toggle, numbers carry levels and setpoints.
	Value any `json:"value"`
}

// Command converts the message into a bus command.
func (m CommandMessage) Command() Command {
	return Command{
		DeviceType: m.DeviceType,
		SubType:    m.SubType,
		Room:       m.Room,
		Sub:        m.Sub,
		Value:      m.Value,
	}
}

// AckStatus is the outcome of a queued command.
type AckStatus string

const (
	// AckConfirmed indicates the wallpad acknowledged the command.
	AckConfirmed AckStatus = "confirmed"

	// AckFailed indicates the command exhausted its retries without
	// an acknowledgement.
	AckFailed AckStatus = "failed"
)

// AckMessage is published on bestin/ack/{device_id} once a command
// resolves.
type AckMessage struct {
	// Timestamp is when the acknowledgement was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID identifies the target device.
	DeviceID string `json:"device_id"`

	// Status is "confirmed" or "failed".
	Status AckStatus `json:"status"`

	// Attempts is the number of bus transmissions made.
	Attempts int `json:"attempts"`

	// Error holds a human-readable failure description.
	Error string `json:"error,omitempty"`
}

// StateMessage is published retained on bestin/state/{device_id} whenever
// a device's decoded state changes.
type StateMessage struct {
	// DeviceID identifies the device.
	DeviceID string `json:"device_id"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceType is the bus device type (e.g., "light", "energy:electric").
	DeviceType string `json:"device_type"`

	// Room is the room identifier.
	Room string `json:"room"`

	// Sub is the channel within the room, empty for single-channel devices.
	Sub string `json:"sub,omitempty"`

	// State is the decoded device state. Shape depends on device type:
	//   light:      true
	//   fan:        {"is_on": true, "natural_ventilation": 0, "speed": 2}
	//   thermostat: {"is_on": true, "target_temperature": 22.5, "current_temperature": 21.3}
	//   energy:     1234.56
	State any `json:"state"`
}

// StatusMessage is published retained on bestin/system/status, and set as
// the MQTT Last Will so brokers report an unexpected disconnect.
type StatusMessage struct {
	// Status is "online" or "offline".
	Status string `json:"status"`

	// Timestamp is when the status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Version is the bridge software version.
	Version string `json:"version,omitempty"`
}

// DialectMessage is published retained on bestin/system/dialect when the
// detected EC dialect changes.
type DialectMessage struct {
	// Dialect is the EC dialect identifier ("3", "5", "e").
	Dialect string `json:"dialect"`

	// Timestamp is when the dialect was detected (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`
}

// ParseCommandMessage decodes a command payload from bestin/command/+.
func ParseCommandMessage(payload []byte) (CommandMessage, error) {
	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return CommandMessage{}, fmt.Errorf("unmarshal command message: %w", err)
	}
	if msg.DeviceType == "" {
		return CommandMessage{}, fmt.Errorf("%w: missing device_type", ErrUnknownDeviceType)
	}
	return msg, nil
}

// NewAckMessage creates a confirmation for an acknowledged command.
func NewAckMessage(deviceID string, attempts int) AckMessage {
	return AckMessage{
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    AckConfirmed,
		Attempts:  attempts,
	}
}

// NewAckFailure creates an acknowledgement for a command that exhausted
// its retries.
func NewAckFailure(deviceID string, attempts int, err error) AckMessage {
	msg := AckMessage{
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    AckFailed,
		Attempts:  attempts,
	}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// NewStateMessage creates a state message for a decoded reading.
func NewStateMessage(deviceID string, r Reading) StateMessage {
	return StateMessage{
		DeviceID:   deviceID,
		Timestamp:  time.Now().UTC(),
		DeviceType: r.DeviceType,
		Room:       r.Room,
		Sub:        r.Sub,
		State:      r.State,
	}
}

// NewStatusMessage creates a bridge status message.
func NewStatusMessage(status, version string) StatusMessage {
	return StatusMessage{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   version,
	}
}

// NewDialectMessage creates a dialect announcement.
func NewDialectMessage(d Dialect) DialectMessage {
	return DialectMessage{
		Dialect:   string(d),
		Timestamp: time.Now().UTC(),
	}
}
