package mqtt

import "fmt"

// Topic prefixes for the BESTIN bridge MQTT surface.
//
// All topics use the flat scheme: bestin/{category}/{device_id}.
// Device identifiers come from the device registry and are already
// MQTT-safe (lowercase, underscores).
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "bestin"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "bestin/system"
)

// Topics provides builders for BESTIN bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("bestin_light_1_0")
//	// Returns: "bestin/state/bestin_light_1_0"
type Topics struct{}

// DeviceState returns the retained state topic for a device.
//
// Example: bestin/state/bestin_light_1_0
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// DeviceCommand returns the command topic for a device.
//
// Example: bestin/command/bestin_light_1_0
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// DeviceAck returns the command acknowledgement topic for a device.
//
// Example: bestin/ack/bestin_light_1_0
func (Topics) DeviceAck(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the bridge online/offline status topic (also used
// as the LWT topic).
//
// Example: bestin/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemDialect returns the topic announcing the detected EC dialect.
//
// Example: bestin/system/dialect
func (Topics) SystemDialect() string {
	return fmt.Sprintf("%s/dialect", TopicPrefixSystem)
}

// AllDeviceCommands returns a pattern matching every device command topic.
//
// Pattern: bestin/command/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: bestin/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}
