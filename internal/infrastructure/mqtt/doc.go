// Package mqtt provides the MQTT client infrastructure for the BESTIN bridge.
//
// This package wraps the Eclipse Paho MQTT client with bridge-specific
// functionality:
//
//   - Connection management with auto-reconnect and exponential backoff
//   - Last Will and Testament (LWT) for offline detection
//   - Subscription tracking and restoration after reconnect
//   - Consistent topic naming via the Topics builders
//   - Panic recovery around message handlers
//
// # Topic Hierarchy
//
//	bestin/state/{device_id}     retained device state (JSON)
//	bestin/command/{device_id}   device commands (JSON)
//	bestin/ack/{device_id}       command acknowledgements (JSON)
//	bestin/system/status         bridge online/offline (retained, LWT)
//	bestin/system/dialect        detected EC dialect (retained)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceState("bestin_light_1_0")
//	err = client.PublishRetained(topic, payload)
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package mqtt
