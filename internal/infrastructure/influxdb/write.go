package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteEnergyReading writes a metering measurement decoded from an energy
// response frame.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - meter: The metered resource ("electric", "water", "gas", "hotwater", "heat")
//   - facet: "total" for cumulative readings, "realtime" for instantaneous
//   - value: The scaled reading
//
// Example:
//
//	client.WriteEnergyReading("electric", "total", 1234.56)
//	client.WriteEnergyReading("gas", "realtime", 3.2)
func (c *Client) WriteEnergyReading(meter, facet string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"energy",
		map[string]string{
			"meter": meter,
			"facet": facet,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePowerReading writes a per-device power usage measurement, as
// reported by smart outlets and dimmable light channels.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "bestin_outlet_1_power_usage_0")
//   - watts: Instantaneous power draw in watts
func (c *Client) WritePowerReading(deviceID string, watts float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"power",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"watts": watts,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTemperature writes a thermostat temperature pair for a room.
//
// Parameters:
//   - room: Room identifier
//   - target: Setpoint in degrees Celsius
//   - current: Measured temperature in degrees Celsius
func (c *Client) WriteTemperature(room string, target, current float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"temperature",
		map[string]string{
			"room": room,
		},
		map[string]interface{}{
			"target_c":  target,
			"current_c": current,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
