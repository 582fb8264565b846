package device

import (
	"fmt"
	"strings"
	"time"
)

// Key uniquely identifies one device facet on the bus.
//
// DeviceType is the dotted type string from the protocol decoder
// ("light", "outlet:powerusage"), Room the decimal room identifier (or
// meter name for energy facets), and Sub the sub-address within the room
// ("0".."3" for channels, "timer", "power usage 1"). Sub is empty for
// single-unit devices.
type Key struct {
	DeviceType string
	Room       string
	Sub        string
}

// Category is the host-platform grouping a device surfaces under.
type Category string

// Platform categories.
const (
	CategoryLight   Category = "light"
	CategorySwitch  Category = "switch"
	CategorySensor  Category = "sensor"
	CategoryClimate Category = "climate"
	CategoryFan     Category = "fan"
	CategoryNumber  Category = "number"
)

// categoryByType maps dotted device types to platform categories.
// Unlisted types surface as sensors.
var categoryByType = map[string]Category{
	"light":                CategoryLight,
	"dimming":              CategoryLight,
	"outlet":               CategorySwitch,
	"outlet:standbycutoff": CategorySwitch,
	"gas":                  CategorySwitch,
	"doorlock":             CategorySwitch,
	"elevator":             CategorySwitch,
	"thermostat":           CategoryClimate,
	"fan":                  CategoryFan,
	"fan:timer":            CategoryNumber,
	"heatwater:set":        CategoryNumber,
	"hotwater:set":         CategoryNumber,
}

// CategoryFor returns the platform category for a dotted device type.
func CategoryFor(deviceType string) Category {
	if c, ok := categoryByType[deviceType]; ok {
		return c
	}
	return CategorySensor
}

// Record is the registry entry for one device facet.
//
// Records returned by the registry are snapshots: the registry never
// hands out its internal copy, so callers may retain or mutate them.
type Record struct {
	// Key is the bus identity of the device facet.
	Key Key

	// ID is the stable identifier derived from the key, e.g.
	// "bestin_light_1_0" or "bestin_outlet_powerusage_1_power_usage_0".
	ID string

	// Name is the human-readable display name.
	Name string

	// Category is the host platform this device surfaces under.
	Category Category

	// State is the latest decoded state value.
	State any

	// UpdatedAt is when State last changed.
	UpdatedAt time.Time

	// SeenAt is when the device last appeared on the bus, changed or not.
	SeenAt time.Time
}

// DeviceID derives the stable identifier for a key: the device type, room,
// and sub-address joined with underscores, colons and spaces flattened.
func DeviceID(key Key) string {
	id := fmt.Sprintf("bestin_%s_%s", key.DeviceType, key.Room)
	if key.Sub != "" {
		id += "_" + key.Sub
	}
	return strings.NewReplacer(":", "_", " ", "_").Replace(id)
}

// DisplayName derives a titled display name from a key, e.g.
// "Light 1 0" or "Outlet:Powerusage 1 Power Usage 1".
func DisplayName(key Key) string {
	name := key.DeviceType + " " + key.Room
	if key.Sub != "" {
		name += " " + key.Sub
	}
	return titleWords(name)
}

// titleWords uppercases the first letter of each space-separated word.
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
