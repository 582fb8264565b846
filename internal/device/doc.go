// Package device provides the device record arena for the BESTIN bridge.
//
// The registry is the central catalogue of every device observed on the
// wallpad bus. Records are created on first sighting, keyed by device
// type, room, and sub-address, and are never removed while the bridge
// runs: the bus has no unenrolment concept, only silence.
//
// # Key Types
//
//   - Key: (deviceType, room, sub) identity of one device facet
//   - Record: a device's stable identity plus its latest state
//   - Category: the host-platform grouping (light, switch, sensor, ...)
//   - Registry: the thread-safe arena with per-record change listeners
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//
//	// From the protocol engine, on every decoded reading:
//	record, changed := registry.Upsert(device.Key{
//	    DeviceType: "light", Room: "1", Sub: "0",
//	}, true)
//
//	// From the host surface:
//	lights := registry.ListByCategory(device.CategoryLight)
//	cancel := registry.Subscribe(record.Key, func(r device.Record) { ... })
//	defer cancel()
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Returned records are
// snapshots; callers can retain and modify them freely. Listeners run
// synchronously on the updating goroutine and must not call back into
// the registry's write operations.
package device
