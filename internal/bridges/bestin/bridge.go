package bestin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/bestin-bridge/internal/device"
	"github.com/nerrad567/bestin-bridge/internal/infrastructure/mqtt"
)

// commandQoS is the MQTT QoS level for command and state traffic.
const commandQoS = 1

// MQTTClient is the interface for MQTT operations the bridge needs.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// PublishRetained sends a retained message at QoS 1.
	PublishRetained(topic string, payload []byte) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Store persists bridge state across restarts. This interface is satisfied
// by an adapter over *database.DB in main. It is optional - if nil, the
// bridge operates without persistence.
type Store interface {
	// SaveDialect persists the detected EC dialect.
	SaveDialect(ctx context.Context, dialect string) error

	// SaveDevice persists a device registry snapshot.
	SaveDevice(ctx context.Context, rec device.Record) error
}

// TelemetryWriter records numeric readings in a time-series store.
// Satisfied by *influxdb.Client. Optional - if nil, the bridge operates
// without telemetry.
type TelemetryWriter interface {
	// WriteEnergyReading records a Home Energy Meter value.
	WriteEnergyReading(meter, facet string, value float64)

	// WritePowerReading records per-device power draw in watts.
	WritePowerReading(deviceID string, watts float64)

	// WriteTemperature records a thermostat target/current pair.
	WriteTemperature(room string, target, current float64)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Engine is the running protocol engine. Required.
	Engine *Engine

	// MQTTClient is the MQTT client implementation. Required.
	MQTTClient MQTTClient

	// Store is optional persistence for dialect and device snapshots.
	Store Store

	// Telemetry is optional time-series recording.
	Telemetry TelemetryWriter

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge orchestrates bidirectional translation between the wallpad bus
// and MQTT. It handles:
//   - Receiving commands on bestin/command/+ and queueing them on the engine
//   - Publishing decoded state changes as retained messages
//   - Announcing dialect detection and command outcomes
//   - Persisting dialect and device snapshots via the optional Store
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	engine    *Engine
	mqtt      MQTTClient
	store     Store
	telemetry TelemetryWriter
	logger    Logger

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewBridge creates a new bridge instance. Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		engine:    opts.Engine,
		mqtt:      opts.MQTTClient,
		store:     opts.Store,
		telemetry: opts.Telemetry,
		logger:    logger,
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start begins bridge operation: starts the engine, subscribes to command
// topics, and begins draining engine events.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	commandTopic := mqtt.Topics{}.AllDeviceCommands()
	if err := b.mqtt.Subscribe(commandTopic, commandQoS, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", commandTopic)

	// Announce the persisted dialect so consumers see it without waiting
	// for bus traffic.
	if d := b.engine.Dialect(); d != DialectUnknown {
		b.publishDialect(d)
	}

	b.wg.Add(1)
	go b.eventLoop()

	b.logger.Info("bridge started")
	return nil
}

// Stop gracefully shuts down the bridge: the engine stops first, which
// closes the event stream and lets the event loop drain and exit.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.engine.Stop()
		b.ctxCancel()
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

// handleCommandMessage parses a command payload and queues it on the
// engine. Malformed payloads are logged and dropped.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) {
	msg, err := ParseCommandMessage(payload)
	if err != nil {
		b.logger.Warn("dropping malformed command",
			"topic", topic,
			"error", err)
		return
	}

	cmd := msg.Command()
	if err := b.engine.EnqueueCommand(cmd); err != nil {
		b.logger.Warn("command rejected",
			"device_type", cmd.DeviceType,
			"error", err)
		b.publishAck(NewAckFailure(commandDeviceID(cmd), 0, err))
		return
	}

	b.logger.Debug("command queued",
		"topic", topic,
		"device_type", cmd.DeviceType,
		"room", cmd.Room,
		"sub", cmd.Sub)
}

// eventLoop drains the engine event stream until the engine stops.
func (b *Bridge) eventLoop() {
	defer b.wg.Done()

	for event := range b.engine.Events() {
		switch event.Kind {
		case EventStateChanged:
			b.handleStateChanged(event.Device)
		case EventDialectDetected:
			b.handleDialectDetected(event.Dialect)
		case EventCommandAcked:
			b.publishAck(NewAckMessage(commandDeviceID(event.Command), event.Attempts))
		case EventCommandFailed:
			b.publishAck(NewAckFailure(commandDeviceID(event.Command), event.Attempts, event.Err))
		}
	}
}

// handleStateChanged publishes a retained state message, persists the
// snapshot, and records telemetry.
func (b *Bridge) handleStateChanged(rec device.Record) {
	msg := NewStateMessage(rec.ID, Reading{
		DeviceType: rec.Key.DeviceType,
		Room:       rec.Key.Room,
		Sub:        rec.Key.Sub,
		State:      rec.State,
	})
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal state", "device", rec.ID, "error", err)
		return
	}

	topic := mqtt.Topics{}.DeviceState(rec.ID)
	if err := b.mqtt.PublishRetained(topic, payload); err != nil {
		b.logger.Warn("failed to publish state", "device", rec.ID, "error", err)
	}

	if b.store != nil {
		if err := b.store.SaveDevice(b.ctx, rec); err != nil {
			b.logger.Warn("device snapshot not persisted", "device", rec.ID, "error", err)
		}
	}

	b.recordTelemetry(rec)
}

// recordTelemetry forwards numeric readings to the time-series writer.
func (b *Bridge) recordTelemetry(rec device.Record) {
	if b.telemetry == nil {
		return
	}

	switch rec.Key.DeviceType {
	case DeviceEnergyTotal:
		if v, ok := rec.State.(float64); ok {
			b.telemetry.WriteEnergyReading(rec.Key.Room, "total", v)
		}
	case DeviceEnergyReal:
		if v, ok := rec.State.(float64); ok {
			b.telemetry.WriteEnergyReading(rec.Key.Room, "realtime", v)
		}
	case DeviceOutletPower, DeviceLightPower:
		if v, ok := rec.State.(float64); ok {
			b.telemetry.WritePowerReading(rec.ID, v)
		}
	case DeviceThermostat:
		if ts, ok := rec.State.(ThermostatState); ok {
			b.telemetry.WriteTemperature(rec.Key.Room, ts.Target, ts.Current)
		}
	}
}

// handleDialectDetected persists and announces a dialect change.
func (b *Bridge) handleDialectDetected(d Dialect) {
	if b.store != nil {
		if err := b.store.SaveDialect(b.ctx, string(d)); err != nil {
			b.logger.Warn("dialect not persisted", "dialect", string(d), "error", err)
		}
	}
	b.publishDialect(d)
}

// publishDialect publishes the retained dialect announcement.
func (b *Bridge) publishDialect(d Dialect) {
	payload, err := json.Marshal(NewDialectMessage(d))
	if err != nil {
		b.logger.Error("failed to marshal dialect", "error", err)
		return
	}
	if err := b.mqtt.PublishRetained(mqtt.Topics{}.SystemDialect(), payload); err != nil {
		b.logger.Warn("failed to publish dialect", "error", err)
	}
}

// publishAck publishes a command acknowledgement.
func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	topic := mqtt.Topics{}.DeviceAck(ack.DeviceID)
	if err := b.mqtt.Publish(topic, payload, commandQoS, false); err != nil {
		b.logger.Warn("failed to publish ack", "device", ack.DeviceID, "error", err)
	}
}

// commandDeviceID derives the device identifier a command addresses.
// Dimming commands ack under the light they target.
func commandDeviceID(cmd Command) string {
	deviceType := cmd.DeviceType
	if deviceType == DeviceDimming {
		deviceType = DeviceLight
	}
	return device.DeviceID(device.Key{
		DeviceType: deviceType,
		Room:       cmd.Room,
		Sub:        cmd.Sub,
	})
}

// QueueDepth reports the number of commands waiting on the engine, for
// diagnostics.
func (b *Bridge) QueueDepth() int {
	return b.engine.QueueDepth()
}

// Stats reports a snapshot of the engine counters.
func (b *Bridge) Stats() Stats {
	return b.engine.Stats()
}
