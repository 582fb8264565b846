// BESTIN Bridge - wallpad bus to MQTT gateway
//
// This is the main entry point for the BESTIN bridge. The bridge speaks
// the HDC BESTIN wallpad RS-485 protocol over a serial port or a
// serial-over-TCP converter and surfaces every device on the bus as MQTT
// topics: lights, dimmers, outlets, thermostats, ventilation fans, the
// gas valve, the door lock, and the Home Energy Meter.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/bestin-bridge/migrations"

	"github.com/nerrad567/bestin-bridge/internal/bridges/bestin"
	"github.com/nerrad567/bestin-bridge/internal/device"
	"github.com/nerrad567/bestin-bridge/internal/infrastructure/config"
	"github.com/nerrad567/bestin-bridge/internal/infrastructure/database"
	"github.com/nerrad567/bestin-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/bestin-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/bestin-bridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting BESTIN bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("reading migration history: %w", err)
	}
	schemaVersion := "none"
	if len(applied) > 0 {
		schemaVersion = applied[len(applied)-1].Version
	}
	log.Info("database migrations complete", "schema_version", schemaVersion)

	// Initialise device registry
	registry := device.NewRegistry()
	registry.SetLogger(log.With("component", "registry"))

	// Seed the registry from the snapshots persisted by the previous run,
	// so known devices are visible before the bus has spoken.
	snapshots, err := db.ListDeviceSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("loading device snapshots: %w", err)
	}
	restoreSnapshots(registry, snapshots, log)
	log.Info("device registry initialised", "known_devices", registry.Count())

	// Load the EC dialect persisted by a previous run so the engine starts
	// with the correct retransmit timing and command encoding.
	dialect := bestin.DialectUnknown
	if stored, ok, dialectErr := db.GetSetting(ctx, database.SettingECDialect); dialectErr != nil {
		return fmt.Errorf("loading dialect: %w", dialectErr)
	} else if ok {
		dialect = bestin.Dialect(stored)
		log.Info("restored EC dialect", "dialect", stored)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create the bus transport
	transport, err := bestin.NewBusTransport(bestin.TransportOptions{
		Address:           cfg.Bus.Address,
		BaudRate:          cfg.Bus.BaudRate,
		DialTimeout:       cfg.DialTimeout(),
		ReconnectMaxDelay: cfg.ReconnectMaxDelay(),
		Logger:            log.With("component", "transport"),
	})
	if err != nil {
		return fmt.Errorf("creating bus transport: %w", err)
	}

	// Create the protocol engine
	engine := bestin.NewEngine(bestin.EngineOptions{
		Transport:    transport,
		Registry:     registry,
		Dialect:      dialect,
		RetryLimit:   cfg.Engine.RetryLimit,
		ReadSize:     cfg.Engine.ReadSize,
		PollInterval: cfg.PollInterval(),
		IdleInterval: cfg.IdleInterval(),
		TxGap:        cfg.TxGap(),
		Logger:       log.With("component", "engine"),
	})

	// Assemble the bridge
	opts := bestin.BridgeOptions{
		Engine:     engine,
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Store:      &bridgeStore{db: db},
		Logger:     log.With("component", "bridge"),
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}

	bridge, err := bestin.NewBridge(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()
	log.Info("bridge started", "bus", cfg.Bus.Address)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Bridge (stops the engine and bus transport)
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("BESTIN bridge stopped")
	return nil
}

// restoreSnapshots replays persisted device snapshots into the registry.
// State round-trips through JSON, so a restored record holds the decoded
// JSON value rather than the original typed state; the first reading off
// the bus replaces it either way.
func restoreSnapshots(registry *device.Registry, snaps []database.DeviceSnapshot, log device.Logger) {
	for _, snap := range snaps {
		var state any
		if err := json.Unmarshal([]byte(snap.StateJSON), &state); err != nil {
			log.Warn("skipping unreadable device snapshot", "device", snap.ID, "error", err)
			continue
		}
		registry.Upsert(device.Key{
			DeviceType: snap.DeviceType,
			Room:       snap.Room,
			Sub:        snap.Sub,
		}, state)
	}
}

// getConfigPath returns the configuration file path.
// Uses BESTIN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BESTIN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Bus health is not checked here: the wallpad may be silent at startup
	// and the transport reconnects lazily.

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The primary difference is the Subscribe handler
// signature: the infrastructure client's handlers return an error, the
// bridge's do not.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bestin.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// PublishRetained implements bestin.MQTTClient.
func (a *mqttBridgeAdapter) PublishRetained(topic string, payload []byte) error {
	return a.client.PublishRetained(topic, payload)
}

// Subscribe implements bestin.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bestin.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// bridgeStore adapts the database to the bridge's Store interface.
type bridgeStore struct {
	db *database.DB
}

// SaveDialect implements bestin.Store.
func (s *bridgeStore) SaveDialect(ctx context.Context, dialect string) error {
	return s.db.SetSetting(ctx, database.SettingECDialect, dialect)
}

// SaveDevice implements bestin.Store.
func (s *bridgeStore) SaveDevice(ctx context.Context, rec device.Record) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshalling device state: %w", err)
	}
	return s.db.UpsertDeviceSnapshot(ctx, database.DeviceSnapshot{
		ID:         rec.ID,
		DeviceType: rec.Key.DeviceType,
		Room:       rec.Key.Room,
		Sub:        rec.Key.Sub,
		Category:   string(rec.Category),
		StateJSON:  string(stateJSON),
		UpdatedAt:  rec.UpdatedAt,
	})
}
