package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Settings keys used by the bridge.
const (
	// SettingECDialect stores the detected EC dialect ("3", "5", "e").
	SettingECDialect = "ec_dialect"
)

// GetSetting reads a settings value by key.
//
// Returns:
//   - string: The stored value
//   - bool: Whether the key exists
//   - error: If the query fails
func (db *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetSetting writes a settings value, replacing any existing one.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}

// DeviceSnapshot is a persisted view of one registry record, letting the
// host surface re-announce known devices before the bus has spoken after
// a restart.
type DeviceSnapshot struct {
	ID         string
	DeviceType string
	Room       string
	Sub        string
	Category   string
	StateJSON  string
	UpdatedAt  time.Time
}

// UpsertDeviceSnapshot stores or refreshes a device snapshot by ID.
func (db *DB) UpsertDeviceSnapshot(ctx context.Context, snap DeviceSnapshot) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO devices (id, device_type, room, sub, category, state_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		snap.ID, snap.DeviceType, snap.Room, snap.Sub, snap.Category,
		snap.StateJSON, snap.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device snapshot %q: %w", snap.ID, err)
	}
	return nil
}

// ListDeviceSnapshots returns all persisted device snapshots in insertion
// order.
func (db *DB) ListDeviceSnapshots(ctx context.Context) ([]DeviceSnapshot, error) {
	rows, err := db.DB.QueryContext(ctx, `
		SELECT id, device_type, room, sub, category, state_json, updated_at
		FROM devices ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing device snapshots: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var snaps []DeviceSnapshot
	for rows.Next() {
		var snap DeviceSnapshot
		var updated string
		if err := rows.Scan(&snap.ID, &snap.DeviceType, &snap.Room, &snap.Sub,
			&snap.Category, &snap.StateJSON, &updated); err != nil {
			return nil, fmt.Errorf("scanning device snapshot: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, updated); err == nil {
			snap.UpdatedAt = ts
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device snapshots: %w", err)
	}
	return snaps, nil
}
