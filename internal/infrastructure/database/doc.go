// Package database provides the SQLite persistence layer for the BESTIN
// bridge: the detected EC dialect setting and the device snapshot table
// that lets a restarted bridge know its devices before the bus has
// spoken.
//
// The database opens in WAL mode with STRICT tables and a busy timeout,
// so the bridge's writers (state snapshots on every change) never fight
// the occasional reader. All queries use parameterised statements, and
// the database file is created 0600.
//
// Schema migrations are embedded in the binary (see the migrations
// package at the module root) and are additive-only: files are named
// YYYYMMDD_HHMMSS_description.sql, applied once each in version order,
// and there are no rollback files. New columns must be NULLABLE or carry
// a DEFAULT so old snapshots keep loading.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
