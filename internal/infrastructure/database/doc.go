// Package database provides the SQLite database holding RoomLink's local
// settings: saved device names, alert thresholds and broker credentials.
//
// This package manages:
//   - Opening the database with busy timeout and optional WAL mode
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Health checks and transaction helpers
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only: new columns must be nullable or carry a
// default, and each .up.sql should have a matching .down.sql.
package database
