// Package database provides SQLite connectivity for the push server.
//
// The store holds the device directory used to resolve push recipients and
// the durable queue of messages waiting for long-polling devices.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Schema migrations embedded into the binary
//   - Transaction helpers
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a matching
// .down.sql. Each migration is applied in its own transaction.
package database
