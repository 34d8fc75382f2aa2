// Package database provides SQLite connectivity for Runbeat Core.
//
// This package manages:
//   - Opening the SQLite database with WAL mode and busy timeout
//   - Connection pool configuration (single writer)
//   - Health checks and lifecycle management
//
// Schema management is owned by the consumers of the connection: the
// snapshot table used by internal/storage is created on first open by
// that package. There is no SQL migration framework because the durable
// state is a single versioned JSON document (the document carries its
// own schema version).
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/runbeat.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
package database
