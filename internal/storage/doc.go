// Package storage persists the playbook snapshot document to SQLite.
//
// The durable format is the single versioned document defined by the
// playbook package:
//
//	{"version": 1, "entities": {"deploy": {"status": "running", "display_id": "sensor_deploy"}}}
//
// One row holds the whole document. The schema version lives inside the
// document and is checked on load; an unknown or missing version is
// treated as an empty initial state rather than an error, so old or
// foreign databases never block startup.
package storage
