// Package playbook provides the entity store for Runbeat Core.
//
// The store is the authoritative mapping from a playbook's stable key to
// its current status record. Three independently changing views must never
// diverge: inbound event payloads (webhook/REST), the durable snapshot on
// disk, and the live sensor handles the UI renders. The store owns the
// first two; the sensor package derives the third from store events.
//
// # Key Types
//
//   - Record: current state of one playbook (key, display id, status, attributes)
//   - Attributes: free-form JSON metadata with merge semantics
//   - Snapshot / SnapshotEntity: the single versioned document persisted
//     after every mutation
//   - SnapshotRepository: persistence abstraction (SQLite in production)
//   - Store: thread-safe map with write-through persistence and rollback
//
// # Write semantics
//
// Every mutating operation persists synchronously before returning, while
// holding the store mutex. A failed durable write rolls back the in-memory
// change and surfaces ErrPersistence; callers must not publish events for
// writes that did not land. There are no automatic retries.
//
// # Usage
//
//	repo := storage.NewSQLiteRepository(db.DB)
//	store := playbook.NewStore(repo)
//	store.SetLogger(log)
//	if err := store.Load(ctx); err != nil {
//	    return err
//	}
//
//	rec, err := store.Upsert(ctx, "deploy", "running", nil)
package playbook
