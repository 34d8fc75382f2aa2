package playbook

import (
	"context"
	"sort"
)

// SnapshotVersion is the schema version of the persisted document.
// Loaders must treat an unknown or missing version as an empty initial
// state, never as an error.
const SnapshotVersion = 1

// Snapshot is the single versioned document persisted after every store
// mutation. It is the source of truth across restarts.
type Snapshot struct {
	Version  int                       `json:"version"`
	Entities map[string]SnapshotEntity `json:"entities"`
}

// SnapshotEntity is the persisted form of one record, keyed by the
// record's stable key in Snapshot.Entities.
type SnapshotEntity struct {
	Status     string     `json:"status"`
	Attributes Attributes `json:"attributes,omitempty"`
	DisplayID  string     `json:"display_id"`
}

// SnapshotRepository persists and restores the snapshot document.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type SnapshotRepository interface {
	// Load reads the current snapshot. A missing or version-incompatible
	// document yields an empty snapshot, not an error.
	Load(ctx context.Context) (*Snapshot, error)

	// Save atomically replaces the stored snapshot.
	Save(ctx context.Context, snap *Snapshot) error
}

// EmptySnapshot returns a snapshot with no entities at the current version.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Version:  SnapshotVersion,
		Entities: make(map[string]SnapshotEntity),
	}
}

// SortedKeys returns the entity keys in lexical order. Snapshot entities
// are a JSON object with no inherent order, so rehydration uses this to
// keep the store's insertion order deterministic across restarts.
func (s *Snapshot) SortedKeys() []string {
	keys := make([]string, 0, len(s.Entities))
	for k := range s.Entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
