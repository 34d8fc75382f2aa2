package playbook

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Store.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store is the authoritative mapping from playbook key to Record.
//
// Every mutation is written through to the SnapshotRepository before the
// operation returns: an acknowledged write is durable before any dependent
// event may be published. If the durable write fails, the in-memory change
// is rolled back and the caller receives ErrPersistence.
//
// A single mutex guards the map AND is held across the persistence write.
// This serialises concurrent mutations of the same key (webhook and REST
// handlers run on separate goroutines) so the last write to land is also
// the logically last one - the lost-update race is structurally impossible.
//
// All public methods are thread-safe. Reads return deep copies; callers
// can never mutate store state through a returned record.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
	order   []string // insertion order of keys
	repo    SnapshotRepository
	logger  Logger
}

// NewStore creates a new entity store backed by the given repository.
func NewStore(repo SnapshotRepository) *Store {
	return &Store{
		records: make(map[string]*Record),
		repo:    repo,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load rehydrates the store from durable storage. It must be called on
// startup before any live handles are created or mutations accepted.
// Any previously held in-memory state is discarded.
func (s *Store) Load(ctx context.Context) error {
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*Record, len(snap.Entities))
	s.order = make([]string, 0, len(snap.Entities))
	for _, key := range snap.SortedKeys() {
		ent := snap.Entities[key]
		displayID := ent.DisplayID
		if displayID == "" {
			// Documents written before renames existed carry no display id.
			displayID = DisplayIDFor(key)
		}
		s.records[key] = &Record{
			Key:        key,
			DisplayID:  displayID,
			Status:     ent.Status,
			Attributes: ent.Attributes.DeepCopy(),
		}
		s.order = append(s.order, key)
	}

	s.logger.Info("store rehydrated", "records", len(s.records))
	return nil
}

// Get retrieves a record by key.
// The returned record is a deep copy; callers can safely modify it.
func (s *Store) Get(key string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	return rec.DeepCopy(), true
}

// List returns all records in insertion order.
// The returned records are deep copies; callers can safely modify them.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.records[key].DeepCopy())
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Stats returns record counts grouped by status.
func (s *Store) Stats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]int)
	for _, rec := range s.records {
		stats[rec.Status]++
	}
	return stats
}

// KeyForDisplayID resolves a display ID to its record key.
//
// Display IDs are unique under normal operation (Rekey refuses to create
// duplicates), but the scan walks insertion order so any resolution is
// deterministic: the oldest matching record wins.
func (s *Store) KeyForDisplayID(displayID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyForDisplayIDLocked(displayID)
}

func (s *Store) keyForDisplayIDLocked(displayID string) (string, bool) {
	for _, key := range s.order {
		if s.records[key].DisplayID == displayID {
			return key, true
		}
	}
	return "", false
}

// Upsert creates or updates the record for key with the given status,
// merging attrs into any existing attributes (union, last-write-wins per
// attribute key; existing keys absent from attrs are kept).
//
// The write is durable before Upsert returns. Returns a deep copy of the
// resulting record.
func (s *Store) Upsert(ctx context.Context, key, status string, attrs Attributes) (*Record, error) {
	return s.write(ctx, key, status, attrs, true)
}

// Replace creates or updates the record for key with the given status,
// replacing the full attribute set with attrs. This is the REST
// create-or-update contract, distinct from the webhook's additive Upsert.
func (s *Store) Replace(ctx context.Context, key, status string, attrs Attributes) (*Record, error) {
	return s.write(ctx, key, status, attrs, false)
}

// write applies a create-or-update mutation and persists it.
func (s *Store) write(ctx context.Context, key, status string, attrs Attributes, merge bool) (*Record, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("%w: key %q", ErrInvalidRecord, key)
	}
	if status == "" {
		return nil, fmt.Errorf("%w: empty status", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.records[key]

	next := &Record{
		Key:    key,
		Status: status,
	}
	if existed {
		next.DisplayID = prev.DisplayID
		if merge {
			next.Attributes = prev.Attributes.Merge(attrs)
		} else {
			next.Attributes = attrs.DeepCopy()
		}
	} else {
		next.DisplayID = DisplayIDFor(key)
		next.Attributes = attrs.DeepCopy()
	}

	s.records[key] = next
	if !existed {
		s.order = append(s.order, key)
	}

	if err := s.persistLocked(ctx); err != nil {
		// Roll back the in-memory view so it never diverges from disk.
		if existed {
			s.records[key] = prev
		} else {
			delete(s.records, key)
			s.order = s.order[:len(s.order)-1]
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.logger.Debug("record written", "key", key, "status", status, "merge", merge)
	return next.DeepCopy(), nil
}

// Rekey rewrites the display ID of the record currently identified by
// oldDisplayID. Returns the record's stable key on success.
//
// Returns ErrNotFound if no record carries oldDisplayID (renames of
// entities this store does not own are expected traffic, so callers
// typically ignore that case) and ErrDisplayIDConflict if newDisplayID is
// already held by a different record.
func (s *Store) Rekey(ctx context.Context, oldDisplayID, newDisplayID string) (string, error) {
	if newDisplayID == "" {
		return "", fmt.Errorf("%w: empty display id", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keyForDisplayIDLocked(oldDisplayID)
	if !ok {
		return "", ErrNotFound
	}

	if other, taken := s.keyForDisplayIDLocked(newDisplayID); taken && other != key {
		return "", fmt.Errorf("%w: %q held by %q", ErrDisplayIDConflict, newDisplayID, other)
	}

	rec := s.records[key]
	prevDisplayID := rec.DisplayID
	rec.DisplayID = newDisplayID

	if err := s.persistLocked(ctx); err != nil {
		rec.DisplayID = prevDisplayID
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.logger.Info("record rekeyed", "key", key, "old_display_id", oldDisplayID, "new_display_id", newDisplayID)
	return key, nil
}

// Delete removes the record for key and persists the removal.
// Returns ErrNotFound if the key does not exist. Deletion is terminal:
// a later event for the same key creates a fresh record with no memory
// of the deleted one's attributes.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}

	orderIdx := -1
	for i, k := range s.order {
		if k == key {
			orderIdx = i
			break
		}
	}

	delete(s.records, key)
	if orderIdx >= 0 {
		s.order = append(s.order[:orderIdx], s.order[orderIdx+1:]...)
	}

	if err := s.persistLocked(ctx); err != nil {
		s.records[key] = rec
		if orderIdx >= 0 {
			s.order = append(s.order, "")
			copy(s.order[orderIdx+1:], s.order[orderIdx:])
			s.order[orderIdx] = key
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.logger.Info("record deleted", "key", key)
	return nil
}

// persistLocked saves the current record set as a snapshot document.
// Callers must hold s.mu; keeping the lock across the durable write is
// what serialises concurrent mutations of the same key.
func (s *Store) persistLocked(ctx context.Context) error {
	snap := &Snapshot{
		Version:  SnapshotVersion,
		Entities: make(map[string]SnapshotEntity, len(s.records)),
	}
	for key, rec := range s.records {
		snap.Entities[key] = SnapshotEntity{
			Status:     rec.Status,
			Attributes: rec.Attributes.DeepCopy(),
			DisplayID:  rec.DisplayID,
		}
	}
	return s.repo.Save(ctx, snap)
}
