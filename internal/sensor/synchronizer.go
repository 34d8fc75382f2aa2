package sensor

import (
	"sort"
	"sync"

	"github.com/runbeat/runbeat-core/internal/bus"
	"github.com/runbeat/runbeat-core/internal/playbook"
)

// Sensor is the live handle the host platform renders for one playbook.
// Handles are owned exclusively by the Synchronizer and derived from the
// store; they are never authoritative and are not persisted.
type Sensor struct {
	Key        string              `json:"key"`
	DisplayID  string              `json:"display_id"`
	Name       string              `json:"name"`
	Status     string              `json:"status"`
	Attributes playbook.Attributes `json:"attributes,omitempty"`
}

// DeepCopy returns a copy sharing no mutable state with the original.
func (s *Sensor) DeepCopy() *Sensor {
	out := *s
	out.Attributes = s.Attributes.DeepCopy()
	return &out
}

// Platform is the outbound surface to whatever renders sensors (the
// WebSocket hub and the MQTT state mirror, wired together in cmd/runbeat).
// Calls are best-effort: render failures never affect store state.
type Platform interface {
	SensorCreated(s *Sensor)
	SensorUpdated(s *Sensor)
	SensorRemoved(displayID string)
}

// StoreReader is the read-only store view the Synchronizer needs.
// The Synchronizer never mutates the store; it only derives handles.
type StoreReader interface {
	List() []playbook.Record
}

// Logger defines the logging interface used by the Synchronizer.
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

// Synchronizer keeps live sensor handles reconciled with the store.
//
// Handles are indexed by the record's stable key, not by display ID, so an
// external rename can never orphan a handle. Per key the lifecycle is
// Unknown -> Live -> Removed; Removed is terminal, and a later status
// event for the same key creates a fresh handle with reset attributes.
//
// All public methods are thread-safe.
type Synchronizer struct {
	mu       sync.Mutex
	store    StoreReader
	disp     *bus.Dispatcher
	platform Platform
	handles  map[string]*Sensor // by key
	sub      bus.Subscription
	started  bool
	logger   Logger
}

// NewSynchronizer creates a synchronizer over the given store view,
// dispatcher, and render platform.
func NewSynchronizer(store StoreReader, disp *bus.Dispatcher, platform Platform) *Synchronizer {
	return &Synchronizer{
		store:    store,
		disp:     disp,
		platform: platform,
		handles:  make(map[string]*Sensor),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the synchronizer.
func (s *Synchronizer) SetLogger(logger Logger) {
	s.logger = logger
}

// Start replays the current store contents into live handles, then
// subscribes to the dispatcher. Replay-before-subscribe means a restart
// restores every visible sensor without waiting for fresh events, and the
// subscription can never observe an event for a record replay missed
// (callers start the ingress surfaces after Start returns).
//
// Start is idempotent; a second call only re-runs the replay.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	replayed := 0
	for _, rec := range s.store.List() {
		if _, exists := s.handles[rec.Key]; exists {
			continue
		}
		s.createLocked(rec.Key, rec.DisplayID, rec.Status, rec.Attributes)
		replayed++
	}

	if !s.started {
		s.sub = s.disp.Subscribe(s.handleEvent)
		s.started = true
	}

	s.logger.Info("sensor synchronizer started", "replayed", replayed, "live", len(s.handles))
}

// Stop unsubscribes from the dispatcher. Live handles are not torn down;
// they die with the process (handles are never persisted).
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.disp.Unsubscribe(s.sub)
		s.started = false
	}
}

// handleEvent is the dispatcher subscription entry point.
func (s *Synchronizer) handleEvent(ev bus.Event) {
	switch e := ev.(type) {
	case bus.StatusChanged:
		s.applyStatus(e)
	case bus.Renamed:
		s.applyRename(e)
	}
}

// applyStatus creates or mutates the live handle for a status event.
// The event carries the record's full post-write state, so the handle is
// assigned rather than merged - it mirrors the store exactly. That
// includes the display ID: a rename can land between the store write and
// this dispatch (the rename tracker runs on an MQTT goroutine), in which
// case the Renamed event found no handle yet and was dropped, and the
// event's DisplayID is the only current one.
func (s *Synchronizer) applyStatus(e bus.StatusChanged) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.handles[e.Key]
	if !ok {
		s.createLocked(e.Key, e.DisplayID, e.Status, e.Attributes)
		return
	}

	handle.DisplayID = e.DisplayID
	handle.Status = e.Status
	handle.Attributes = e.Attributes.DeepCopy()
	s.platform.SensorUpdated(handle.DeepCopy())
	s.logger.Debug("sensor updated", "key", e.Key, "status", e.Status)
}

// applyRename points the live handle at its new display ID.
func (s *Synchronizer) applyRename(e bus.Renamed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.handles[e.Key]
	if !ok {
		// Record exists in the store but was never rendered; nothing to move.
		s.logger.Debug("rename for key without live handle", "key", e.Key)
		return
	}

	handle.DisplayID = e.NewDisplayID
	s.platform.SensorUpdated(handle.DeepCopy())
	s.logger.Info("sensor renamed", "key", e.Key, "display_id", e.NewDisplayID)
}

// createLocked builds a handle, indexes it by key, and registers it with
// the platform. Callers must hold s.mu.
func (s *Synchronizer) createLocked(key, displayID, status string, attrs playbook.Attributes) {
	handle := &Sensor{
		Key:        key,
		DisplayID:  displayID,
		Name:       key + " Playbook Status",
		Status:     status,
		Attributes: attrs.DeepCopy(),
	}
	s.handles[key] = handle
	s.platform.SensorCreated(handle.DeepCopy())
	s.logger.Debug("sensor created", "key", key, "display_id", displayID)
}

// Remove tears down the live handle for key, asking the platform to drop
// its rendered representation. Returns false if no handle exists.
//
// Removal is terminal for this handle: a subsequent status event for the
// same key creates a brand new one.
func (s *Synchronizer) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.handles[key]
	if !ok {
		return false
	}

	delete(s.handles, key)
	s.platform.SensorRemoved(handle.DisplayID)
	s.logger.Info("sensor removed", "key", key, "display_id", handle.DisplayID)
	return true
}

// Get returns a copy of the live handle for key, if one exists.
func (s *Synchronizer) Get(key string) (*Sensor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.handles[key]
	if !ok {
		return nil, false
	}
	return handle.DeepCopy(), true
}

// Sensors returns copies of all live handles, sorted by key.
func (s *Synchronizer) Sensors() []Sensor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sensor, 0, len(s.handles))
	for _, handle := range s.handles {
		out = append(out, *handle.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Count returns the number of live handles.
func (s *Synchronizer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
