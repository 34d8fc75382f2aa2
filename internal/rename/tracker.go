package rename

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/runbeat/runbeat-core/internal/bus"
	"github.com/runbeat/runbeat-core/internal/playbook"
)

// Notification is the registry rename payload received from the host's
// entity-identity registry over MQTT.
type Notification struct {
	OldEntityID string `json:"old_entity_id"`
	EntityID    string `json:"entity_id"`
}

// Subscriber is the inbound transport the tracker listens on.
// Satisfied by the infrastructure MQTT client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// Logger defines the logging interface used by the Tracker.
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

// Tracker reconciles external display-ID renames into the store.
//
// The host registry may rename an entity's identifier out-of-band at any
// time. Without this tracker a rename would silently desynchronise the
// persisted mapping from the live handle and future deletes would fail
// lookup. The tracker re-keys the store (which persists synchronously)
// and then publishes Renamed so the live handle follows.
//
// Renames of entities this store does not own are expected traffic and
// are ignored without error.
type Tracker struct {
	store  *playbook.Store
	disp   *bus.Dispatcher
	logger Logger
}

// NewTracker creates a rename tracker over the given store and dispatcher.
func NewTracker(store *playbook.Store, disp *bus.Dispatcher) *Tracker {
	return &Tracker{
		store:  store,
		disp:   disp,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.logger = logger
}

// Listen subscribes the tracker to the registry rename topic.
func (t *Tracker) Listen(sub Subscriber, topic string, qos byte) error {
	return sub.Subscribe(topic, qos, func(_ string, payload []byte) error {
		return t.HandleNotification(context.Background(), payload)
	})
}

// HandleNotification processes one raw rename notification.
//
// Unparseable payloads are an error (logged by the transport); renames of
// unknown display IDs and conflicting renames are swallowed here because
// neither is actionable by the sender.
func (t *Tracker) HandleNotification(ctx context.Context, payload []byte) error {
	var note Notification
	if err := json.Unmarshal(payload, &note); err != nil {
		return fmt.Errorf("parsing rename notification: %w", err)
	}
	if note.OldEntityID == "" || note.EntityID == "" {
		return fmt.Errorf("rename notification missing entity ids: %s", payload)
	}

	key, err := t.store.Rekey(ctx, note.OldEntityID, note.EntityID)
	switch {
	case errors.Is(err, playbook.ErrNotFound):
		// Not one of ours.
		t.logger.Debug("ignoring rename for unknown display id", "old_entity_id", note.OldEntityID)
		return nil
	case errors.Is(err, playbook.ErrDisplayIDConflict):
		t.logger.Warn("ignoring conflicting rename",
			"old_entity_id", note.OldEntityID,
			"entity_id", note.EntityID,
		)
		return nil
	case err != nil:
		return fmt.Errorf("applying rename: %w", err)
	}

	// The store write is durable; now let derived views follow.
	t.disp.Publish(bus.Renamed{
		Key:          key,
		OldDisplayID: note.OldEntityID,
		NewDisplayID: note.EntityID,
	})

	t.logger.Info("registry rename applied",
		"key", key,
		"old_entity_id", note.OldEntityID,
		"entity_id", note.EntityID,
	)
	return nil
}
