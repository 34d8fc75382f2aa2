package bus

import (
	"sync"

	"github.com/runbeat/runbeat-core/internal/playbook"
)

// Event is the closed set of signals carried by the Dispatcher.
// Only types in this package implement it.
type Event interface {
	event()
}

// StatusChanged is published after a playbook status write has been
// persisted. It carries the record's full post-write state: DisplayID is
// the store's current display ID (a rename may have landed between the
// write and this publish) and Attributes the full post-merge set.
type StatusChanged struct {
	Key        string
	DisplayID  string
	Status     string
	Attributes playbook.Attributes
}

func (StatusChanged) event() {}

// Renamed is published after an external registry rename has been applied
// to the store, so derived views can follow the new display ID.
type Renamed struct {
	Key          string
	OldDisplayID string
	NewDisplayID string
}

func (Renamed) event() {}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and should return quickly.
type Handler func(Event)

// Subscription identifies a registered handler for Unsubscribe.
type Subscription int

// Logger is the minimal logging interface used by the Dispatcher.
type Logger interface {
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// subscriber pairs a handler with its subscription token.
type subscriber struct {
	token   Subscription
	handler Handler
}

// Dispatcher is the in-process publish/subscribe signal for store events.
//
// Publish delivers synchronously, in subscriber-registration order, on the
// publisher's goroutine. There is no queueing and no replay: a subscriber
// registered after a publish never sees that publish. A panicking handler
// is caught and logged at the dispatch boundary so it can neither starve
// later subscribers nor propagate into the ingress path.
//
// All methods are safe for concurrent use.
type Dispatcher struct {
	mu     sync.Mutex
	subs   []subscriber
	next   Subscription
	logger Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{logger: noopLogger{}}
}

// SetLogger sets the logger used for handler panic reports.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// Subscribe registers a handler and returns its subscription token.
func (d *Dispatcher) Subscribe(handler Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	d.subs = append(d.subs, subscriber{token: d.next, handler: handler})
	return d.next
}

// Unsubscribe removes a previously registered handler.
// Unknown tokens are ignored.
func (d *Dispatcher) Unsubscribe(token Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, sub := range d.subs {
		if sub.token == token {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of registered handlers.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Publish delivers the event to every currently registered subscriber.
//
// The subscriber list is snapshotted under the lock, then released before
// delivery so handlers may themselves subscribe, unsubscribe, or publish.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.Lock()
	subs := make([]subscriber, len(d.subs))
	copy(subs, d.subs)
	logger := d.logger
	d.mu.Unlock()

	for _, sub := range subs {
		d.deliver(sub, ev, logger)
	}
}

// deliver invokes one handler with panic isolation.
func (d *Dispatcher) deliver(sub subscriber, ev Event, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panic recovered",
				"subscription", int(sub.token),
				"panic", r,
			)
		}
	}()
	sub.handler(ev)
}
