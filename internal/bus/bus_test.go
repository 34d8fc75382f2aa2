package bus

import (
	"testing"

	"github.com/runbeat/runbeat-core/internal/playbook"
)

func TestDispatcher_DeliveryOrder(t *testing.T) {
	d := NewDispatcher()

	var order []int
	d.Subscribe(func(Event) { order = append(order, 1) })
	d.Subscribe(func(Event) { order = append(order, 2) })
	d.Subscribe(func(Event) { order = append(order, 3) })

	d.Publish(StatusChanged{Key: "deploy", Status: "ok"})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order = %v, want [1 2 3]", order)
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	token := d.Subscribe(func(Event) { calls++ })

	d.Publish(StatusChanged{Key: "a", Status: "ok"})
	d.Unsubscribe(token)
	d.Publish(StatusChanged{Key: "b", Status: "ok"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if d.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", d.SubscriberCount())
	}
}

func TestDispatcher_NoReplayForLateSubscriber(t *testing.T) {
	d := NewDispatcher()

	d.Publish(StatusChanged{Key: "early", Status: "ok"})

	var seen []Event
	d.Subscribe(func(ev Event) { seen = append(seen, ev) })

	if len(seen) != 0 {
		t.Errorf("late subscriber saw %d events, want 0", len(seen))
	}
}

func TestDispatcher_PanicIsolation(t *testing.T) {
	d := NewDispatcher()

	d.Subscribe(func(Event) { panic("handler bug") })

	reached := false
	d.Subscribe(func(Event) { reached = true })

	// Must not panic the publisher, and must still reach later subscribers.
	d.Publish(Renamed{Key: "deploy", OldDisplayID: "sensor_deploy", NewDisplayID: "sensor_prod"})

	if !reached {
		t.Error("subscriber after panicking handler was not invoked")
	}
}

func TestDispatcher_EventPayloads(t *testing.T) {
	d := NewDispatcher()

	var got Event
	d.Subscribe(func(ev Event) { got = ev })

	attrs := playbook.Attributes{"host": "web1"}
	d.Publish(StatusChanged{Key: "deploy", DisplayID: "sensor_deploy", Status: "running", Attributes: attrs})

	sc, ok := got.(StatusChanged)
	if !ok {
		t.Fatalf("event type = %T, want StatusChanged", got)
	}
	if sc.Key != "deploy" || sc.DisplayID != "sensor_deploy" || sc.Status != "running" || sc.Attributes["host"] != "web1" {
		t.Errorf("StatusChanged = %+v, want key deploy display sensor_deploy status running host web1", sc)
	}
}
