package sensor

import (
	"sync"
	"testing"

	"github.com/runbeat/runbeat-core/internal/bus"
	"github.com/runbeat/runbeat-core/internal/playbook"
)

// MockPlatform records lifecycle calls for assertions.
type MockPlatform struct {
	mu      sync.Mutex
	created []Sensor
	updated []Sensor
	removed []string
}

func (m *MockPlatform) SensorCreated(s *Sensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *s)
}

func (m *MockPlatform) SensorUpdated(s *Sensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, *s)
}

func (m *MockPlatform) SensorRemoved(displayID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, displayID)
}

func (m *MockPlatform) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

func (m *MockPlatform) lastUpdated() (Sensor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updated) == 0 {
		return Sensor{}, false
	}
	return m.updated[len(m.updated)-1], true
}

// staticStore is a StoreReader serving a fixed record list.
type staticStore struct {
	records []playbook.Record
}

func (s *staticStore) List() []playbook.Record {
	return s.records
}

func TestSynchronizer_StartReplaysStore(t *testing.T) {
	store := &staticStore{records: []playbook.Record{
		{Key: "deploy", DisplayID: "sensor_deploy", Status: "ok"},
		{Key: "backup", DisplayID: "sensor_backup_renamed", Status: "failed"},
	}}
	platform := &MockPlatform{}
	syncer := NewSynchronizer(store, bus.NewDispatcher(), platform)

	syncer.Start()

	if platform.createdCount() != 2 {
		t.Fatalf("created = %d, want 2", platform.createdCount())
	}
	if syncer.Count() != 2 {
		t.Errorf("Count() = %d, want 2", syncer.Count())
	}

	t.Run("replay keeps persisted display ids", func(t *testing.T) {
		handle, ok := syncer.Get("backup")
		if !ok {
			t.Fatal("no handle for backup")
		}
		if handle.DisplayID != "sensor_backup_renamed" {
			t.Errorf("DisplayID = %q, want %q", handle.DisplayID, "sensor_backup_renamed")
		}
	})

	t.Run("second Start does not duplicate handles", func(t *testing.T) {
		syncer.Start()
		if platform.createdCount() != 2 {
			t.Errorf("created = %d after restart, want 2", platform.createdCount())
		}
	})
}

func TestSynchronizer_StatusChanged(t *testing.T) {
	disp := bus.NewDispatcher()
	platform := &MockPlatform{}
	syncer := NewSynchronizer(&staticStore{}, disp, platform)
	syncer.Start()

	t.Run("first event creates the handle", func(t *testing.T) {
		disp.Publish(bus.StatusChanged{Key: "deploy", DisplayID: "sensor_deploy", Status: "running", Attributes: playbook.Attributes{"host": "web1"}})

		handle, ok := syncer.Get("deploy")
		if !ok {
			t.Fatal("no handle created")
		}
		if handle.DisplayID != "sensor_deploy" {
			t.Errorf("DisplayID = %q, want %q", handle.DisplayID, "sensor_deploy")
		}
		if handle.Name != "deploy Playbook Status" {
			t.Errorf("Name = %q, want %q", handle.Name, "deploy Playbook Status")
		}
	})

	t.Run("later event mutates the same handle in place", func(t *testing.T) {
		disp.Publish(bus.StatusChanged{Key: "deploy", DisplayID: "sensor_deploy", Status: "ok", Attributes: playbook.Attributes{"host": "web1", "duration": 12.0}})

		if platform.createdCount() != 1 {
			t.Errorf("created = %d, want 1 (update must not recreate)", platform.createdCount())
		}
		handle, _ := syncer.Get("deploy")
		if handle.Status != "ok" {
			t.Errorf("Status = %q, want %q", handle.Status, "ok")
		}
	})

	t.Run("event attributes are assigned, not merged", func(t *testing.T) {
		// The store already merged; the handle must mirror the event exactly.
		disp.Publish(bus.StatusChanged{Key: "deploy", DisplayID: "sensor_deploy", Status: "ok", Attributes: playbook.Attributes{"only": "this"}})

		handle, _ := syncer.Get("deploy")
		if _, ok := handle.Attributes["host"]; ok {
			t.Error("handle kept stale attribute; event set must replace")
		}
		if handle.Attributes["only"] != "this" {
			t.Errorf("Attributes = %v, want only:this", handle.Attributes)
		}
	})
}

func TestSynchronizer_Renamed(t *testing.T) {
	disp := bus.NewDispatcher()
	platform := &MockPlatform{}
	syncer := NewSynchronizer(&staticStore{}, disp, platform)
	syncer.Start()

	disp.Publish(bus.StatusChanged{Key: "deploy", DisplayID: "sensor_deploy", Status: "ok"})
	disp.Publish(bus.Renamed{Key: "deploy", OldDisplayID: "sensor_deploy", NewDisplayID: "sensor_prod_deploy"})

	handle, ok := syncer.Get("deploy")
	if !ok {
		t.Fatal("handle lost after rename")
	}
	if handle.DisplayID != "sensor_prod_deploy" {
		t.Errorf("DisplayID = %q, want %q", handle.DisplayID, "sensor_prod_deploy")
	}

	last, ok := platform.lastUpdated()
	if !ok || last.DisplayID != "sensor_prod_deploy" {
		t.Errorf("platform update DisplayID = %q, want %q", last.DisplayID, "sensor_prod_deploy")
	}

	t.Run("status events still reach the renamed handle", func(t *testing.T) {
		// The store was re-keyed, so later events carry the new display id.
		disp.Publish(bus.StatusChanged{Key: "deploy", DisplayID: "sensor_prod_deploy", Status: "failed"})

		if platform.createdCount() != 1 {
			t.Errorf("created = %d, want 1 (rename must not orphan the handle)", platform.createdCount())
		}
		handle, _ := syncer.Get("deploy")
		if handle.Status != "failed" {
			t.Errorf("Status = %q, want %q", handle.Status, "failed")
		}
		if handle.DisplayID != "sensor_prod_deploy" {
			t.Errorf("DisplayID = %q, want rename preserved", handle.DisplayID)
		}
	})
}

func TestSynchronizer_RenameBeforeFirstDispatch(t *testing.T) {
	// A registry rename can land between the store write and the
	// StatusChanged dispatch for a brand new record: the Renamed event
	// finds no handle and is dropped, and the handle is only created by
	// the StatusChanged that follows. That event carries the store's
	// current display id, so the handle must come up already renamed.
	disp := bus.NewDispatcher()
	platform := &MockPlatform{}
	syncer := NewSynchronizer(&staticStore{}, disp, platform)
	syncer.Start()

	disp.Publish(bus.Renamed{Key: "deploy", OldDisplayID: "sensor_deploy", NewDisplayID: "custom_id"})
	disp.Publish(bus.StatusChanged{Key: "deploy", DisplayID: "custom_id", Status: "running"})

	handle, ok := syncer.Get("deploy")
	if !ok {
		t.Fatal("no handle created")
	}
	if handle.DisplayID != "custom_id" {
		t.Errorf("DisplayID = %q, want %q", handle.DisplayID, "custom_id")
	}

	t.Run("teardown uses the current display id", func(t *testing.T) {
		if !syncer.Remove("deploy") {
			t.Fatal("Remove() = false, want true")
		}
		if len(platform.removed) != 1 || platform.removed[0] != "custom_id" {
			t.Errorf("removed = %v, want [custom_id]", platform.removed)
		}
	})
}

func TestSynchronizer_Remove(t *testing.T) {
	disp := bus.NewDispatcher()
	platform := &MockPlatform{}
	syncer := NewSynchronizer(&staticStore{}, disp, platform)
	syncer.Start()

	disp.Publish(bus.StatusChanged{Key: "deploy", DisplayID: "sensor_deploy", Status: "ok", Attributes: playbook.Attributes{"host": "web1"}})

	t.Run("tears down the handle", func(t *testing.T) {
		if !syncer.Remove("deploy") {
			t.Fatal("Remove() = false, want true")
		}
		if _, ok := syncer.Get("deploy"); ok {
			t.Error("handle still present after Remove")
		}
		if len(platform.removed) != 1 || platform.removed[0] != "sensor_deploy" {
			t.Errorf("removed = %v, want [sensor_deploy]", platform.removed)
		}
	})

	t.Run("removing twice returns false", func(t *testing.T) {
		if syncer.Remove("deploy") {
			t.Error("Remove() = true for missing handle, want false")
		}
	})

	t.Run("a later event creates a fresh handle", func(t *testing.T) {
		disp.Publish(bus.StatusChanged{Key: "deploy", DisplayID: "sensor_deploy", Status: "running"})

		handle, ok := syncer.Get("deploy")
		if !ok {
			t.Fatal("no handle after recreation")
		}
		if _, ok := handle.Attributes["host"]; ok {
			t.Error("recreated handle inherited removed handle's attributes")
		}
		if platform.createdCount() != 2 {
			t.Errorf("created = %d, want 2", platform.createdCount())
		}
	})
}

func TestSynchronizer_StopUnsubscribes(t *testing.T) {
	disp := bus.NewDispatcher()
	platform := &MockPlatform{}
	syncer := NewSynchronizer(&staticStore{}, disp, platform)
	syncer.Start()
	syncer.Stop()

	disp.Publish(bus.StatusChanged{Key: "deploy", DisplayID: "sensor_deploy", Status: "ok"})

	if syncer.Count() != 0 {
		t.Errorf("Count() = %d after Stop, want 0", syncer.Count())
	}
}
