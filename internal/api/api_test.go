package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/runbeat/runbeat-core/internal/bus"
	"github.com/runbeat/runbeat-core/internal/infrastructure/config"
	"github.com/runbeat/runbeat-core/internal/infrastructure/logging"
	"github.com/runbeat/runbeat-core/internal/playbook"
	"github.com/runbeat/runbeat-core/internal/sensor"
)

const (
	testWebhookSecret = "hook-secret"
	testJWTSecret     = "0123456789abcdef0123456789abcdef"
)

// memRepo is an in-memory SnapshotRepository for wiring a real store.
type memRepo struct {
	snap    *playbook.Snapshot
	saveErr error
}

func (m *memRepo) Load(_ context.Context) (*playbook.Snapshot, error) {
	if m.snap == nil {
		return playbook.EmptySnapshot(), nil
	}
	return m.snap, nil
}

func (m *memRepo) Save(_ context.Context, snap *playbook.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snap = snap
	return nil
}

// noopPlatform discards sensor lifecycle calls.
type noopPlatform struct{}

func (noopPlatform) SensorCreated(*sensor.Sensor) {}
func (noopPlatform) SensorUpdated(*sensor.Sensor) {}
func (noopPlatform) SensorRemoved(string)         {}

type testEnv struct {
	server *Server
	router http.Handler
	store  *playbook.Store
	disp   *bus.Dispatcher
	syncer *sensor.Synchronizer
	repo   *memRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := &memRepo{}
	store := playbook.NewStore(repo)
	disp := bus.NewDispatcher()
	syncer := sensor.NewSynchronizer(store, disp, noopPlatform{})
	syncer.Start()

	server, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 8080},
		WS:      config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Webhook: config.WebhookConfig{Secret: testWebhookSecret},
		Security: config.SecurityConfig{
			JWT:   config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
			Admin: config.AdminConfig{Username: "admin", Password: "hunter2"},
		},
		Logger:       logging.Default(),
		Store:        store,
		Dispatcher:   disp,
		Synchronizer: syncer,
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	server.hub = NewHub(server.wsCfg, server.logger)

	return &testEnv{
		server: server,
		router: server.buildRouter(),
		store:  store,
		disp:   disp,
		syncer: syncer,
		repo:   repo,
	}
}

// do runs a request through the router and returns the recorder.
func (e *testEnv) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body) //nolint:errcheck // test fixture
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// login obtains a valid bearer token through the real login endpoint.
func (e *testEnv) login(t *testing.T) map[string]string {
	t.Helper()
	rec := e.do(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": "admin", "password": "hunter2"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing login response: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + resp.AccessToken}
}

func webhookHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testWebhookSecret}
}

func TestWebhook(t *testing.T) {
	t.Run("valid event creates record and sensor", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodPost, "/webhook/playbook", map[string]any{
			"playbook":   "deploy",
			"status":     "running",
			"attributes": map[string]any{"host": "web1"},
		}, webhookHeaders())

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		record, ok := env.store.Get("deploy")
		if !ok {
			t.Fatal("record not stored")
		}
		if record.Status != "running" {
			t.Errorf("Status = %q, want running", record.Status)
		}
		if _, ok := env.syncer.Get("deploy"); !ok {
			t.Error("sensor handle not created from webhook event")
		}
	})

	t.Run("wrong secret gets a bare 401", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodPost, "/webhook/playbook", map[string]any{
			"playbook": "deploy", "status": "ok",
		}, map[string]string{"Authorization": "Bearer wrong"})

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("body = %q, want empty (no information for probers)", rec.Body.String())
		}
		if env.store.Len() != 0 {
			t.Error("unauthorised event mutated the store")
		}
	})

	t.Run("missing secret gets a bare 401", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodPost, "/webhook/playbook", map[string]any{
			"playbook": "deploy", "status": "ok",
		}, nil)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("malformed JSON is a 400 with no side effects", func(t *testing.T) {
		env := newTestEnv(t)
		req := httptest.NewRequest(http.MethodPost, "/webhook/playbook", bytes.NewBufferString("{broken"))
		req.Header.Set("Authorization", "Bearer "+testWebhookSecret)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if env.store.Len() != 0 {
			t.Error("malformed event mutated the store")
		}
	})

	t.Run("missing fields are a 400 with no side effects", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodPost, "/webhook/playbook", map[string]any{
			"playbook": "deploy",
		}, webhookHeaders())

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if env.store.Len() != 0 {
			t.Error("invalid event mutated the store")
		}
	})

	t.Run("attributes merge across events", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(http.MethodPost, "/webhook/playbook", map[string]any{
			"playbook": "deploy", "status": "running",
			"attributes": map[string]any{"host": "web1"},
		}, webhookHeaders())
		env.do(http.MethodPost, "/webhook/playbook", map[string]any{
			"playbook": "deploy", "status": "ok",
			"attributes": map[string]any{"duration": 42},
		}, webhookHeaders())

		record, _ := env.store.Get("deploy")
		if record.Attributes["host"] != "web1" {
			t.Error("earlier attribute lost; webhook must merge")
		}
		if record.Attributes["duration"] == nil {
			t.Error("new attribute missing after merge")
		}
	})

	t.Run("persistence failure is a 500", func(t *testing.T) {
		env := newTestEnv(t)
		env.repo.saveErr = errors.New("disk full")

		rec := env.do(http.MethodPost, "/webhook/playbook", map[string]any{
			"playbook": "deploy", "status": "ok",
		}, webhookHeaders())

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if env.store.Len() != 0 {
			t.Error("store kept record whose persistence failed")
		}
		if env.syncer.Count() != 0 {
			t.Error("sensor created for unpersisted record")
		}
	})
}

func TestPlaybooksAPI(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodGet, "/api/v1/playbooks/", nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("create then list", func(t *testing.T) {
		env := newTestEnv(t)
		auth := env.login(t)

		rec := env.do(http.MethodPost, "/api/v1/playbooks/", map[string]any{
			"playbook":   "deploy",
			"status":     "ok",
			"attributes": map[string]any{"host": "web1"},
		}, auth)
		if rec.Code != http.StatusOK {
			t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
		}

		rec = env.do(http.MethodGet, "/api/v1/playbooks/", nil, auth)
		if rec.Code != http.StatusOK {
			t.Fatalf("list status = %d", rec.Code)
		}
		var listing map[string]playbookView
		if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
			t.Fatalf("parsing listing: %v", err)
		}
		view, ok := listing["deploy"]
		if !ok {
			t.Fatalf("listing = %v, want deploy entry", listing)
		}
		if view.EntityID != "sensor_deploy" || view.Status != "ok" {
			t.Errorf("view = %+v, want entity sensor_deploy status ok", view)
		}
	})

	t.Run("REST upsert replaces attributes", func(t *testing.T) {
		env := newTestEnv(t)
		auth := env.login(t)

		env.do(http.MethodPost, "/api/v1/playbooks/", map[string]any{
			"playbook": "deploy", "status": "running",
			"attributes": map[string]any{"host": "web1", "step": "sync"},
		}, auth)
		env.do(http.MethodPost, "/api/v1/playbooks/", map[string]any{
			"playbook": "deploy", "status": "ok",
			"attributes": map[string]any{"duration": 9},
		}, auth)

		record, _ := env.store.Get("deploy")
		if _, ok := record.Attributes["host"]; ok {
			t.Error("old attribute survived REST upsert; must replace")
		}
	})

	t.Run("missing fields are a 400", func(t *testing.T) {
		env := newTestEnv(t)
		auth := env.login(t)

		rec := env.do(http.MethodPost, "/api/v1/playbooks/", map[string]any{"playbook": "deploy"}, auth)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("delete by entity id", func(t *testing.T) {
		env := newTestEnv(t)
		auth := env.login(t)

		env.do(http.MethodPost, "/api/v1/playbooks/", map[string]any{
			"playbook": "deploy", "status": "ok",
		}, auth)
		if env.syncer.Count() != 1 {
			t.Fatalf("sensor count = %d, want 1", env.syncer.Count())
		}

		rec := env.do(http.MethodDelete, "/api/v1/playbooks/", map[string]any{
			"entity_id": "sensor_deploy",
		}, auth)
		if rec.Code != http.StatusOK {
			t.Fatalf("delete status = %d, body = %s", rec.Code, rec.Body.String())
		}

		if env.store.Len() != 0 {
			t.Error("record still stored after delete")
		}
		if env.syncer.Count() != 0 {
			t.Error("sensor handle still live after delete")
		}
	})

	t.Run("delete of unknown entity id is a 404", func(t *testing.T) {
		env := newTestEnv(t)
		auth := env.login(t)

		rec := env.do(http.MethodDelete, "/api/v1/playbooks/", map[string]any{
			"entity_id": "sensor_ghost",
		}, auth)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("stats", func(t *testing.T) {
		env := newTestEnv(t)
		auth := env.login(t)

		env.do(http.MethodPost, "/api/v1/playbooks/", map[string]any{"playbook": "a", "status": "ok"}, auth)
		env.do(http.MethodPost, "/api/v1/playbooks/", map[string]any{"playbook": "b", "status": "failed"}, auth)

		rec := env.do(http.MethodGet, "/api/v1/playbooks/stats", nil, auth)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var stats struct {
			Total    int            `json:"total"`
			ByStatus map[string]int `json:"by_status"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			t.Fatalf("parsing stats: %v", err)
		}
		if stats.Total != 2 || stats.ByStatus["ok"] != 1 {
			t.Errorf("stats = %+v, want total 2, ok 1", stats)
		}
	})
}

func TestSensorsAPI(t *testing.T) {
	env := newTestEnv(t)
	auth := env.login(t)

	env.do(http.MethodPost, "/webhook/playbook", map[string]any{
		"playbook": "deploy", "status": "ok",
	}, webhookHeaders())

	rec := env.do(http.MethodGet, "/api/v1/sensors", nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sensors []sensor.Sensor
	if err := json.Unmarshal(rec.Body.Bytes(), &sensors); err != nil {
		t.Fatalf("parsing sensors: %v", err)
	}
	if len(sensors) != 1 || sensors[0].DisplayID != "sensor_deploy" {
		t.Errorf("sensors = %+v, want one sensor_deploy", sensors)
	}
}

func TestAuth(t *testing.T) {
	t.Run("health needs no auth", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodGet, "/api/v1/health", nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("wrong credentials are rejected", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodPost, "/api/v1/auth/login",
			map[string]string{"username": "admin", "password": "wrong"}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodGet, "/api/v1/playbooks/", nil,
			map[string]string{"Authorization": "Bearer not-a-jwt"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("webhook secret does not unlock the operator API", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodGet, "/api/v1/playbooks/", nil, webhookHeaders())
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}
