// Runbeat Core - Playbook Status Monitor
//
// This is the main entry point for the Runbeat Core daemon. Runbeat
// ingests playbook status events from automation runners (webhook and
// REST), keeps a durable entity store, and synchronises live sensor
// handles to operator UIs over WebSocket and MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/runbeat/runbeat-core/internal/api"
	"github.com/runbeat/runbeat-core/internal/bus"
	"github.com/runbeat/runbeat-core/internal/infrastructure/config"
	"github.com/runbeat/runbeat-core/internal/infrastructure/database"
	"github.com/runbeat/runbeat-core/internal/infrastructure/logging"
	"github.com/runbeat/runbeat-core/internal/infrastructure/mqtt"
	"github.com/runbeat/runbeat-core/internal/playbook"
	"github.com/runbeat/runbeat-core/internal/rename"
	"github.com/runbeat/runbeat-core/internal/sensor"
	"github.com/runbeat/runbeat-core/internal/storage"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Runbeat Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Initialise snapshot storage
	repo := storage.NewSQLiteRepository(db.DB)
	if initErr := repo.Init(ctx); initErr != nil {
		return fmt.Errorf("initialising snapshot storage: %w", initErr)
	}

	// Rehydrate the playbook store before anything can observe or mutate it
	store := playbook.NewStore(repo)
	store.SetLogger(log)
	if loadErr := store.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading playbook store: %w", loadErr)
	}
	log.Info("playbook store loaded", "records", store.Len())

	// Event dispatcher connecting ingestion to derived views
	dispatcher := bus.NewDispatcher()
	dispatcher.SetLogger(log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// WebSocket hub, created here so the render platform can broadcast on it
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Render platform fanning sensor lifecycle out to WebSocket and MQTT
	platform := &renderPlatform{
		hub:      hub,
		mqtt:     mqttClient,
		log:      log,
		mirrored: make(map[string]string),
	}

	// Start the synchronizer BEFORE the ingress surfaces: replay restores
	// live handles from the store, and no event can arrive until the API
	// and rename tracker below are wired.
	synchronizer := sensor.NewSynchronizer(store, dispatcher, platform)
	synchronizer.SetLogger(log)
	synchronizer.Start()
	defer synchronizer.Stop()
	log.Info("sensor synchronizer started", "sensors", synchronizer.Count())

	// Start the API server (webhook + REST + WebSocket)
	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Webhook:      cfg.Webhook,
		Security:     cfg.Security,
		Logger:       log,
		Store:        store,
		Dispatcher:   dispatcher,
		Synchronizer: synchronizer,
		ExternalHub:  hub,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Listen for external registry renames
	if mqttClient != nil {
		tracker := rename.NewTracker(store, dispatcher)
		tracker.SetLogger(log)
		renameTopic := mqtt.Topics{}.RegistryRename()
		if listenErr := tracker.Listen(mqttClient, renameTopic, byte(cfg.MQTT.QoS)); listenErr != nil {
			return fmt.Errorf("subscribing to registry renames: %w", listenErr)
		}
		log.Info("rename tracker listening", "topic", renameTopic)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Synchronizer
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Runbeat Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RUNBEAT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RUNBEAT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

// sensorStateMessage is the retained MQTT mirror payload for one sensor.
type sensorStateMessage struct {
	Key        string              `json:"key"`
	EntityID   string              `json:"entity_id"`
	Name       string              `json:"name"`
	Status     string              `json:"status"`
	Attributes playbook.Attributes `json:"attributes,omitempty"`
}

// renderPlatform fans sensor lifecycle events out to the WebSocket hub
// and, when MQTT is enabled, a retained per-sensor state mirror. Both
// sinks are best-effort: a failed render never affects store state.
//
// mirrored remembers which topic each key last published to, so a
// registry rename clears the retained message left on the old topic.
type renderPlatform struct {
	hub      *api.Hub
	mqtt     *mqtt.Client
	log      *logging.Logger
	mu       sync.Mutex
	mirrored map[string]string // key -> display ID of last retained publish
}

// SensorCreated implements sensor.Platform.
func (p *renderPlatform) SensorCreated(s *sensor.Sensor) {
	p.hub.Broadcast(api.ChannelSensorCreated, s)
	p.mirrorState(s)
}

// SensorUpdated implements sensor.Platform.
func (p *renderPlatform) SensorUpdated(s *sensor.Sensor) {
	p.hub.Broadcast(api.ChannelSensorUpdated, s)
	p.mirrorState(s)
}

// SensorRemoved implements sensor.Platform.
func (p *renderPlatform) SensorRemoved(displayID string) {
	p.hub.Broadcast(api.ChannelSensorRemoved, map[string]string{"display_id": displayID})

	if p.mqtt == nil {
		return
	}

	p.mu.Lock()
	for key, id := range p.mirrored {
		if id == displayID {
			delete(p.mirrored, key)
			break
		}
	}
	p.mu.Unlock()

	topic := mqtt.Topics{}.SensorState(displayID)
	if err := p.mqtt.Clear(topic); err != nil {
		p.log.Warn("failed to clear retained sensor state", "topic", topic, "error", err)
	}
}

// mirrorState publishes the sensor's state as a retained MQTT message so
// late subscribers see current state without polling the REST API.
func (p *renderPlatform) mirrorState(s *sensor.Sensor) {
	if p.mqtt == nil {
		return
	}

	p.mu.Lock()
	if prev, ok := p.mirrored[s.Key]; ok && prev != s.DisplayID {
		// Display ID changed (registry rename); drop the stale retained message.
		if err := p.mqtt.Clear(mqtt.Topics{}.SensorState(prev)); err != nil {
			p.log.Warn("failed to clear renamed sensor state", "display_id", prev, "error", err)
		}
	}
	p.mirrored[s.Key] = s.DisplayID
	p.mu.Unlock()

	topic := mqtt.Topics{}.SensorState(s.DisplayID)
	msg := sensorStateMessage{
		Key:        s.Key,
		EntityID:   s.DisplayID,
		Name:       s.Name,
		Status:     s.Status,
		Attributes: s.Attributes,
	}
	if err := p.mqtt.Publish(topic, msg, true); err != nil {
		p.log.Warn("failed to publish sensor state mirror", "topic", topic, "error", err)
	}
}
