// RoomLink Core - ESP32 room controller engine
//
// This is the main entry point for the RoomLink Core application.
// RoomLink keeps a live view of ESP32 room controllers reporting over MQTT:
//   - Sensor, actuator and info updates are folded into a device registry
//   - Readings above the configured limits raise alerts
//   - Commands are published back to the controllers
//   - Stored readings are served from the history backend
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/roomlink-core/internal/alert"
	"github.com/nerrad567/roomlink-core/internal/api"
	"github.com/nerrad567/roomlink-core/internal/command"
	"github.com/nerrad567/roomlink-core/internal/device"
	"github.com/nerrad567/roomlink-core/internal/engine"
	"github.com/nerrad567/roomlink-core/internal/history"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/config"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/database"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/docstore"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/logging"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/roomlink-core/internal/message"
	"github.com/nerrad567/roomlink-core/internal/settings"
	"github.com/nerrad567/roomlink-core/migrations"
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
	// Cancel on Ctrl+C and SIGTERM so every component shuts down in order.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear start-up sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting RoomLink Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing left to log to
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	// Settings database
	db, err := database.Open(ctx, cfg.Database)
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	store := settings.New(db, settings.DefaultsFromConfig(cfg.Alerts))

	registry := device.NewRegistry(store)
	registry.SetLogger(log)

	// Reuse the broker login from the last successful session when the
	// configuration does not name one.
	saved, found, err := store.Credentials(ctx)
	if err != nil {
		log.Warn("reading saved broker credentials", "error", err)
	} else if found && applySavedCredentials(&cfg.MQTT, saved) {
		log.Info("using saved broker credentials",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"username", cfg.MQTT.Auth.Username,
		)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"namespace", cfg.MQTT.Namespace,
	)
	mqttClient.SetLogger(log)
	mqttClient.SetOnPublishError(func(topic string, err error) {
		log.Warn("MQTT publish failed", "topic", topic, "error", err)
	})

	if saveErr := store.SaveCredentials(ctx, credentialsFromConfig(cfg.MQTT)); saveErr != nil {
		log.Warn("saving broker credentials", "error", saveErr)
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	historyStore, err := newHistoryStore(cfg, influxClient)
	if err != nil {
		return fmt.Errorf("creating history store: %w", err)
	}
	aggregator := history.NewAggregator(historyStore, history.Options{
		DefaultLimit: cfg.History.DefaultLimit,
		MaxLimit:     cfg.History.MaxLimit,
		Timeout:      cfg.GetHistoryTimeout(),
	})
	aggregator.SetLogger(log)
	log.Info("history store ready", "backend", cfg.History.Backend)

	dispatcher := command.NewDispatcher(mqttClient, cfg.MQTT.Namespace)
	dispatcher.SetLogger(log)

	opts := engine.Options{
		Decoder:  message.NewDecoder(cfg.MQTT.Namespace),
		Registry: registry,
		Settings: store,
		Notifier: newNotifier(log, influxClient),
		Logger:   log,
	}
	if influxClient != nil && cfg.History.RecordReadings {
		opts.Recorder = influxClient
	}

	// The hub is shared: the engine broadcasts, the API serves clients.
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		opts.Hub = hub
	}
	eng := engine.New(opts)

	// Subscribe last so no message arrives before the engine exists.
	messages, err := mqttClient.Stream(mqttClient.Topics().All(), byte(cfg.MQTT.QoS)) // #nosec G115 -- validated 0..2
	if err != nil {
		return fmt.Errorf("subscribing to device topics: %w", err)
	}
	log.Info("subscribed to device topics", "topic", mqttClient.Topics().All())

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Logger:     log,
			Registry:   registry,
			Commands:   dispatcher,
			History:    aggregator,
			Settings:   store,
			Status:     eng,
			Hub:        hub,
			StaleAfter: cfg.GetStaleAfter(),
			Version:    version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
	} else {
		log.Info("API disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx, messages, mqttClient.ConnectionEvents())
	})

	if apiServer != nil {
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		if startErr := apiServer.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if checker, ok := historyStore.(interface{ HealthCheck(context.Context) error }); ok {
		// History outages only empty the charts; start anyway.
		if err := checker.HealthCheck(ctx); err != nil {
			log.Warn("history store not reachable", "backend", cfg.History.Backend, "error", err)
		}
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running engine: %w", err)
	}

	log.Info("shutdown signal received, cleaning up",
		"devices", registry.Len(),
		"received", eng.Stats().Received,
	)

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("RoomLink Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ROOMLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ROOMLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// applySavedCredentials copies the saved broker login into cfg when the
// configuration carries no username of its own. It reports whether cfg
// was changed.
func applySavedCredentials(cfg *config.MQTTConfig, saved settings.Credentials) bool {
	if cfg.Auth.Username != "" || saved.Username == "" {
		return false
	}
	if saved.Host != "" {
		cfg.Broker.Host = saved.Host
	}
	if saved.Port > 0 {
		cfg.Broker.Port = saved.Port
	}
	cfg.Auth.Username = saved.Username
	cfg.Auth.Password = saved.Password
	return true
}

// credentialsFromConfig is the login persisted after a successful connect.
func credentialsFromConfig(cfg config.MQTTConfig) settings.Credentials {
	return settings.Credentials{
		Host:     cfg.Broker.Host,
		Port:     cfg.Broker.Port,
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
	}
}

// newHistoryStore selects the configured history backend. influxClient is
// nil when InfluxDB is disabled.
func newHistoryStore(cfg *config.Config, influxClient *influxdb.Client) (history.Store, error) {
	switch cfg.History.Backend {
	case config.HistoryBackendDocStore:
		client, err := docstore.New(cfg.DocStore)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.HistoryBackendInfluxDB:
		if influxClient == nil {
			return nil, fmt.Errorf("history backend %q requires influxdb.enabled", cfg.History.Backend)
		}
		return influxClient, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// newNotifier builds the alert fan-out: every alert is logged, and also
// written to InfluxDB when it is enabled.
func newNotifier(log *logging.Logger, influxClient *influxdb.Client) alert.Notifier {
	notifiers := alert.Notifiers{alert.LogNotifier{Logger: log}}
	if influxClient != nil {
		notifiers = append(notifiers, influxClient)
	}
	return notifiers
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - apiServer: API server to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if apiServer != nil {
		if err := apiServer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}
