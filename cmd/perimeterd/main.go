// Perimeter Core - perimeter security pipeline
//
// perimeterd ingests detections from field sensors, the vendor bus and
// operators, evaluates response rules, drives deterrents and cameras, and
// fans every outcome out to connected observers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/nerrad567/perimeter-core/migrations"

	"github.com/nerrad567/perimeter-core/internal/api"
	"github.com/nerrad567/perimeter-core/internal/audit"
	"github.com/nerrad567/perimeter-core/internal/auth"
	"github.com/nerrad567/perimeter-core/internal/bridges/sensor"
	"github.com/nerrad567/perimeter-core/internal/broadcast"
	"github.com/nerrad567/perimeter-core/internal/command"
	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/config"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/database"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/logging"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/perimeter-core/internal/ingest"
	"github.com/nerrad567/perimeter-core/internal/metrics"
	"github.com/nerrad567/perimeter-core/internal/relay"
	"github.com/nerrad567/perimeter-core/internal/rules"
	"github.com/nerrad567/perimeter-core/internal/simulator"
	"github.com/nerrad567/perimeter-core/internal/vendor"
	"github.com/nerrad567/perimeter-core/internal/zone"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// Components are closed in reverse start order by the deferred calls.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear wiring of every component
	log := logging.Default()
	log.Info("starting Perimeter Core",
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

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Storage
	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	m := metrics.New()

	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log.Component("devices"))
	if refreshErr := devices.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	zones := zone.NewRegistry(zone.NewSQLiteRepository(db.DB))
	if refreshErr := zones.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading zone registry: %w", refreshErr)
	}
	log.Info("registries loaded",
		"devices", devices.GetDeviceCount(),
		"zones", len(zones.ListZones(false)),
	)

	// Broadcast
	observers := broadcast.NewRegistry()
	observers.SetLogger(log.Component("broadcast"))
	observers.SetMetrics(m)
	defer observers.Close()
	router := broadcast.NewRouter(observers)
	router.SetLogger(log.Component("broadcast"))
	router.SetMetrics(m)

	// Command transport
	facade := command.NewFacade(devices, cfg.Ingest.GetCommandTimeout())
	facade.SetLogger(log.Component("command"))

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		facade.SetTransport(mqttClient)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Warn("MQTT disabled, device commands will fail")
	}

	// Pipeline
	night, err := nightWindow(cfg.Site)
	if err != nil {
		return err
	}
	engine := rules.NewEngine(rules.Config{
		DefaultDeterrent: cfg.Ingest.DefaultDeterrent,
		DefaultCamera:    cfg.Ingest.DefaultCamera,
		DefaultSPL:       rules.DefaultSPL,
		Night:            night,
	})

	gateway := ingest.New(ingest.Config{
		DedupSize:        cfg.Ingest.DedupSize,
		DedupTTL:         cfg.Ingest.GetDedupTTL(),
		StoreTimeout:     cfg.Ingest.GetStoreTimeout(),
		CommandTimeout:   cfg.Ingest.GetCommandTimeout(),
		DefaultDeterrent: cfg.Ingest.DefaultDeterrent,
		DefaultCamera:    cfg.Ingest.DefaultCamera,
	}, ingest.Deps{
		Events:   event.NewSQLiteRepository(db.DB),
		Devices:  devices,
		Zones:    zones,
		Rules:    engine,
		Commands: facade,
		Router:   router,
	})
	gateway.SetLogger(log.Component("ingest"))
	gateway.SetMetrics(m)

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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		gateway.SetTelemetry(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Producers
	var redisClient *redis.Client
	var vendorBridge *vendor.Bridge
	if cfg.Vendor.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()

		vendorBridge = vendor.New(redisClient, vendor.Config{
			MinConfidence:  cfg.Vendor.MinConfidence,
			BackoffInitial: cfg.Vendor.GetBackoffInitial(),
			BackoffMax:     cfg.Vendor.GetBackoffMax(),
		}, gateway, router)
		vendorBridge.SetLogger(log.Component("vendor"))
		vendorBridge.SetMetrics(m)
		if startErr := vendorBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting vendor bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping vendor bridge")
			vendorBridge.Stop()
		}()
		log.Info("vendor bridge started", "redis", cfg.Redis.Addr)
	} else {
		log.Info("vendor bridge disabled")
	}

	if cfg.Sensors.Enabled {
		if mqttClient == nil {
			return fmt.Errorf("sensors.enabled requires mqtt.enabled")
		}
		sensorBridge := sensor.New(mqttClient, gateway)
		sensorBridge.SetLogger(log.Component("sensor"))
		if startErr := sensorBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting sensor bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping sensor bridge")
			sensorBridge.Stop()
		}()
		log.Info("sensor bridge started")
	}

	if cfg.NATS.Enabled {
		nc, connErr := relay.Connect(cfg.NATS.URL)
		if connErr != nil {
			return connErr
		}
		defer nc.Close()

		busRelay := relay.New(nc, observers, relay.Config{
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxRetries:    cfg.NATS.MaxRetries,
		})
		busRelay.SetLogger(log.Component("relay"))
		busRelay.SetMetrics(m)
		busRelay.Start(ctx)
		defer func() {
			log.Info("stopping bus relay")
			busRelay.Stop()
		}()
		log.Info("bus relay started", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	if cfg.Simulator.Enabled {
		sim := simulator.New(simulator.Config{
			Version:           version,
			StatusInterval:    time.Duration(cfg.Simulator.StatusInterval) * time.Second,
			DetectionInterval: time.Duration(cfg.Simulator.DetectionInterval) * time.Second,
			DeterrentDevice:   cfg.Ingest.DefaultDeterrent,
			CameraDevice:      cfg.Ingest.DefaultCamera,
		}, router, observers, gateway)
		sim.SetLogger(log.Component("simulator"))
		if _, seedErr := sim.SeedDevices(ctx, devices); seedErr != nil {
			return fmt.Errorf("seeding mock devices: %w", seedErr)
		}
		if vendorBridge != nil {
			sim.SetVendorState(func() string { return vendorBridge.State().String() })
		}
		if startErr := sim.Start(ctx); startErr != nil {
			return fmt.Errorf("starting simulator: %w", startErr)
		}
		defer func() {
			log.Info("stopping simulator")
			sim.Stop()
		}()
		log.Info("simulator started",
			"status_interval_s", cfg.Simulator.StatusInterval,
			"detection_interval_s", cfg.Simulator.DetectionInterval,
		)
	}

	for _, id := range missingTargets(ctx, devices, cfg.Ingest.DefaultDeterrent, cfg.Ingest.DefaultCamera) {
		log.Warn("default response target is not in the device catalogue; automated responses to it will fail",
			"device_id", id)
	}

	// API
	checks := healthChecks(db, mqttClient, redisClient, influxClient)
	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db.DB))
	recorder.SetLogger(log.Component("audit"))

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log.Component("api"),
		Gateway:   gateway,
		Verifier:  auth.NewVerifier(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer),
		Observers: observers,
		Audit:     recorder,
		Metrics:   m,
		Checks:    checks,
		QueueSize: cfg.Broadcast.QueueSize,
		Version:   version,
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

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("Perimeter Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PERIMETER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PERIMETER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// nightWindow converts the site's HH:MM night bounds into a zone.NightWindow.
func nightWindow(site config.SiteConfig) (zone.NightWindow, error) {
	start, err := config.ParseClock(site.NightStart)
	if err != nil {
		return zone.NightWindow{}, fmt.Errorf("site.night_start: %w", err)
	}
	end, err := config.ParseClock(site.NightEnd)
	if err != nil {
		return zone.NightWindow{}, fmt.Errorf("site.night_end: %w", err)
	}
	loc, err := time.LoadLocation(site.Timezone)
	if err != nil {
		return zone.NightWindow{}, fmt.Errorf("site.timezone: %w", err)
	}
	return zone.NightWindow{Start: start, End: end, Location: loc}, nil
}

// missingTargets returns the configured response targets the catalogue
// does not know. Empty IDs are skipped.
func missingTargets(ctx context.Context, devices ingest.DeviceStore, ids ...string) []string {
	var missing []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := devices.GetDevice(ctx, id); errors.Is(err, device.ErrDeviceNotFound) {
			missing = append(missing, id)
		}
	}
	return missing
}

// healthChecks collects the checks for every connected dependency.
// Disabled dependencies (nil clients) are left out.
func healthChecks(db *database.DB, mqttClient *mqtt.Client, redisClient *redis.Client, influxClient *influxdb.Client) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"database": db.HealthCheck,
	}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient.HealthCheck
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient.HealthCheck
	}
	return checks
}

// healthCheck runs every check and returns the first failure. Redis is
// skipped: the vendor bridge reconnects on its own and reports its state.
func healthCheck(ctx context.Context, checks map[string]api.HealthCheck) error {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "redis" {
			continue
		}
		if err := checks[name](ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
