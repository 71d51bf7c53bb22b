// ddcwatchd - DDC/CI display hotplug watch daemon
//
// ddcwatchd tracks the displays attached to a Linux machine by watching
// DRM connector and I2C bus state. It assigns stable display numbers,
// confirms DDC/CI communication, records connect/disconnect history in
// SQLite, and announces changes over MQTT, WebSocket, and a small REST
// API. Optional InfluxDB output captures hotplug rates over time.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/rockowitz/ddcwatch/migrations"

	"github.com/rockowitz/ddcwatch/internal/announce"
	"github.com/rockowitz/ddcwatch/internal/api"
	"github.com/rockowitz/ddcwatch/internal/ddc"
	"github.com/rockowitz/ddcwatch/internal/display"
	"github.com/rockowitz/ddcwatch/internal/history"
	"github.com/rockowitz/ddcwatch/internal/i2cbus"
	"github.com/rockowitz/ddcwatch/internal/infrastructure/config"
	"github.com/rockowitz/ddcwatch/internal/infrastructure/database"
	"github.com/rockowitz/ddcwatch/internal/infrastructure/influxdb"
	"github.com/rockowitz/ddcwatch/internal/infrastructure/logging"
	"github.com/rockowitz/ddcwatch/internal/infrastructure/mqtt"
	"github.com/rockowitz/ddcwatch/internal/sysfs"
	"github.com/rockowitz/ddcwatch/internal/watch"
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

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting ddcwatchd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if configPath != "" {
		log.Info("configuration loaded", "path", configPath)
	} else {
		log.Info("no config file found, using built-in defaults")
	}

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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Event history store, subscribed to every hotplug event
	store := history.NewStore(db.DB)
	dispatcher := watch.NewDispatcher()
	dispatcher.Subscribe(store.Subscriber(func(err error) {
		log.Error("recording event history", "error", err)
	}))

	// Detection stack: sysfs reader, bus inventory, display registry
	fs := &sysfs.FS{Root: cfg.Watch.SysfsRoot, DevRoot: cfg.Watch.DevRoot}
	inventory := i2cbus.NewInventory(fs)
	inventory.SetLogger(log)
	registry := display.NewRegistry()
	checker := ddc.NewBusChecker()

	engine := watch.NewEngine(watch.Config{
		PollInterval:            cfg.PollInterval(),
		ExtraStabilization:      cfg.ExtraStabilization(),
		StabilizationPoll:       cfg.StabilizationPoll(),
		MaxStabilizationSamples: cfg.Watch.MaxStabilizationSamples,
		StabilizeOnAdd:          cfg.Watch.StabilizeOnAdd,
		PhantomDetection:        cfg.Watch.PhantomDetection,
		RecheckInterval:         cfg.RecheckInterval(),
		WatchDPMS:               cfg.Watch.WatchDPMS,
	}, inventory, registry, fs, checker, dispatcher, log)

	// The rescan hook used by the API and the MQTT command topic.
	// ProcessIteration takes the engine's process-event lock, so
	// concurrent triggers simply queue behind the watch loop.
	rescan := func() { engine.ProcessIteration(ctx) }

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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		// Publish every event plus retained per-connector state
		announcer := announce.New(mqttClient)
		dispatcher.Subscribe(announcer.Subscriber(func(err error) {
			log.Error("publishing display event", "error", err)
		}))

		// Consumers can request an immediate hotplug check
		rescanTopic := mqtt.Topics{}.CommandRescan()
		err = mqttClient.Subscribe(rescanTopic, byte(cfg.MQTT.QoS), func(string, []byte) error {
			log.Info("rescan requested via MQTT")
			go rescan()
			return nil
		})
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", rescanTopic, err)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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

		dispatcher.Subscribe(func(ev watch.Event) {
			displayNumber := -1
			if ev.Ref != nil {
				displayNumber = ev.Ref.Number
			}
			influxClient.WriteHotplugEvent(string(ev.Type), ev.Connector, ev.BusNo, displayNumber)

			valid := registry.ListValid()
			ddcWorking := 0
			for _, ref := range valid {
				if ref.DDCWorking {
					ddcWorking++
				}
			}
			influxClient.WriteDisplayCount(len(valid), ddcWorking)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the starting registry before any watcher runs. Initial
	// detection emits no events; it is the baseline later iterations
	// diff against.
	if err := engine.InitialDetection(ctx); err != nil {
		return fmt.Errorf("initial display detection: %w", err)
	}
	log.Info("initial detection complete", "displays", len(registry.ListValid()))

	// Start API server (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log,
			Displays: registry,
			Events:   store,
			DB:       db,
			MQTT:     mqttClient,
			Rescan:   rescan,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}

		// Stream events to WebSocket subscribers
		dispatcher.Subscribe(apiServer.Hub().Subscriber())

		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	// Change notification source: udev netlink, logind session signals,
	// devfs watch, or plain polling. Dynamic mode picks the best one
	// available at startup.
	src := watch.OpenSource(cfg.Watch.Mode, cfg.Watch.DevRoot, engine.SetSuspended, log)
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			log.Error("error closing watch source", "error", closeErr)
		}
	}()
	log.Info("watch loop starting", "source", src.Name(), "mode", cfg.Watch.Mode)

	go engine.Run(ctx, src)
	go engine.Recheck().Run(ctx)

	// Verify all infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Watch source
	// 2. API server (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("ddcwatchd stopped")
	return nil
}

// loadConfig resolves and loads the configuration.
//
// The DDCWATCH_CONFIG environment variable names an explicit config
// file. Without it the default path is used when present, and the
// built-in defaults otherwise, so the daemon starts on a bare machine
// with no setup.
func loadConfig() (*config.Config, string, error) {
	path := os.Getenv("DDCWATCH_CONFIG")
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			return config.Default(), "", nil
		}
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional components are skipped when nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
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
