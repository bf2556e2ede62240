// Tracker Core maps VR tracked devices onto stable scene slots.
//
// It consumes per-frame device snapshots from the headset-side bridge over
// MQTT, reconciles them into fixed controller, tracker, base-station, HMD
// and camera-controller slots, and serves the result over HTTP, WebSocket
// and MQTT moved notifications.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/tracker-core/migrations"

	"github.com/nerrad567/tracker-core/internal/api"
	"github.com/nerrad567/tracker-core/internal/bridges/openvr"
	"github.com/nerrad567/tracker-core/internal/infrastructure/config"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/tracker-core/internal/infrastructure/logging"
	"github.com/nerrad567/tracker-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tracker-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tracker-core/internal/process"
	"github.com/nerrad567/tracker-core/internal/tracking"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "TRACKER_CONFIG"

	startupHealthTimeout = 5 * time.Second

	defaultBridgeCheckInterval = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "trackercore",
		Short:         "Map VR tracked devices onto stable scene slots",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(), "config file path (env "+configEnvVar+")")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the tracking loop and API server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Load and validate the configuration file",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (site %s, %s binding, %d Hz)\n",
					configPath, cfg.Site.ID, cfg.Tracking.BindingMode, cfg.Tracking.FrameRateHz)
				return nil
			},
		},
		migrateCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "trackercore %s (commit %s, built %s)\n", version, commit, date)
			},
		},
	)

	return cmd
}

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(*configPath, func(db *database.DB) error {
				if err := db.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(*configPath, func(db *database.DB) error {
					applied, pending, err := db.MigrationStatus(cmd.Context())
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					for _, m := range applied {
						fmt.Fprintf(out, "applied  %s\n", m.Version)
					}
					for _, m := range pending {
						fmt.Fprintf(out, "pending  %s %s\n", m.Version, m.Name)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(*configPath, func(db *database.DB) error {
					return db.MigrateDown(cmd.Context())
				})
			},
		},
	)

	return cmd
}

func withDatabase(configPath string, fn func(db *database.DB) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // CLI exit path
	return fn(db)
}

// getConfigPath returns TRACKER_CONFIG when set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// run wires every component and blocks until ctx is cancelled or a
// long-running component fails.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Tracker Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	mode, err := tracking.ParseBindingMode(cfg.Tracking.BindingMode)
	if err != nil {
		return fmt.Errorf("binding mode: %w", err)
	}

	// Baseline persistence (optional)
	var db *database.DB
	var baselines tracking.BaselineStore
	if cfg.Tracking.PersistBaselines {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		baselines = tracking.NewSQLiteBaselineRepository(db.DB)
		log.Info("database connected", "path", cfg.Database.Path)
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

	runtime, err := openvr.New(openvr.Options{
		Client:     mqttClient,
		StaleAfter: cfg.StaleAfter(),
		Logger:     log.With("component", "openvr"),
	})
	if err != nil {
		return fmt.Errorf("creating runtime bridge: %w", err)
	}
	if err := runtime.Start(ctx); err != nil {
		return fmt.Errorf("starting runtime bridge: %w", err)
	}

	handler, err := tracking.NewHandler(tracking.Options{
		Runtime: runtime,
		Capacity: tracking.Capacity{
			Controllers:  cfg.Tracking.Slots.Controllers,
			Trackers:     cfg.Tracking.Slots.Trackers,
			BaseStations: cfg.Tracking.Slots.BaseStations,
		},
		Mode:            mode,
		MotionThreshold: cfg.Tracking.MotionThreshold,
		SnapshotTimeout: cfg.SnapshotTimeout(),
		Settings:        settingsFromConfig(cfg),
		Baselines:       baselines,
		Logger:          log.With("component", "tracking"),
	})
	if err != nil {
		return fmt.Errorf("creating tracking handler: %w", err)
	}
	if n, loadErr := handler.LoadBaselines(ctx); loadErr != nil {
		log.Warn("motion baselines not restored", "error", loadErr)
	} else if n > 0 {
		log.Info("motion baselines restored", "count", n)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		handler.AddObserver(m)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		handler.AddObserver(newPoseTelemetry(influxClient, influxClient.PoseEveryNFrames()))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	relay := newMovedRelay(handler, log.With("component", "relay"))
	relay.publisher = mqttClient
	if influxClient != nil {
		relay.influx = influxClient
	}

	// API server (optional)
	var server *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			Logger:       log,
			Tracker:      handler,
			HealthChecks: healthChecks(db, mqttClient, influxClient),
			Version:      version,
		}
		if m != nil {
			deps.Metrics = m.Handler()
		}
		server, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		relay.hub = server.Hub()
	} else {
		log.Info("API server disabled")
	}

	// Bridge process (optional)
	if cfg.Runtime.Bridge.Managed {
		bridge := process.NewManager(process.BridgeConfig(cfg.Runtime.Bridge, bridgeHealth(runtime, bridgeSilence(cfg.Runtime.Bridge))))
		bridge.SetLogger(log.With("component", "bridge"))
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("starting runtime bridge process: %w", err)
		}
		defer func() {
			log.Info("stopping runtime bridge process")
			if stopErr := bridge.Stop(); stopErr != nil {
				log.Error("error stopping runtime bridge process", "error", stopErr)
			}
		}()
	}

	checkCtx, cancel := context.WithTimeout(ctx, startupHealthTimeout)
	err = healthCheck(checkCtx, db, mqttClient, influxClient)
	cancel()
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	relay.attach()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return relay.Run(gctx)
	})

	if cfg.Tracking.WatchFile {
		watcher, watchErr := config.NewWatcher(configPath, func(next *config.Config) {
			applyReload(handler, server, next, log)
		})
		if watchErr != nil {
			return fmt.Errorf("watching config: %w", watchErr)
		}
		watcher.SetLogger(log.With("component", "config"))
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		log.Info("tracking loop started",
			"frame_rate_hz", cfg.Tracking.FrameRateHz,
			"binding_mode", mode.String(),
			"capacity", handler.Capacity(),
		)
		return handler.Run(gctx, cfg.FrameInterval())
	})

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("Tracker Core stopped")
	return nil
}

// settingsFromConfig extracts the runtime-mutable tracking settings.
func settingsFromConfig(cfg *config.Config) tracking.Settings {
	return tracking.Settings{
		CameraControllerSerial: cfg.Tracking.CameraControllerSerial,
		FlattenBaseStations:    cfg.Tracking.DisableBaseStationRotation,
		ControllerAsTracker:    cfg.Tracking.HandleControllerAsTracker,
	}
}

// settingsSink receives reloaded settings.
type settingsSink interface {
	UpdateSettings(fn func(tracking.Settings) tracking.Settings) (before, after tracking.Settings)
}

// applyReload pushes changed runtime-mutable settings to the handler and
// announces them to WebSocket clients. Other fields need a restart.
func applyReload(h settingsSink, server *api.Server, next *config.Config, log *logging.Logger) {
	before, updated := h.UpdateSettings(func(tracking.Settings) tracking.Settings {
		return settingsFromConfig(next)
	})
	if updated == before {
		return
	}
	log.Info("tracking settings reloaded",
		"camera_controller_serial", updated.CameraControllerSerial,
		"flatten_base_stations", updated.FlattenBaseStations,
		"controller_as_tracker", updated.ControllerAsTracker,
	)
	if server != nil {
		server.Hub().Broadcast(api.ChannelSettings, updated)
	}
}

// bridgeHealth fails once the bridge process has published nothing for the
// window. A bridge reporting the VR runtime as disconnected is healthy.
func bridgeHealth(r *openvr.Runtime, window time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.BridgeAlive(window)
	}
}

// bridgeSilence is how long the bridge may stay quiet: three health-check
// intervals, so one late heartbeat does not count as a failure.
func bridgeSilence(cfg config.BridgeProcessConfig) time.Duration {
	interval := cfg.HealthCheckInterval
	if interval <= 0 {
		interval = defaultBridgeCheckInterval
	}
	return 3 * interval
}

// healthChecks returns the per-component checks reported by the API.
func healthChecks(db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) map[string]api.HealthCheckFunc {
	checks := map[string]api.HealthCheckFunc{
		"mqtt": mqttClient.HealthCheck,
	}
	if db != nil {
		checks["database"] = db.HealthCheck
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient.HealthCheck
	}
	return checks
}

// healthCheck verifies all infrastructure connections are healthy.
// db and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	for name, check := range healthChecks(db, mqttClient, influxClient) {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
