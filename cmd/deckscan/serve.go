package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/deckscan-core/internal/api"
	"github.com/nerrad567/deckscan-core/internal/experiment"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/database"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/logging"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/deckscan-core/internal/instrument"
	"github.com/nerrad567/deckscan-core/migrations"
)

// shutdownTimeout bounds stopping a running experiment and parking the stage.
const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the instrument service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath(cmd))
		},
	}
}

// serve is the service logic, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - path: Configuration file path
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func serve(ctx context.Context, path string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting deckscan",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", path)

	// Reinitialise logger with config settings
	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // flushed on exit
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, runs, err := openRunHistory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	inst, err := instrument.New(ctx, cfg, instrument.Options{Repo: runs, Logger: log})
	if err != nil {
		return fmt.Errorf("initialising instrument: %w", err)
	}
	defer func() {
		log.Info("parking instrument")
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := inst.Close(closeCtx); closeErr != nil {
			log.Error("error closing instrument", "error", closeErr)
		}
	}()
	log.Info("instrument ready",
		"id", inst.ID,
		"layout", inst.Layout.Name,
		"slots", len(inst.Layout.Slots),
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Instrument.ID)
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
		inst.Orchestrator.AddRecorder(influxClient)
		inst.Focus.AddRecorder(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var reporter api.ConnectionReporter
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Instrument.ID)
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
		reporter = mqttClient

		bridge := mqtt.NewBridge(mqttClient, mqttClient.Topics(), inst.Orchestrator, byte(cfg.MQTT.QoS)) // #nosec G115 -- qos validated 0..2
		bridge.SetLogger(log)
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			if stopErr := bridge.Stop(); stopErr != nil {
				log.Warn("error stopping MQTT bridge", "error", stopErr)
			}
		}()
		inst.Orchestrator.OnProgress(bridge.PublishProgress)
		inst.Orchestrator.AddRecorder(bridge)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"command_topic", mqttClient.Topics().Command(),
		)
	} else {
		log.Info("MQTT disabled")
	}

	srv, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Logger:        log,
		Instrument:    inst,
		Runs:          runs,
		MQTT:          reporter,
		ExperimentDir: cfg.Acquisition.ExperimentDir,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, srv); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Stop a running experiment while telemetry is still connected so the
	// final state reaches MQTT and InfluxDB.
	if inst.Orchestrator.State() == experiment.StateRunning {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := inst.Orchestrator.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping experiment", "error", stopErr)
		}
	}

	// Deferred calls run in reverse order: API server, MQTT bridge and
	// client, InfluxDB, instrument (park), database, logger.
	return nil
}

// openRunHistory opens and migrates the SQLite database.
func openRunHistory(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *experiment.SQLiteRepository, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	return db, experiment.NewSQLiteRepository(db.DB), nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - srv: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, srv *api.Server) error {
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
	if err := srv.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
