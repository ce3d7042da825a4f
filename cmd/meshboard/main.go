// Meshboard Core - Mesh Radio Message Pipeline
//
// This is the main entry point for the Meshboard Core application.
// Meshboard Core tails a meshcore companion radio, normalizes and
// stores every message it hears, and fans new traffic out to WebSocket
// subscribers in near real time. Optional mirrors republish traffic to
// MQTT and write link telemetry to InfluxDB.
//
// The process is designed to run unattended next to the radio: the
// poller reconnects forever with capped backoff, and every other
// component degrades rather than exits when its peer goes away.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/meshboard/meshboard-core/migrations"

	"github.com/meshboard/meshboard-core/internal/api"
	"github.com/meshboard/meshboard-core/internal/broadcast"
	"github.com/meshboard/meshboard-core/internal/infrastructure/config"
	"github.com/meshboard/meshboard-core/internal/infrastructure/database"
	"github.com/meshboard/meshboard-core/internal/infrastructure/influxdb"
	"github.com/meshboard/meshboard-core/internal/infrastructure/logging"
	"github.com/meshboard/meshboard-core/internal/infrastructure/mqtt"
	"github.com/meshboard/meshboard-core/internal/ingest"
	"github.com/meshboard/meshboard-core/internal/meshcore"
	"github.com/meshboard/meshboard-core/internal/message"
	"github.com/meshboard/meshboard-core/internal/mirror"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
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
// Shutdown order after ctx cancels: the pipeline goroutines drain first
// (poller closes its session, debouncer flushes, hub drops subscribers),
// then the API server stops accepting, then the deferred closes run in
// reverse: InfluxDB flushes, MQTT publishes offline, database closes last.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Meshboard Core",
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Message store and merge job
	repo := message.NewSQLiteMessageRepository(db.DB)
	merger := message.NewMerger(db.DB, cfg.Database.MergeIntervalDuration(), log)

	// Collapse duplicates accumulated while we were down before serving
	// reads or accepting new traffic.
	removed, err := merger.MergeOnce(ctx)
	if err != nil {
		return fmt.Errorf("startup merge: %w", err)
	}
	log.Info("startup merge complete", "rows_removed", removed)

	// Connect to MQTT broker (optional mirror)
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

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT mirror disabled")
	}

	// Connect to InfluxDB (optional telemetry)
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
	} else {
		log.Info("InfluxDB disabled")
	}

	// Broadcast path: debouncer buffers stored records and flushes
	// ordered batches into the hub one window after each burst starts.
	hub := broadcast.NewHub(broadcast.HubConfig{
		HeartbeatInterval: cfg.WebSocket.PingIntervalDuration(),
		SendBuffer:        cfg.WebSocket.SendBuffer,
	}, log)

	debouncer := broadcast.NewDebouncer(broadcast.DebouncerConfig{
		Window:    cfg.Broadcast.DebounceWindowDuration(),
		Capacity:  cfg.Broadcast.BufferCap,
		BatchSize: cfg.Broadcast.BatchSize,
	}, hub, log)

	// Every stored record flows to the debouncer; the MQTT mirror and
	// InfluxDB telemetry tap the same stream when enabled.
	sinks := ingest.MultiSink{ingest.SinkFunc(debouncer.Submit)}

	var msgMirror *mirror.Mirror
	if mqttClient != nil {
		msgMirror = mirror.New(mqttClient, mqttClient.Topics(), byte(cfg.MQTT.QoS), log)
		sinks = append(sinks, msgMirror)
	}

	var health ingest.HealthReporter
	if influxClient != nil {
		sinks = append(sinks, &influxSignalSink{client: influxClient})
		health = &influxHealthAdapter{client: influxClient}
	}

	// Name resolver and radio poller
	resolver := ingest.NewResolver()

	poller := ingest.NewPoller(ingest.Config{
		PollInterval: cfg.Device.PollIntervalDuration(),
		DrainMax:     cfg.Device.DrainMax,
	}, ingest.Deps{
		Dial: func(ctx context.Context) (ingest.Session, error) {
			return meshcore.Dial(ctx, meshcore.Config{
				Host:           cfg.Device.Host,
				Port:           cfg.Device.Port,
				ConnectTimeout: cfg.Device.ConnectTimeoutDuration(),
				CommandTimeout: cfg.Device.CommandTimeoutDuration(),
			})
		},
		Repo:     repo,
		Resolver: resolver,
		Sink:     sinks,
		Health:   health,
		Logger:   log,
	})

	// Start the pipeline goroutines. They all stop on ctx cancel and the
	// WaitGroup holds shutdown until each has drained.
	var wg sync.WaitGroup
	startWorker(&wg, func() { hub.Run(ctx) })
	startWorker(&wg, func() { debouncer.Run(ctx) })
	startWorker(&wg, func() { merger.Run(ctx) })
	if msgMirror != nil {
		startWorker(&wg, func() { msgMirror.Run(ctx) })
	}
	startWorker(&wg, func() { poller.Run(ctx) })

	// Start HTTP API and WebSocket feed
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Repo:     repo,
		Device:   poller,
		Channels: resolver,
		Store:    db,
		Hub:      hub,
		Sink:     sinks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	// Verify infrastructure is healthy. The radio is deliberately not
	// checked here: it may be away for hours and the poller owns that
	// retry loop.
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Pipeline first: poller closes its session, debouncer flushes what
	// it buffered, hub drops its subscribers.
	wg.Wait()

	// Deferred Close() calls now run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Meshboard Core stopped")
	return nil
}

// startWorker runs fn on its own goroutine tracked by wg.
func startWorker(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

// getConfigPath returns the configuration file path.
// Uses MESHBOARD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MESHBOARD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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

	return nil
}

// influxHealthAdapter adapts the InfluxDB client to the poller's
// HealthReporter interface. The poller reports a full status snapshot;
// InfluxDB only wants the connection gauge and counters.
type influxHealthAdapter struct {
	client *influxdb.Client
}

// ReportPollerHealth implements ingest.HealthReporter.
func (a *influxHealthAdapter) ReportPollerHealth(status ingest.Status) {
	connected := status.State == ingest.StateConnected || status.State == ingest.StateDraining
	a.client.WritePollerHealth(connected, status.Failures, status.DrainedTotal)
}

// influxSignalSink writes per-message link quality (SNR, hop count) as
// telemetry points. Writes are batched and asynchronous inside the
// client, so tapping the record stream never slows the drain.
type influxSignalSink struct {
	client *influxdb.Client
}

// Publish implements ingest.RecordSink.
func (s *influxSignalSink) Publish(rec *message.Record) {
	if rec == nil {
		return
	}
	s.client.WriteMessageSignal(string(rec.MsgType), rec.ChannelName, rec.SNR, rec.PathLen, rec.ReceivedAt)
}
