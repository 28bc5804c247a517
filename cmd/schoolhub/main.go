// SchoolHub Core - authentication and session service for school user
// management.
//
// This is the main entry point. It loads configuration, opens the SQLite
// store, seeds the first admin on an empty install and serves the HTTP API
// until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/schoolhub-core/migrations"

	"github.com/nerrad567/schoolhub-core/internal/api"
	"github.com/nerrad567/schoolhub-core/internal/audit"
	"github.com/nerrad567/schoolhub-core/internal/auth"
	"github.com/nerrad567/schoolhub-core/internal/classroom"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/config"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/database"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/logging"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled. It returns
// an error for anything that prevents a safe start: bad config, an
// unreachable database or a failed migration.
func run(ctx context.Context) error {
	log := logging.Default()

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	configPath := config.PathFromEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting SchoolHub Core",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
		"site", cfg.Site.ID,
	)

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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	users := auth.NewUserRepository(db.DB)
	ledger := auth.NewSessionLedger(db.DB)

	if n, clearErr := ledger.ClearExpired(ctx); clearErr != nil {
		log.Warn("clearing expired sessions failed", "error", clearErr)
	} else if n > 0 {
		log.Info("cleared expired sessions", "count", n)
	}

	codec, err := auth.NewTokenCodec(cfg.Security.JWT.Secret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}

	if cfg.Security.SeedAdmin.Enabled {
		if _, seedErr := auth.SeedAdmin(ctx, users, auth.SeedOptions{
			Username: cfg.Security.SeedAdmin.Username,
			FullName: cfg.Security.SeedAdmin.FullName,
			Password: cfg.Security.SeedAdmin.Password,
		}, log.Logger); seedErr != nil {
			return fmt.Errorf("seeding admin: %w", seedErr)
		}
	}

	checks := map[string]api.HealthChecker{"database": db}

	mqttClient := connectMQTT(cfg, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
	}

	influxClient := connectInflux(ctx, cfg, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		checks["influxdb"] = influxClient
	}

	server, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Security:      cfg.Security,
		Logger:        log,
		Users:         users,
		Authenticator: auth.NewAuthenticator(users, ledger, codec),
		Guard:         auth.NewGuard(codec, users),
		Classrooms:    classroom.NewSQLiteRepository(db.DB),
		AuditRepo:     audit.NewSQLiteRepository(db.DB),
		MQTT:          mqttClient,
		Influx:        influxClient,
		HealthChecks:  checks,
		Version:       version,
	})
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

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse: API, InfluxDB, MQTT, database.
	return nil
}

// connectMQTT connects to the broker when enabled. A broker that cannot be
// reached is logged and skipped; events then stay local to this instance.
func connectMQTT(cfg *config.Config, log *logging.Logger) *mqtt.Client {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		log.Warn("MQTT unavailable, continuing without event publishing", "error", err)
		return nil
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", client.ClientID(),
	)
	return client
}

// connectInflux connects to InfluxDB when enabled. Failures are logged and
// login metrics fall back to Prometheus only.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without it", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})

	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client
}
