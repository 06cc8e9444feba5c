/*
main.go - Application entry point

PURPOSE:
  Starts the fleet settlement server: HTTP API plus the background
  scheduler that generates daily and monthly settlements, runs anomaly
  checks, records fuel balances and prepares attendance sheets.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open the store (SQLite or PostgreSQL)
  3. Connect optional Redis (shared lease) and NATS (alert fan-out)
  4. Wire engine, rollup, detector, tracker, generators
  5. Register and start the scheduler
  6. Start the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      Database path or DSN (overrides DATABASE_URL)
           Use ":memory:" with DB_DRIVER=sqlite for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler from firing again
  2. Wait for running tasks (SHUTDOWN_TIMEOUT)
  3. Stop accepting new connections and drain requests
  4. Close database, Redis and NATS connections

EXAMPLES:
  # Single site, file database
  ./server -db="./data/settlement.db"

  # Shared PostgreSQL with a Redis lease
  DB_DRIVER=postgres DATABASE_URL="postgres://..." REDIS_URL=redis:6379 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - scheduler/jobs.go: Production schedule
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/minefleet/settlement-engine/anomaly"
	"github.com/minefleet/settlement-engine/api"
	"github.com/minefleet/settlement-engine/attendance"
	"github.com/minefleet/settlement-engine/config"
	"github.com/minefleet/settlement-engine/fuelbalance"
	"github.com/minefleet/settlement-engine/lease"
	"github.com/minefleet/settlement-engine/notify"
	"github.com/minefleet/settlement-engine/scheduler"
	"github.com/minefleet/settlement-engine/settlement"
	"github.com/minefleet/settlement-engine/store/postgres"
	"github.com/minefleet/settlement-engine/store/sqlite"
)

// closableStore is a settlement.Store that owns a connection.
type closableStore interface {
	settlement.Store
	Close() error
}

func main() {
	cfg := config.Load()

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbURL := flag.String("db", cfg.DatabaseURL, "SQLite database path or PostgreSQL DSN")
	flag.Parse()
	cfg.Port = *port
	cfg.DatabaseURL = *dbURL

	// Initialize store
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("[Server] Using %s store", cfg.DBDriver)

	// Shared lease
	var sharedLease settlement.Lease = lease.NewLocal()
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatalf("[Server] Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		sharedLease = lease.NewRedis(redisClient, cfg.LeasePrefix)
		log.Println("[Server] Connected to Redis, lease is shared across instances")
	}

	// Alert fan-out
	var sink settlement.AlertSink = notify.Discard{}
	if cfg.NATSURL != "" {
		natsConn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("[Server] Failed to connect to NATS: %v", err)
		}
		defer natsConn.Close()
		sink = notify.NewNATS(natsConn, cfg.AlertSubjects)
		log.Println("[Server] Connected to NATS, alerts are published")
	}

	// Domain services
	alerts := settlement.NewAlertWriter(store, sink)
	alerts.Cooldown = cfg.AlertCooldownDays

	handler := api.NewHandler(store, alerts, nil)
	handler.Engine.Lease = sharedLease
	handler.Engine.LeaseTTL = cfg.LeaseTTL
	handler.Engine.Concurrency = cfg.Concurrency
	handler.Rollup.Concurrency = cfg.Concurrency
	handler.Detector.Concurrency = cfg.Concurrency

	fuel := fuelbalance.NewTracker(store, alerts, fuelbalance.DefaultConfig())
	fuel.Concurrency = cfg.Concurrency
	handler.FuelBalances = fuel

	baselines := anomaly.NewBaselineCalculator(store)
	baselines.Concurrency = cfg.Concurrency

	// Scheduler
	if cfg.SchedulerEnabled {
		sched := scheduler.New()
		sched.Lease = sharedLease
		sched.LeaseTTL = cfg.LeaseTTL
		err := scheduler.RegisterDefaults(sched, scheduler.Services{
			Daily:        handler.Engine,
			Monthly:      handler.Rollup,
			Attendance:   attendance.NewGenerator(store),
			Baselines:    baselines,
			Anomalies:    handler.Detector,
			FuelBalances: fuel,
		}, scheduler.Schedule{
			DailyHour:    cfg.DailyHour,
			MonthlyDay:   cfg.MonthlyDay,
			AnomalyDelay: cfg.AnomalyDelay,
			FuelDelay:    cfg.FuelDelay,
			MonthlyDelay: cfg.MonthlyDelay,
			Location:     cfg.Location(),
		})
		if err != nil {
			log.Fatalf("[Server] Failed to register scheduled tasks: %v", err)
		}
		sched.Start()
		handler.Scheduler = sched
	} else {
		log.Println("[Scheduler] Disabled, not starting")
	}

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // manual batch triggers answer when the batch ends
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("[Server] Listening on http://localhost:%d", cfg.Port)
		log.Printf("[Server] API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if handler.Scheduler != nil {
		handler.Scheduler.StopAll()
		if err := handler.Scheduler.Wait(ctx); err != nil {
			log.Printf("[Scheduler] Tasks still running at shutdown: %v", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func openStore(cfg *config.Config) (closableStore, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		return sqlite.New(cfg.DatabaseURL)
	case config.DriverPostgres:
		return postgres.New(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q (use %s or %s)", cfg.DBDriver, config.DriverSQLite, config.DriverPostgres)
	}
}
