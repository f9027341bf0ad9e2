package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// The engine's own storage runs on sqlite or postgres; the other
	// drivers serve the database node.
	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"
	_ "github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"

	"github.com/user/verdandi/internal/api"
	"github.com/user/verdandi/internal/config"
	"github.com/user/verdandi/internal/engine"
	"github.com/user/verdandi/internal/events"
	"github.com/user/verdandi/internal/notification"
	"github.com/user/verdandi/internal/observability"
	sqlstorage "github.com/user/verdandi/internal/storage/sql"
	"github.com/user/verdandi/pkg/crypto"
	"github.com/user/verdandi/pkg/idempotency"
	"github.com/user/verdandi/pkg/node"
	"github.com/user/verdandi/pkg/queue"
	"github.com/user/verdandi/pkg/sandbox"
	"github.com/user/verdandi/pkg/secrets"
)

func main() {
	mode := flag.String("mode", "standalone", "running mode: standalone, api, runner")
	configPath := flag.String("config", "", "path to config file (YAML or JSON)")
	addr := flag.String("addr", "", "API listen address (overrides config)")
	dbDriver := flag.String("db-driver", "", "database driver: sqlite, postgres (overrides config)")
	dbDSN := flag.String("db-dsn", "", "database connection string (overrides config)")
	masterKey := flag.String("master-key", "", "master key for credential encryption (32 bytes)")
	flag.Parse()

	switch *mode {
	case "standalone", "api", "runner":
	default:
		log.Fatalf("Invalid mode: %s. Supported modes: standalone, api, runner", *mode)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbDriver != "" {
		cfg.Storage.Driver = *dbDriver
	}
	if *dbDSN != "" {
		cfg.Storage.DSN = *dbDSN
	}
	if *masterKey != "" {
		cfg.Crypto.MasterKey = *masterKey
	}
	if cfg.Crypto.MasterKey != "" {
		crypto.SetMasterKey(cfg.Crypto.MasterKey)
	}

	logger := observability.NewLogger(cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelShutdown, err := observability.InitOTLP(ctx, cfg.OTLP)
	if err != nil {
		log.Fatalf("Failed to init OTLP exporters: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	driver, dsn, err := buildDSN(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("Failed to resolve storage driver: %v", err)
	}
	fmt.Println("Opening database ...")
	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if driver == "sqlite" {
		// WAL plus a busy timeout keeps limited concurrency safe for SQLite.
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(1)
	}
	store := sqlstorage.NewStorage(db, driver)
	if err := store.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	q, err := queue.New(cfg.Queue)
	if err != nil {
		log.Fatalf("Failed to create task queue: %v", err)
	}
	defer q.Close()

	sb := sandbox.New()
	registry := engine.NewRegistry()
	if err := node.RegisterDefaults(registry, node.Options{
		Sandbox:   sb,
		BaseDir:   cfg.Files.BaseDir,
		AIBaseURL: cfg.AI.BaseURL,
		AIModel:   cfg.AI.Model,
	}); err != nil {
		log.Fatalf("Failed to register node executors: %v", err)
	}

	secretMgr, err := secrets.NewManager(ctx, cfg.Secrets)
	if err != nil {
		log.Fatalf("Failed to create secret manager: %v", err)
	}

	eng := engine.New(store, registry, engine.NewInputResolver(sb, logger), engine.NewCredentialResolverWithSecrets(store, secretMgr), logger)
	hub := events.NewHub()
	defer hub.Shutdown()
	eng.SetEvents(hub)

	notifier := notification.New(cfg.Notifications, store, hub, logger)
	notifier.AddProvider(&notification.LogProvider{Logger: logger})

	dispatcher := engine.NewDispatcher(eng, store, q, cfg.Scheduler.Workers, logger)
	dispatcher.SetRateLimit(cfg.Scheduler.RatePerSecond, cfg.Scheduler.Burst)

	validator, err := engine.NewValidator()
	if err != nil {
		log.Fatalf("Failed to create validator: %v", err)
	}
	scheduler := engine.NewScheduler(store, dispatcher, validator, logger, engine.SchedulerOptions{
		PollInterval:       cfg.Scheduler.PollInterval.Std(),
		CleanupInterval:    cfg.Scheduler.CleanupInterval.Std(),
		RevalidateInterval: cfg.Scheduler.RevalidateInterval.Std(),
		Retention:          cfg.Scheduler.Retention.Std(),
		KeepRecent:         cfg.Scheduler.KeepRecent,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Printf("\nReceived signal %v, shutting down gracefully...\n", sig)
		cancel()
	}()

	runWorkers := *mode == "standalone" || *mode == "runner"
	notifier.Start(ctx)
	if runWorkers {
		dispatcher.Start(ctx)
		scheduler.Start(ctx)
		fmt.Printf("Started %d dispatch workers, polling schedules every %s\n",
			cfg.Scheduler.Workers, cfg.Scheduler.PollInterval.Std())
	} else if cfg.Queue.Kind == "memory" {
		logger.Warn("api mode with an in-memory queue: queued runs will not execute on this process")
	}

	if *mode == "api" || *mode == "standalone" {
		deliveries := idempotency.New(db, driver)
		if err := deliveries.Init(ctx); err != nil {
			log.Fatalf("Failed to initialize delivery store: %v", err)
		}
		deliveries.StartCleanup(ctx, time.Hour, 7*24*time.Hour)

		server := api.NewServer(store, validator, dispatcher, scheduler, logger)
		server.SetEvents(hub)
		server.SetDeliveries(deliveries)
		server.SetNotifier(notifier)
		httpServer := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: server.Routes(),
		}
		fmt.Printf("Starting Verdandi API server on %s using %s storage...\n", cfg.Server.Addr, driver)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("API server failed: %v", err)
				cancel()
			}
		}()

		<-ctx.Done()
		fmt.Println("Shutting down API server...")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancelShutdown()
	} else {
		fmt.Printf("Starting Verdandi runner using %s storage...\n", driver)
		<-ctx.Done()
	}

	if runWorkers {
		dispatcher.Wait()
		scheduler.Wait()
	}
	notifier.Wait()
	fmt.Println("Verdandi shutdown complete")
}

// buildDSN maps the configured driver name to the sql driver and, for
// SQLite, appends the pragma defaults unless the DSN already carries its
// own parameters.
func buildDSN(driver, dsn string) (string, string, error) {
	switch driver {
	case "sqlite":
		if !strings.Contains(dsn, "?") && dsn != ":memory:" {
			busy := os.Getenv("VERDANDI_SQLITE_BUSY_TIMEOUT_MS")
			if busy == "" {
				busy = "2000"
			}
			dsn += fmt.Sprintf("?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%s)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", busy)
		}
		return "sqlite", dsn, nil
	case "postgres", "pgx":
		return "pgx", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}
