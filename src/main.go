package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finlink-server/src/aggregator"
	"finlink-server/src/api"
	"finlink-server/src/config"
	"finlink-server/src/db"
	dbsql "finlink-server/src/db/sql"
	"finlink-server/src/sync"
	"finlink-server/src/util"
	"finlink-server/src/webhook"
	"finlink-server/src/worker"
)

const (
	replayCacheTTL  = 24 * time.Hour
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg := config.Load()

	// Connect to database
	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("DB connection failed: %v", err)
	}
	defer pool.Close()

	db.InitCache()

	enc, err := util.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("encryptor setup failed: %v", err)
	}

	creds := dbsql.NewCredentialStore(pool, enc)
	client := aggregator.NewHTTPClient(cfg.AggregatorBaseURL, creds)
	store := dbsql.NewStore(pool)

	orchestrator := sync.NewOrchestrator(store, client, sync.Options{
		PageSize:   cfg.SyncPageSize,
		MaxPages:   cfg.SyncMaxPages,
		Lookback:   cfg.SyncLookback,
		LockTTL:    cfg.SyncLockTTL,
		RunTimeout: cfg.SyncRunTimeout,
	})

	// Job timeout leaves headroom over the run timeout so a run that hits
	// its own deadline still records its failure before the worker moves on.
	pool2 := worker.NewPool(cfg.SyncWorkers, cfg.SyncQueueSize, cfg.SyncRunTimeout+30*time.Second, func(ctx context.Context, accountID int64) {
		outcome, err := orchestrator.RunSync(ctx, accountID, nil)
		if err != nil {
			log.Printf("ERROR: background sync for account %d: %v", accountID, err)
			return
		}
		log.Printf("INFO: background sync for account %d finished with status %s", accountID, outcome.Status)
	})
	pool2.Start()

	dispatcher := webhook.NewDispatcher(store, pool2)
	dispatcher.OnConnectionChange = func(connectionID string) {
		db.DelConnStatusCache("connstatus:" + connectionID)
	}

	validator := webhook.NewValidator(
		cfg.WebhookSecret,
		cfg.WebhookFallbackSecrets,
		cfg.WebhookTolerance,
		db.NewReplayCache(replayCacheTTL),
		webhook.NewRateLimiter(nil),
	)

	var scheduler *worker.Scheduler
	if cfg.SchedulerEnabled {
		scheduler = worker.NewScheduler(pool2, cfg.SchedulerInterval, func(ctx context.Context, now time.Time) ([]int64, error) {
			return dbsql.AccountIDsDueForSync(ctx, pool, now)
		})
		scheduler.Start()
	}

	router := api.NewRouter(api.Deps{
		Pool:         pool,
		JWTSecret:    cfg.JWTSecret,
		Client:       client,
		Encryptor:    enc,
		Orchestrator: orchestrator,
		Validator:    validator,
		Dispatcher:   dispatcher,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Println("API server running on port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	waitForShutdown(srv, scheduler, pool2)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then stops intake first
// (HTTP, scheduler) and drains in-flight sync jobs.
func waitForShutdown(srv *http.Server, scheduler *worker.Scheduler, jobs *worker.Pool) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("INFO: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("ERROR: HTTP server shutdown: %v", err)
	}

	if scheduler != nil {
		scheduler.Stop()
	}
	jobs.Shutdown(shutdownTimeout)

	log.Println("INFO: shutdown complete")
}
