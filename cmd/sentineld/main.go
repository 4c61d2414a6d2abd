package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/watchdogsentinel/sentinel/internal/clock"
	"github.com/watchdogsentinel/sentinel/internal/httpapi"
	"github.com/watchdogsentinel/sentinel/internal/ingest"
	"github.com/watchdogsentinel/sentinel/internal/notifier"
	"github.com/watchdogsentinel/sentinel/internal/registry"
	"github.com/watchdogsentinel/sentinel/internal/settings"
	"github.com/watchdogsentinel/sentinel/internal/store"
	"github.com/watchdogsentinel/sentinel/internal/sweeper"
)

func main() {
	logger := log.New(os.Stdout, "sentineld ", log.LstdFlags|log.Lmicroseconds)

	ctx := context.Background()
	var (
		st      store.Store
		cleanup func()
	)

	dbURL := os.Getenv("SENTINEL_DATABASE_URL")
	if dbURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, dbURL)
		if err != nil {
			logger.Fatalf("failed to connect to database: %v", err)
		}
		st = pgStore
		cleanup = func() { pgStore.Close() }
		logger.Println("sentineld using PostgreSQL store")
	} else {
		st = store.NewMemoryStore()
		cleanup = func() {}
		logger.Println("SENTINEL_DATABASE_URL not set, using in-memory store (not for production)")
	}
	defer cleanup()

	if err := settings.BootstrapIfEmpty(ctx, st, getenvDefault("SENTINEL_SETTINGS_BOOTSTRAP", "/etc/watchdog-sentinel/settings.yaml")); err != nil {
		logger.Fatalf("bootstrap settings: %v", err)
	}

	realClock := clock.Real{}
	settingsProvider := settings.New(st)

	var n notifier.Notifier = &notifier.NopNotifier{}
	if webhookURL := os.Getenv("SENTINEL_CHAT_WEBHOOK_URL"); webhookURL != "" {
		n = notifier.NewChatNotifier(webhookURL, logger, rate.Limit(1), 5)
		logger.Println("sentineld delivering alerts via chat webhook")
	} else {
		logger.Println("SENTINEL_CHAT_WEBHOOK_URL not set, alerts will be dropped")
	}

	ingestor := ingest.New(st, settingsProvider, n, realClock, logger)
	registrar := registry.New(st)
	sweep := sweeper.New(st, settingsProvider, n, realClock, logger)

	srv := httpapi.New(httpapi.Config{
		Addr:         getenvDefault("SENTINEL_LISTEN_ADDR", ":8080"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httpapi.Dependencies{
		Logger:    logger,
		Store:     st,
		Clock:     realClock,
		Ingestor:  ingestor,
		Registrar: registrar,
	})

	c := cron.New()
	if _, err := c.AddFunc("* * * * *", func() {
		tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := sweep.Tick(tickCtx, realClock.Now()); err != nil {
			logger.Printf("sweep tick: %v", err)
		}
	}); err != nil {
		logger.Fatalf("schedule sweep tick: %v", err)
	}
	c.Start()
	defer c.Stop()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting sentineld on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Println("shutdown signal received")
	case err := <-serverErr:
		logger.Fatalf("server error: %v", err)
	}

	ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxTimeout); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	logger.Println("sentineld stopped")
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
