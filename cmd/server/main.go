package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"cardrec/internal/adapters/backend"
	emailPkg "cardrec/internal/adapters/email"
	web "cardrec/internal/adapters/http"
	"cardrec/internal/adapters/http/perf"
	"cardrec/internal/adapters/storage"
	viewStore "cardrec/internal/adapters/storage/view"
	"cardrec/internal/application/orchestrators"
	"cardrec/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	setupLogging(cfg)

	keys, err := cfg.Keys()
	if err != nil {
		log.Fatalf("failed to derive keys: %v", err)
	}

	// Performance instrumentation shared by the view store, backend client and middleware
	collector := perf.NewCollector(perf.DefaultRingSize)

	views, closeStore := openViewStore(cfg, collector)
	defer closeStore()

	// Expired views are swept in the background until shutdown
	sweepStop := make(chan struct{})
	orchestrators.StartViewSweeper(orchestrators.SweepViewsDeps{Views: views, TTL: cfg.Store.ViewTTL}, cfg.Store.SweepInterval, sweepStop)
	defer close(sweepStop)

	client, err := backend.New(backend.Config{
		BaseURL:         cfg.Backend.URL,
		Timeout:         cfg.Backend.Timeout,
		BreakerFailures: cfg.Backend.BreakerFailures,
		BreakerCooldown: cfg.Backend.BreakerCooldown,
		Collector:       collector,
	})
	if err != nil {
		log.Fatalf("failed to create backend client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := web.NewMux(ctx, web.Deps{
		Views:     views,
		Backend:   client,
		Sender:    newEmailSender(cfg),
		Collector: collector,
		Keys:      keys,
		Config:    *cfg,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Recommend requests wait on the backend, so the write timeout leaves room for it.
		WriteTimeout: cfg.Backend.Timeout + 15*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		slog.Info("server_starting", "version", version, "addr", cfg.Addr, "env", cfg.Env,
			"backend", cfg.Backend.URL, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server_shutdown_failed", "error", err)
	}
}

// setupLogging installs the default slog handler: JSON in production, text otherwise.
func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// openViewStore returns the configured view store and a func that releases it.
func openViewStore(cfg *config.Config, collector *perf.Collector) (viewStore.Store, func()) {
	if cfg.Store.Driver != "sqlite" {
		slog.Info("view_store", "driver", "memory", "ttl", cfg.Store.ViewTTL)
		return viewStore.NewMemoryStore(cfg.Store.ViewTTL), func() {}
	}

	// WAL mode and busy timeout so concurrent requests do not trip over each other
	dbPath := cfg.Store.Path
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(8)
	timedDB := storage.NewTimedDB(db, collector, cfg.Store.SlowQuery)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := timedDB.Ping(pingCtx); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.MigrateDB(db, dbPath); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	slog.Info("view_store", "driver", "sqlite", "path", dbPath, "schema", storage.LatestSchemaVersion(), "ttl", cfg.Store.ViewTTL)
	return viewStore.NewSQLiteStore(timedDB, cfg.Store.ViewTTL), func() {
		if err := timedDB.Close(); err != nil {
			slog.Error("view_store_close_failed", "error", err)
		}
	}
}

// newEmailSender picks Resend when an API key is configured, a logging no-op otherwise.
func newEmailSender(cfg *config.Config) emailPkg.Sender {
	if cfg.Email.ResendKey != "" {
		slog.Info("email_sender", "provider", "resend", "from", cfg.Email.From)
		return emailPkg.NewResendSender(cfg.Email.ResendKey, cfg.Email.From, cfg.Email.ReplyTo)
	}
	if cfg.IsProduction() {
		slog.Warn("email_sender", "provider", "noop", "hint", "CARDREC_RESEND_KEY is not set, recommendation emails are DISABLED")
	} else {
		slog.Info("email_sender", "provider", "noop", "hint", "set CARDREC_RESEND_KEY for real delivery")
	}
	return emailPkg.NewNoopSender()
}
