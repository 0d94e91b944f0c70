package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	llhttp "github.com/ledgerline/ledgerline/internal/adapter/http"
	"github.com/ledgerline/ledgerline/internal/adapter/litellm"
	llnats "github.com/ledgerline/ledgerline/internal/adapter/nats"
	"github.com/ledgerline/ledgerline/internal/adapter/natskv"
	"github.com/ledgerline/ledgerline/internal/adapter/otel"
	"github.com/ledgerline/ledgerline/internal/adapter/postgres"
	"github.com/ledgerline/ledgerline/internal/adapter/ristretto"
	"github.com/ledgerline/ledgerline/internal/adapter/tiered"
	"github.com/ledgerline/ledgerline/internal/adapter/ws"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/middleware"
	"github.com/ledgerline/ledgerline/internal/port/cache"
	"github.com/ledgerline/ledgerline/internal/port/domainworker"
	"github.com/ledgerline/ledgerline/internal/port/notifier"
	"github.com/ledgerline/ledgerline/internal/resilience"
	"github.com/ledgerline/ledgerline/internal/secrets"
	"github.com/ledgerline/ledgerline/internal/service"
)

const serviceName = "ledgerline-core"

// connectorCacheSize bounds the in-process connector cache.
const connectorCacheSize = 64 << 20 // 64 MB

// connectorKVBucket is the shared JetStream KV bucket backing the L2
// connector cache.
const connectorKVBucket = "LEDGERLINE_CONNECTORS"

// tieredL1TTL bounds how long L2 backfill entries live in process. It is
// kept below the bucket TTL so a replica never outlives the shared copy.
const tieredL1TTL = 15 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"poller_enabled", cfg.Poller.Enabled,
		"workers", domainworker.Domains(),
	)

	ctx := context.Background()

	// --- Telemetry ---
	var metrics *otel.Metrics
	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(ctx, serviceName, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Warn("telemetry shutdown", "error", err)
			}
		}()

		metrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := llnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	local, err := ristretto.New(connectorCacheSize)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer local.Close()

	// The connector cache is tiered: ristretto in process, JetStream KV
	// shared across replicas. KV failure degrades to local-only caching.
	var connectorCache cache.Cache = local
	if kv, err := queue.KeyValue(ctx, connectorKVBucket, ristretto.ConnectorTTL); err != nil {
		slog.Warn("connector KV bucket unavailable, using local cache only", "error", err)
	} else {
		connectorCache = tiered.New(local, natskv.New(kv), tieredL1TTL)
	}

	// --- Secrets ---
	vault, err := secrets.NewVault(secrets.EnvLoader(
		secrets.KeyLiteLLMMasterKey,
		secrets.KeySlackWebhook,
		secrets.KeyDiscordWebhook,
		secrets.KeySMTPPassword,
	))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed", "error", err)
				continue
			}
			slog.Info("secrets reloaded")
		}
	}()

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)

	llm := litellm.NewClient(cfg.LiteLLM.URL, vault.GetOr(secrets.KeyLiteLLMMasterKey, cfg.LiteLLM.MasterKey))
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	orc := service.NewOrchestratorService(store, queue, hub, connectorCache, metrics)
	if n, err := buildNotifier(cfg.Notify, vault); err != nil {
		slog.Warn("escalation notifier disabled", "error", err)
	} else if n != nil {
		orc.SetNotifier(n)
		slog.Info("escalation notifier enabled", "provider", n.Name())
	}
	director := service.NewDirectorService(store, llm, cfg.Director)
	safety := service.NewSafetyService(store, llm, cfg.Safety)

	workerDeps := domainworker.Deps{
		Store:   store,
		Cfg:     cfg,
		Breaker: resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout),
	}
	dispatch := service.NewDispatchService(orc, director, safety, workerDeps, metrics)

	pollCtx, stopPollers := context.WithCancel(ctx)
	defer stopPollers()
	pollerDone := make(chan struct{})
	if cfg.Poller.Enabled {
		poller := service.NewPollerService(orc, dispatch, cfg.Poller)
		go func() {
			defer close(pollerDone)
			if err := poller.Run(pollCtx); err != nil && pollCtx.Err() == nil {
				slog.Error("poller stopped", "error", err)
			}
		}()
	} else {
		close(pollerDone)
	}

	// --- HTTP ---
	handlers := llhttp.NewHandlers(orc, hub)

	r := chi.NewRouter()
	r.Use(llhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(llhttp.SecurityHeaders)
	r.Use(llhttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(middleware.OrgID)
	rl := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	defer rl.StartCleanup(time.Minute, 10*time.Minute)()
	r.Use(rl.Handler)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(serviceName))
	}

	llhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	stopPollers()
	<-pollerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildNotifier constructs the configured escalation notifier, resolving
// webhook URLs and credentials through the vault first so rotated secrets
// win over YAML. An empty provider disables outbound notifications.
func buildNotifier(cfg config.Notify, vault *secrets.Vault) (notifier.Notifier, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	return notifier.New(cfg.Provider, map[string]string{
		"webhook_url":   notifierWebhook(cfg, vault),
		"smtp_host":     cfg.SMTPHost,
		"smtp_port":     fmt.Sprintf("%d", cfg.SMTPPort),
		"smtp_from":     cfg.SMTPFrom,
		"smtp_to":       cfg.SMTPTo,
		"smtp_password": vault.GetOr(secrets.KeySMTPPassword, cfg.SMTPPassword),
	})
}

func notifierWebhook(cfg config.Notify, vault *secrets.Vault) string {
	switch cfg.Provider {
	case "discord":
		return vault.GetOr(secrets.KeyDiscordWebhook, cfg.DiscordWebhook)
	default:
		return vault.GetOr(secrets.KeySlackWebhook, cfg.SlackWebhook)
	}
}
