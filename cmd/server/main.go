// Command server runs the guest-feedback analytics API: the data-access
// core (credentials, pool, cache, fallback) behind an HTTP surface for
// dashboards and conversational questions.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voc-dashboard/internal/api"
	"voc-dashboard/internal/cache"
	"voc-dashboard/internal/config"
	"voc-dashboard/internal/credential"
	"voc-dashboard/internal/dataaccess"
	"voc-dashboard/internal/domain"
	"voc-dashboard/internal/fallback"
	"voc-dashboard/internal/genie"
	"voc-dashboard/internal/history"
	"voc-dashboard/internal/insights"
	"voc-dashboard/internal/observability"
	"voc-dashboard/internal/platform"
	"voc-dashboard/internal/pool"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A local .env is a development convenience; absence is not an error.
	_ = config.LoadDotEnv(".env")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.New(reg)

	fbData, err := fallback.Load()
	if err != nil {
		return err
	}

	qc := cache.New(cfg.CacheTTL, cfg.CacheMaxEntries, metrics)

	var historyStore *history.Store
	if cfg.HistoryDBPath != "" {
		historyStore, err = history.Open(cfg.HistoryDBPath)
		if err != nil {
			return err
		}
		defer historyStore.Close() //nolint:errcheck
	}

	// Platform wiring. Without warehouse settings the service still starts
	// and answers every query from the fallback dataset.
	var (
		provider  *credential.Provider
		sessions  *pool.Pool
		warehouse *platform.WarehouseClient
		genieSvc  *genie.Orchestrator
	)
	if cfg.Platform.Configured() {
		client := platform.NewClient(cfg.Platform.Host, cfg.Platform.QueryTimeout)
		auth := platform.NewAuthClient(client, cfg.Platform.ClientID, cfg.Platform.ClientSecret, cfg.Platform.TokenLifetime)
		warehouse = platform.NewWarehouseClient(client, cfg.Platform.WarehousePath)

		provider = credential.NewProvider(auth, cfg.Platform.RefreshInterval, logger, metrics)
		if err := provider.Start(); err != nil {
			return err
		}
		defer provider.Stop()

		sessions = pool.New(provider, pool.Config{
			Size:           cfg.PoolSize,
			AcquireTimeout: cfg.AcquireTimeout,
			Margin:         cfg.Platform.SafetyMargin(),
		}, logger, metrics)

		if cfg.Platform.ConversationalConfigured() {
			genieClient := platform.NewGenieClient(client, warehouse)
			genieSvc, err = genie.New(genieClient, provider, provider, genie.Config{
				SpaceID:      cfg.Platform.GenieSpaceID,
				PollTimeout:  cfg.PollTimeout,
				PollInterval: cfg.PollInterval,
			}, logger, metrics)
			if err != nil {
				return err
			}
		}
	} else {
		logger.Warn("platform not configured, serving fallback data only")
	}

	var recorder domain.HistoryRecorder
	if historyStore != nil {
		recorder = historyStore
	}
	var refresher dataaccess.CredentialRefresher
	var executor domain.StatementExecutor
	if provider != nil {
		refresher = provider
	}
	if warehouse != nil {
		executor = warehouse
	}
	dataSvc := dataaccess.New(sessions, executor, refresher, qc, fbData, recorder, dataaccess.Config{
		Catalog:      cfg.Platform.Catalog,
		Schema:       cfg.Platform.Schema,
		QueryTimeout: cfg.Platform.QueryTimeout,
	}, logger, metrics)
	insightsSvc := insights.New(dataSvc, logger)

	var conv api.Conversations
	if genieSvc != nil {
		conv = genieSvc
	}
	var hist api.HistoryLister
	if historyStore != nil {
		hist = historyStore
	}
	handler := api.NewHandler(dataSvc, insightsSvc, conv, hist)

	healthFn := func() api.Health {
		h := api.Health{Status: "ok", CacheEntries: qc.Len()}
		if provider != nil {
			h.CredentialValid = provider.Snapshot().Valid(time.Now())
		}
		if sessions != nil {
			h.PoolIdle = sessions.IdleCount()
		}
		return h
	}

	router := api.NewRouter(handler, healthFn, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), api.RouterConfig{
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerSec: cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
