package main

import (
	"context"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/hubcap/pkg/api"
	"github.com/platinummonkey/hubcap/pkg/config"
	"github.com/platinummonkey/hubcap/pkg/dispatcher"
	"github.com/platinummonkey/hubcap/pkg/observability"
	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/storage/postgres"
	"github.com/platinummonkey/hubcap/pkg/tasks"
	"github.com/platinummonkey/hubcap/pkg/trigger"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	store, health, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	producer := trigger.NewProducer(store, store, log)
	producer.SetMetrics(metrics)
	fanout := trigger.NewFanoutService(store, store, store, log)
	delivery := trigger.NewDeliveryService(store, store, http.DefaultClient, log,
		trigger.WithTimeout(cfg.Dispatcher.HandlerTimeout),
		trigger.WithMetrics(metrics),
	)

	disp := dispatcher.New(store, cfg.Dispatcher, metrics, log)
	disp.Register(tasks.TaskCreateHookTrigger, fanout)
	disp.Register(tasks.TaskTriggerHook, delivery)

	reaper := dispatcher.NewReaper(store, cfg.Reaper.VisibilityTimeout, metrics, log)
	if err := reaper.Start(cfg.Reaper.Schedule); err != nil {
		log.WithError(err).Fatal("Failed to start task reaper")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := disp.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Dispatcher stopped")
		}
	}()

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      api.NewServer(store, producer, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health/live", health.Liveness)
	healthMux.HandleFunc("/health/ready", health.Readiness)
	healthMux.Handle("/metrics", metrics.Handler())
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(log, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(sctx context.Context) error {
		cancel()
		return healthServer.Shutdown(sctx)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		reaper.Stop()
		return store.Close()
	})

	go func() {
		log.WithField("addr", healthServer.Addr).Info("Starting health/metrics server")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Health server failed")
		}
	}()
	go func() {
		log.WithField("addr", apiServer.Addr).Info("Starting API server")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("API server failed")
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		log.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
	log.Info("Shutdown complete")
}

// openStore builds the configured store plus a health checker over its
// dependencies. Without a postgres URL it falls back to the in-memory store,
// which is only suitable for local development.
func openStore(cfg *config.Config, log *logrus.Logger) (storage.Store, *observability.HealthChecker, error) {
	if cfg.Storage.Type != "postgres" {
		log.Warn("No postgres URL configured, using in-memory storage")
		return storage.NewMemoryStore(), observability.NewHealthChecker(nil, nil), nil
	}

	store, err := postgres.NewStore(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Connected to postgres storage")

	health := observability.NewHealthChecker(store.DB(), nil)
	if cache := store.Cache(); cache != nil {
		health = observability.NewHealthChecker(store.DB(), cache.Client())
	}
	return store, health, nil
}
