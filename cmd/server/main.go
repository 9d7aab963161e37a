package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/engagement-tracker/internal/api"
	"github.com/ignite/engagement-tracker/internal/bootstrap"
	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/tracking"
	"github.com/ignite/engagement-tracker/internal/worker"
)

// eventSink is a tracking sink that must be drained on shutdown.
type eventSink interface {
	tracking.EventSink
	Close()
}

type dispatcherSink struct{ *tracking.Dispatcher }

func (d dispatcherSink) Close() { d.Stop() }

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	bootstrap.SetupLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	svc, err := bootstrap.NewServices(cfg, stores)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	sink, err := newSink(cfg, stores, svc)
	if err != nil {
		logger.Error("failed to build tracking sink", "error", err)
		os.Exit(1)
	}

	// A single process can also own reconciliation.
	var job *worker.ReconciliationJob
	if cfg.Reconcile.Enabled {
		job = worker.NewReconciliationJob(svc.Reconciler, stores.Lock("reconcile", cfg.Reconcile.LockTTL()),
			cfg.Reconcile.Schedule, cfg.Reconcile.LockTTL())
		if err := job.Start(); err != nil {
			logger.Error("failed to schedule reconciliation", "error", err)
			os.Exit(1)
		}
	}

	handlers := api.NewHandlers(svc.Analytics, svc.Emails, svc.Surveys, svc.Archive)
	health := api.NewHealthChecker(stores.DB, stores.Redis, svc.Archive)
	router := api.SetupRoutes(handlers, health, tracking.NewHandler(sink), api.RouterConfig{
		AllowedOrigins:    cfg.CORS.AllowedOrigins,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("api server listening", "addr", srv.Addr, "tracking_sink", cfg.Tracking.Sink)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down api server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	// Requests are done; flush whatever they queued.
	sink.Close()
	if job != nil {
		job.Stop(shutdownCtx)
	}
	cancel()
	logger.Info("api server stopped")
}

func newSink(cfg *config.Config, stores *bootstrap.Stores, svc *bootstrap.Services) (eventSink, error) {
	if cfg.Tracking.Sink == config.SinkSQS {
		client, err := stores.SQS()
		if err != nil {
			return nil, err
		}
		return tracking.NewPublisher(client, cfg.SQS.QueueURL), nil
	}
	d := tracking.NewDispatcher(svc.Recorder, cfg.Tracking.Workers, cfg.Tracking.QueueSize, cfg.Tracking.RecordTimeout())
	d.Start()
	return dispatcherSink{d}, nil
}
