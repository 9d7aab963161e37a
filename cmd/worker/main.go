package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/engagement-tracker/internal/bootstrap"
	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/tracking"
	"github.com/ignite/engagement-tracker/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	once := flag.Bool("reconcile-once", false, "run one reconciliation pass and exit")
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

	job := worker.NewReconciliationJob(svc.Reconciler, stores.Lock("reconcile", cfg.Reconcile.LockTTL()),
		cfg.Reconcile.Schedule, cfg.Reconcile.LockTTL())

	if *once {
		if _, err := job.RunOnce(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	// Drain the tracking queue when the edge publishes to SQS.
	var consumer *tracking.Consumer
	if cfg.SQS.QueueURL != "" {
		client, err := stores.SQS()
		if err != nil {
			logger.Error("sqs client", "error", err)
			os.Exit(1)
		}
		consumer = tracking.NewConsumer(client, cfg.SQS.QueueURL, svc.Recorder)
		consumer.Start(ctx)
	}

	if err := job.Start(); err != nil {
		logger.Error("failed to schedule reconciliation", "error", err)
		os.Exit(1)
	}
	logger.Info("worker running", "consumer", consumer != nil, "schedule", cfg.Reconcile.Schedule)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down worker")

	if consumer != nil {
		consumer.Stop()
	}
	job.Stop(ctx)
	cancel()
	logger.Info("worker stopped")
}
