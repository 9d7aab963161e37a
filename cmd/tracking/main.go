package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/engagement-tracker/internal/bootstrap"
	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/storage"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	bootstrap.SetupLogger(cfg.Log)

	ctx := context.Background()

	var (
		sink  tracking.EventSink
		drain func()
	)
	switch cfg.Tracking.Sink {
	case config.SinkSQS:
		// The edge only publishes; the worker owns the stores.
		if cfg.SQS.QueueURL == "" {
			logger.Error("SQS_TRACKING_QUEUE_URL is required for the sqs sink")
			os.Exit(1)
		}
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.AWS.Region, cfg.AWS.GetProfile())
		if err != nil {
			logger.Error("aws config", "error", err)
			os.Exit(1)
		}
		pub := tracking.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.SQS.QueueURL)
		sink, drain = pub, pub.Close
	default:
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid config", "error", err)
			os.Exit(1)
		}
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
		d := tracking.NewDispatcher(svc.Recorder, cfg.Tracking.Workers, cfg.Tracking.QueueSize, cfg.Tracking.RecordTimeout())
		d.Start()
		sink, drain = d, d.Stop
	}

	handler := tracking.NewHandler(sink)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Tracking.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tracking service listening", "addr", srv.Addr, "sink", cfg.Tracking.Sink)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down tracking service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	drain()
}
