// Package bootstrap builds the stores and services shared by the binaries
// from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/database"
	"github.com/ignite/engagement-tracker/internal/pkg/distlock"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/repository/dynamo"
	"github.com/ignite/engagement-tracker/internal/repository/memory"
	"github.com/ignite/engagement-tracker/internal/repository/postgres"
	"github.com/ignite/engagement-tracker/internal/repository/redisstore"
	"github.com/ignite/engagement-tracker/internal/service/analytics"
	"github.com/ignite/engagement-tracker/internal/service/email"
	"github.com/ignite/engagement-tracker/internal/service/survey"
	"github.com/ignite/engagement-tracker/internal/service/tracking"
	"github.com/ignite/engagement-tracker/internal/storage"
)

// EmailRepository is every view of the email table the services need.
type EmailRepository interface {
	email.Repository
	tracking.EmailStore
	analytics.EmailSource
}

// SurveyRepository is every view of the survey table the services need.
type SurveyRepository interface {
	survey.Repository
	analytics.SurveySource
}

// Stores holds the open connections and repositories. Redis and AWS are
// only set when configuration needs them.
type Stores struct {
	DB    *sql.DB
	Redis redis.UniversalClient
	AWS   *aws.Config

	Emails      EmailRepository
	Engagements tracking.EngagementStore
	Surveys     SurveyRepository
}

// Open connects everything cfg asks for. On error nothing is left open.
func Open(ctx context.Context, cfg *config.Config) (_ *Stores, err error) {
	s := &Stores{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if needsAWS(cfg) {
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.AWS.Region, cfg.AWS.GetProfile())
		if err != nil {
			return nil, err
		}
		s.AWS = &awsCfg
	}

	if cfg.Redis.URL != "" {
		client, err := openRedis(ctx, cfg.Redis.URL)
		switch {
		case err == nil:
			s.Redis = client
		case cfg.Engagement.Backend == config.BackendRedis:
			return nil, err
		default:
			// Only the lock uses Redis here; it falls back to PG advisory locks.
			logger.Warn("redis unavailable, continuing without it", "error", err)
		}
	}

	if cfg.Engagement.Backend == config.BackendMemory {
		s.Emails = memory.NewEmailRepo()
		s.Engagements = memory.NewEngagementRepo()
		s.Surveys = memory.NewSurveyRepo()
		logger.Warn("using in-memory stores; data is lost on restart")
		return s, nil
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	s.DB = db
	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(cfg.Database.URL); err != nil {
			return nil, err
		}
	}
	s.Emails = postgres.NewEmailRepo(db)
	s.Surveys = postgres.NewSurveyRepo(db)

	switch cfg.Engagement.Backend {
	case config.BackendPostgres:
		s.Engagements = postgres.NewEngagementRepo(db)
	case config.BackendRedis:
		s.Engagements = redisstore.NewEngagementStore(s.Redis, cfg.Engagement.RedisPrefix)
	case config.BackendDynamoDB:
		s.Engagements = dynamo.NewEngagementStore(dynamodb.NewFromConfig(*s.AWS), cfg.Engagement.DynamoDBTable)
	default:
		return nil, fmt.Errorf("unknown engagement backend %q", cfg.Engagement.Backend)
	}
	logger.Info("stores ready", "engagement_backend", cfg.Engagement.Backend, "redis", s.Redis != nil)
	return s, nil
}

func needsAWS(cfg *config.Config) bool {
	return cfg.Engagement.Backend == config.BackendDynamoDB ||
		cfg.Tracking.Sink == config.SinkSQS ||
		cfg.SQS.QueueURL != "" ||
		cfg.Storage.Type == config.StorageS3
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Close releases the connections. Safe to call on a partial Stores.
func (s *Stores) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}

// SQS returns an SQS client, or an error when AWS is not configured.
func (s *Stores) SQS() (*sqs.Client, error) {
	if s.AWS == nil {
		return nil, errors.New("aws is not configured")
	}
	return sqs.NewFromConfig(*s.AWS), nil
}

// Lock returns the reconciliation lock: Redis when connected, otherwise a
// PostgreSQL advisory lock. Nil for the in-memory setup.
func (s *Stores) Lock(key string, ttl time.Duration) distlock.DistLock {
	if s.Redis == nil && s.DB == nil {
		return nil
	}
	return distlock.NewLock(s.Redis, s.DB, key, ttl)
}

// Services bundles the domain services built over Stores.
type Services struct {
	Registry   *tracking.Registry
	Recorder   *tracking.Recorder
	Links      tracking.LinkBuilder
	Emails     *email.Service
	Surveys    *survey.Service
	Analytics  *analytics.Aggregator
	Archive    *storage.Archive
	Reconciler *tracking.Reconciler
}

// NewServices wires the services over s.
func NewServices(cfg *config.Config, s *Stores) (*Services, error) {
	var s3Client storage.S3API
	if cfg.Storage.Type == config.StorageS3 {
		s3Client = s3.NewFromConfig(*s.AWS)
	}
	archive, err := storage.New(cfg.Storage, s3Client)
	if err != nil {
		return nil, err
	}

	registry := tracking.NewRegistry(s.Emails, tracking.GenerateToken)
	recorder := tracking.NewRecorder(registry, s.Engagements)
	recorder.SetRetry(uint64(cfg.Tracking.MaxRetries), cfg.Tracking.RetryInitial())
	links := tracking.NewLinkBuilder(cfg.Tracking.BaseURL)

	return &Services{
		Registry:  registry,
		Recorder:  recorder,
		Links:     links,
		Emails:    email.NewService(s.Emails, registry, links),
		Surveys:   survey.NewService(s.Surveys),
		Analytics: analytics.NewAggregator(s.Emails, s.Surveys, analytics.BreakerConfig{
			FailureThreshold: cfg.Analytics.BreakerFailureThreshold,
			OpenTimeout:      cfg.Analytics.BreakerOpen(),
			Interval:         time.Minute,
		}),
		Archive: archive,
		Reconciler: tracking.NewReconciler(s.Emails, s.Engagements, archive, tracking.ReconcilerConfig{
			Grace:     cfg.Reconcile.Grace(),
			Repair:    cfg.Reconcile.Repair(),
			BatchSize: cfg.Reconcile.BatchSize,
		}),
	}, nil
}

// SetupLogger applies the log section of cfg.
func SetupLogger(cfg config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(!cfg.DisableRedaction)
}
