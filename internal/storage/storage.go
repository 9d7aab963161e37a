// Package storage archives reconciliation reports to the log, the local
// filesystem or S3.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// ErrNoReport is returned by Latest before any report was published.
var ErrNoReport = errors.New("no reconciliation report published yet")

// Archive stores reconciliation reports. Every published report is logged;
// local and s3 archives also persist it under a date-partitioned key.
type Archive struct {
	config config.StorageConfig
	s3     S3API
	now    func() time.Time

	mu        sync.RWMutex
	latest    *domain.ReconciliationReport
	latestKey string
}

// New creates an archive for cfg. s3Client is only used when cfg.Type is s3.
func New(cfg config.StorageConfig, s3Client S3API) (*Archive, error) {
	switch cfg.Type {
	case config.StorageLog, "":
	case config.StorageLocal:
		if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	case config.StorageS3:
		if s3Client == nil {
			return nil, errors.New("s3 storage requires an S3 client")
		}
		if cfg.S3Bucket == "" {
			return nil, errors.New("s3 storage requires a bucket")
		}
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	return &Archive{
		config: cfg,
		s3:     s3Client,
		now:    time.Now,
	}, nil
}

// Key returns the object key for a report finished at t.
func (a *Archive) Key(t time.Time) string {
	t = t.UTC()
	return path.Join(a.config.S3Prefix, t.Format("2006/01/02"), fmt.Sprintf("%d.json", t.Unix()))
}

// Publish implements tracking.ReportSink.
func (a *Archive) Publish(ctx context.Context, report *domain.ReconciliationReport) error {
	if report == nil {
		return nil
	}
	finished := report.FinishedAt
	if finished.IsZero() {
		finished = a.now()
	}
	key := a.Key(finished)

	var err error
	switch a.config.Type {
	case config.StorageLocal:
		err = a.saveLocal(key, report)
	case config.StorageS3:
		err = saveToS3(ctx, a.s3, a.config.S3Bucket, key, report)
	}
	if err != nil {
		logger.Error("archiving reconciliation report failed", "key", key, "error", err)
		return err
	}

	logger.Info("reconciliation report archived",
		"type", a.config.Type,
		"key", key,
		"scanned", report.Scanned,
		"skipped", report.Skipped,
		"divergences", len(report.Divergences),
	)

	a.mu.Lock()
	a.latest = report
	a.latestKey = key
	a.mu.Unlock()
	return nil
}

// Latest returns the most recently published report and its key.
func (a *Archive) Latest() (*domain.ReconciliationReport, string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return nil, "", ErrNoReport
	}
	return a.latest, a.latestKey, nil
}

// Load reads an archived report back by key.
func (a *Archive) Load(ctx context.Context, key string) (*domain.ReconciliationReport, error) {
	var report domain.ReconciliationReport
	switch a.config.Type {
	case config.StorageLocal:
		data, err := os.ReadFile(a.localPath(key))
		if err != nil {
			return nil, fmt.Errorf("reading report: %w", err)
		}
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("unmarshaling report: %w", err)
		}
	case config.StorageS3:
		if err := getFromS3(ctx, a.s3, a.config.S3Bucket, key, &report); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("storage type %q does not persist reports", a.config.Type)
	}
	return &report, nil
}

func (a *Archive) localPath(key string) string {
	return filepath.Join(a.config.LocalPath, filepath.FromSlash(key))
}

func (a *Archive) saveLocal(key string, report *domain.ReconciliationReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	p := a.localPath(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	// Write to a temp file first so readers never see a partial report.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return os.Rename(tmp, p)
}
