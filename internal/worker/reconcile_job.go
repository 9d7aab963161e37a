package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/metrics"
	"github.com/ignite/engagement-tracker/internal/pkg/distlock"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context) (*domain.ReconciliationReport, error)
}

// ReconciliationJob runs the reconciler on a cron schedule. When a lock is
// configured only one replica runs a given tick; the others skip it.
type ReconciliationJob struct {
	reconciler Reconciler
	lock       distlock.DistLock
	schedule   string
	timeout    time.Duration

	mu   sync.Mutex
	cron *cronv3.Cron
}

// NewReconciliationJob creates the job. lock may be nil for single-replica
// deployments. timeout bounds each pass; zero means no bound.
func NewReconciliationJob(r Reconciler, lock distlock.DistLock, schedule string, timeout time.Duration) *ReconciliationJob {
	return &ReconciliationJob{
		reconciler: r,
		lock:       lock,
		schedule:   schedule,
		timeout:    timeout,
	}
}

// RunOnce runs a single pass. ran is false when another replica holds the
// lock.
func (j *ReconciliationJob) RunOnce(ctx context.Context) (ran bool, err error) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	pass := func(ctx context.Context) error {
		start := time.Now()
		report, err := j.reconciler.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("reconciliation pass completed",
			"scanned", report.Scanned,
			"skipped", report.Skipped,
			"divergences", len(report.Divergences),
			"duration", time.Since(start).Round(time.Millisecond).String(),
		)
		return nil
	}

	if j.lock == nil {
		ran, err = true, pass(ctx)
	} else {
		ran, err = distlock.WithLock(ctx, j.lock, pass)
	}

	switch {
	case err != nil:
		metrics.ReconcileRuns.WithLabelValues("failed").Inc()
		logger.Error("reconciliation pass failed", "error", err)
	case !ran:
		metrics.ReconcileRuns.WithLabelValues("skipped_locked").Inc()
		logger.Debug("reconciliation pass skipped, lock held elsewhere")
	default:
		metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	}
	return ran, err
}

// Start schedules the job. The schedule uses the standard five-field cron
// syntax; overlapping ticks are skipped.
func (j *ReconciliationJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return nil
	}

	cl := cronLogger{}
	c := cronv3.New(cronv3.WithChain(
		cronv3.SkipIfStillRunning(cl),
		cronv3.Recover(cl),
	), cronv3.WithLogger(cl))

	if _, err := c.AddFunc(j.schedule, func() {
		_, _ = j.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", j.schedule, err)
	}

	c.Start()
	j.cron = c
	logger.Info("reconciliation job scheduled", "schedule", j.schedule)
	return nil
}

// Stop stops scheduling and waits for a running pass to finish or ctx to end.
func (j *ReconciliationJob) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop()
	select {
	case <-done.Done():
		logger.Info("reconciliation job stopped")
	case <-ctx.Done():
		logger.Warn("reconciliation job stop timed out")
	}
}

// cronLogger routes cron's internal logging through the structured logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
