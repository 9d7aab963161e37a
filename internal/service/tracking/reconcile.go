package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/metrics"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// ReconcilerConfig controls a reconciliation pass.
type ReconcilerConfig struct {
	// Grace skips records with activity newer than this, so in-flight
	// writes are not reported as divergence.
	Grace time.Duration
	// Repair raises the lagging record of each divergent pair.
	Repair bool
	// BatchSize is the page size used when scanning email records.
	BatchSize int
}

// DefaultReconcilerConfig returns a repairing configuration. The recorder
// relies on it to heal partial writes, so detect-only must be opted into.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{Grace: 10 * time.Minute, Repair: true, BatchSize: 500}
}

// Reconciler detects, and optionally repairs, divergence between email
// record counters and engagement record counters. The email record is the
// source of truth for reads; repairs only ever raise counters.
type Reconciler struct {
	emails      EmailStore
	engagements EngagementStore
	sink        ReportSink
	cfg         ReconcilerConfig
	now         func() time.Time
}

// NewReconciler creates a reconciler. A nil sink logs the report.
func NewReconciler(emails EmailStore, engagements EngagementStore, sink ReportSink, cfg ReconcilerConfig) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if sink == nil {
		sink = LogSink{}
	}
	return &Reconciler{
		emails:      emails,
		engagements: engagements,
		sink:        sink,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run scans every engaged email once and publishes the report.
func (r *Reconciler) Run(ctx context.Context) (*domain.ReconciliationReport, error) {
	report := &domain.ReconciliationReport{StartedAt: r.now()}
	cutoff := report.StartedAt.Add(-r.cfg.Grace)

	after := ""
	for {
		batch, err := r.emails.ListEngaged(ctx, after, r.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("list engaged emails: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		tokens := make([]string, 0, len(batch))
		for _, e := range batch {
			tokens = append(tokens, e.TrackingToken)
		}
		engagements, err := r.engagements.GetMany(ctx, tokens)
		if err != nil {
			return nil, fmt.Errorf("load engagement records: %w", err)
		}

		for i := range batch {
			email := &batch[i]
			report.Scanned++

			eng, found := engagements[email.TrackingToken]
			if found && eng.OpenCount == email.OpenCount && eng.ClickCount == email.ClickCount {
				continue
			}
			if recentlyActive(email, eng, found, cutoff) {
				report.Skipped++
				continue
			}

			d := domain.Divergence{
				TrackingToken:    email.TrackingToken,
				Recipient:        email.Recipient,
				EmailOpens:       email.OpenCount,
				EmailClicks:      email.ClickCount,
				EngagementOpens:  eng.OpenCount,
				EngagementClicks: eng.ClickCount,
				Missing:          !found,
			}
			metrics.RecordDivergences.WithLabelValues("reconciler").Inc()
			logger.Warn("record divergence detected",
				"token", logger.RedactToken(d.TrackingToken),
				"email_opens", d.EmailOpens, "engagement_opens", d.EngagementOpens,
				"email_clicks", d.EmailClicks, "engagement_clicks", d.EngagementClicks,
				"missing", d.Missing)

			if r.cfg.Repair {
				if err := r.repair(ctx, d); err != nil {
					logger.Error("divergence repair failed", "token", logger.RedactToken(d.TrackingToken), "err", err)
				} else {
					d.Repaired = true
				}
			}
			report.Divergences = append(report.Divergences, d)
		}

		after = batch[len(batch)-1].TrackingToken
		if len(batch) < r.cfg.BatchSize {
			break
		}
	}

	report.FinishedAt = r.now()
	if err := r.sink.Publish(ctx, report); err != nil {
		return report, fmt.Errorf("publish reconciliation report: %w", err)
	}
	return report, nil
}

func (r *Reconciler) repair(ctx context.Context, d domain.Divergence) error {
	opens := max(d.EmailOpens, d.EngagementOpens)
	clicks := max(d.EmailClicks, d.EngagementClicks)

	if d.Missing || d.EngagementOpens < opens || d.EngagementClicks < clicks {
		if err := r.engagements.Raise(ctx, d.TrackingToken, d.Recipient, opens, clicks); err != nil {
			return fmt.Errorf("raise engagement record: %w", err)
		}
	}
	if d.EmailOpens < opens || d.EmailClicks < clicks {
		if err := r.emails.RaiseCounts(ctx, d.TrackingToken, opens, clicks); err != nil {
			return fmt.Errorf("raise email record: %w", err)
		}
	}
	return nil
}

func recentlyActive(email *domain.EmailRecord, eng domain.EngagementRecord, found bool, cutoff time.Time) bool {
	if t := email.LastActivity(); t != nil && t.After(cutoff) {
		return true
	}
	if found {
		if t := eng.LastActivity(); t != nil && t.After(cutoff) {
			return true
		}
	}
	return false
}

// LogSink publishes reconciliation reports to the structured log.
type LogSink struct{}

// Publish implements ReportSink.
func (LogSink) Publish(_ context.Context, report *domain.ReconciliationReport) error {
	logger.Info("reconciliation finished",
		"scanned", report.Scanned,
		"skipped", report.Skipped,
		"divergences", len(report.Divergences),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return nil
}
