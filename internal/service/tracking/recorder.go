package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/metrics"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// Outcome describes what Record did with an event.
type Outcome string

const (
	// OutcomeRecorded means both records were incremented.
	OutcomeRecorded Outcome = "recorded"
	// OutcomePartial means the email record was incremented but the
	// engagement record was not. The reconciler converges the pair.
	OutcomePartial Outcome = "partial"
	// OutcomeDropped means the token did not resolve; nothing was written.
	OutcomeDropped Outcome = "dropped"
	// OutcomeFailed means the email record could not be written; nothing
	// was written and the event may be redelivered.
	OutcomeFailed Outcome = "failed"
)

// Recorder applies open and click events to the email record and the
// engagement record for a token. Every event is counted; there is no
// deduplication. Safe for concurrent use.
type Recorder struct {
	registry    *Registry
	engagements EngagementStore
	maxRetries  uint64
	initialWait time.Duration
	now         func() time.Time
}

// NewRecorder creates a recorder resolving tokens through registry.
func NewRecorder(registry *Registry, engagements EngagementStore) *Recorder {
	return &Recorder{
		registry:    registry,
		engagements: engagements,
		maxRetries:  3,
		initialWait: 50 * time.Millisecond,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetRetry overrides the per-store retry policy.
func (r *Recorder) SetRetry(maxRetries uint64, initialWait time.Duration) {
	r.maxRetries = maxRetries
	r.initialWait = initialWait
}

// Record ingests one engagement event.
//
// It returns an error wrapping ErrPersistence only when nothing was written,
// so callers backed by an at-least-once queue can safely redeliver.
func (r *Recorder) Record(ctx context.Context, evt domain.EngagementEvent) (Outcome, error) {
	if !evt.Kind.Valid() {
		return OutcomeDropped, fmt.Errorf("%w: %q", ErrInvalidEventKind, evt.Kind)
	}
	at := evt.OccurredAt
	if at.IsZero() {
		at = r.now()
	}

	email, err := r.registry.Resolve(ctx, evt.Token)
	if errors.Is(err, ErrTokenNotResolved) {
		r.observe(evt.Kind, OutcomeDropped)
		logger.Debug("tracking token not resolved", "token", logger.RedactToken(evt.Token), "kind", evt.Kind)
		return OutcomeDropped, nil
	}
	if err != nil {
		r.observe(evt.Kind, OutcomeFailed)
		metrics.PersistenceFailures.WithLabelValues("resolve").Inc()
		return OutcomeFailed, fmt.Errorf("%w: resolve: %v", ErrPersistence, err)
	}

	err = r.retry(ctx, func() error {
		return r.registry.emails.IncrementEngagement(ctx, email.TrackingToken, evt.Kind, at)
	})
	if errors.Is(err, ErrTokenNotResolved) {
		r.observe(evt.Kind, OutcomeDropped)
		return OutcomeDropped, nil
	}
	if err != nil {
		r.observe(evt.Kind, OutcomeFailed)
		metrics.PersistenceFailures.WithLabelValues("email_increment").Inc()
		return OutcomeFailed, fmt.Errorf("%w: email increment: %v", ErrPersistence, err)
	}

	err = r.retry(ctx, func() error {
		return r.engagements.Increment(ctx, email.TrackingToken, email.Recipient, evt.Kind, at)
	})
	if err != nil {
		// The email record already counted this event. Reporting failure
		// would invite a redelivery that counts it twice.
		r.observe(evt.Kind, OutcomePartial)
		metrics.PersistenceFailures.WithLabelValues("engagement_increment").Inc()
		metrics.RecordDivergences.WithLabelValues("recorder").Inc()
		logger.Warn("record divergence: engagement increment failed after email increment",
			"token", logger.RedactToken(email.TrackingToken),
			"email_id", email.ID,
			"kind", evt.Kind,
			"err", err)
		return OutcomePartial, nil
	}

	client := evt.Client
	if client.SeenAt.IsZero() {
		client.SeenAt = at
	}
	if err := r.engagements.SaveClientMetadata(ctx, email.TrackingToken, client); err != nil {
		logger.Warn("client metadata not saved", "token", logger.RedactToken(email.TrackingToken), "err", err)
	}

	r.observe(evt.Kind, OutcomeRecorded)
	return OutcomeRecorded, nil
}

// retry makes the increments at-least-once: an error returned after the store
// committed (a lost reply, a dropped connection) is retried and counts the
// event twice. A timeout is not retried, since a statement that ran out of
// time may still have committed; the reconciler heals what that leaves behind.
func (r *Recorder) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialWait
	b.MaxInterval = 20 * r.initialWait
	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, ErrTokenNotResolved) ||
			errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx))
}

func (r *Recorder) observe(kind domain.EventKind, outcome Outcome) {
	metrics.TrackingEvents.WithLabelValues(string(kind), string(outcome)).Inc()
}
