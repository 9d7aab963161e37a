package tracking

import (
	"context"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// EmailStore is the data access contract for email records as seen by the
// tracking subsystem. Implementations must be safe for concurrent use and
// must apply every counter change as a single atomic store operation.
type EmailStore interface {
	// GetByToken looks an email up by its tracking token through a unique
	// index. Returns ErrTokenNotResolved if no email carries the token.
	GetByToken(ctx context.Context, token string) (*domain.EmailRecord, error)

	// AssignToken stores token on the email if it has none yet and returns
	// the token the email ends up with. An email that already has a token
	// keeps it. Returns ErrDuplicateToken on a unique-index collision and
	// ErrEmailNotFound for an unknown email.
	AssignToken(ctx context.Context, emailID, token string) (string, error)

	// IncrementEngagement atomically adds one to the open or click counter
	// and sets the matching last-activity timestamp. Returns
	// ErrTokenNotResolved if no row matched.
	IncrementEngagement(ctx context.Context, token string, kind domain.EventKind, at time.Time) error

	// ListEngaged returns emails with at least one open or click whose token
	// sorts after afterToken, ordered by token, at most limit rows.
	ListEngaged(ctx context.Context, afterToken string, limit int) ([]domain.EmailRecord, error)

	// RaiseCounts lifts the counters to at least the given values. Counters
	// never move down.
	RaiseCounts(ctx context.Context, token string, opens, clicks int) error
}

// EngagementStore is the data access contract for per-token engagement
// records. Implementations must be safe for concurrent use.
type EngagementStore interface {
	// Increment atomically adds one to the counter for kind, creating the
	// record if needed. The first-activity timestamp is only set when unset;
	// the last-activity timestamp is always set to at.
	Increment(ctx context.Context, token, recipient string, kind domain.EventKind, at time.Time) error

	// SaveClientMetadata overwrites the last-seen client metadata.
	SaveClientMetadata(ctx context.Context, token string, meta domain.ClientMetadata) error

	// Get returns ErrEngagementNotFound if the token has no record.
	Get(ctx context.Context, token string) (*domain.EngagementRecord, error)

	// GetMany returns the records that exist for tokens, keyed by token.
	GetMany(ctx context.Context, tokens []string) (map[string]domain.EngagementRecord, error)

	// Raise creates the record if missing and lifts its counters to at least
	// the given values.
	Raise(ctx context.Context, token, recipient string, opens, clicks int) error
}

// ReportSink receives the result of a reconciliation pass.
type ReportSink interface {
	Publish(ctx context.Context, report *domain.ReconciliationReport) error
}
