package email

import (
	"context"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// Repository defines the data access contract for email records.
// Implementations must be safe for concurrent use.
type Repository interface {
	Create(ctx context.Context, e *domain.EmailRecord) error

	// Get returns ErrNotFound if the email doesn't exist.
	Get(ctx context.Context, id string) (*domain.EmailRecord, error)

	// SetStatus moves the email from one status to another and reports
	// whether it was still in the from status.
	SetStatus(ctx context.Context, id string, from, to domain.EmailStatus) (bool, error)
}

// TokenIssuer assigns tracking tokens. Satisfied by *tracking.Registry.
type TokenIssuer interface {
	IssueToken(ctx context.Context, emailID string) (string, error)
}
