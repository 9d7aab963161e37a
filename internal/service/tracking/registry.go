package tracking

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/metrics"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

const (
	// TokenLength is the generated token size. With nanoid's 64-symbol
	// URL-safe alphabet this is 192 bits of entropy.
	TokenLength = 32

	// MaxTokenLength bounds what Resolve will look up.
	MaxTokenLength = 128

	maxIssueAttempts = 5
)

// TokenGenerator produces a fresh random token.
type TokenGenerator func() (string, error)

// GenerateToken returns a URL-safe random token of TokenLength characters.
func GenerateToken() (string, error) {
	return gonanoid.New(TokenLength)
}

// Registry issues one tracking token per outbound email and resolves tokens
// back to their email records. Safe for concurrent use.
type Registry struct {
	emails   EmailStore
	generate TokenGenerator
}

// NewRegistry creates a registry. A nil generator uses GenerateToken.
func NewRegistry(emails EmailStore, generate TokenGenerator) *Registry {
	if generate == nil {
		generate = GenerateToken
	}
	return &Registry{emails: emails, generate: generate}
}

// IssueToken generates and persists a token for emailID. It must be called
// before the message leaves the system. Collisions are retried with a fresh
// token; an email that already has a token gets it back unchanged.
func (r *Registry) IssueToken(ctx context.Context, emailID string) (string, error) {
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		candidate, err := r.generate()
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}

		token, err := r.emails.AssignToken(ctx, emailID, candidate)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrDuplicateToken) {
			return "", err
		}

		metrics.TokenCollisions.Inc()
		logger.Warn("tracking token collision, regenerating", "email_id", emailID, "attempt", attempt)
	}
	return "", fmt.Errorf("issue token for %s: %d attempts: %w", emailID, maxIssueAttempts, ErrDuplicateToken)
}

// Resolve returns the email owning token. Malformed tokens are rejected
// without a store round trip. ErrTokenNotResolved is a normal outcome.
func (r *Registry) Resolve(ctx context.Context, token string) (*domain.EmailRecord, error) {
	if token == "" || len(token) > MaxTokenLength {
		return nil, ErrTokenNotResolved
	}
	return r.emails.GetByToken(ctx, token)
}
