package tracking

import "errors"

// Sentinel errors for the tracking service layer.
var (
	// ErrTokenNotResolved means the token is unknown, stale or forged. It is a
	// normal outcome for tracking requests, never a client-visible error.
	ErrTokenNotResolved = errors.New("tracking token not resolved")

	// ErrDuplicateToken is returned by stores when a generated token collides
	// with an existing one. The registry retries with a fresh token.
	ErrDuplicateToken = errors.New("tracking token already exists")

	ErrEmailNotFound      = errors.New("email record not found")
	ErrEngagementNotFound = errors.New("engagement record not found")
	ErrInvalidEventKind   = errors.New("invalid engagement event kind")

	// ErrPersistence wraps store failures that survived retries. When the
	// recorder returns it, nothing was written for the event.
	ErrPersistence = errors.New("engagement persistence failed")
)
