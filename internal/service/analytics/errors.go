package analytics

import "errors"

// Sentinel errors for the analytics service layer.
var (
	// ErrUnavailable means a backing store could not be read. The request
	// may be retried.
	ErrUnavailable = errors.New("analytics store unavailable")

	ErrInvalidCampaign = errors.New("invalid campaign id")
)
