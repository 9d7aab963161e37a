package email

import (
	"errors"

	"github.com/ignite/engagement-tracker/internal/service/tracking"
)

// Sentinel errors for the email service layer.
var (
	ErrNotFound          = tracking.ErrEmailNotFound
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidInput      = errors.New("invalid email input")
)
