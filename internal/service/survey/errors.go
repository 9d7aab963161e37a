package survey

import "errors"

// ErrInvalidResponse is returned when a submitted response fails validation.
var ErrInvalidResponse = errors.New("invalid survey response")
