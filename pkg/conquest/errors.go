package conquest

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientUnits          = errors.New("insufficient units")
	ErrInsufficientResources      = errors.New("insufficient resources")
	ErrNoPathAvailable            = errors.New("no path available")
	ErrInvalidOffer               = errors.New("invalid offer")
	ErrOrderNotActive             = errors.New("auto-move order is not active")
	ErrOrderNotBlocked            = errors.New("auto-move order is not blocked")
	ErrSpyBulkMove                = errors.New("spies cannot use bulk movement")
	ErrExternalServiceUnavailable = errors.New("external service unavailable")
	ErrNotFound                   = errors.New("not found")
)

// ValidationError describes a malformed or stale intent. It is returned at
// submission time and recorded as a rejected outcome during resolution.
type ValidationError struct {
	Kind    IntentKind
	Message string
}

func (e *ValidationError) Error() string {
	if e.Kind == "" {
		return "invalid intent: " + e.Message
	}
	return fmt.Sprintf("invalid %s intent: %s", e.Kind, e.Message)
}

func invalid(kind IntentKind, format string, args ...any) error {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
