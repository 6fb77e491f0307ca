package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound       = errors.New("reminder record not found")
	ErrQueueItemNotFound    = errors.New("sync queue item not found")
	ErrDeadLetterNotFound   = errors.New("dead letter not found")
	ErrRemoteNotFound       = errors.New("remote row not found")
	ErrRemoteRejected       = errors.New("remote store rejected the write")
	ErrHealthStateNotFound  = errors.New("health state not found")
	ErrInvalidFrequency     = errors.New("invalid frequency spec")
	ErrInvalidRecord        = errors.New("invalid reminder record")
	ErrInvalidLegacyPayload = errors.New("invalid legacy notification payload")
	// ErrCollectionReset is returned alongside an empty result after a corrupt
	// collection was cleared.
	ErrCollectionReset = errors.New("corrupt collection reset")
)

// ValidationError reports malformed input rejected before persistence.
type ValidationError struct {
	Field  string
	Reason string
	kind   error
}

func newValidationError(kind error, field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, kind: kind}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.kind, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
