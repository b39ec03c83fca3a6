package purchase

import (
	"errors"
	"fmt"
)

// Kind classifies a purchase failure for callers.
type Kind string

const (
	KindInvalidRequest           Kind = "invalid_request"
	KindPaymentRejected          Kind = "payment_rejected"
	KindServiceUnavailable       Kind = "service_unavailable"
	KindArtifactGenerationFailed Kind = "artifact_generation_failed"
	KindDuplicateSubmission      Kind = "duplicate_submission"
	KindPersistenceFailure       Kind = "persistence_failure"
)

// Retryable reports whether submitting the same request again may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindServiceUnavailable, KindArtifactGenerationFailed, KindPersistenceFailure:
		return true
	default:
		return false
	}
}

// Error is returned by every failing Service operation. Reason is safe to
// show to API callers; Err is the underlying cause and is only logged.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not a purchase error.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}
