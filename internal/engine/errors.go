package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/jagtrack/internal/ir"
)

// RuntimeError represents an error detected while processing an event.
//
// Runtime errors never stop the Run loop; they are logged with the event
// and processing continues with the next one.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Observer identifies the observer whose event failed.
	Observer string

	// InstanceID is the targeted instance, when the event named one.
	InstanceID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInstanceNotFound indicates an event was dropped because no
	// instance it targets was ever discovered.
	ErrCodeInstanceNotFound RuntimeErrorCode = "INSTANCE_NOT_FOUND"

	// ErrCodeNegativeElapsed indicates an event carried a negative mission time.
	ErrCodeNegativeElapsed RuntimeErrorCode = "NEGATIVE_ELAPSED"

	// ErrCodePendingLimit indicates the observer's orphan buffer overflowed.
	ErrCodePendingLimit RuntimeErrorCode = "PENDING_LIMIT"

	// ErrCodeUnknownCategory indicates an event of an unknown category.
	ErrCodeUnknownCategory RuntimeErrorCode = "UNKNOWN_CATEGORY"

	// ErrCodeInvalidEvent indicates an event whose body does not match its
	// category, or that has no observer.
	ErrCodeInvalidEvent RuntimeErrorCode = "INVALID_EVENT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Observer != "" && e.InstanceID != "":
		msg = fmt.Sprintf("%s (observer=%s, instance=%s)", msg, e.Observer, e.InstanceID)
	case e.Observer != "":
		msg = fmt.Sprintf("%s (observer=%s)", msg, e.Observer)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsPendingLimitError reports whether err is an orphan buffer overflow.
func IsPendingLimitError(err error) bool { return hasCode(err, ErrCodePendingLimit) }

// IsInstanceNotFoundError reports whether err is a dropped orphan event.
func IsInstanceNotFoundError(err error) bool { return hasCode(err, ErrCodeInstanceNotFound) }

// IsInvalidEventError reports whether err rejected a malformed event:
// unknown category, negative elapsed time or mismatched body.
func IsInvalidEventError(err error) bool {
	return hasCode(err, ErrCodeInvalidEvent) ||
		hasCode(err, ErrCodeUnknownCategory) ||
		hasCode(err, ErrCodeNegativeElapsed)
}

// NewPendingLimitError reports that dropped was evicted from observer's
// orphan buffer.
func NewPendingLimitError(observer string, limit int, dropped ir.Inbound) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodePendingLimit,
		Message:    fmt.Sprintf("orphan buffer full (limit %d), dropped oldest %s event", limit, dropped.Category),
		Observer:   observer,
		InstanceID: dropped.InstanceID(),
		Details: map[string]string{
			"limit":      fmt.Sprintf("%d", limit),
			"elapsed_ms": fmt.Sprintf("%d", dropped.ElapsedMS),
		},
	}
}

// NewInstanceNotFoundError reports an orphan event that was never resolved.
func NewInstanceNotFoundError(ev ir.Inbound, cause error) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeInstanceNotFound,
		Message:    fmt.Sprintf("%s event targets no known instance", ev.Category),
		Observer:   ev.Observer,
		InstanceID: ev.InstanceID(),
		Err:        cause,
	}
}

// checkEvent rejects events the engine cannot process at all.
func checkEvent(ev ir.Inbound) error {
	if !ir.ValidCategories[ev.Category] {
		return &RuntimeError{
			Code:     ErrCodeUnknownCategory,
			Message:  fmt.Sprintf("unknown category %q", ev.Category),
			Observer: ev.Observer,
		}
	}
	if ev.ElapsedMS < 0 {
		return &RuntimeError{
			Code:     ErrCodeNegativeElapsed,
			Message:  fmt.Sprintf("%s event at %d ms", ev.Category, ev.ElapsedMS),
			Observer: ev.Observer,
		}
	}
	if err := ev.Validate(); err != nil {
		return &RuntimeError{
			Code:     ErrCodeInvalidEvent,
			Message:  "malformed event",
			Observer: ev.Observer,
			Err:      err,
		}
	}
	return nil
}
