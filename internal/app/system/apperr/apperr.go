// Package apperr defines the error kinds shared by the page repository,
// the editing session, the catalog and the media service.
//
// Stores and services wrap the sentinels below with fmt.Errorf("...: %w"),
// so callers branch with errors.Is or KindOf and never inspect driver errors.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrNotFound is returned when an id or slug has no matching record.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on a unique-constraint violation (duplicate slug).
	ErrConflict = errors.New("conflict")
	// ErrValidation is returned when a required field is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrStoreUnavailable is returned when the document store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrMediaOperation is returned when an upload or delete against the media store fails.
	ErrMediaOperation = errors.New("media operation failed")
	// ErrRateLimited is returned when a client has failed too often and is locked out.
	ErrRateLimited = errors.New("rate limited")
)

// Kind names an error category for logging and API responses.
type Kind string

const (
	KindNone             Kind = ""
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindValidation       Kind = "validation"
	KindStoreUnavailable Kind = "store_unavailable"
	KindMediaOperation   Kind = "media_operation"
	KindRateLimited      Kind = "rate_limited"
	KindInternal         Kind = "internal"
)

// KindOf classifies err. A nil error has KindNone; anything not wrapping a
// known sentinel is KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return KindStoreUnavailable
	case errors.Is(err, ErrMediaOperation):
		return KindMediaOperation
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to the status code used by the JSON API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNone:
		return http.StatusOK
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case KindMediaOperation:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// FieldError is a validation failure tied to a single input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Unwrap makes a FieldError match ErrValidation.
func (e *FieldError) Unwrap() error {
	return ErrValidation
}

// Invalid returns a FieldError for field.
func Invalid(field, message string) error {
	return &FieldError{Field: field, Message: message}
}

// Fields collects the FieldErrors in err's tree, keyed by field name.
// It returns nil when err carries no field detail.
func Fields(err error) map[string]string {
	out := map[string]string{}
	collectFields(err, out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func collectFields(err error, out map[string]string) {
	switch e := err.(type) {
	case nil:
		return
	case *FieldError:
		out[e.Field] = e.Message
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			collectFields(inner, out)
		}
	case interface{ Unwrap() error }:
		collectFields(e.Unwrap(), out)
	}
}
