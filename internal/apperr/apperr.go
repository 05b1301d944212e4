// Package apperr defines the error taxonomy shared by request handlers and
// background tasks, and how each kind maps onto HTTP status codes.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an error for propagation and retry decisions.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindEntityMissing       Kind = "entity_missing"
	KindConflictingState    Kind = "conflicting_state"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindTransient           Kind = "transient"
	KindPermissionDenied    Kind = "permission_denied"
	KindUnauthenticated     Kind = "unauthenticated"
	KindRateLimited         Kind = "rate_limited"
	KindFatal               Kind = "fatal"
)

// Error is a classified error carrying a caller-facing message.
type Error struct {
	Kind    Kind
	Msg     string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind with an empty message, so
// errors.Is(err, apperr.ErrEntityMissing) works for any missing entity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrEntityMissing       = &Error{Kind: KindEntityMissing}
	ErrConflictingState    = &Error{Kind: KindConflictingState}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrTransient           = &Error{Kind: KindTransient}
	ErrPermissionDenied    = &Error{Kind: KindPermissionDenied}
)

// Validation reports malformed input.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Missing reports an absent entity of the given type.
func Missing(entity string, id any) *Error {
	return &Error{
		Kind:    KindEntityMissing,
		Msg:     fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// Conflict reports an attempted change that the current state forbids.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflictingState, Msg: msg}
}

// Forbidden reports a caller lacking role or ownership.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindPermissionDenied, Msg: msg}
}

// Unauthenticated reports a request without a principal.
func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Msg: msg}
}

// Unavailable wraps a provider failure.
func Unavailable(provider string, err error) *Error {
	return &Error{Kind: KindProviderUnavailable, Msg: provider + " unavailable", Err: err}
}

// Transient wraps a failure worth retrying.
func Transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

// Fatal wraps a failure that must not be retried.
func Fatal(msg string, err error) *Error {
	return &Error{Kind: KindFatal, Msg: msg, Err: err}
}

// WithDetails returns e with an additional detail entry.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// Postgres SQLSTATE codes treated as transient.
var transientSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled (statement timeout)
	"08006": true, // connection_failure
	"08003": true, // connection_does_not_exist
}

// KindOf classifies err. Postgres errors outside the lock/serialization family
// are Fatal; anything else unclassified is Transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return KindEntityMissing
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if transientSQLStates[pgErr.Code] {
			return KindTransient
		}
		if pgErr.Code == "23505" {
			return KindConflictingState
		}
		return KindFatal
	}
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	return KindTransient
}

// Retriable reports whether a background task failing with err should be retried.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindProviderUnavailable:
		return true
	}
	return false
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindEntityMissing:
		return http.StatusNotFound
	case KindConflictingState:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message returns the caller-facing text for err. Internal failures are not leaked.
func Message(err error) (string, map[string]any) {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindFatal && ae.Kind != KindTransient {
		return ae.Msg, ae.Details
	}
	if KindOf(err) == KindEntityMissing {
		return "not found", nil
	}
	return "internal server error", nil
}
