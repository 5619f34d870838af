// Package errors defines the grop error taxonomy — Io, Corrupt,
// Incompatible, TooLarge, and Cancelled — and an AppError wrapper that
// carries an HTTP status code for the daemon's metrics/health surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrIo covers underlying read/write failures against the source file
	// or the index artifact.
	ErrIo = errors.New("io error")
	// ErrCorrupt covers magic mismatch, truncated blocks, varint
	// overflow, non-ascending postings, or an unsorted trigrams map.
	ErrCorrupt = errors.New("corrupt index")
	// ErrIncompatible covers an index file written by an unknown format
	// version.
	ErrIncompatible = errors.New("incompatible index version")
	// ErrTooLarge covers a source file that would require 2^32 or more
	// chunks.
	ErrTooLarge = errors.New("source file too large for chunk id space")
	// ErrCancelled covers a cooperative abort of a running query.
	ErrCancelled = errors.New("query cancelled")
	// ErrNotFound covers a catalog lookup miss.
	ErrNotFound = errors.New("not found")
)

// AppError wraps a sentinel error from the taxonomy above with a
// human-readable message and an HTTP status code.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel error with a message and status code.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

// Newf is New with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...), StatusCode: statusCode}
}

// HTTPStatusCode maps an error to an HTTP status code for the daemon's
// diagnostic endpoints, falling back to the taxonomy's sentinels when err
// is not already an *AppError.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.StatusCode != 0 {
			return appErr.StatusCode
		}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIncompatible), errors.Is(err, ErrCorrupt), errors.Is(err, ErrTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCancelled):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrIo):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
