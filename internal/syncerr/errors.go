// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package syncerr defines the error taxonomy shared by the sync engine, the
// platform adapters and the HTTP surface.
//
// Errors fall into three groups:
//   - Retryable: RateLimitError, CircuitOpenError, TransientError. The
//     outbound dispatcher backs off and tries again within its budget.
//   - Terminal: AdapterAuthError, AdapterValidationError. Recorded on the
//     SyncOperation and never retried within the same dispatch.
//   - Non-failures: BookingConflictError (a 409 for the caller),
//     ErrIdempotentDuplicate (a no-op) and DriftError (an operator alert).
package syncerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Category classifies an error for retry decisions, metrics and HTTP mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryRateLimited
	CategoryCircuitOpen
	CategoryTransient
	CategoryAuth
	CategoryValidation
	CategoryConflict
	CategoryDuplicate
	CategoryDrift
)

// String returns the metric label for the category.
func (c Category) String() string {
	switch c {
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryCircuitOpen:
		return "circuit_open"
	case CategoryTransient:
		return "transient"
	case CategoryAuth:
		return "auth"
	case CategoryValidation:
		return "validation"
	case CategoryConflict:
		return "conflict"
	case CategoryDuplicate:
		return "duplicate"
	case CategoryDrift:
		return "drift"
	default:
		return "unknown"
	}
}

// ErrIdempotentDuplicate marks a webhook delivery that was already accepted.
var ErrIdempotentDuplicate = errors.New("duplicate delivery")

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// RateLimitError is returned when a connection has exhausted its window.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Key, e.RetryAfter)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

// CircuitOpenError is returned without invoking the adapter while a breaker
// is open or its half-open probe budget is used up.
type CircuitOpenError struct {
	Name  string
	Cause error
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s: %v", e.Name, e.Cause)
}

func (e *CircuitOpenError) Unwrap() error { return e.Cause }

// TransientError wraps network failures, timeouts, 5xx and platform 429s.
type TransientError struct {
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Cause      error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// AdapterAuthError means the platform rejected the connection's credentials.
type AdapterAuthError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *AdapterAuthError) Error() string {
	return fmt.Sprintf("%s: authentication rejected (status %d): %s", e.Op, e.StatusCode, e.Message)
}

// AdapterValidationError means the platform or a webhook payload rejected the
// request as malformed.
type AdapterValidationError struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *AdapterValidationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: rejected (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: invalid: %s", e.Op, e.Message)
}

func (e *AdapterValidationError) Unwrap() error { return e.Cause }

// BookingConflictError is a user-facing double-booking rejection, raised by
// the soft lock (Holder set) or the database overlap constraint.
type BookingConflictError struct {
	PropertyID string
	Range      string
	Holder     string
	Cause      error
}

func (e *BookingConflictError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("booking conflict on property %s for %s: held by %s", e.PropertyID, e.Range, e.Holder)
	}
	return fmt.Sprintf("booking conflict on property %s for %s: dates already booked", e.PropertyID, e.Range)
}

func (e *BookingConflictError) Unwrap() error { return e.Cause }

// DriftError reports availability drift above the alert threshold.
type DriftError struct {
	ConnectionID string
	Days         int
	Threshold    int
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("reconciliation drift on connection %s: %d days differ (threshold %d)",
		e.ConnectionID, e.Days, e.Threshold)
}

// PermanentError marks a message handler failure that redelivery cannot fix.
// The event router routes these to the poison topic instead of nacking.
type PermanentError struct {
	Message string
	Cause   error
}

// Permanent wraps cause as a PermanentError.
func Permanent(message string, cause error) *PermanentError {
	return &PermanentError{Message: message, Cause: cause}
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *PermanentError) Unwrap() error { return e.Cause }

// IsPermanent reports whether err is or wraps a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// CategoryOf classifies err. Unrecognized errors are CategoryUnknown.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	var (
		rl    *RateLimitError
		co    *CircuitOpenError
		tr    *TransientError
		auth  *AdapterAuthError
		val   *AdapterValidationError
		bc    *BookingConflictError
		drift *DriftError
	)
	switch {
	case errors.As(err, &rl):
		return CategoryRateLimited
	case errors.As(err, &co):
		return CategoryCircuitOpen
	case errors.As(err, &auth):
		return CategoryAuth
	case errors.As(err, &val):
		return CategoryValidation
	case errors.As(err, &bc):
		return CategoryConflict
	case errors.Is(err, ErrIdempotentDuplicate):
		return CategoryDuplicate
	case errors.As(err, &drift):
		return CategoryDrift
	case errors.As(err, &tr), errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	default:
		return CategoryUnknown
	}
}

// IsRetryable reports whether an outbound dispatch should try err again.
// Unknown errors are treated as transient. Permanent wins over any
// category of its cause.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || IsPermanent(err) {
		return false
	}
	switch CategoryOf(err) {
	case CategoryRateLimited, CategoryCircuitOpen, CategoryTransient, CategoryUnknown:
		return true
	default:
		return false
	}
}

// RetryAfter returns the wait hint carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	var tr *TransientError
	if errors.As(err, &tr) {
		return tr.RetryAfter
	}
	return 0
}

// HTTPStatus maps err to the status code the API returns.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	switch CategoryOf(err) {
	case CategoryRateLimited:
		return http.StatusTooManyRequests
	case CategoryCircuitOpen:
		return http.StatusServiceUnavailable
	case CategoryTransient, CategoryAuth:
		return http.StatusBadGateway
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryConflict:
		return http.StatusConflict
	case CategoryDuplicate:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
