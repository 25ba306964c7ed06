// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package syncerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"rate limit", &RateLimitError{Key: "airbnb:c1", RetryAfter: time.Second}, CategoryRateLimited},
		{"circuit", &CircuitOpenError{Name: "airbnb:c1"}, CategoryCircuitOpen},
		{"transient", &TransientError{Op: "push", StatusCode: 503}, CategoryTransient},
		{"deadline", fmt.Errorf("push: %w", context.DeadlineExceeded), CategoryTransient},
		{"auth", &AdapterAuthError{Op: "push", StatusCode: 401}, CategoryAuth},
		{"validation", &AdapterValidationError{Op: "push", StatusCode: 422}, CategoryValidation},
		{"conflict", &BookingConflictError{PropertyID: "p1"}, CategoryConflict},
		{"duplicate", fmt.Errorf("ingest: %w", ErrIdempotentDuplicate), CategoryDuplicate},
		{"drift", &DriftError{Days: 12, Threshold: 10}, CategoryDrift},
		{"unknown", errors.New("boom"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"rate limited", &RateLimitError{}, true},
		{"circuit open", &CircuitOpenError{}, true},
		{"5xx", &TransientError{StatusCode: 502}, true},
		{"unknown network", errors.New("connection reset by peer"), true},
		{"auth", &AdapterAuthError{StatusCode: 403}, false},
		{"validation", &AdapterValidationError{StatusCode: 400}, false},
		{"conflict", &BookingConflictError{}, false},
		{"permanent transient", Permanent("poison", &TransientError{StatusCode: 503}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&BookingConflictError{PropertyID: "p1"}, http.StatusConflict},
		{&RateLimitError{}, http.StatusTooManyRequests},
		{&CircuitOpenError{}, http.StatusServiceUnavailable},
		{&AdapterValidationError{}, http.StatusBadRequest},
		{ErrIdempotentDuplicate, http.StatusOK},
		{fmt.Errorf("get: %w", ErrNotFound), http.StatusNotFound},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	if got := RetryAfter(&RateLimitError{RetryAfter: 3 * time.Second}); got != 3*time.Second {
		t.Errorf("RetryAfter = %v", got)
	}
	if got := RetryAfter(&TransientError{RetryAfter: time.Second}); got != time.Second {
		t.Errorf("RetryAfter = %v", got)
	}
	if got := RetryAfter(errors.New("x")); got != 0 {
		t.Errorf("RetryAfter = %v, want 0", got)
	}
}

func TestPermanent(t *testing.T) {
	cause := errors.New("bad payload")
	err := fmt.Errorf("handler: %w", Permanent("decode event", cause))
	if !IsPermanent(err) {
		t.Fatal("expected permanent")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to unwrap")
	}
	if IsPermanent(cause) {
		t.Error("plain error should not be permanent")
	}
}

func TestBookingConflictMessageNamesHolder(t *testing.T) {
	err := &BookingConflictError{PropertyID: "p1", Range: "2026-07-01..2026-07-05", Holder: "req-42"}
	want := "booking conflict on property p1 for 2026-07-01..2026-07-05: held by req-42"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
