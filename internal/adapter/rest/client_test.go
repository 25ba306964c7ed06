// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/channelsync/internal/credentials"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

const testSecret = "whsec-test"

type staticTokens struct {
	err error
}

func (s staticTokens) Tokens(*models.ChannelConnection) (credentials.Tokens, error) {
	if s.err != nil {
		return credentials.Tokens{}, s.err
	}
	return credentials.Tokens{AccessToken: "access-123"}, nil
}

type capture struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   []byte
}

// mockPlatform records requests and answers with handler.
type mockPlatform struct {
	mu       sync.Mutex
	captures []capture
	server   *httptest.Server
}

func newMockPlatform(t *testing.T, handler http.HandlerFunc) *mockPlatform {
	t.Helper()
	m := &mockPlatform{}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		m.captures = append(m.captures, capture{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		m.mu.Unlock()
		if handler == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockPlatform) last(t *testing.T) capture {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.captures) == 0 {
		t.Fatal("no request captured")
	}
	return m.captures[len(m.captures)-1]
}

func newTestClient(t *testing.T, baseURL string, tokens TokenSource) *Client {
	t.Helper()
	if tokens == nil {
		tokens = staticTokens{}
	}
	c, err := New(Config{Platform: models.PlatformAirbnb, BaseURL: baseURL, WebhookSecret: testSecret}, tokens)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

var testConn = &models.ChannelConnection{ID: "c1", Platform: models.PlatformAirbnb, PlatformListingID: "L 42"}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown platform", Config{Platform: "hotelsdotcom", BaseURL: "https://x", WebhookSecret: "s"}},
		{"bad url", Config{Platform: models.PlatformVrbo, BaseURL: "not a url", WebhookSecret: "s"}},
		{"no secret", Config{Platform: models.PlatformVrbo, BaseURL: "https://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, staticTokens{}); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}
}

func TestPushBookingBlock(t *testing.T) {
	m := newMockPlatform(t, nil)
	c := newTestClient(t, m.server.URL, nil)
	ctx := context.Background()

	block := models.BookingBlock{BookingID: "bk-1", Range: models.MustDateRange("2026-07-10", "2026-07-14"), Blocked: true}
	if err := c.PushBookingBlock(ctx, testConn, block); err != nil {
		t.Fatalf("block: %v", err)
	}
	got := m.last(t)
	if got.Method != http.MethodPut || got.Path != "/v1/listings/L 42/blocks/bk-1" {
		t.Errorf("request = %s %s", got.Method, got.Path)
	}
	if got.Auth != "Bearer access-123" {
		t.Errorf("Authorization = %q", got.Auth)
	}
	var body blockBody
	if err := json.Unmarshal(got.Body, &body); err != nil || body.CheckIn != "2026-07-10" || body.CheckOut != "2026-07-14" {
		t.Errorf("body = %s (%v)", got.Body, err)
	}

	block.Blocked = false
	if err := c.PushBookingBlock(ctx, testConn, block); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if got := m.last(t); got.Method != http.MethodDelete {
		t.Errorf("unblock method = %s", got.Method)
	}
}

func TestUnblockMissingBlockSucceeds(t *testing.T) {
	m := newMockPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such block", http.StatusNotFound)
	})
	c := newTestClient(t, m.server.URL, nil)

	block := models.BookingBlock{BookingID: "gone", Range: models.MustDateRange("2026-07-10", "2026-07-14")}
	if err := c.PushBookingBlock(context.Background(), testConn, block); err != nil {
		t.Errorf("unblock of missing block = %v, want nil", err)
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		want       syncerr.Category
		wantWait   time.Duration
	}{
		{"unauthorized", http.StatusUnauthorized, "", syncerr.CategoryAuth, 0},
		{"forbidden", http.StatusForbidden, "", syncerr.CategoryAuth, 0},
		{"throttled", http.StatusTooManyRequests, "7", syncerr.CategoryTransient, 7 * time.Second},
		{"unavailable", http.StatusServiceUnavailable, "", syncerr.CategoryTransient, 0},
		{"unprocessable", http.StatusUnprocessableEntity, "", syncerr.CategoryValidation, 0},
		{"bad request", http.StatusBadRequest, "", syncerr.CategoryValidation, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockPlatform(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				http.Error(w, "nope", tt.status)
			})
			c := newTestClient(t, m.server.URL, nil)

			err := c.PushPricing(context.Background(), testConn, models.PriceUpdate{From: "2026-07-01", To: "2026-07-31", AmountCents: 15000, Currency: "EUR"})
			if got := syncerr.CategoryOf(err); got != tt.want {
				t.Errorf("category = %s, want %s (err %v)", got, tt.want, err)
			}
			if got := syncerr.RetryAfter(err); got != tt.wantWait {
				t.Errorf("RetryAfter = %v, want %v", got, tt.wantWait)
			}
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	m := newMockPlatform(t, nil)
	c := newTestClient(t, m.server.URL, nil)
	m.server.Close()

	err := c.Probe(context.Background(), testConn)
	if !syncerr.IsRetryable(err) || syncerr.CategoryOf(err) != syncerr.CategoryTransient {
		t.Errorf("err = %v, want transient", err)
	}
}

func TestMissingTokensIsAuthError(t *testing.T) {
	m := newMockPlatform(t, nil)
	c := newTestClient(t, m.server.URL, staticTokens{err: credentials.ErrNoAccessToken})

	var auth *syncerr.AdapterAuthError
	if err := c.Probe(context.Background(), testConn); !errors.As(err, &auth) {
		t.Errorf("err = %v, want AdapterAuthError", err)
	}
}

func TestFetchBooking(t *testing.T) {
	m := newMockPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/reservations/R-unknown" {
			w.Write([]byte(`{"id":"R-unknown","check_in":"2026-07-10","check_out":"2026-07-12","status":"teleported"}`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{
			"id": "R-1", "listing_id": "L 42",
			"check_in": "2026-07-10", "check_out": "2026-07-14",
			"status": "accepted",
			"guest": {"name": "Grace Hopper", "email": "grace@example.com", "phone": "+1 555 0100", "language": "en"},
			"total": {"amount_cents": 52000, "currency": "USD"},
			"updated_at": "2026-06-01T10:00:00Z"
		}`)) //nolint:errcheck
	})
	c := newTestClient(t, m.server.URL, nil)
	ctx := context.Background()

	pb, err := c.FetchBooking(ctx, testConn, "R-1")
	if err != nil {
		t.Fatalf("FetchBooking: %v", err)
	}
	if pb.Status != models.BookingConfirmed || pb.Range.Nights() != 4 || pb.Guest.Phone != "+1 555 0100" || pb.PriceCents != 52000 {
		t.Errorf("booking = %+v", pb)
	}

	var val *syncerr.AdapterValidationError
	if _, err := c.FetchBooking(ctx, testConn, "R-unknown"); !errors.As(err, &val) {
		t.Errorf("unknown status err = %v, want AdapterValidationError", err)
	}
}

func TestFetchAvailability(t *testing.T) {
	m := newMockPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"days":[{"date":"2026-07-01","available":true},{"date":"2026-07-02","available":false}]}`)) //nolint:errcheck
	})
	c := newTestClient(t, m.server.URL, nil)

	days, err := c.FetchAvailability(context.Background(), testConn, models.MustDateRange("2026-07-01", "2026-07-03"))
	if err != nil {
		t.Fatalf("FetchAvailability: %v", err)
	}
	if len(days) != 2 || days[1].Available {
		t.Errorf("days = %+v", days)
	}
	if q := m.last(t).Query; !strings.Contains(q, "from=2026-07-01") || !strings.Contains(q, "to=2026-07-03") {
		t.Errorf("query = %q", q)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
