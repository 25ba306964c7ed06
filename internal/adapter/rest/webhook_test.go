// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package rest

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

func signedHeader(secret string, body []byte) http.Header {
	h := http.Header{}
	h.Set(SignatureHeader, Sign(secret, body))
	return h
}

func TestVerifyWebhook(t *testing.T) {
	fixed := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)
	c, err := New(Config{Platform: models.PlatformBookingCom, BaseURL: "https://api.example.com", WebhookSecret: testSecret},
		staticTokens{}, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	valid := []byte(`{"event_id":"evt-1","event_type":"reservation.created","listing_id":"L-9","reservation_id":"R-7","occurred_at":"2026-07-01T09:29:00Z"}`)

	t.Run("valid", func(t *testing.T) {
		wh, err := c.VerifyWebhook(signedHeader(testSecret, valid), valid)
		if err != nil {
			t.Fatalf("VerifyWebhook: %v", err)
		}
		want := models.Webhook{
			Platform:          models.PlatformBookingCom,
			ExternalEventID:   "evt-1",
			ListingID:         "L-9",
			ExternalBookingID: "R-7",
			Kind:              "reservation.created",
			ReceivedAt:        fixed,
		}
		if *wh != want {
			t.Errorf("webhook = %+v, want %+v", *wh, want)
		}
	})

	tests := []struct {
		name   string
		header http.Header
		body   []byte
	}{
		{"missing signature", http.Header{}, valid},
		{"wrong secret", signedHeader("other", valid), valid},
		{"not hex", http.Header{SignatureHeader: {"sha256=zz"}}, valid},
		{"malformed json", nil, []byte(`{"event_id":`)},
		{"missing reservation", nil, []byte(`{"event_id":"e","event_type":"reservation.created","listing_id":"L"}`)},
		{"unknown event type", nil, []byte(`{"event_id":"e","event_type":"payout.sent","listing_id":"L","reservation_id":"R"}`)},
		{"bad timestamp", nil, []byte(`{"event_id":"e","event_type":"reservation.updated","listing_id":"L","reservation_id":"R","occurred_at":"yesterday"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if header == nil {
				header = signedHeader(testSecret, tt.body)
			}
			_, err := c.VerifyWebhook(header, tt.body)
			var val *syncerr.AdapterValidationError
			if !errors.As(err, &val) {
				t.Fatalf("err = %v, want AdapterValidationError", err)
			}
			if syncerr.HTTPStatus(err) != http.StatusBadRequest {
				t.Errorf("HTTPStatus = %d, want 400", syncerr.HTTPStatus(err))
			}
		})
	}
}
