// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package rest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// SignatureHeader carries "sha256=<hex HMAC of the raw body>".
const SignatureHeader = "X-Channel-Signature"

//go:embed schemas/webhook.json
var webhookSchemaJSON []byte

var compileWebhookSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(webhookSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse webhook schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource("webhook.json", doc); err != nil {
		return nil, fmt.Errorf("add webhook schema: %w", err)
	}
	sch, err := c.Compile("webhook.json")
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}
	return sch, nil
})

type webhookPayload struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	ListingID     string `json:"listing_id"`
	ReservationID string `json:"reservation_id"`
}

// VerifyWebhook checks the signature, then the payload shape. Both failures
// are *syncerr.AdapterValidationError so the API answers 400.
func (c *Client) VerifyWebhook(header http.Header, body []byte) (*models.Webhook, error) {
	if !verifySignature(c.secret, body, header.Get(SignatureHeader)) {
		return nil, &syncerr.AdapterValidationError{Op: "verify_webhook", Message: "invalid signature"}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, &syncerr.AdapterValidationError{Op: "verify_webhook", Message: "malformed JSON", Cause: err}
	}
	if err := c.schema.Validate(inst); err != nil {
		return nil, &syncerr.AdapterValidationError{Op: "verify_webhook", Message: "payload does not match schema", Cause: err}
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &syncerr.AdapterValidationError{Op: "verify_webhook", Message: "decode payload", Cause: err}
	}
	return &models.Webhook{
		Platform:          c.platform,
		ExternalEventID:   p.EventID,
		ListingID:         p.ListingID,
		ExternalBookingID: p.ReservationID,
		Kind:              p.EventType,
		ReceivedAt:        c.now().UTC(),
	}, nil
}

func verifySignature(secret, body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the SignatureHeader value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
