// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tomtom215/channelsync/internal/adapter"
	"github.com/tomtom215/channelsync/internal/credentials"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

const (
	maxResponseBytes = 1 << 20
	maxErrorExcerpt  = 512
	userAgent        = "channelsync/1.0"
)

// TokenSource decrypts a connection's OAuth tokens. *credentials.Store
// implements it.
type TokenSource interface {
	Tokens(conn *models.ChannelConnection) (credentials.Tokens, error)
}

// Config configures one platform's client.
type Config struct {
	Platform      models.PlatformType
	BaseURL       string
	WebhookSecret string
	Timeout       time.Duration
}

// Client is the reference adapter. It speaks a JSON REST dialect keyed by
// listing and reservation ids, and verifies HMAC-SHA256 signed webhooks.
type Client struct {
	platform   models.PlatformType
	baseURL    string
	secret     []byte
	tokens     TokenSource
	httpClient *http.Client
	schema     *jsonschema.Schema
	now        func() time.Time
}

var _ adapter.Adapter = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithClock overrides the time source used to stamp webhooks.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// New builds a client. The webhook secret is required: unsigned webhooks are
// never accepted.
func New(cfg Config, tokens TokenSource, opts ...Option) (*Client, error) {
	if !cfg.Platform.Valid() {
		return nil, fmt.Errorf("unknown platform %q", cfg.Platform)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%s base_url: %w", cfg.Platform, err)
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%s webhook_secret is required", cfg.Platform)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	schema, err := compileWebhookSchema()
	if err != nil {
		return nil, err
	}

	c := &Client{
		platform:   cfg.Platform,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secret:     []byte(cfg.WebhookSecret),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		schema:     schema,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Platform implements adapter.Adapter.
func (c *Client) Platform() models.PlatformType { return c.platform }

// requestConfig describes one API call.
type requestConfig struct {
	op       string
	method   string
	path     string
	query    url.Values
	body     any
	notFound bool // treat 404 as success (idempotent deletes)
}

// doRequest executes an authenticated request for conn and decodes a JSON
// response into result when it is non-nil. Failures are classified into the
// syncerr taxonomy.
func (c *Client) doRequest(ctx context.Context, conn *models.ChannelConnection, cfg requestConfig, result any) error {
	tokens, err := c.tokens.Tokens(conn)
	if err != nil {
		return &syncerr.AdapterAuthError{Op: cfg.op, Message: err.Error()}
	}

	var body io.Reader = http.NoBody
	if cfg.body != nil {
		payload, err := json.Marshal(cfg.body)
		if err != nil {
			return &syncerr.AdapterValidationError{Op: cfg.op, Message: "encode request", Cause: err}
		}
		body = bytes.NewReader(payload)
	}

	reqURL := c.baseURL + cfg.path
	if len(cfg.query) > 0 {
		reqURL += "?" + cfg.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, cfg.method, reqURL, body)
	if err != nil {
		return &syncerr.AdapterValidationError{Op: cfg.op, Message: "create request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if cfg.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &syncerr.TransientError{Op: cfg.op, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && cfg.notFound {
		return nil
	}
	if err := classifyStatus(cfg.op, resp, c.now()); err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(result); err != nil {
		return &syncerr.TransientError{Op: cfg.op, StatusCode: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// classifyStatus maps a non-2xx response to a typed error.
func classifyStatus(op string, resp *http.Response, now time.Time) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorExcerpt))
	msg := strings.TrimSpace(string(excerpt))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &syncerr.AdapterAuthError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &syncerr.TransientError{
			Op:         op,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), now),
			Cause:      errors.New(msg),
		}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return &syncerr.TransientError{Op: op, StatusCode: resp.StatusCode, Cause: errors.New(msg)}
	default:
		return &syncerr.AdapterValidationError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date. Unparseable values
// yield zero, leaving the backoff to the caller.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
