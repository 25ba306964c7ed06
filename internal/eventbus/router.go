// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/metrics"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// RouterConfig holds configuration for the Watermill Router.
type RouterConfig struct {
	// CloseTimeout is how long to wait for handlers to finish when closing.
	CloseTimeout time.Duration

	// In-process retries before the message is nacked for redelivery.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// ThrottlePerSecond caps handled messages per second. 0 disables it.
	ThrottlePerSecond int64

	// PoisonQueueTopic receives permanently failed messages. Empty disables it.
	PoisonQueueTopic string
}

// DefaultRouterConfig returns production defaults for the Router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
		RetryMultiplier:      2.0,
		PoisonQueueTopic:     TopicPoison,
	}
}

// Router wraps the Watermill Router with the middleware stack every
// channelsync consumer shares. From outermost to innermost:
//
//  1. PoisonQueue: permanent failures and panics go to the poison topic and
//     the message is acked
//  2. Recoverer: panics become errors
//  3. Throttle: optional rate cap
//  4. Retry: exponential backoff for everything else; when retries run out
//     the message is nacked and JetStream redelivers it
type Router struct {
	router   *message.Router
	config   RouterConfig
	logger   watermill.LoggerAdapter
	handlers map[string]*message.Handler
}

// isPoison selects errors that redelivery cannot fix. Cancellation is left
// to redelivery since it usually means shutdown.
func isPoison(err error) bool {
	var panicked middleware.RecoveredPanicError
	if errors.As(err, &panicked) {
		return true
	}
	return !errors.Is(err, context.Canceled) && !syncerr.IsRetryable(err)
}

// NewRouter creates a Router. poisonPublisher may be nil, in which case
// permanent failures are logged and acked.
func NewRouter(cfg *RouterConfig, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = logging.NewWatermillLogger("eventbus")
	}
	if cfg == nil {
		defaultCfg := DefaultRouterConfig()
		cfg = &defaultCfg
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	if poisonPublisher != nil && cfg.PoisonQueueTopic != "" {
		poisonQueue, err := middleware.PoisonQueueWithFilter(poisonPublisher, cfg.PoisonQueueTopic, func(err error) bool {
			if isPoison(err) {
				metrics.RecordEventBus(cfg.PoisonQueueTopic, "poisoned")
				return true
			}
			return false
		})
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poisonQueue)
	} else {
		wmRouter.AddMiddleware(dropPermanent)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	if cfg.ThrottlePerSecond > 0 {
		wmRouter.AddMiddleware(middleware.NewThrottle(cfg.ThrottlePerSecond, time.Second).Middleware)
	}

	wmRouter.AddMiddleware(middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		ShouldRetry: func(p middleware.RetryParams) bool {
			return !isPoison(p.Err)
		},
		Logger: logger,
	}.Middleware)

	return &Router{
		router:   wmRouter,
		config:   *cfg,
		logger:   logger,
		handlers: make(map[string]*message.Handler),
	}, nil
}

// dropPermanent acks permanently failed messages when no poison topic is
// configured, so one bad payload cannot block the queue.
func dropPermanent(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil && isPoison(err) {
			logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping permanently failed message")
			metrics.RecordEventBus("dropped", "poisoned")
			return nil, nil
		}
		return out, err
	}
}

// AddConsumerHandler registers a raw handler with no output messages.
func (r *Router) AddConsumerHandler(name, topic string, sub message.Subscriber, handler message.NoPublishHandlerFunc) *message.Handler {
	h := r.router.AddConsumerHandler(name, topic, sub, handler)
	r.handlers[name] = h
	return h
}

// Handle registers a typed consumer. A payload that cannot be decoded is a
// permanent failure.
func Handle[T any](r *Router, name, topic string, sub message.Subscriber, fn func(context.Context, T) error) *message.Handler {
	return r.AddConsumerHandler(name, topic, sub, func(msg *message.Message) error {
		v, err := decode[T](msg)
		if err != nil {
			return syncerr.Permanent("undecodable payload", err)
		}
		err = fn(messageContext(msg), v)
		result := "handled"
		if err != nil {
			result = "failed"
		}
		metrics.RecordEventBus(topic, result)
		return err
	})
}

// HandleEvents registers the outbound event consumer. Events with an
// unknown type are dropped as permanent failures.
func (r *Router) HandleEvents(name string, sub message.Subscriber, fn func(context.Context, models.Event) error) *message.Handler {
	return Handle(r, name, TopicEvents, sub, func(ctx context.Context, ev models.Event) error {
		if !ev.Type.Valid() {
			return syncerr.Permanent(fmt.Sprintf("unknown event type %q", ev.Type), nil)
		}
		return fn(ctx, ev)
	})
}

// Run starts the router and blocks until ctx is canceled or Close is called.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel that closes when the router is running.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// IsRunning reports whether the router is processing messages.
func (r *Router) IsRunning() bool {
	return r.router.IsRunning()
}

// Close stops the router, waiting up to CloseTimeout for in-flight messages.
func (r *Router) Close() error {
	return r.router.Close()
}
