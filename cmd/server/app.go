// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/channelsync/internal/adapter"
	"github.com/tomtom215/channelsync/internal/adapter/rest"
	"github.com/tomtom215/channelsync/internal/api"
	"github.com/tomtom215/channelsync/internal/auth"
	"github.com/tomtom215/channelsync/internal/authz"
	"github.com/tomtom215/channelsync/internal/breaker"
	"github.com/tomtom215/channelsync/internal/config"
	"github.com/tomtom215/channelsync/internal/credentials"
	"github.com/tomtom215/channelsync/internal/database"
	"github.com/tomtom215/channelsync/internal/engine"
	"github.com/tomtom215/channelsync/internal/eventbus"
	"github.com/tomtom215/channelsync/internal/kvstore"
	"github.com/tomtom215/channelsync/internal/lock"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/ratelimit"
	"github.com/tomtom215/channelsync/internal/supervisor"
	"github.com/tomtom215/channelsync/internal/supervisor/services"
	ws "github.com/tomtom215/channelsync/internal/websocket"
)

// app holds everything opened at startup. Close releases it in reverse
// order once the supervisor tree has stopped.
type app struct {
	db        *database.DB
	ledger    *database.Ledger
	transport *eventbus.Transport
	kv        kvstore.Store
	bus       *eventbus.Bus
	engine    *engine.Engine
	hub       *ws.Hub
	enforcer  *authz.Enforcer
	server    *http.Server
	routerCfg eventbus.RouterConfig

	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("Error during shutdown")
		}
	}
}

func build(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.db, err = database.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	a.onClose(a.db.Close)

	if a.ledger, err = database.OpenLedger(ctx, cfg.Ledger, a.db); err != nil {
		return nil, err
	}
	a.onClose(a.ledger.Close)

	if a.transport, err = eventbus.OpenTransport(ctx, cfg.NATS); err != nil {
		return nil, err
	}
	a.onClose(a.transport.Close)

	// The nats KV backend reuses the event bus JetStream context when one exists.
	if a.kv, err = kvstore.Open(ctx, kvstore.Options{
		Backend: cfg.KV.Backend,
		Path:    cfg.KV.Path,
		Bucket:  cfg.KV.Bucket,
		NATSURL: cfg.KV.NATSURL,
	}, a.transport.JetStream); err != nil {
		return nil, err
	}
	a.onClose(a.kv.Close)

	creds, err := buildCredentials(cfg)
	if err != nil {
		return nil, err
	}

	adapters, err := buildAdapters(cfg, creds)
	if err != nil {
		return nil, err
	}
	limiter, err := buildLimiter(cfg, a.kv)
	if err != nil {
		return nil, err
	}
	breakers := breaker.NewRegistry(kvstore.NewBreakerStore(a.kv, cfg.Breaker.MutexTTL), breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.Timeout,
		LockWait:         cfg.Breaker.MutexTTL,
	})

	a.hub = ws.NewHub()
	a.bus = eventbus.NewBus(a.transport.Publisher)
	a.routerCfg = eventbus.RouterConfigFrom(cfg.NATS)

	a.engine = engine.New(engine.ConfigFrom(cfg), engine.Deps{
		Bookings:    a.db.Bookings(),
		Connections: a.db.Connections(),
		Log:         a.ledger,
		Adapters:    adapters,
		Guard:       adapter.NewGuard(limiter, breakers, cfg.Sync.RequestTimeout),
		Breakers:    breakers,
		Locks:       lock.NewManager(a.kv, cfg.Sync.LockTTL),
		Store:       a.kv,
		Bus:         a.bus,
		Notifier:    a.hub,
	})

	authn, authzMw, err := a.buildAuth(cfg)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(api.HandlerDeps{
		Engine:      a.engine,
		Connections: a.db.Connections(),
		Credentials: creds,
		Adapters:    adapters,
		Hub:         a.hub,
		Checks: map[string]api.Pinger{
			"database": a.db,
			"ledger":   a.ledger,
			"kv":       a.kv,
		},
		CORSOrigins: cfg.Security.CORSOrigins,
		Version:     version,
	})
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(&cfg.Security)), authn, authzMw)

	a.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return a, nil
}

// buildAuth returns the authentication and authorization middleware. An
// empty jwt_secret disables both.
func (a *app) buildAuth(cfg *config.Config) (*auth.Middleware, *authz.Middleware, error) {
	if cfg.Security.JWTSecret == "" {
		logging.Warn().Msg("security.jwt_secret is empty: operator API authentication is DISABLED")
		return auth.NewMiddleware(nil), nil, nil
	}

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return nil, nil, err
	}

	enforcerCfg := authz.DefaultEnforcerConfig()
	enforcerCfg.PolicyPath = cfg.Security.AuthzPolicy
	if a.enforcer, err = authz.NewEnforcer(enforcerCfg); err != nil {
		return nil, nil, err
	}
	a.onClose(func() error {
		a.enforcer.Close()
		return nil
	})
	return auth.NewMiddleware(jwtManager), authz.NewMiddleware(a.enforcer), nil
}

// buildCredentials returns nil when no credential key is configured, which
// config validation only allows while no platform is enabled.
func buildCredentials(cfg *config.Config) (*credentials.Store, error) {
	if cfg.Security.CredentialKey == "" {
		logging.Warn().Msg("security.credential_key is empty: connections cannot be created")
		return nil, nil
	}
	enc, err := credentials.NewEncryptor(cfg.Security.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}
	if err := enc.SelfTest(); err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}
	return credentials.NewStore(enc), nil
}

// buildAdapters creates one REST adapter per enabled platform.
func buildAdapters(cfg *config.Config, creds *credentials.Store) (*adapter.Registry, error) {
	registry := adapter.NewRegistry()
	for _, platform := range cfg.EnabledPlatforms() {
		pc := cfg.Platforms[string(platform)]
		client, err := rest.New(rest.Config{
			Platform:      platform,
			BaseURL:       pc.BaseURL,
			WebhookSecret: pc.WebhookSecret,
			Timeout:       pc.Timeout,
		}, creds)
		if err != nil {
			return nil, fmt.Errorf("platform %s: %w", platform, err)
		}
		registry.Register(client)
	}
	if len(registry.Platforms()) == 0 {
		logging.Warn().Msg("No platforms enabled; webhooks and syncs will be rejected")
	}
	return registry, nil
}

// buildLimiter normalizes every platform's configured limit. Disabled
// platforms are limited too so that re-enabling one needs no restart of the
// limiter state.
func buildLimiter(cfg *config.Config, store kvstore.Store) (*ratelimit.Limiter, error) {
	limits := make(map[models.PlatformType]ratelimit.Limit, len(cfg.Platforms))
	for name, pc := range cfg.Platforms {
		lim, err := ratelimit.Normalize(pc.Limit, pc.Window, pc.Unit)
		if err != nil {
			return nil, fmt.Errorf("platforms.%s rate limit: %w", name, err)
		}
		limits[models.PlatformType(name)] = lim
	}
	limiter := ratelimit.New(store, limits)
	for _, pl := range limiter.Limits() {
		logging.Debug().Str("platform", string(pl.Platform)).Str("limit", pl.Limit.String()).Msg("Platform rate limit")
	}
	return limiter, nil
}

// newRouter builds a fresh router with every consumer registered.
func (a *app) newRouter() (services.MessageRouter, error) {
	router, err := eventbus.NewRouter(&a.routerCfg, a.transport.Publisher, nil)
	if err != nil {
		return nil, err
	}

	events, err := a.transport.NewSubscriber()
	if err != nil {
		return nil, err
	}
	imports, err := a.transport.NewSubscriber()
	if err != nil {
		return nil, errors.Join(err, events.Close())
	}
	manual, err := a.transport.NewSubscriber()
	if err != nil {
		return nil, errors.Join(err, events.Close(), imports.Close())
	}

	router.HandleEvents("outbound-fanout", events, a.engine.OnEvent)
	eventbus.Handle(router, "inbound-import", eventbus.TopicImport, imports, a.engine.ImportBooking)
	eventbus.Handle(router, "manual-sync", eventbus.TopicManual, manual, a.engine.RunManualSync)
	return router, nil
}

// register adds every long-running service to the tree.
func (a *app) register(tree *supervisor.SupervisorTree, cfg *config.Config) {
	tree.AddSyncService(services.NewRouterService(a.newRouter))
	if cfg.Reconcile.Enabled {
		tree.AddSyncService(engine.NewReconciler(a.engine, cfg.Reconcile.Interval))
	}
	tree.AddStreamService(services.NewWebSocketHubService(a.hub))
	tree.AddAPIService(services.NewHTTPServerService(a.server, cfg.Server.ShutdownTimeout))
}
