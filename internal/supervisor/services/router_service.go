// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package services

import (
	"context"
	"errors"
	"fmt"
)

// MessageRouter is satisfied by *eventbus.Router.
type MessageRouter interface {
	Run(ctx context.Context) error
	Close() error
}

// RouterFactory builds a router with all handlers registered. A watermill
// router cannot be run twice, so every restart builds a fresh one.
type RouterFactory func() (MessageRouter, error)

// RouterService supervises the event bus consumers.
type RouterService struct {
	build RouterFactory
	name  string
}

// NewRouterService creates a router service.
func NewRouterService(build RouterFactory) *RouterService {
	return &RouterService{build: build, name: "event-router"}
}

// Serve implements suture.Service. Unacked messages are redelivered by the
// bus after a crash, so a restart resumes where the last run stopped.
func (s *RouterService) Serve(ctx context.Context) error {
	router, err := s.build()
	if err != nil {
		return fmt.Errorf("build event router: %w", err)
	}

	err = router.Run(ctx)
	closeErr := router.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		// The router stopped without being asked to; let the supervisor restart it.
		err = errors.New("event router stopped unexpectedly")
	}
	return errors.Join(err, closeErr)
}

func (s *RouterService) String() string {
	return s.name
}
