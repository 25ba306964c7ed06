// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Command token issues an operator API token signed with the configured
// security.jwt_secret.
//
//	token -user alice -role operator
//	token -user dashboard -role viewer -ttl 720h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tomtom215/channelsync/internal/auth"
	"github.com/tomtom215/channelsync/internal/config"
	"github.com/tomtom215/channelsync/internal/logging"
)

func main() {
	user := flag.String("user", "", "username recorded in the token and in audit fields")
	role := flag.String("role", auth.RoleViewer, "operator or viewer")
	ttl := flag.Duration("ttl", 0, "token lifetime (default security.token_ttl)")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "token: -user is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *ttl > 0 {
		cfg.Security.TokenTTL = *ttl
	}

	manager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Cannot issue tokens")
	}
	token, err := manager.GenerateToken(*user, *role)
	if err != nil {
		logging.Fatal().Err(err).Str("role", *role).Msg("Failed to generate token")
	}

	logging.Info().
		Str("user", *user).
		Str("role", *role).
		Time("expires_at", time.Now().Add(cfg.Security.TokenTTL)).
		Msg("Token issued")
	fmt.Println(token)
}
