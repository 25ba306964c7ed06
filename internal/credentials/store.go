// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package credentials

import (
	"errors"
	"fmt"

	"github.com/tomtom215/channelsync/internal/models"
)

// ErrNoAccessToken means the connection has never been authorized.
var ErrNoAccessToken = errors.New("connection has no access token")

// Tokens is a decrypted OAuth token pair. It is never persisted.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// String keeps tokens out of logs.
func (t Tokens) String() string {
	return fmt.Sprintf("Tokens{access=%s refresh=%s}", Mask(t.AccessToken), Mask(t.RefreshToken))
}

// Store decrypts connection tokens on demand.
type Store struct {
	enc *Encryptor
}

// NewStore wraps an Encryptor.
func NewStore(enc *Encryptor) *Store {
	return &Store{enc: enc}
}

// Tokens decrypts the token pair stored on conn. The refresh token is optional.
func (s *Store) Tokens(conn *models.ChannelConnection) (Tokens, error) {
	if conn.AccessTokenEnc == "" {
		return Tokens{}, ErrNoAccessToken
	}
	access, err := s.enc.Decrypt(conn.ID, conn.AccessTokenEnc)
	if err != nil {
		return Tokens{}, fmt.Errorf("decrypt access token for %s: %w", conn.ID, err)
	}
	var refresh string
	if conn.RefreshTokenEnc != "" {
		refresh, err = s.enc.Decrypt(conn.ID, conn.RefreshTokenEnc)
		if err != nil {
			return Tokens{}, fmt.Errorf("decrypt refresh token for %s: %w", conn.ID, err)
		}
	}
	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

// Seal encrypts a token pair onto conn.
func (s *Store) Seal(conn *models.ChannelConnection, t Tokens) error {
	access, err := s.enc.Encrypt(conn.ID, t.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	conn.AccessTokenEnc = access
	conn.RefreshTokenEnc = ""
	if t.RefreshToken != "" {
		refresh, err := s.enc.Encrypt(conn.ID, t.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		conn.RefreshTokenEnc = refresh
	}
	return nil
}
