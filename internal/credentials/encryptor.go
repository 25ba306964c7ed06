// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package credentials encrypts and decrypts platform OAuth tokens.
//
// Tokens are stored on ChannelConnection rows as AES-256-GCM ciphertext:
//
//	base64(nonce[12] || ciphertext || tag[16])
//
// The AES key is derived from security.credential_key with HKDF-SHA256. The
// connection ID is bound as additional authenticated data, so a ciphertext
// copied onto another connection row fails to decrypt.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	hkdfSalt     = "channelsync-connection-credentials"
	hkdfInfo     = "oauth-token-encryption-v1"
	aesKeySize   = 32
	gcmNonceSize = 12
)

var (
	ErrEmptySecret        = errors.New("credential key cannot be empty")
	ErrEmptyPlaintext     = errors.New("plaintext cannot be empty")
	ErrEmptyCiphertext    = errors.New("ciphertext cannot be empty")
	ErrDecryptionFailed   = errors.New("decryption failed: invalid ciphertext or authentication tag")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext format")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Encryptor seals tokens with AES-256-GCM.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives the AES key from secret.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext bound to connectionID.
func (e *Encryptor) Encrypt(connectionID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), []byte(connectionID))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt for the same connectionID.
func (e *Encryptor) Decrypt(connectionID, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}
	if len(data) < gcmNonceSize+1+e.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}
	plaintext, err := e.aead.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], []byte(connectionID))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// SelfTest runs a round trip so a bad key fails at startup, not on the
// first outbound push.
func (e *Encryptor) SelfTest() error {
	const probe = "channelsync-selftest"
	sealed, err := e.Encrypt("selftest", probe)
	if err != nil {
		return fmt.Errorf("encryption test failed: %w", err)
	}
	opened, err := e.Decrypt("selftest", sealed)
	if err != nil {
		return fmt.Errorf("decryption test failed: %w", err)
	}
	if opened != probe {
		return errors.New("round-trip validation failed: data mismatch")
	}
	return nil
}

// Mask returns a display-safe form showing only the last 4 characters.
func Mask(token string) string {
	switch {
	case token == "":
		return ""
	case len(token) <= 4:
		return "****"
	default:
		return "****..." + token[len(token)-4:]
	}
}

func deriveKey(secret string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte(hkdfInfo))
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}
	return key, nil
}
