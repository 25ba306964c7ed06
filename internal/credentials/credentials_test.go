// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package credentials

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/tomtom215/channelsync/internal/models"
)

func newTestEncryptor(t *testing.T) *Encryptor {
	t.Helper()
	enc, err := NewEncryptor("test-credential-key")
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	return enc
}

func TestNewEncryptorEmptySecret(t *testing.T) {
	enc, err := NewEncryptor("")
	if !errors.Is(err, ErrEmptySecret) || enc != nil {
		t.Errorf("NewEncryptor(\"\") = %v, %v", enc, err)
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	enc := newTestEncryptor(t)
	sealed, err := enc.Encrypt("conn-1", "oauth-access-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(sealed, "oauth-access-token") {
		t.Fatal("ciphertext leaks plaintext")
	}
	opened, err := enc.Decrypt("conn-1", sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if opened != "oauth-access-token" {
		t.Errorf("Decrypt = %q", opened)
	}

	again, _ := enc.Encrypt("conn-1", "oauth-access-token")
	if again == sealed {
		t.Error("nonces must differ between encryptions")
	}
}

func TestDecryptBoundToConnection(t *testing.T) {
	enc := newTestEncryptor(t)
	sealed, _ := enc.Encrypt("conn-1", "token")
	if _, err := enc.Decrypt("conn-2", sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed for foreign connection, got %v", err)
	}
}

func TestDecryptErrors(t *testing.T) {
	enc := newTestEncryptor(t)
	other, _ := NewEncryptor("another-key")
	sealedByOther, _ := other.Encrypt("c", "token")

	tests := []struct {
		name       string
		ciphertext string
		wantErr    error
	}{
		{"empty", "", ErrEmptyCiphertext},
		{"not base64", "%%%", ErrInvalidCiphertext},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), ErrCiphertextTooShort},
		{"wrong key", sealedByOther, ErrDecryptionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := enc.Decrypt("c", tt.ciphertext); !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSelfTest(t *testing.T) {
	if err := newTestEncryptor(t).SelfTest(); err != nil {
		t.Errorf("SelfTest: %v", err)
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"":                   "",
		"abc":                "****",
		"abcd":               "****",
		"sk_live_1234567890": "****...7890",
	}
	for in, want := range tests {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStoreSealAndTokens(t *testing.T) {
	store := NewStore(newTestEncryptor(t))
	conn := &models.ChannelConnection{ID: "conn-9"}

	if _, err := store.Tokens(conn); !errors.Is(err, ErrNoAccessToken) {
		t.Errorf("expected ErrNoAccessToken, got %v", err)
	}

	if err := store.Seal(conn, Tokens{AccessToken: "at-secret-1234", RefreshToken: "rt-secret-5678"}); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if conn.AccessTokenEnc == "" || conn.RefreshTokenEnc == "" {
		t.Fatal("Seal did not populate encrypted fields")
	}

	tokens, err := store.Tokens(conn)
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if tokens.AccessToken != "at-secret-1234" || tokens.RefreshToken != "rt-secret-5678" {
		t.Errorf("Tokens = %+v", tokens)
	}
	if strings.Contains(tokens.String(), "secret") {
		t.Errorf("String() leaks token: %s", tokens)
	}
}
