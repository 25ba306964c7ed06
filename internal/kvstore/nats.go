// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore keeps state in a JetStream KeyValue bucket, so every engine
// instance on the cluster sees the same rate-limit windows, breaker state,
// locks and idempotency keys.
//
// Atomicity comes from revision checks: Create fails when the key exists and
// Update fails when the revision moved. TTLs are applied per key on creation
// (KeyTTL); a later Update keeps the key until it is deleted or recreated.
type NATSStore struct {
	kv jetstream.KeyValue
	nc *nats.Conn // owned connection, nil when the caller owns it
}

// natsUpdateRetries covers the wider read-to-write window of a network store.
const natsUpdateRetries = 4 * maxUpdateRetries

// NewNATSStore binds to (creating if needed) bucket on js.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, bucket string) (*NATSStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:         bucket,
		Description:    "channelsync shared coordination state",
		History:        1,
		LimitMarkerTTL: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create key-value bucket %s: %w", bucket, err)
	}
	return &NATSStore{kv: kv}, nil
}

// ConnectNATS dials url and binds the bucket. Close also closes the connection.
func ConnectNATS(ctx context.Context, url, bucket string) (*NATSStore, error) {
	nc, err := nats.Connect(url, nats.Name("channelsync-kv"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	s, err := NewNATSStore(ctx, js, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.nc = nc
	return s, nil
}

// natsKey maps an arbitrary key onto the KV key alphabet [-/_=.a-zA-Z0-9].
// ':' separators become '.', and any other byte outside the alphabet, plus
// '.' and '=' themselves, is escaped as =XX so distinct keys never collide.
func natsKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == ':':
			b.WriteByte('.')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '/':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}

// ttlOpts rounds ttl up to the one second granularity of message TTLs.
func ttlOpts(ttl time.Duration) []jetstream.KVCreateOpt {
	if ttl <= 0 {
		return nil
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return []jetstream.KVCreateOpt{jetstream.KeyTTL(ttl.Round(time.Second))}
}

func isRevisionMismatch(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

func (s *NATSStore) entry(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	e, err := s.kv.Get(ctx, natsKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := s.entry(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Value(), nil
}

func (s *NATSStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		_, err := s.kv.Put(ctx, natsKey(key), value)
		return err
	}
	// A TTL can only be attached on creation, so replace the key.
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		_, err := s.kv.Create(ctx, natsKey(key), value, ttlOpts(ttl)...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return err
		}
		if err := s.kv.Delete(ctx, natsKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return err
		}
	}
	return fmt.Errorf("kvstore: set %s lost %d races", key, maxUpdateRetries)
}

func (s *NATSStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	_, err := s.kv.Create(ctx, natsKey(key), value, ttlOpts(ttl)...)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *NATSStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	e, err := s.entry(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !bytes.Equal(e.Value(), expected) {
		return false, nil
	}
	err = s.kv.Delete(ctx, natsKey(key), jetstream.LastRevision(e.Revision()))
	if isRevisionMismatch(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, natsKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (s *NATSStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	k := natsKey(key)
	for attempt := 0; attempt < natsUpdateRetries; attempt++ {
		e, err := s.entry(ctx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		var current []byte
		exists := e != nil
		if exists {
			current = e.Value()
		}
		next, err := fn(current, exists)
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		if err != nil {
			return err
		}

		if exists {
			_, err = s.kv.Update(ctx, k, next, e.Revision())
		} else {
			_, err = s.kv.Create(ctx, k, next, ttlOpts(ttl)...)
		}
		if err == nil {
			return nil
		}
		if !isRevisionMismatch(err) {
			return err
		}
	}
	return fmt.Errorf("kvstore: update %s lost %d races", key, natsUpdateRetries)
}

func (s *NATSStore) Ping(ctx context.Context) error {
	_, err := s.kv.Status(ctx)
	return err
}

func (s *NATSStore) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
