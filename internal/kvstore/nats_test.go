// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

func startJetStream(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		ServerName: "kvstore-test",
		Host:       "127.0.0.1",
		Port:       -1,
		JetStream:  true,
		StoreDir:   t.TempDir(),
		NoLog:      true,
		NoSigs:     true,
	})
	if err != nil {
		t.Fatalf("create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestNATSStore(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded JetStream in short mode")
	}
	url := startJetStream(t)
	ctx := context.Background()

	s, err := ConnectNATS(ctx, url, "kvstore_test")
	if err != nil {
		t.Fatalf("ConnectNATS: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

func TestNATSStoreSharedAcrossConnections(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded JetStream in short mode")
	}
	url := startJetStream(t)
	ctx := context.Background()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}

	a, err := NewNATSStore(ctx, js, "shared")
	if err != nil {
		t.Fatalf("store a: %v", err)
	}
	b, err := ConnectNATS(ctx, url, "shared")
	if err != nil {
		t.Fatalf("store b: %v", err)
	}
	defer b.Close()

	if ok, _ := a.SetNX(ctx, "webhook:airbnb:evt-1", []byte("1"), time.Hour); !ok {
		t.Fatal("instance a should claim the key")
	}
	if ok, _ := b.SetNX(ctx, "webhook:airbnb:evt-1", []byte("1"), time.Hour); ok {
		t.Error("instance b must see a's claim")
	}
}

func TestNATSKeyEscaping(t *testing.T) {
	tests := map[string]string{
		"lock:p1:2026-07-10:2026-07-15": "lock.p1.2026-07-10.2026-07-15",
		"webhook:airbnb:evt 1":          "webhook.airbnb.evt=201",
		"a.b":                           "a=2Eb",
		"a:b":                           "a.b",
		"x=y":                           "x=3Dy",
	}
	for in, want := range tests {
		if got := natsKey(in); got != want {
			t.Errorf("natsKey(%q) = %q, want %q", in, got, want)
		}
	}
}
