package presence

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key("7f8c2e1a-0b3d-4c5e-9f60-718293a4b5c6"); got != "burrow:service:7f8c2e1a-0b3d-4c5e-9f60-718293a4b5c6" {
		t.Fatalf("got %q", got)
	}
}

func TestRecordJSON(t *testing.T) {
	rec := Record{
		ID:           "id",
		Relay:        "relay-1",
		Remote:       "192.0.2.1:4000",
		RegisteredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"id":"id"`, `"relay":"relay-1"`, `"remote":"192.0.2.1:4000"`, `"registered_at":"2024-01-02T03:04:05Z"`} {
		if !strings.Contains(string(b), field) {
			t.Fatalf("%s missing %s", b, field)
		}
	}
}

func TestNop(t *testing.T) {
	var m Mirror = Nop{}
	if err := m.Announce(context.Background(), Record{ID: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Withdraw(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewRedisMirrorUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := NewRedisMirror(ctx, RedisOptions{Addr: addr}); err == nil {
		t.Fatal("expected connection error")
	}
}
