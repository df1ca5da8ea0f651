// Package presence mirrors the relay's live registrations into an external
// store so operators and sibling relays can see which service ids exist.
// The in-process directory stays authoritative; nothing here is consulted
// on the lookup path.
package presence

import (
	"context"
	"time"
)

// Record describes one registered tunnel.
type Record struct {
	ID           string    `json:"id"`
	Relay        string    `json:"relay"`
	Remote       string    `json:"remote"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Mirror receives registration lifecycle events.
type Mirror interface {
	Announce(ctx context.Context, rec Record) error
	Withdraw(ctx context.Context, id string) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Announce(context.Context, Record) error { return nil }
func (Nop) Withdraw(context.Context, string) error { return nil }
func (Nop) Close() error                           { return nil }
