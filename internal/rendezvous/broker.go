package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/die-net/burrow/internal/metrics"
)

// maxDatagram bounds the greeting datagrams the broker reads.
const maxDatagram = 1024

// Broker pairs peers two at a time.
type Broker struct {
	ctx    context.Context
	logger *slog.Logger
	// PairTimeout discards a waiting peer nobody joined within this long.
	// Zero waits forever.
	PairTimeout time.Duration

	waiting   net.Addr
	waitingAt time.Time
}

func NewBroker(ctx context.Context, logger *slog.Logger) *Broker {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{ctx: ctx, logger: logger}
}

// Serve reads greetings from pc until it is closed. Serve is not safe to
// call concurrently on one Broker.
func (b *Broker) Serve(pc net.PacketConn) error {
	buf := make([]byte, maxDatagram)
	for {
		_, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || b.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rendezvous read: %w", err)
		}
		b.greet(pc, addr, time.Now())
	}
}

func (b *Broker) greet(pc net.PacketConn, addr net.Addr, now time.Time) {
	if b.waiting != nil && b.PairTimeout > 0 && now.Sub(b.waitingAt) > b.PairTimeout {
		b.logger.Debug("rendezvous peer expired", "peer", b.waiting.String())
		b.waiting = nil
	}

	switch {
	case b.waiting == nil:
		b.waiting, b.waitingAt = addr, now
		return
	case b.waiting.String() == addr.String():
		// Repeated greeting from the peer already waiting.
		b.waitingAt = now
		return
	}

	first := b.waiting
	b.waiting = nil

	if _, err := pc.WriteTo([]byte(addr.String()), first); err != nil {
		b.logger.Debug("rendezvous reply failed", "peer", first.String(), "err", err)
	}
	if _, err := pc.WriteTo([]byte(first.String()), addr); err != nil {
		b.logger.Debug("rendezvous reply failed", "peer", addr.String(), "err", err)
	}
	metrics.RendezvousPairs.Inc()
	b.logger.Debug("rendezvous paired", "a", first.String(), "b", addr.String())
}
