package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// Greeting is the datagram peers send the broker.
var Greeting = []byte("hello")

// Exchange greets the broker from pc and returns the peer address the
// broker answers with. The greeting is resent every interval until a reply
// arrives or ctx is done.
func Exchange(ctx context.Context, pc net.PacketConn, broker net.Addr, interval time.Duration) (netip.AddrPort, error) {
	if interval <= 0 {
		interval = time.Second
	}

	stop := context.AfterFunc(ctx, func() { _ = pc.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()
	defer func() { _ = pc.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, maxDatagram)
	for {
		if _, err := pc.WriteTo(Greeting, broker); err != nil {
			return netip.AddrPort{}, fmt.Errorf("greet broker: %w", err)
		}
		_ = pc.SetReadDeadline(time.Now().Add(interval))
		for {
			n, from, err := pc.ReadFrom(buf)
			if err != nil {
				if ctx.Err() != nil {
					return netip.AddrPort{}, ctx.Err()
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					break
				}
				return netip.AddrPort{}, fmt.Errorf("read broker reply: %w", err)
			}
			if from.String() != broker.String() {
				continue
			}
			peer, err := netip.ParseAddrPort(string(buf[:n]))
			if err != nil {
				return netip.AddrPort{}, fmt.Errorf("broker reply %q: %w", buf[:n], err)
			}
			return peer, nil
		}
	}
}

// Punch sends count datagrams to peer, spaced by interval, to open
// a mapping in the local NAT.
func Punch(ctx context.Context, pc net.PacketConn, peer netip.AddrPort, count int, interval time.Duration) error {
	to := net.UDPAddrFromAddrPort(peer)
	for i := range count {
		if _, err := pc.WriteTo([]byte("ping"), to); err != nil {
			return fmt.Errorf("punch %s: %w", peer, err)
		}
		if i == count-1 {
			break
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
