package agent

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/die-net/burrow/internal/rendezvous"
)

// PeerOracle learns another peer's public UDP address from a rendezvous
// broker and opens the local NAT toward it. It is the UDP alternative to
// registering with a relay: it yields an address, not a tunnel.
type PeerOracle struct {
	// Broker is the broker's host:port.
	Broker string
	// Local is the UDP address to bind; empty picks any.
	Local string
	// Interval spaces greeting retries and punch datagrams.
	Interval time.Duration
	// PunchCount is how many punch datagrams to send to the peer.
	PunchCount int
}

// Peers is the outcome of a rendezvous.
type Peers struct {
	Local netip.AddrPort
	Peer  netip.AddrPort
}

// Discover greets the broker, waits to be paired, and punches toward the
// peer from the same socket.
func (o *PeerOracle) Discover(ctx context.Context) (Peers, error) {
	var p Peers

	broker, err := net.ResolveUDPAddr("udp", o.Broker)
	if err != nil {
		return p, fmt.Errorf("resolve broker %s: %w", o.Broker, err)
	}
	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(ctx, "udp", o.Local)
	if err != nil {
		return p, fmt.Errorf("rendezvous listen: %w", err)
	}
	defer pc.Close()

	if p.Local, err = netip.ParseAddrPort(pc.LocalAddr().String()); err != nil {
		return p, err
	}
	if p.Peer, err = rendezvous.Exchange(ctx, pc, broker, o.Interval); err != nil {
		return p, err
	}
	if o.PunchCount > 0 {
		interval := o.Interval
		if interval <= 0 {
			interval = 100 * time.Millisecond
		}
		if err := rendezvous.Punch(ctx, pc, p.Peer, o.PunchCount, interval); err != nil {
			return p, err
		}
	}
	return p, nil
}
