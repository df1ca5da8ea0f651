package dialer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/die-net/burrow/internal/socks5"
)

// SOCKS5ProxyDialer reaches targets through an upstream SOCKS5 proxy.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      socks5.Auth
	direct    Dialer
}

func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, user, pass string) Dialer {
	// The upstream address is resolved by the system; Resolver only applies
	// to the final target, which the upstream resolves itself.
	directCfg := cfg
	directCfg.Resolver = nil
	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		auth:      socks5.Auth{Username: user, Password: pass},
		direct:    NewDirectDialer(directCfg),
	}
}

func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	c, err := f.direct.DialContext(ctx, network, f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	if dl, ok := negotiationDeadline(ctx, f.cfg.NegotiationTimeout); ok {
		_ = c.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.SetDeadline(time.Unix(1, 0))
	})

	err = socks5.ClientDial(c, f.auth, address)
	if !stop() || err != nil {
		_ = c.Close()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}

	// Clear deadline after handshake
	_ = c.SetDeadline(time.Time{})
	return c, nil
}

// negotiationDeadline is the earlier of ctx's deadline and now+timeout.
func negotiationDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	dl, ok := ctx.Deadline()
	if timeout > 0 {
		nd := time.Now().Add(timeout)
		if !ok || nd.Before(dl) {
			dl, ok = nd, true
		}
	}
	return dl, ok
}
