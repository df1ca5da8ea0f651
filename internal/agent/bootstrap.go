package agent

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/burrow/internal/dialer"
)

// Bootstrap opens the connection a tunnel will run over.
type Bootstrap interface {
	Open(ctx context.Context) (net.Conn, error)
}

// RelayBootstrap dials a relay's registration endpoint.
type RelayBootstrap struct {
	Addr   string
	Dialer dialer.Dialer
}

func (b *RelayBootstrap) Open(ctx context.Context) (net.Conn, error) {
	c, err := b.Dialer.DialContext(ctx, "tcp", b.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", b.Addr, err)
	}
	return c, nil
}
