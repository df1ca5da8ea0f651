// Package entry runs the local entry shim: a listener that forwards each
// accepted connection to a relay's external endpoint, prefixed with a
// fixed service id. Local SOCKS5 clients pointed at the shim end up
// talking to the agent behind that id.
package entry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/die-net/burrow/internal/dialer"
	"github.com/die-net/burrow/internal/proxy"
	"github.com/die-net/burrow/internal/relay"
)

type Server struct {
	ctx       context.Context
	relayAddr string
	serviceID string
	dialer    dialer.Dialer
	logger    *slog.Logger
}

// NewServer validates serviceID and returns a shim forwarding to relayAddr.
func NewServer(ctx context.Context, relayAddr, serviceID string, d dialer.Dialer, logger *slog.Logger) (*Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(serviceID) != relay.ServiceIDLen {
		return nil, fmt.Errorf("service id %q: want %d characters", serviceID, relay.ServiceIDLen)
	}
	if _, err := uuid.Parse(serviceID); err != nil {
		return nil, fmt.Errorf("service id %q: %w", serviceID, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ctx: ctx, relayAddr: relayAddr, serviceID: serviceID, dialer: d, logger: logger}, nil
}

func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := s.handle(c); err != nil {
				s.logger.Debug("connection error", "remote", c.RemoteAddr().String(), "kind", proxy.Kind(err), "err", err)
			}
		}()
	}
}

func (s *Server) handle(conn net.Conn) error {
	up, err := s.dialer.DialContext(s.ctx, "tcp", s.relayAddr)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %w", proxy.ErrConnect, err)
	}
	if _, err := io.WriteString(up, s.serviceID); err != nil {
		_ = conn.Close()
		_ = up.Close()
		return fmt.Errorf("%w: write service id: %w", proxy.ErrTransport, err)
	}

	if _, err := proxy.CopyBidirectional(s.ctx, conn, up); err != nil {
		return fmt.Errorf("relay %s: %w", s.relayAddr, err)
	}
	return nil
}
