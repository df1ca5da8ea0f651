package proxy

import (
	"context"
	"fmt"
	"net"
)

// ListenTCP listens on the given network/address and returns a net.Listener
// that applies cfg's keepalive and user timeout to accepted TCP connections.
func ListenTCP(ctx context.Context, network, addr string, cfg Config) (net.Listener, error) {
	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	return &TunedListener{Listener: ln, cfg: cfg}, nil
}

// TunedListener wraps a net.Listener and applies Config to any accepted
// *net.TCPConn.
type TunedListener struct {
	net.Listener
	cfg Config
}

// Accept accepts the next connection and tunes it if it is a *net.TCPConn.
func (l *TunedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	Tune(conn, l.cfg)

	return conn, nil
}

// Tune applies keepalive and user timeout settings to conn when it is a
// *net.TCPConn. Failures are ignored; tuning is best effort.
func Tune(conn net.Conn, cfg Config) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetKeepAliveConfig(cfg.KeepAlive)
	if cfg.UserTimeout > 0 {
		_ = setUserTimeout(tc, cfg.UserTimeout)
	}
}
