package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/die-net/burrow/internal/metrics"
	"github.com/die-net/burrow/internal/proxy"
	"github.com/die-net/burrow/internal/relay"
	"github.com/die-net/burrow/internal/socks5"
)

// Agent registers tunnels and serves SOCKS5 over them.
type Agent struct {
	Bootstrap Bootstrap
	// Dialer opens outbound connections for CONNECT requests.
	Dialer socks5.Dialer
	Logger *slog.Logger
	// NegotiationTimeout bounds reading the service id. Zero disables it.
	NegotiationTimeout time.Duration
	// OnRegistered, if set, is called with each service id once it is known.
	OnRegistered func(id string)
}

// Tunnel is a registered connection awaiting its consumer.
type Tunnel struct {
	ID   string
	Conn net.Conn
}

func (a *Agent) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Register opens a connection through the Bootstrap and reads the service
// id the relay assigned to it.
func (a *Agent) Register(ctx context.Context) (*Tunnel, error) {
	conn, err := a.Bootstrap.Open(ctx)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, relay.ServiceIDLen)
	if err := proxy.ReadExactTimeout(conn, buf, a.NegotiationTimeout); err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read service id: %w", err)
	}
	return &Tunnel{ID: string(buf), Conn: conn}, nil
}

// Serve runs the SOCKS5 exchange over t and relays until either side
// closes. t.Conn is closed on return.
func (a *Agent) Serve(ctx context.Context, t *Tunnel) (socks5.Result, error) {
	stop := context.AfterFunc(ctx, func() { _ = t.Conn.Close() })
	defer stop()

	srv := &socks5.Server{Dialer: a.Dialer}
	return srv.ServeConn(ctx, t.Conn)
}

// RunOnce registers one tunnel and serves it to completion.
func (a *Agent) RunOnce(ctx context.Context) error {
	t, err := a.Register(ctx)
	if err != nil {
		return err
	}
	a.logger().Info("registered", "service_id", t.ID)
	if a.OnRegistered != nil {
		a.OnRegistered(t.ID)
	}

	start := time.Now()
	res, err := a.Serve(ctx, t)
	outcome := "ok"
	if err != nil {
		outcome = proxy.Kind(err)
	}
	metrics.AgentTunnelsTotal.WithLabelValues(outcome).Inc()

	var target string
	if res.Request != nil {
		target = res.Request.Address()
	}
	a.logger().Debug("tunnel finished", "service_id", t.ID, "target", target,
		"up", res.Stats.LeftToRight, "down", res.Stats.RightToLeft, "duration", time.Since(start), "err", err)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Run serves tunnels one after another, registering a fresh id each time,
// waiting delay between them. A zero delay serves a single tunnel and
// returns its error. Run returns nil when ctx is canceled.
func (a *Agent) Run(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return a.RunOnce(ctx)
	}
	for {
		err := a.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger().Debug("tunnel error", "kind", proxy.Kind(err), "err", err)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
