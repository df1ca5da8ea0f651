package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/die-net/burrow/internal/proxy"
)

type directDialer struct {
	cfg Config
}

func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{cfg: cfg}
}

func (f *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	dd := net.Dialer{Timeout: f.cfg.DialTimeout}

	addrs := []string{address}
	if f.cfg.Resolver != nil {
		resolved, err := f.resolve(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
		}
		addrs = resolved
	}

	var errs []error
	for _, addr := range addrs {
		conn, err := dd.DialContext(ctx, network, addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		proxy.Tune(conn, f.cfg.Transport)

		return conn, nil
	}

	return nil, fmt.Errorf("dial %s %s: %w", network, address, errors.Join(errs...))
}

// resolve expands a host:port whose host is a name into one host:port per
// resolved address. IP literals pass through untouched.
func (f *directDialer) resolve(ctx context.Context, address string) ([]string, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	if net.ParseIP(host) != nil {
		return []string{address}, nil
	}

	ips, err := f.cfg.Resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.JoinHostPort(ip, port))
	}
	return out, nil
}
