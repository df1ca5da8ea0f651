package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver maps a host name to IP address strings.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

var errNoAddresses = errors.New("no addresses")

// DNSResolver queries a single DNS server for A then AAAA records.
type DNSResolver struct {
	server string
	client *dns.Client
}

// NewDNSResolver returns a resolver that sends queries to server
// ("host" or "host:port", port 53 by default) over network ("udp" or "tcp").
func NewDNSResolver(server, network string, timeout time.Duration) *DNSResolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: network, Timeout: timeout},
	}
}

func (r *DNSResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	var (
		addrs []string
		errs  []error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.RecursionDesired = true

		in, _, err := r.client.ExchangeContext(ctx, m, r.server)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", dns.TypeToString[qtype], host, err))
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			errs = append(errs, fmt.Errorf("%s %s: %s", dns.TypeToString[qtype], host, dns.RcodeToString[in.Rcode]))
			continue
		}

		for _, rr := range in.Answer {
			switch v := rr.(type) {
			case *dns.A:
				addrs = append(addrs, v.A.String())
			case *dns.AAAA:
				addrs = append(addrs, v.AAAA.String())
			}
		}
	}

	if len(addrs) == 0 {
		errs = append(errs, fmt.Errorf("%s: %w", host, errNoAddresses))
		return nil, errors.Join(errs...)
	}
	return addrs, nil
}
