package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/die-net/burrow/internal/testutil"
)

// startDNSServer answers A queries for every name in records and nothing else.
func startDNSServer(t *testing.T, records map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			ip, ok := records[q.Name]
			switch {
			case !ok:
				m.Rcode = dns.RcodeNameError
			case q.Qtype == dns.TypeA:
				rr, err := dns.NewRR(fmt.Sprintf("%s 60 IN A %s", q.Name, ip))
				if err == nil {
					m.Answer = append(m.Answer, rr)
				}
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestDNSResolverLookupHost(t *testing.T) {
	addr := startDNSServer(t, map[string]string{"tunnel.test.": "127.0.0.1"})
	r := NewDNSResolver(addr, "udp", time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := r.LookupHost(ctx, "tunnel.test")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(got)
	if len(got) != 1 || got[0] != "127.0.0.1" {
		t.Fatalf("got %v", got)
	}

	if _, err := r.LookupHost(ctx, "missing.test"); !errors.Is(err, errNoAddresses) {
		t.Fatalf("got %v, want errNoAddresses", err)
	}

	literal, err := r.LookupHost(ctx, "::1")
	if err != nil || len(literal) != 1 || literal[0] != "::1" {
		t.Fatalf("literal passthrough: %v %v", literal, err)
	}
}

func TestNewDNSResolverDefaultPort(t *testing.T) {
	t.Parallel()

	if got := NewDNSResolver("192.0.2.53", "udp", time.Second).server; got != "192.0.2.53:53" {
		t.Fatalf("got %q", got)
	}
	if got := NewDNSResolver("192.0.2.53:5353", "tcp", time.Second).server; got != "192.0.2.53:5353" {
		t.Fatalf("got %q", got)
	}
}

func TestDirectDialerUsesResolver(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	_, port, _ := net.SplitHostPort(echoLn.Addr().String())

	addr := startDNSServer(t, map[string]string{"echo.test.": "127.0.0.1"})
	d := NewDirectDialer(Config{DialTimeout: time.Second, Resolver: NewDNSResolver(addr, "udp", time.Second)})

	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort("echo.test", port))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	testutil.AssertEcho(t, conn, conn, []byte("resolved"))

	if _, err := d.DialContext(ctx, "tcp", net.JoinHostPort("nowhere.test", port)); err == nil {
		t.Fatal("expected resolution failure")
	}
}

func TestDirectDialerFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	if _, err := NewDirectDialer(Config{DialTimeout: time.Second}).DialContext(ctx, "tcp", addr); err == nil {
		t.Fatal("expected dial to a closed port to fail")
	}
}
