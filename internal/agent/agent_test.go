package agent

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/die-net/burrow/internal/dialer"
	"github.com/die-net/burrow/internal/relay"
	"github.com/die-net/burrow/internal/socks5"
	"github.com/die-net/burrow/internal/testutil"
)

type relayAddrs struct {
	registration string
	external     string
}

func startRelay(t *testing.T, ctx context.Context) relayAddrs {
	t.Helper()

	srv := relay.NewServer(ctx, relay.Config{})
	lc := net.ListenConfig{}
	regLn, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	extLn, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.ServeRegistration(regLn) }()
	go func() { _ = srv.ServeExternal(extLn) }()
	t.Cleanup(func() {
		_ = regLn.Close()
		_ = extLn.Close()
		_ = srv.Close()
	})
	return relayAddrs{registration: regLn.Addr().String(), external: extLn.Addr().String()}
}

func newAgent(addrs relayAddrs, ids chan<- string) *Agent {
	d := dialer.NewDirectDialer(dialer.Config{DialTimeout: 2 * time.Second})
	return &Agent{
		Bootstrap:    &RelayBootstrap{Addr: addrs.registration, Dialer: d},
		Dialer:       d,
		OnRegistered: func(id string) { ids <- id },
	}
}

func consumer(t *testing.T, addrs relayAddrs, id string) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", addrs.external, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	t.Cleanup(func() { _ = c.Close() })
	if _, err := io.WriteString(c, id); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestAgentServesConnectThroughRelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	echo := testutil.StartEchoTCPServer(t, ctx)
	addrs := startRelay(t, ctx)

	ids := make(chan string, 1)
	a := newAgent(addrs, ids)
	done := make(chan error, 1)
	go func() { done <- a.RunOnce(ctx) }()

	c := consumer(t, addrs, <-ids)
	if err := socks5.ClientDial(c, socks5.Auth{}, echo.Addr().String()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEcho(t, c, c, []byte("through the burrow"))

	_ = c.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("agent did not finish")
	}
}

func TestAgentConnectFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closed := ln.Addr().String()
	_ = ln.Close()

	addrs := startRelay(t, ctx)
	ids := make(chan string, 1)
	a := newAgent(addrs, ids)
	done := make(chan error, 1)
	go func() { done <- a.RunOnce(ctx) }()

	c := consumer(t, addrs, <-ids)
	err = socks5.ClientDial(c, socks5.Auth{}, closed)
	var rerr *socks5.ReplyError
	if !errors.As(err, &rerr) || rerr.Rep != socks5.RepHostUnreachable {
		t.Fatalf("got %v, want host unreachable reply", err)
	}
	if err := <-done; err == nil {
		t.Fatal("RunOnce succeeded after failed connect")
	}
}

func TestAgentRunReregisters(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	echo := testutil.StartEchoTCPServer(t, ctx)
	addrs := startRelay(t, ctx)

	ids := make(chan string, 2)
	a := newAgent(addrs, ids)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx, 10*time.Millisecond) }()

	first := <-ids
	c := consumer(t, addrs, first)
	if err := socks5.ClientDial(c, socks5.Auth{}, echo.Addr().String()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEcho(t, c, c, []byte("one"))
	_ = c.Close()

	second := <-ids
	if second == first {
		t.Fatal("re-registration reused the service id")
	}

	stop()
	if err := <-done; err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
}

func TestRegisterContextCanceled(t *testing.T) {
	t.Parallel()

	// A relay that accepts but never sends an id.
	ln, wait := testutil.StartSingleAcceptServer(t, context.Background(), func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})
	defer wait()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	a := &Agent{Bootstrap: &RelayBootstrap{Addr: ln.Addr().String(), Dialer: dialer.NewDirectDialer(dialer.Config{})}}
	if _, err := a.Register(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
}
