// Command entry listens locally and forwards every connection to a burrow
// relay's external endpoint under a fixed service id, so ordinary SOCKS5
// clients can reach the agent behind that id.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/burrow/internal/dialer"
	"github.com/die-net/burrow/internal/entry"
	"github.com/die-net/burrow/internal/logging"
	"github.com/die-net/burrow/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen    = pflag.String("listen", "127.0.0.1:1081", "Local listen address")
		relayAddr = pflag.String("relay", "", "Relay external address (host:port)")
		serviceID = pflag.String("service-id", "", "Service id printed by the agent")

		dialTimeout    = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for dialing the relay")
		tcpKeepAlive   = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		tcpUserTimeout = pflag.Duration("tcp-user-timeout", 0, "TCP_USER_TIMEOUT for relay and local connections. 0 leaves the kernel default.")
		verbose        = pflag.Bool("verbose", false, "Enable per-connection error logging")
		logFormat      = pflag.String("log-format", "text", "Log format: text|json")
	)

	if !proxy.UserTimeoutSupported {
		_ = pflag.CommandLine.MarkHidden("tcp-user-timeout")
	}

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	logger, err := logging.New(*verbose, *logFormat)
	if err != nil {
		return fmt.Errorf("invalid --log-format: %w", err)
	}

	if *relayAddr == "" {
		return errors.New("--relay is required")
	}

	ka, err := proxy.ParseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}
	cfg := proxy.Config{KeepAlive: ka, UserTimeout: *tcpUserTimeout}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := dialer.NewDirectDialer(dialer.Config{DialTimeout: *dialTimeout, Transport: cfg})
	srv, err := entry.NewServer(ctx, *relayAddr, *serviceID, d, logger)
	if err != nil {
		return fmt.Errorf("invalid --service-id: %w", err)
	}

	ln, err := proxy.ListenTCP(ctx, "tcp", *listen, cfg)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil {
			return fmt.Errorf("entry serve: %w", err)
		}
		return nil
	})
	logger.Info("entry listening", "addr", ln.Addr().String(), "relay", *relayAddr)

	err = g.Wait()

	logger.Info("shutting down")
	return err
}
