// Command relay runs burrow's public relay: the registration endpoint
// agents dial, the external endpoint consumers dial, and optionally the
// UDP rendezvous broker and a metrics endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/burrow/internal/logging"
	"github.com/die-net/burrow/internal/metrics"
	"github.com/die-net/burrow/internal/presence"
	"github.com/die-net/burrow/internal/proxy"
	"github.com/die-net/burrow/internal/relay"
	"github.com/die-net/burrow/internal/rendezvous"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		registrationListen = pflag.String("registration-listen", ":9090", "Agent registration listen address")
		externalListen     = pflag.String("external-listen", ":1080", "External consumer listen address")
		rendezvousListen   = pflag.String("rendezvous-listen", "", "UDP rendezvous broker listen address (e.g. :59016). Empty disables.")
		metricsListen      = pflag.String("metrics-listen", "", "Metrics and health HTTP listen address (e.g. 127.0.0.1:9100). Empty disables.")
		debugListen        = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")

		redisAddr     = pflag.String("redis-addr", "", "Redis address for the presence mirror. Empty disables.")
		redisPassword = pflag.String("redis-password", "", "Redis password")
		redisDB       = pflag.Int("redis-db", 0, "Redis database number")
		presenceTTL   = pflag.Duration("presence-ttl", 2*time.Minute, "TTL of presence records; refreshed at a third of this")
		relayName     = pflag.String("name", defaultName(), "Relay name recorded in presence records")

		negotiationTimeout = pflag.Duration("negotiation-timeout", 0, "Timeout for reading a consumer's service id. 0 disables.")
		rendezvousTimeout  = pflag.Duration("rendezvous-pair-timeout", time.Minute, "Forget a waiting rendezvous peer after this long. 0 waits forever.")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		tcpUserTimeout     = pflag.Duration("tcp-user-timeout", 0, "TCP_USER_TIMEOUT for accepted connections. 0 leaves the kernel default.")
		verbose            = pflag.Bool("verbose", false, "Enable per-connection error logging")
		logFormat          = pflag.String("log-format", "text", "Log format: text|json")
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

	ka, err := proxy.ParseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	if *registrationListen == "" || *externalListen == "" {
		return errors.New("--registration-listen and --external-listen are required")
	}

	cfg := proxy.Config{
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
		UserTimeout:        *tcpUserTimeout,
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mirror presence.Mirror = presence.Nop{}
	if *redisAddr != "" {
		rm, err := presence.NewRedisMirror(ctx, presence.RedisOptions{
			Addr:     *redisAddr,
			Password: *redisPassword,
			DB:       *redisDB,
			TTL:      *presenceTTL,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer rm.Close()
		g.Go(func() error {
			rm.Run(ctx)
			return nil
		})
		mirror = rm
		logger.Info("presence mirror enabled", "redis", *redisAddr)
	}

	srv := relay.NewServer(ctx, relay.Config{
		Transport: cfg,
		Logger:    logger,
		Presence:  mirror,
		Name:      *relayName,
	})

	regLn, err := proxy.ListenTCP(ctx, "tcp", *registrationListen, cfg)
	if err != nil {
		return fmt.Errorf("registration listen: %w", err)
	}
	extLn, err := proxy.ListenTCP(ctx, "tcp", *externalListen, cfg)
	if err != nil {
		_ = regLn.Close()
		return fmt.Errorf("external listen: %w", err)
	}
	context.AfterFunc(ctx, func() {
		_ = regLn.Close()
		_ = extLn.Close()
		_ = srv.Close()
	})

	g.Go(func() error {
		if err := srv.ServeRegistration(regLn); err != nil {
			return fmt.Errorf("registration serve: %w", err)
		}
		return nil
	})
	logger.Info("registration listening", "addr", regLn.Addr().String())

	g.Go(func() error {
		if err := srv.ServeExternal(extLn); err != nil {
			return fmt.Errorf("external serve: %w", err)
		}
		return nil
	})
	logger.Info("external listening", "addr", extLn.Addr().String())

	if *rendezvousListen != "" {
		lc := net.ListenConfig{}
		pc, err := lc.ListenPacket(ctx, "udp", *rendezvousListen)
		if err != nil {
			return fmt.Errorf("rendezvous listen: %w", err)
		}
		broker := rendezvous.NewBroker(ctx, logger)
		broker.PairTimeout = *rendezvousTimeout
		context.AfterFunc(ctx, func() {
			_ = pc.Close()
		})

		g.Go(func() error {
			if err := broker.Serve(pc); err != nil {
				return fmt.Errorf("rendezvous serve: %w", err)
			}
			return nil
		})
		logger.Info("rendezvous listening", "addr", pc.LocalAddr().String())
	}

	if *metricsListen != "" {
		metricsSrv := &http.Server{
			Handler:           metrics.NewHandler(func() bool { return ctx.Err() == nil }),
			ReadHeaderTimeout: 10 * time.Second,
		}
		if err := serveHTTP(ctx, g, metricsSrv, *metricsListen, cfg.KeepAlive, "metrics"); err != nil {
			return err
		}
		logger.Info("metrics listening", "addr", *metricsListen)
	}

	if *debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		if err := serveHTTP(ctx, g, debugSrv, *debugListen, cfg.KeepAlive, "debug"); err != nil {
			return err
		}
		logger.Info("debug listening", "addr", *debugListen)
	}

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	logger.Info("shutting down")
	return err
}

func serveHTTP(ctx context.Context, g *errgroup.Group, srv *http.Server, addr string, ka net.KeepAliveConfig, name string) error {
	lc := net.ListenConfig{KeepAliveConfig: ka}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%s listen: %w", name, err)
	}
	context.AfterFunc(ctx, func() {
		_ = srv.Close()
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil {
			return fmt.Errorf("%s serve: %w", name, err)
		}
		return nil
	})
	return nil
}

func defaultName() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "burrow"
}
