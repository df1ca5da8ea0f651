// Command agent registers with a burrow relay from behind NAT and serves
// SOCKS5 CONNECT requests arriving over the tunnel. With --rendezvous it
// instead learns a peer's public UDP address from a broker and exits.
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

	"github.com/die-net/burrow/internal/agent"
	"github.com/die-net/burrow/internal/dialer"
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
		relayAddr = pflag.String("relay", "", "Relay registration address (host:port)")
		upstream  = pflag.String("upstream", defaultUpstream(), "Egress for CONNECT targets: direct:// | socks5://[user:pass@]host:port | http(s)://[user:pass@]host:port")
		dnsServer = pflag.String("dns-server", "", "DNS server (host[:port]) for resolving CONNECT targets. Empty uses the system resolver.")

		rendezvousAddr  = pflag.String("rendezvous", "", "Rendezvous broker (host:port). When set, print the paired peer's public UDP address and exit instead of serving.")
		rendezvousLocal = pflag.String("rendezvous-local", "", "Local UDP address for --rendezvous. Empty picks any.")
		punchCount      = pflag.Int("punch-count", 3, "Datagrams sent toward the peer after --rendezvous pairs")

		reconnectDelay     = pflag.Duration("reconnect-delay", 5*time.Second, "Delay before registering a new tunnel after one ends. 0 serves a single tunnel and exits.")
		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for reading the service id and upstream negotiation")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		tcpUserTimeout     = pflag.Duration("tcp-user-timeout", 0, "TCP_USER_TIMEOUT for dialed connections. 0 leaves the kernel default.")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *rendezvousAddr != "" {
		oracle := &agent.PeerOracle{
			Broker:     *rendezvousAddr,
			Local:      *rendezvousLocal,
			Interval:   time.Second,
			PunchCount: *punchCount,
		}
		peers, err := oracle.Discover(ctx)
		if err != nil {
			return fmt.Errorf("rendezvous: %w", err)
		}
		logger.Info("rendezvous paired", "local", peers.Local, "peer", peers.Peer)
		fmt.Println(peers.Peer)
		return nil
	}

	if *relayAddr == "" {
		return errors.New("--relay or --rendezvous is required")
	}

	ka, err := proxy.ParseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		Transport: proxy.Config{
			NegotiationTimeout: *negotiationTimeout,
			KeepAlive:          ka,
			UserTimeout:        *tcpUserTimeout,
		},
	}

	// The relay is always dialed directly; only CONNECT targets use the
	// upstream and resolver.
	relayDialer := dialer.NewDirectDialer(dialCfg)

	if *dnsServer != "" {
		dialCfg.Resolver = dialer.NewDNSResolver(*dnsServer, "udp", *dialTimeout)
	}
	egress, err := dialer.New(dialCfg, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	a := &agent.Agent{
		Bootstrap:          &agent.RelayBootstrap{Addr: *relayAddr, Dialer: relayDialer},
		Dialer:             egress,
		Logger:             logger,
		NegotiationTimeout: *negotiationTimeout,
	}

	logger.Info("agent starting", "relay", *relayAddr, "upstream", *upstream)
	err = a.Run(ctx, *reconnectDelay)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logger.Info("shutting down")
	return err
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
