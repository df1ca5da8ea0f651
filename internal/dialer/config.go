package dialer

import (
	"time"

	"github.com/die-net/burrow/internal/proxy"
)

type Config struct {
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration

	// Transport tuning applied to every dialed TCP connection.
	Transport proxy.Config

	// Resolver, when set, resolves host names for direct dials instead of
	// the system resolver.
	Resolver Resolver
}
