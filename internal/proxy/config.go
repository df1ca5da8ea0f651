package proxy

import (
	"net"
	"time"
)

// Config carries the transport tuning shared by every listener and dialer.
type Config struct {
	// NegotiationTimeout bounds fixed-length protocol reads (service id,
	// registration id). Zero disables it.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// UserTimeout sets TCP_USER_TIMEOUT on supported platforms so a wedged
	// peer is detected while writes are unacknowledged. Zero leaves the
	// kernel default.
	UserTimeout time.Duration
}
