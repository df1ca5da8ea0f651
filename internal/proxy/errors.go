package proxy

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Error kinds. Sessions wrap one of these with context and callers branch
// with errors.Is.
var (
	// ErrProtocol is a malformed greeting/request or an unsupported
	// version, command or address type.
	ErrProtocol = errors.New("protocol error")
	// ErrLookup is an unknown or unavailable service id.
	ErrLookup = errors.New("lookup error")
	// ErrConnect is a failed outbound connect to a target.
	ErrConnect = errors.New("connect error")
	// ErrTransport is a peer closing mid-read or an I/O failure while relaying.
	ErrTransport = errors.New("transport error")
)

// ReadExact fills buf from r. A peer that closes before len(buf) bytes
// arrive yields ErrTransport; partial data is never returned as success.
func ReadExact(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: incomplete read (%d of %d bytes)", ErrTransport, n, len(buf))
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

// deadliner is the subset of net.Conn needed to bound a negotiation.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// ReadExactTimeout is ReadExact with a read deadline of timeout applied to c
// for the duration of the read. A zero timeout disables the deadline.
func ReadExactTimeout(c interface {
	io.Reader
	deadliner
}, buf []byte, timeout time.Duration,
) error {
	if timeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = c.SetReadDeadline(time.Time{}) }()
	}
	return ReadExact(c, buf)
}

// Kind names the error kind of err for logs and metric labels: "protocol",
// "lookup", "connect", "transport", or "other".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrLookup):
		return "lookup"
	case errors.Is(err, ErrConnect):
		return "connect"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
