package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/die-net/burrow/internal/proxy"
)

// aLongTimeAgo is a non-zero time in the past, used as a read deadline to
// interrupt a blocked read immediately.
var aLongTimeAgo = time.Unix(1, 0)

// MaxPendingBytes bounds what an agent may send before its tunnel is
// claimed. A registration exceeding it is dropped.
const MaxPendingBytes = 64 << 10

// Tunnel is an agent's registration connection while it waits for, and
// then carries, a consumer session.
type Tunnel struct {
	id         string
	conn       net.Conn
	registered time.Time

	// pending holds agent bytes read while idle. Only the watcher touches
	// it until released is closed.
	pending []byte

	mu      sync.Mutex
	claimed bool
	dead    bool

	claimedCh   chan struct{}
	released    chan struct{}
	releaseOnce sync.Once
	done        chan struct{}
	doneOnce    sync.Once
}

func newTunnel(id string, conn net.Conn) *Tunnel {
	return &Tunnel{
		id:         id,
		conn:       conn,
		registered: time.Now(),
		claimedCh:  make(chan struct{}),
		released:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (t *Tunnel) ID() string              { return t.id }
func (t *Tunnel) RemoteAddr() net.Addr    { return t.conn.RemoteAddr() }
func (t *Tunnel) RegisteredAt() time.Time { return t.registered }

// Claimed reports whether a consumer session has taken the tunnel.
func (t *Tunnel) Claimed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.claimed
}

// Done is closed once the session carried by the tunnel has ended.
func (t *Tunnel) Done() <-chan struct{} { return t.done }

func (t *Tunnel) Close() error { return t.conn.Close() }

// claim marks the tunnel in use and interrupts the idle watcher. The caller
// must then acquire the connection.
func (t *Tunnel) claim() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.dead:
		return ErrUnknownService
	case t.claimed:
		return ErrServiceBusy
	}
	t.claimed = true
	close(t.claimedCh)
	_ = t.conn.SetReadDeadline(aLongTimeAgo)
	return nil
}

// retire marks an unclaimed tunnel unusable. It reports false if a claim
// won the race, in which case the tunnel belongs to that session.
func (t *Tunnel) retire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.claimed {
		return false
	}
	t.dead = true
	return true
}

func (t *Tunnel) release() { t.releaseOnce.Do(func() { close(t.released) }) }
func (t *Tunnel) finish()  { t.doneOnce.Do(func() { close(t.done) }) }

// watch holds the registration idle until the agent goes away, ctx ends, or
// the tunnel is claimed; it returns nil only in the last case. Bytes the
// agent sends meanwhile are kept for the consumer, up to MaxPendingBytes.
func (t *Tunnel) watch(ctx context.Context) error {
	defer t.release()

	stop := context.AfterFunc(ctx, func() { _ = t.conn.SetReadDeadline(aLongTimeAgo) })
	defer stop()

	buf := make([]byte, 512)
	for {
		if err := ctx.Err(); err != nil {
			if !t.retire() {
				return nil
			}
			return err
		}
		if t.Claimed() {
			return nil
		}

		n, err := t.conn.Read(buf)
		t.pending = append(t.pending, buf[:n]...)
		if len(t.pending) > MaxPendingBytes {
			if !t.retire() {
				return nil
			}
			return fmt.Errorf("%w: tunnel %s: more than %d bytes before session", proxy.ErrProtocol, t.id, MaxPendingBytes)
		}
		if err == nil {
			continue
		}
		if !t.retire() {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return fmt.Errorf("%w: tunnel %s: %w", proxy.ErrTransport, t.id, err)
	}
}

// acquire waits for the watcher to let go of the connection and returns it
// with any pending agent bytes in front.
func (t *Tunnel) acquire(ctx context.Context) (net.Conn, error) {
	select {
	case <-t.released:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	_ = t.conn.SetReadDeadline(time.Time{})
	if len(t.pending) == 0 {
		return t.conn, nil
	}
	return &bufferedConn{Conn: t.conn, r: io.MultiReader(bytes.NewReader(t.pending), t.conn)}, nil
}

// bufferedConn reads through r, which ends with Conn.
type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }
