package relay

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"

	"github.com/die-net/burrow/internal/proxy"
)

var (
	// ErrUnknownService is returned by Claim for an id with no live tunnel.
	ErrUnknownService = fmt.Errorf("%w: invalid service id", proxy.ErrLookup)
	// ErrServiceBusy is returned by Claim for a tunnel already carrying a
	// session.
	ErrServiceBusy = fmt.Errorf("%w: service busy", proxy.ErrLookup)

	ErrDuplicateID     = errors.New("duplicate service id")
	ErrDirectoryClosed = errors.New("directory closed")
)

// Directory maps service ids to live tunnels. All methods are safe for
// concurrent use and linearizable.
type Directory struct {
	mu      sync.Mutex
	tunnels map[string]*Tunnel
	closed  bool
}

func NewDirectory() *Directory {
	return &Directory{tunnels: make(map[string]*Tunnel)}
}

// Insert adds t under id. It never replaces a live entry.
func (d *Directory) Insert(id string, t *Tunnel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDirectoryClosed
	}
	if _, ok := d.tunnels[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	d.tunnels[id] = t
	return nil
}

func (d *Directory) Lookup(id string) (*Tunnel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tunnels[id]
	return t, ok
}

// Claim looks up id and marks its tunnel as in use in one step, so two
// consumers racing for the same id cannot both win.
func (d *Directory) Claim(id string) (*Tunnel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tunnels[id]
	if !ok {
		return nil, ErrUnknownService
	}
	if err := t.claim(); err != nil {
		return nil, err
	}
	return t, nil
}

// Remove deletes id if it still maps to t and reports whether it did.
func (d *Directory) Remove(id string, t *Tunnel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.tunnels[id]; !ok || cur != t {
		return false
	}
	delete(d.tunnels, id)
	return true
}

func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.tunnels)
}

// IDs returns the registered ids in sorted order.
func (d *Directory) IDs() []string {
	d.mu.Lock()
	ids := make([]string, 0, len(d.tunnels))
	for id := range d.tunnels {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// Close rejects further inserts and closes every registered tunnel. Entries
// are left for their registration handlers to remove.
func (d *Directory) Close() error {
	d.mu.Lock()
	d.closed = true
	tunnels := make([]*Tunnel, 0, len(d.tunnels))
	for _, t := range d.tunnels {
		tunnels = append(tunnels, t)
	}
	d.mu.Unlock()

	var errs []error
	for _, t := range tunnels {
		if err := t.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
