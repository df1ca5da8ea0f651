package relay

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/die-net/burrow/internal/metrics"
	"github.com/die-net/burrow/internal/presence"
	"github.com/die-net/burrow/internal/proxy"
)

// handleRegistration gives the agent on conn a fresh service id and holds
// the connection in the directory until it closes or its session ends.
func (s *Server) handleRegistration(conn net.Conn) error {
	id := s.newID()
	t := newTunnel(id, conn)
	if err := s.dir.Insert(id, t); err != nil {
		_ = conn.Close()
		return fmt.Errorf("register: %w", err)
	}
	metrics.RegistrationsTotal.Inc()
	metrics.Registrations.Set(float64(s.dir.Len()))
	s.announce(t)

	defer func() {
		t.release()
		_ = conn.Close()
		if s.dir.Remove(id, t) {
			metrics.Registrations.Set(float64(s.dir.Len()))
			s.withdraw(id)
		}
	}()

	if to := s.cfg.Transport.NegotiationTimeout; to > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(to))
	}
	if _, err := io.WriteString(conn, id); err != nil {
		t.retire()
		return fmt.Errorf("%w: write service id: %w", proxy.ErrTransport, err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	s.logger.Debug("agent registered", "id", id, "remote", conn.RemoteAddr().String())

	if err := t.watch(s.ctx); err != nil {
		s.logger.Debug("agent gone", "id", id, "err", err)
		return nil
	}

	select {
	case <-t.Done():
	case <-s.ctx.Done():
	}
	return nil
}

func (s *Server) announce(t *Tunnel) {
	ctx, cancel := s.presenceContext()
	defer cancel()
	rec := presence.Record{
		ID:           t.ID(),
		Relay:        s.cfg.Name,
		Remote:       t.RemoteAddr().String(),
		RegisteredAt: t.RegisteredAt().UTC(),
	}
	if err := s.presence.Announce(ctx, rec); err != nil {
		s.logger.Warn("presence announce failed", "id", t.ID(), "err", err)
	}
}

func (s *Server) withdraw(id string) {
	ctx, cancel := s.presenceContext()
	defer cancel()
	if err := s.presence.Withdraw(ctx, id); err != nil {
		s.logger.Warn("presence withdraw failed", "id", id, "err", err)
	}
}
