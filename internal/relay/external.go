package relay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/die-net/burrow/internal/metrics"
	"github.com/die-net/burrow/internal/proxy"
)

// Replies written to a consumer whose service id cannot be served.
const (
	invalidServiceIDReply = "Invalid service id\n"
	serviceBusyReply      = "Service busy\n"
)

// handleExternal reads a service id from conn and splices conn to the
// matching tunnel.
func (s *Server) handleExternal(conn net.Conn) error {
	buf := make([]byte, ServiceIDLen)
	if err := proxy.ReadExactTimeout(conn, buf, s.cfg.Transport.NegotiationTimeout); err != nil {
		_ = conn.Close()
		metrics.ErrorsTotal.WithLabelValues(proxy.Kind(err)).Inc()
		return fmt.Errorf("read service id: %w", err)
	}
	id := string(buf)

	t, err := s.dir.Claim(id)
	if err != nil {
		reply, result := invalidServiceIDReply, metrics.LookupUnknown
		if errors.Is(err, ErrServiceBusy) {
			reply, result = serviceBusyReply, metrics.LookupBusy
		}
		metrics.LookupsTotal.WithLabelValues(result).Inc()
		metrics.ErrorsTotal.WithLabelValues(proxy.Kind(err)).Inc()
		_, _ = io.WriteString(conn, reply)
		_ = conn.Close()
		return err
	}
	metrics.LookupsTotal.WithLabelValues(metrics.LookupOK).Inc()
	defer t.finish()

	tc, err := t.acquire(s.ctx)
	if err != nil {
		_ = conn.Close()
		_ = t.Close()
		return err
	}

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	start := time.Now()
	s.logger.Debug("session started", "id", id, "remote", conn.RemoteAddr().String())

	stats, err := proxy.CopyBidirectional(s.ctx, conn, tc)
	metrics.SessionSeconds.Observe(time.Since(start).Seconds())
	metrics.BytesTotal.WithLabelValues(metrics.DirectionUp).Add(float64(stats.LeftToRight))
	metrics.BytesTotal.WithLabelValues(metrics.DirectionDown).Add(float64(stats.RightToLeft))
	s.logger.Debug("session ended", "id", id, "up", stats.LeftToRight, "down", stats.RightToLeft)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(proxy.Kind(err)).Inc()
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}
