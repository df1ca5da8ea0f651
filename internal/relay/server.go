package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/die-net/burrow/internal/presence"
	"github.com/die-net/burrow/internal/proxy"
)

// ServiceIDLen is the length of a service id on the wire: a UUID in its
// 36-character text form.
const ServiceIDLen = 36

const presenceTimeout = 2 * time.Second

// Config configures a Server.
type Config struct {
	Transport proxy.Config
	Logger    *slog.Logger
	// Presence mirrors registrations elsewhere. Nil disables mirroring.
	Presence presence.Mirror
	// Name identifies this relay in presence records.
	Name string
	// NewID generates service ids. Nil uses random UUIDs.
	NewID func() string
}

// Server runs the registration and external endpoints over one Directory.
type Server struct {
	ctx      context.Context
	cfg      Config
	logger   *slog.Logger
	dir      *Directory
	presence presence.Mirror
	newID    func() string
}

func NewServer(ctx context.Context, cfg Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Server{
		ctx:      ctx,
		cfg:      cfg,
		logger:   cfg.Logger,
		dir:      NewDirectory(),
		presence: cfg.Presence,
		newID:    cfg.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.presence == nil {
		s.presence = presence.Nop{}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

func (s *Server) Directory() *Directory { return s.dir }

// ServeRegistration accepts agent connections on ln until it is closed.
func (s *Server) ServeRegistration(ln net.Listener) error {
	return s.serve(ln, "registration", s.handleRegistration)
}

// ServeExternal accepts consumer connections on ln until it is closed.
func (s *Server) ServeExternal(ln net.Listener) error {
	return s.serve(ln, "external", s.handleExternal)
}

// Close closes every registered tunnel.
func (s *Server) Close() error {
	return s.dir.Close()
}

func (s *Server) serve(ln net.Listener, name string, handle func(net.Conn) error) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s accept: %w", name, err)
		}
		go func() {
			if err := handle(c); err != nil {
				s.logger.Debug("connection error", "endpoint", name, "remote", c.RemoteAddr().String(), "kind", proxy.Kind(err), "err", err)
			}
		}()
	}
}

func (s *Server) presenceContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(s.ctx), presenceTimeout)
}
