package socks5

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/die-net/burrow/internal/proxy"
)

// Request is a parsed SOCKS5 request.
type Request struct {
	Version  byte
	Command  byte
	AddrType byte
	Host     string
	Port     uint16
}

// Address returns Host and Port joined for dialing.
func (r *Request) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

var (
	// ErrCommandNotSupported reports a request whose version or command is
	// not VER=5 CMD=CONNECT.
	ErrCommandNotSupported = fmt.Errorf("%w: command not supported", proxy.ErrProtocol)
	// ErrAddressType reports an unknown ATYP.
	ErrAddressType = fmt.Errorf("%w: address type not supported", proxy.ErrProtocol)
)

// ReadGreeting reads VER, NMETHODS and the method list. The version is not
// checked; the server answers no-auth regardless.
func ReadGreeting(r io.Reader) ([]byte, error) {
	hdr := make([]byte, 2)
	if err := proxy.ReadExact(r, hdr); err != nil {
		return nil, fmt.Errorf("greeting: %w", err)
	}
	methods := make([]byte, int(hdr[1]))
	if err := proxy.ReadExact(r, methods); err != nil {
		return nil, fmt.Errorf("greeting methods: %w", err)
	}
	return methods, nil
}

// ReadRequest reads VER CMD RSV ATYP, then the destination address and port.
//
// If VER or CMD is unsupported it returns the partially filled request and
// ErrCommandNotSupported without reading the address. An unknown ATYP
// returns ErrAddressType.
func ReadRequest(r io.Reader) (*Request, error) {
	hdr := make([]byte, 4)
	if err := proxy.ReadExact(r, hdr); err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req := &Request{Version: hdr[0], Command: hdr[1], AddrType: hdr[3]}
	if req.Version != Version || req.Command != CmdConnect {
		return req, ErrCommandNotSupported
	}

	host, err := readAddr(r, req.AddrType)
	if err != nil {
		return req, err
	}
	req.Host = host

	port := make([]byte, 2)
	if err := proxy.ReadExact(r, port); err != nil {
		return req, fmt.Errorf("request port: %w", err)
	}
	req.Port = binary.BigEndian.Uint16(port)

	return req, nil
}

func readAddr(r io.Reader, atyp byte) (string, error) {
	switch atyp {
	case ATYPIPv4:
		b := make([]byte, 4)
		if err := proxy.ReadExact(r, b); err != nil {
			return "", fmt.Errorf("ipv4 address: %w", err)
		}
		return net.IP(b).String(), nil
	case ATYPDomain:
		n := make([]byte, 1)
		if err := proxy.ReadExact(r, n); err != nil {
			return "", fmt.Errorf("domain length: %w", err)
		}
		b := make([]byte, int(n[0]))
		if err := proxy.ReadExact(r, b); err != nil {
			return "", fmt.Errorf("domain: %w", err)
		}
		return string(b), nil
	case ATYPIPv6:
		b := make([]byte, 16)
		if err := proxy.ReadExact(r, b); err != nil {
			return "", fmt.Errorf("ipv6 address: %w", err)
		}
		return formatIPv6Groups(b), nil
	default:
		return "", fmt.Errorf("%w: %#02x", ErrAddressType, atyp)
	}
}

// formatIPv6Groups renders 16 bytes as eight colon-joined groups of four
// lowercase hex digits, uncompressed. Callers downstream rely on this form,
// so it is kept rather than canonicalized.
func formatIPv6Groups(b []byte) string {
	groups := make([]string, 0, 8)
	for i := 0; i+1 < len(b); i += 2 {
		groups = append(groups, hex.EncodeToString(b[i:i+2]))
	}
	return strings.Join(groups, ":")
}

// Dialer opens the outbound connection for a CONNECT request.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Result describes one served tunnel.
type Result struct {
	Request *Request
	// Stats counts bytes relayed: LeftToRight is tunnel→target.
	Stats proxy.Stats
}

// Server runs the SOCKS5 state machine over a stream it did not accept.
type Server struct {
	Dialer Dialer
}

// ServeConn serves exactly one CONNECT over conn and closes it on return.
// Replies are sent where the exchange has progressed far enough: an
// unsupported VER/CMD gets 0x07 and a failed dial gets 0x04. Everything
// else closes without a reply.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) (Result, error) {
	defer conn.Close()

	var res Result

	if _, err := ReadGreeting(conn); err != nil {
		return res, err
	}
	if err := WriteNoAuthReply(conn); err != nil {
		return res, fmt.Errorf("%w: %w", proxy.ErrTransport, err)
	}

	req, err := ReadRequest(conn)
	res.Request = req
	if errors.Is(err, ErrCommandNotSupported) {
		_ = WriteReply(conn, RepCommandNotSupported)
		return res, fmt.Errorf("request ver=%#02x cmd=%#02x: %w", req.Version, req.Command, err)
	}
	if err != nil {
		return res, err
	}

	target, err := s.Dialer.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		_ = WriteReply(conn, RepHostUnreachable)
		return res, fmt.Errorf("%w: %s: %w", proxy.ErrConnect, req.Address(), err)
	}

	if err := WriteReply(conn, RepSuccess); err != nil {
		_ = target.Close()
		return res, fmt.Errorf("%w: %w", proxy.ErrTransport, err)
	}

	res.Stats, err = proxy.CopyBidirectional(ctx, conn, target)
	return res, err
}
