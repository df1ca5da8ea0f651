package socks5

import (
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	// Version is the only protocol version spoken.
	Version = txsocks5.Ver

	// CmdConnect is the SOCKS5 CONNECT command value.
	CmdConnect = txsocks5.CmdConnect

	ATYPIPv4   = txsocks5.ATYPIPv4
	ATYPDomain = txsocks5.ATYPDomain
	ATYPIPv6   = txsocks5.ATYPIPv6

	RepSuccess             = txsocks5.RepSuccess
	RepHostUnreachable     = txsocks5.RepHostUnreachable
	RepCommandNotSupported = txsocks5.RepCommandNotSupported
)

// Auth configures optional username/password authentication for the client
// side of the negotiation.
type Auth struct {
	Username string
	Password string
}

// WriteNoAuthReply selects the no-authentication method.
func WriteNoAuthReply(w io.Writer) error {
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(w); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// WriteReply writes a reply with the given code and a bound address of
// 0.0.0.0:0, whatever the real local address is.
func WriteReply(w io.Writer, rep byte) error {
	if _, err := newZeroAddrReply(rep).WriteTo(w); err != nil {
		return fmt.Errorf("reply %#02x: %w", rep, err)
	}
	return nil
}

func newZeroAddrReply(rep byte) *txsocks5.Reply {
	return txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00})
}
