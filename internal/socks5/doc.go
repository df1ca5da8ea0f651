// Package socks5 implements the SOCKS5 subset burrow speaks across a tunnel.
//
// The server side is a small state machine (greeting, request, connect,
// relay) that runs over an already-established stream rather than a socket
// it accepted itself. It is byte-exact: the no-auth method is
// selected unconditionally, only CONNECT is served, and every reply carries
// a bound address of 0.0.0.0:0.
//
// Protocol constants and reply encoding come from
// github.com/txthinking/socks5. Parsing is done by hand so that nothing past
// the request is ever consumed from the stream.
//
// The client side helpers are the consumer half of the same exchange.
package socks5
