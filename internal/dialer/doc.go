// Package dialer provides the outbound dialing strategies used by the agent
// to reach the targets named in SOCKS5 CONNECT requests.
//
// Dialers implement a small interface (DialContext) and either connect
// directly, optionally resolving names through a configured DNS server, or
// chain through an upstream SOCKS5 or HTTP CONNECT proxy.
package dialer
