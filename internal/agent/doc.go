// Package agent runs the private side of burrow. It registers with a relay,
// learns the service id the relay assigned, and then serves a single SOCKS5
// CONNECT over that same connection, dialing the requested target from
// inside the private network.
package agent
