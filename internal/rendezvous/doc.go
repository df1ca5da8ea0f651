// Package rendezvous is a UDP introduction service. Two peers each send
// the broker a datagram; the broker replies to each with the other's
// public "ip:port" so they can attempt direct UDP traffic through their
// NATs. It is independent of the relay's TCP tunnels.
package rendezvous
