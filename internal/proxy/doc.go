// Package proxy holds the connection plumbing shared by the relay, the agent
// and the entry shim.
//
// It contains the chunked one-way Forwarder and its bidirectional pairing,
// the fixed-length read helper that reports tagged outcomes, keepalive
// listeners, and the TCP tuning flags common to every binary.
package proxy
