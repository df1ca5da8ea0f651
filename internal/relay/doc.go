// Package relay implements the public half of burrow: a directory of agent
// tunnels keyed by service id, the registration endpoint agents dial to
// obtain an id, and the external endpoint consumers dial to reach an agent
// by id.
//
// A registration is held idle without consuming any bytes the agent sends.
// When a consumer claims the id, whatever the agent already sent is
// delivered to the consumer first and the two connections are spliced
// until either side closes. Each tunnel carries at most one session.
package relay
