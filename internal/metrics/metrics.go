// Package metrics holds burrow's Prometheus collectors and the small HTTP
// handler that exposes them alongside health endpoints.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Registrations      = promauto.NewGauge(prometheus.GaugeOpts{Name: "burrow_registrations", Help: "Tunnels currently registered in the directory"})
	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "burrow_registrations_total", Help: "Agent registrations accepted"})
	ActiveSessions     = promauto.NewGauge(prometheus.GaugeOpts{Name: "burrow_sessions_active", Help: "External sessions currently wired to a tunnel"})
	LookupsTotal       = promauto.NewCounterVec(prometheus.CounterOpts{Name: "burrow_lookups_total", Help: "Service id lookups by result"}, []string{"result"})
	ErrorsTotal        = promauto.NewCounterVec(prometheus.CounterOpts{Name: "burrow_errors_total", Help: "Session errors by kind"}, []string{"kind"})
	BytesTotal         = promauto.NewCounterVec(prometheus.CounterOpts{Name: "burrow_relayed_bytes_total", Help: "Bytes relayed by direction"}, []string{"direction"})
	SessionSeconds     = promauto.NewHistogram(prometheus.HistogramOpts{Name: "burrow_session_duration_seconds", Help: "External session lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
	AgentTunnelsTotal  = promauto.NewCounterVec(prometheus.CounterOpts{Name: "burrow_agent_tunnels_total", Help: "Tunnels served by the agent by outcome"}, []string{"outcome"})
	RendezvousPairs    = promauto.NewCounter(prometheus.CounterOpts{Name: "burrow_rendezvous_pairs_total", Help: "Peer pairs introduced by the rendezvous broker"})
)

// Lookup results.
const (
	LookupOK      = "ok"
	LookupUnknown = "unknown"
	LookupBusy    = "busy"
)

// Relay directions, seen from the consumer.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)
