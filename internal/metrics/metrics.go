// Package metrics provides Prometheus instrumentation for sinain-core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sinain_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sinain_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Ingest metrics (C1/C2 rings).
var (
	FeedItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sinain_feed_items_total",
		Help: "Total number of feed items admitted, by source.",
	}, []string{"source"})

	SenseEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinain_sense_events_total",
		Help: "Total number of sense events admitted.",
	})

	SenseEventsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinain_sense_events_deduped_total",
		Help: "Total number of sense events rejected as duplicates.",
	})
)

// Agent-loop metrics (C5).
var (
	AgentTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sinain_agent_ticks_total",
		Help: "Total number of agent-loop ticks, by outcome.",
	}, []string{"outcome"}) // applied, timeout, malformed, skipped

	AgentTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sinain_agent_tick_duration_seconds",
		Help:    "Duration of an agent-loop tick, from context building through the analysis callback.",
		Buckets: prometheus.DefBuckets,
	})
)

// Escalation metrics (C7).
var (
	EscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sinain_escalations_total",
		Help: "Total number of escalation gate outcomes.",
	}, []string{"outcome"}) // escalated, cooldown, dedup, below_threshold, idle, off, no_reply

	EscalationRPCFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinain_escalation_rpc_failures_total",
		Help: "Total number of failed agent RPC calls.",
	})

	CircuitBreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sinain_circuit_breaker_open",
		Help: "1 if the escalator's circuit breaker is currently open.",
	})
)

// Overlay hub metrics (C4).
var (
	OverlayClientsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sinain_overlay_clients_active",
		Help: "Number of connected overlay WebSocket clients.",
	})

	OverlayMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinain_overlay_messages_total",
		Help: "Total number of frames broadcast to overlay clients.",
	})

	OverlayClientsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinain_overlay_clients_dropped_total",
		Help: "Total number of overlay clients dropped for backpressure or missed pongs.",
	})
)
