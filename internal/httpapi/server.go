// Package httpapi implements C9: the single HTTP/WS surface mounting
// /sense, /feed, /agent/*, /health, /traces, and the overlay WebSocket
// on one listener.
package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sinain/sinain-core/internal/agentloop"
	"github.com/sinain/sinain-core/internal/config"
	"github.com/sinain/sinain-core/internal/escalate"
	"github.com/sinain/sinain-core/internal/feed"
	"github.com/sinain/sinain-core/internal/logging"
	"github.com/sinain/sinain-core/internal/metrics"
	"github.com/sinain/sinain-core/internal/overlay"
	"github.com/sinain/sinain-core/internal/sense"
	"github.com/sinain/sinain-core/internal/trace"
)

const maxSenseBodyBytes = 2 * 1024 * 1024 // 2 MiB, spec.md §6

// Server is C9. Construct with New, then mount Handler() on a listener.
type Server struct {
	cfg       *config.Config
	live      *config.Live
	feedRing  *feed.Ring
	senseRing *sense.Ring
	hub       *overlay.Hub
	loop      *agentloop.Loop
	escalator *escalate.Escalator
	spawnMgr  *escalate.SpawnManager
	traces    *trace.Store

	epoch string
	mux   *http.ServeMux
}

// New wires every endpoint onto a fresh mux. traces may be nil when
// TRACE_ENABLED=false.
func New(cfg *config.Config, live *config.Live, feedRing *feed.Ring, senseRing *sense.Ring, hub *overlay.Hub, loop *agentloop.Loop, esc *escalate.Escalator, spawnMgr *escalate.SpawnManager, traces *trace.Store) *Server {
	s := &Server{
		cfg:       cfg,
		live:      live,
		feedRing:  feedRing,
		senseRing: senseRing,
		hub:       hub,
		loop:      loop,
		escalator: esc,
		spawnMgr:  spawnMgr,
		traces:    traces,
		epoch:     newEpoch(),
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /sense", s.handleSensePost)
	s.mux.HandleFunc("GET /sense", s.handleSenseGet)
	s.mux.HandleFunc("GET /feed", s.handleFeedGet)
	s.mux.HandleFunc("POST /feed", s.handleFeedPost)
	s.mux.HandleFunc("GET /agent/digest", s.handleAgentDigest)
	s.mux.HandleFunc("GET /agent/history", s.handleAgentHistory)
	s.mux.HandleFunc("GET /agent/context", s.handleAgentContext)
	s.mux.HandleFunc("GET /agent/config", s.handleAgentConfigGet)
	s.mux.HandleFunc("POST /agent/config", s.handleAgentConfigPost)
	s.mux.HandleFunc("GET /traces", s.handleTraces)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("/ws", hub)
	s.mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the fully wrapped HTTP handler (logging + metrics
// middleware around the mux), ready to hand to an http.Server.
func (s *Server) Handler() http.Handler {
	return logging.HTTPMiddleware(metrics.HTTPMiddleware(s.mux))
}
