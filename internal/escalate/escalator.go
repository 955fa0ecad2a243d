package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sinain/sinain-core/internal/agentloop"
	"github.com/sinain/sinain-core/internal/collab"
	"github.com/sinain/sinain-core/internal/config"
	scontext "github.com/sinain/sinain-core/internal/context"
	"github.com/sinain/sinain-core/internal/feed"
	"github.com/sinain/sinain-core/internal/metrics"
	"github.com/sinain/sinain-core/internal/scorer"
	"github.com/sinain/sinain-core/internal/sinerr"
)

const (
	idleHUD    = "Idle"
	emDashHUD  = "—"
	robotPrefix = "[\U0001F916] "
)

// Stats are the escalator's running counters, surfaced on /health.
type Stats struct {
	Escalations int
	Errors      int
	NoReply     int
}

// Escalator is C7. The zero value is not usable; use New.
type Escalator struct {
	cfg      func() config.EscalationMode
	cooldown func() time.Duration

	peer     collab.AgentRPCPeer
	fallback *HTTPFallback
	feedRing *feed.Ring

	breaker breaker

	mu                  sync.Mutex
	lastEscalationTS    time.Time
	lastEscalatedDigest string
	stats               Stats
}

// New creates an Escalator. cfg and cooldown are read on every gate
// evaluation so the orchestrator can hot-reload config via POST
// /agent/config.
func New(cfg func() config.EscalationMode, cooldown func() time.Duration, peer collab.AgentRPCPeer, fallback *HTTPFallback, feedRing *feed.Ring) *Escalator {
	return &Escalator{cfg: cfg, cooldown: cooldown, peer: peer, fallback: fallback, feedRing: feedRing}
}

// Stats returns a snapshot of the escalator's counters.
func (e *Escalator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// CircuitOpen reports whether the RPC circuit breaker is currently
// blocking calls.
func (e *Escalator) CircuitOpen() bool {
	return e.breaker.IsOpen()
}

// Consider is C7's gate function plus delivery: called after each
// agentloop tick with the entry and the context snapshot it was built
// from.
func (e *Escalator) Consider(ctx context.Context, entry agentloop.Entry, win scontext.Window) {
	mode := e.cfg()

	if !e.gate(mode, entry, win) {
		return
	}

	e.mu.Lock()
	e.lastEscalationTS = time.Now()
	e.lastEscalatedDigest = entry.Digest
	e.stats.Escalations++
	e.mu.Unlock()
	metrics.EscalationsTotal.WithLabelValues("escalated").Inc()

	message := BuildMessage(string(mode), entry.Digest, win)
	idempotencyKey := fmt.Sprintf("hud-%d-%d", entry.ID, time.Now().UnixMilli())

	e.deliver(ctx, mode, entry, win, message, idempotencyKey)
}

// gate implements the six ordered rules of C7 and records the outcome
// metric for rejections (the ledger is mutated by the caller only on an
// overall "yes").
func (e *Escalator) gate(mode config.EscalationMode, entry agentloop.Entry, win scontext.Window) bool {
	if mode == config.ModeOff {
		metrics.EscalationsTotal.WithLabelValues("off").Inc()
		return false
	}

	e.mu.Lock()
	sinceLast := time.Since(e.lastEscalationTS)
	lastDigest := e.lastEscalatedDigest
	e.mu.Unlock()

	if !e.lastEscalationTS.IsZero() && sinceLast < e.cooldown() {
		metrics.EscalationsTotal.WithLabelValues("cooldown").Inc()
		return false
	}

	if entry.HUD == idleHUD || entry.HUD == emDashHUD {
		metrics.EscalationsTotal.WithLabelValues("idle").Inc()
		return false
	}

	if mode == config.ModeFocus || mode == config.ModeRich {
		return true
	}

	if entry.Digest == lastDigest {
		metrics.EscalationsTotal.WithLabelValues("dedup").Inc()
		return false
	}

	res := scorer.Score(entry.Digest, win)
	if !res.Triggered() {
		metrics.EscalationsTotal.WithLabelValues("below_threshold").Inc()
		return false
	}
	return true
}

// rpcResultEnvelope matches payload.result.payloads[].text from the
// agent.call success shape.
type rpcResultEnvelope struct {
	Result struct {
		Payloads []struct {
			Text string `json:"text"`
		} `json:"payloads"`
	} `json:"result"`
}

func (e *Escalator) deliver(ctx context.Context, mode config.EscalationMode, entry agentloop.Entry, win scontext.Window, message, idempotencyKey string) {
	if !e.breaker.Allow() {
		e.pushError(entry)
		return
	}

	params := map[string]any{
		"idempotency_key": idempotencyKey,
		"message":         message,
	}

	payload, err := e.peer.Call(ctx, "agent.call", params)
	if err != nil {
		e.breaker.RecordFailure()
		e.mu.Lock()
		e.stats.Errors++
		e.mu.Unlock()
		metrics.EscalationRPCFailures.Inc()
		slog.Warn("escalate: rpc call failed", "error", sinerr.Wrap(sinerr.Transient, "agent.call", err))
		e.pushError(entry)
		e.attemptHTTPFallback(ctx, message)
		return
	}
	e.breaker.RecordSuccess()

	var env rpcResultEnvelope
	output := ""
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &env); err != nil {
			slog.Warn("escalate: malformed agent.call reply", "error", sinerr.Wrap(sinerr.Protocol, "agent.call reply", err))
		} else {
			var parts []string
			for _, p := range env.Result.Payloads {
				if p.Text != "" {
					parts = append(parts, p.Text)
				}
			}
			output = strings.Join(parts, "")
		}
	}

	if output != "" {
		coding := IsCodingContext(win.CurrentApp, entry.Digest)
		capped := CapResponse(output, coding)
		e.feedRing.Push(robotPrefix+capped, feed.High, "openclaw", feed.ChannelAgent)
		return
	}

	e.mu.Lock()
	e.stats.NoReply++
	e.mu.Unlock()
	metrics.EscalationsTotal.WithLabelValues("no_reply").Inc()

	if mode == config.ModeFocus || mode == config.ModeRich {
		e.feedRing.Push(robotPrefix+entry.Digest, feed.High, "openclaw", feed.ChannelAgent)
	}
}

func (e *Escalator) pushError(entry agentloop.Entry) {
	e.feedRing.Push("escalation failed for tick "+fmt.Sprint(entry.ID), feed.Normal, "system", feed.ChannelAgent)
}

func (e *Escalator) attemptHTTPFallback(ctx context.Context, message string) {
	if e.fallback == nil {
		return
	}
	if err := e.fallback.Send(ctx, message, "sinain-core"); err != nil {
		slog.Warn("escalate: http fallback failed", "error", err)
	}
}
