// Package orchestrator wires C1-C11 together and owns the process's
// startup and shutdown order: config, buffers, overlay hub, feedback
// store, escalator, agent loop, audio/transcription, then the shared
// HTTP/WS listener. Shutdown reverses that order.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sinain/sinain-core/internal/agentloop"
	"github.com/sinain/sinain-core/internal/collab"
	"github.com/sinain/sinain-core/internal/config"
	scontext "github.com/sinain/sinain-core/internal/context"
	"github.com/sinain/sinain-core/internal/escalate"
	"github.com/sinain/sinain-core/internal/feed"
	"github.com/sinain/sinain-core/internal/feedback"
	"github.com/sinain/sinain-core/internal/httpapi"
	"github.com/sinain/sinain-core/internal/overlay"
	"github.com/sinain/sinain-core/internal/sense"
	"github.com/sinain/sinain-core/internal/sinerr"
	"github.com/sinain/sinain-core/internal/trace"
)

const (
	feedFanoutInterval   = 200 * time.Millisecond
	shutdownBudget       = 2 * time.Second
	escalationCallBudget = 30 * time.Second
)

// App holds every wired component for the process lifetime. Construct
// with New, then call Run.
type App struct {
	cfg  *config.Config
	live *config.Live

	feedRing  *feed.Ring
	senseRing *sense.Ring
	hub       *overlay.Hub

	feedbackStore *feedback.Store
	collector     *feedback.Collector

	rpcClient *escalate.RPCClient
	peer      collab.AgentRPCPeer
	fallback  *escalate.HTTPFallback
	escalator *escalate.Escalator
	spawnMgr  *escalate.SpawnManager

	loop *agentloop.Loop

	audio collab.AudioTranscript

	traces *trace.Store

	api        *httpapi.Server
	httpServer *http.Server
}

// New builds every component in spec order without starting any
// goroutines or listeners; call Run to bring the process up.
func New(cfg *config.Config) (*App, error) {
	live := config.NewLive(cfg)

	feedRing := feed.New(0)
	senseRing := sense.New(0)

	hub := overlay.New()

	feedbackStore, err := feedback.NewStore(cfg.FeedbackDir(), cfg.FeedbackRetentionDays)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open feedback store: %w", err)
	}

	var peer collab.AgentRPCPeer
	var rpcClient *escalate.RPCClient
	if cfg.OpenclawWSURL != "" {
		rpcClient = escalate.NewRPCClient(cfg.OpenclawWSURL, cfg.OpenclawSessionKey)
		peer = rpcClient
	} else {
		slog.Warn("orchestrator: OPENCLAW_WS_URL unset, agent RPC disabled")
		peer = collab.NoopAgentRPCPeer{}
	}

	var fallback *escalate.HTTPFallback
	if cfg.OpenclawHookURL != "" {
		fallback = escalate.NewHTTPFallback(cfg.OpenclawHookURL, cfg.OpenclawHookToken, cfg.OpenclawSessionKey)
	}

	escalator := escalate.New(
		func() config.EscalationMode { return live.Mode() },
		func() time.Duration { return time.Duration(live.CooldownMs()) * time.Millisecond },
		peer, fallback, feedRing,
	)

	spawnMgr := escalate.NewSpawnManager(cfg.PendingSpawnsPath(), peer, feedRing)

	loop := agentloop.New(agentloop.Config{
		DebounceMs:    cfg.AgentDebounceMs,
		MaxIntervalMs: cfg.AgentMaxIntervalMs,
		Model:         cfg.AgentModel,
		SituationPath: cfg.SituationMDPath,
		Enabled:       true,
	}, feedRing, senseRing, peer, func() string { return live.Mode().Richness() })

	collector := feedback.NewCollector(feedbackStore, feedback.Deps{
		RecentDigests: func(n int) []string { return recentDigests(loop, n) },
		PushedEntries: func() []agentloop.Entry { return pushedEntries(loop) },
		AppHistory:    senseRing.AppHistory,
	})

	var audio collab.AudioTranscript = collab.NoopAudioTranscript{}

	var traces *trace.Store
	if cfg.TraceEnabled {
		traces, err = trace.Open(cfg.TraceDBPath())
		if err != nil {
			_ = feedbackStore.Close()
			return nil, fmt.Errorf("orchestrator: open trace store: %w", err)
		}
	}

	api := httpapi.New(cfg, live, feedRing, senseRing, hub, loop, escalator, spawnMgr, traces)

	app := &App{
		cfg:           cfg,
		live:          live,
		feedRing:      feedRing,
		senseRing:     senseRing,
		hub:           hub,
		feedbackStore: feedbackStore,
		collector:     collector,
		rpcClient:     rpcClient,
		peer:          peer,
		fallback:      fallback,
		escalator:     escalator,
		spawnMgr:      spawnMgr,
		loop:          loop,
		audio:         audio,
		traces:        traces,
		api:           api,
		httpServer:    &http.Server{Addr: cfg.Addr(), Handler: api.Handler()},
	}

	loop.OnAnalysis(app.onAnalysis)
	hub.OnIncoming(app.onOverlayCommand)

	return app, nil
}

// onAnalysis fires after every completed agent tick: it considers the
// entry for escalation and schedules the feedback signal backfill. The
// escalation RPC gets its own hard budget, separate from and outliving
// the tick's own call timeout, so a stalled peer can't wedge the agent
// loop indefinitely.
func (a *App) onAnalysis(runCtx context.Context, entry agentloop.Entry, win scontext.Window) {
	ctx, cancel := context.WithTimeout(runCtx, escalationCallBudget)
	defer cancel()

	a.escalator.Consider(ctx, entry, win)

	if entry.Record != nil && entry.Record.Task != "" {
		if _, err := a.spawnMgr.DispatchSpawnTask(ctx, entry.Record.Task, entry.Digest); err != nil {
			slog.Warn("orchestrator: dispatch spawn task failed", "error", err)
		}
	}

	record := feedback.NewRecord(entry.TS, entry.ID, entry.Digest, entry.HUD, win.CurrentApp, 0, nil, false, "", "", 0)
	if err := a.feedbackStore.Append(record); err != nil {
		slog.Warn("orchestrator: append feedback record failed", "error", sinerr.Wrap(sinerr.Persistent, "feedback append", err))
		return
	}
	a.collector.Schedule(record)
}

// onOverlayCommand handles an incoming overlay "command" frame by
// feeding it back into the agent loop as a nudge-worthy context event.
func (a *App) onOverlayCommand(clientID string, payload json.RawMessage) {
	var cmd struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &cmd); err != nil || cmd.Text == "" {
		return
	}
	a.feedRing.Push(cmd.Text, feed.Normal, "overlay:"+clientID, feed.ChannelStream)
	a.loop.OnNewContext()
}

// Run brings the process up: starts the RPC client, the agent loop, the
// feed fan-out, and the HTTP/WS listener, then blocks until ctx is
// cancelled, at which point it shuts every task down in reverse order.
func (a *App) Run(ctx context.Context) error {
	if err := a.spawnMgr.LoadPending(); err != nil {
		slog.Warn("orchestrator: load pending spawns failed", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if a.rpcClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.rpcClient.Run(runCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.loop.Run(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.feedFanout(runCtx)
	}()

	a.spawnMgr.ResumePending(runCtx)

	if a.cfg.AudioAutoStart {
		if err := a.audio.Start(runCtx); err != nil {
			slog.Warn("orchestrator: audio start failed", "error", err)
		}
	}

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- a.httpServer.ListenAndServe()
	}()

	slog.Info("sinain-core listening", "addr", a.cfg.Addr())

	select {
	case err := <-serveErrCh:
		cancel()
		a.shutdown(&wg)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("orchestrator: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, sc := context.WithTimeout(context.Background(), shutdownBudget)
		defer sc()
		_ = a.httpServer.Shutdown(shutdownCtx)
		cancel()
		a.shutdown(&wg)
		return nil
	}
}

// shutdown stops the remaining tasks in the spec's reverse order: agent
// loop, audio, escalator's RPC client, feedback store, trace store. Every
// task is cancelled already via ctx; this just waits and closes
// resources, logging rather than failing on error.
func (a *App) shutdown(wg *sync.WaitGroup) {
	a.audio.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownBudget):
		slog.Warn("orchestrator: background tasks did not stop within budget")
	}

	if err := a.feedbackStore.Close(); err != nil {
		slog.Warn("orchestrator: close feedback store failed", "error", sinerr.Wrap(sinerr.Persistent, "feedback close", err))
	}
	if err := a.traces.Close(); err != nil {
		slog.Warn("orchestrator: close trace store failed", "error", sinerr.Wrap(sinerr.Persistent, "trace close", err))
	}
}

// feedFanout polls the feed ring for items no overlay client has seen
// yet and broadcasts them. Every writer (the agent loop, the escalator,
// POST /feed, spawn completions) pushes to the shared ring without
// knowing about the hub; this is the one place that turns ring writes
// into overlay frames.
func (a *App) feedFanout(ctx context.Context) {
	ticker := time.NewTicker(feedFanoutInterval)
	defer ticker.Stop()

	var lastID uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			items := a.feedRing.Query(lastID)
			for _, it := range items {
				a.hub.Broadcast(it.Text, it.Priority, it.Channel)
				lastID = it.ID
			}
		}
	}
}

func recentDigests(loop *agentloop.Loop, n int) []string {
	history := loop.History()
	out := make([]string, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i].Digest)
	}
	return out
}

func pushedEntries(loop *agentloop.Loop) []agentloop.Entry {
	history := loop.History()
	out := make([]agentloop.Entry, 0, len(history))
	for _, e := range history {
		if e.Pushed {
			out = append(out, e)
		}
	}
	return out
}
