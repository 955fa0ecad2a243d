// Package agentloop implements C5: a debounced, cadence-controlled
// analysis ticker. It pulls a context.Window, invokes the LLM peer with a
// deterministic prompt, and parses the reply into an AgentEntry.
package agentloop

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sinain/sinain-core/internal/collab"
	scontext "github.com/sinain/sinain-core/internal/context"
	"github.com/sinain/sinain-core/internal/feed"
	"github.com/sinain/sinain-core/internal/id"
	"github.com/sinain/sinain-core/internal/metrics"
	"github.com/sinain/sinain-core/internal/sense"
)

// State is a tick's position in the per-iteration state machine.
type State int

const (
	Idle State = iota
	Nudged
	Waiting
	Building
	Calling
	Parsing
	Applied
)

func (s State) String() string {
	switch s {
	case Nudged:
		return "nudged"
	case Waiting:
		return "waiting"
	case Building:
		return "building"
	case Calling:
		return "calling"
	case Parsing:
		return "parsing"
	case Applied:
		return "applied"
	default:
		return "idle"
	}
}

// RecordDirective optionally instructs C8/C7 to record or spawn a task.
type RecordDirective struct {
	Task string `json:"task,omitempty"`
}

// Entry is the canonical tick record, AgentEntry in the data model.
type Entry struct {
	ID     uint64
	TS     int64
	Digest string
	HUD    string
	Pushed bool
	Task   string
	Record *RecordDirective
}

// Config controls the loop's cadence and analysis call.
type Config struct {
	DebounceMs      int
	MinIntervalMs   int
	MaxIntervalMs   int
	Model           string
	SituationPath   string
	Enabled         bool
}

// AnalysisCallback is invoked after a tick is APPLIED, with the entry,
// the context snapshot it was built from, and the loop's run context
// (for any downstream work, e.g. escalation RPCs, that needs a budget
// tied to process lifetime rather than the tick itself).
type AnalysisCallback func(ctx context.Context, entry Entry, win scontext.Window)

const historyCap = 20

// Loop is C5. The zero value is not usable; use New.
type Loop struct {
	cfg       Config
	feedRing  *feed.Ring
	senseRing *sense.Ring
	peer      collab.AgentRPCPeer
	richness  func() string // current richness, derived from escalation mode

	onAnalysis AnalysisCallback

	mu          sync.Mutex
	state       State
	history     []Entry
	nextID      uint64
	lastTickAt  time.Time
	firstNudge  time.Time
	failures    int
	nudgeCh     chan struct{}
	cancelTick  context.CancelFunc
}

// New creates a Loop over the given rings and agent peer. richness should
// return one of "lean"/"standard"/"rich" derived from the current
// escalation mode.
func New(cfg Config, feedRing *feed.Ring, senseRing *sense.Ring, peer collab.AgentRPCPeer, richness func() string) *Loop {
	return &Loop{
		cfg:       cfg,
		feedRing:  feedRing,
		senseRing: senseRing,
		peer:      peer,
		richness:  richness,
		nudgeCh:   make(chan struct{}, 1),
	}
}

// OnAnalysis registers the callback fired when a tick completes.
func (l *Loop) OnAnalysis(cb AnalysisCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onAnalysis = cb
}

// OnNewContext nudges the loop: IDLE transitions to NUDGED; re-arming
// during WAITING extends the debounce, bounded by MaxIntervalMs since the
// first nudge of the current cycle.
func (l *Loop) OnNewContext() {
	l.mu.Lock()
	if l.state == Idle {
		l.state = Nudged
		l.firstNudge = time.Now()
	}
	l.mu.Unlock()

	select {
	case l.nudgeCh <- struct{}{}:
	default:
	}
}

// Run drives the debounce/analyze cycle until ctx is cancelled. On
// shutdown, any in-flight CALLING step is cancelled cooperatively and its
// partial state discarded.
func (l *Loop) Run(ctx context.Context) {
	if !l.cfg.Enabled {
		<-ctx.Done()
		return
	}

	debounce := time.Duration(l.cfg.DebounceMs) * time.Millisecond
	maxInterval := time.Duration(l.cfg.MaxIntervalMs) * time.Millisecond

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			if l.cancelTick != nil {
				l.cancelTick()
			}
			l.mu.Unlock()
			return

		case <-l.nudgeCh:
			l.mu.Lock()
			l.state = Waiting
			since := time.Since(l.firstNudge)
			wait := debounce
			for i := 0; i < l.failures && wait < maxInterval; i++ {
				wait *= 2
			}
			if since+wait > maxInterval {
				wait = maxInterval - since
				if wait < 0 {
					wait = 0
				}
			}
			l.mu.Unlock()
			timer.Reset(wait)

		case <-timer.C:
			l.mu.Lock()
			if l.state != Waiting {
				l.mu.Unlock()
				continue
			}
			l.state = Building
			l.mu.Unlock()

			l.tick(ctx)

			l.mu.Lock()
			l.state = Idle
			l.mu.Unlock()
		}
	}
}

// tick runs BUILDING → CALLING → PARSING → APPLIED for one iteration.
func (l *Loop) tick(ctx context.Context) {
	start := time.Now()
	outcome := "applied"
	defer func() {
		metrics.AgentTicksTotal.WithLabelValues(outcome).Inc()
		metrics.AgentTickDuration.Observe(time.Since(start).Seconds())
	}()

	preset := scontext.PresetForRichness(l.richness())
	win := scontext.Build(l.feedRing, l.senseRing, preset, 2*60*1000)

	tickCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	l.mu.Lock()
	l.cancelTick = cancel
	l.state = Calling
	l.mu.Unlock()
	defer cancel()

	payload, err := l.peer.Call(tickCtx, "agent.analyze", analyzeParams(l.cfg, win))

	l.mu.Lock()
	l.cancelTick = nil
	l.mu.Unlock()

	if tickCtx.Err() != nil {
		outcome = "timeout"
		slog.Warn("agentloop: analysis call timed out")
		return
	}

	l.mu.Lock()
	l.state = Parsing
	l.mu.Unlock()

	digest, hud, task, record := parseAnalysis(payload, err)
	if err != nil {
		outcome = "skipped"
		l.recordFailure()
		return
	}
	if payload == nil || digest == "" && hud == "Idle" {
		outcome = "malformed"
	}
	l.resetFailures()

	l.feedRing.Push(hud, feed.Normal, "system", feed.ChannelAgent)

	l.mu.Lock()
	l.nextID++
	entry := Entry{
		ID:     l.nextID,
		TS:     time.Now().UnixMilli(),
		Digest: digest,
		HUD:    hud,
		Task:   task,
		Record: record,
		Pushed: true,
	}
	l.lastTickAt = time.Now()
	l.state = Applied
	l.history = append(l.history, entry)
	if len(l.history) > historyCap {
		l.history = l.history[len(l.history)-historyCap:]
	}
	cb := l.onAnalysis
	l.mu.Unlock()

	if cb != nil {
		cb(ctx, entry, win)
	}
}

func (l *Loop) recordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures++
}

func (l *Loop) resetFailures() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = 0
}

// BackoffFailures reports the number of consecutive analysis failures.
// Run doubles the debounce once per such failure, up to MaxIntervalMs.
func (l *Loop) BackoffFailures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// History returns the retained AgentEntry history, oldest first.
func (l *Loop) History() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.history))
	copy(out, l.history)
	return out
}

// CurrentState reports the loop's current per-iteration state.
func (l *Loop) CurrentState() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

type analysisEnvelope struct {
	Digest string           `json:"digest"`
	HUD    string           `json:"hud"`
	Task   string           `json:"task,omitempty"`
	Record *RecordDirective `json:"record,omitempty"`
}

// parseAnalysis extracts {digest, hud, task, record} from the agent's
// JSON envelope. Malformed output (including a transport error) yields
// hud="Idle", digest="".
func parseAnalysis(payload json.RawMessage, callErr error) (digest, hud, task string, record *RecordDirective) {
	if callErr != nil || len(payload) == 0 {
		return "", "Idle", "", nil
	}
	var env analysisEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", "Idle", "", nil
	}
	if env.HUD == "" {
		env.HUD = "Idle"
	}
	return env.Digest, env.HUD, env.Task, env.Record
}
