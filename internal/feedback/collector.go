package feedback

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sinain/sinain-core/internal/agentloop"
	"github.com/sinain/sinain-core/internal/scorer"
	"github.com/sinain/sinain-core/internal/sense"
	"github.com/sinain/sinain-core/internal/timefmt"
)

const (
	pass1Delay = 60 * time.Second
	pass2Delay = 120 * time.Second
	pass3Delay = 300 * time.Second

	noReEscalationWindow = 300 * time.Second
	quickSwitchWindow    = 10 * time.Second
	dwellLongThreshold   = 60 * time.Second
	dwellShortThreshold  = 10 * time.Second
)

// Deps are the read-only buffers the collector samples from, injected so
// it never owns C5/C2 state directly.
type Deps struct {
	RecentDigests func(n int) []string
	PushedEntries func() []agentloop.Entry
	AppHistory    func(sinceTS int64) []sense.AppHistoryEntry
}

// Collector is C8's deferred signal backfill: it arms three passes per
// record at +60s/+120s/+300s, each recomputing FeedbackSignals from
// whatever buffers exist at that moment.
type Collector struct {
	store *Store
	deps  Deps

	mu        sync.Mutex
	scheduled map[string]Record
}

// NewCollector creates a Collector writing signal updates to store.
func NewCollector(store *Store, deps Deps) *Collector {
	return &Collector{store: store, deps: deps, scheduled: make(map[string]Record)}
}

// Schedule arms the three deferred passes for record. Call this
// immediately after Store.Append.
func (c *Collector) Schedule(record Record) {
	c.mu.Lock()
	c.scheduled[record.ID] = record
	c.mu.Unlock()

	go c.runPass(record, pass1Delay, false)
	go c.runPass(record, pass2Delay, false)
	go c.runPass(record, pass3Delay, true)
}

func (c *Collector) runPass(record Record, delay time.Duration, final bool) {
	time.Sleep(delay)

	signals := c.compute(record, delay)
	date := timefmt.DayKey(time.UnixMilli(record.TS))
	if err := c.store.UpdateSignals(record.ID, date, signals); err != nil {
		slog.Warn("feedback: update signals failed", "id", record.ID, "error", err)
	}

	if final {
		c.mu.Lock()
		delete(c.scheduled, record.ID)
		c.mu.Unlock()
	}
}

func containsErrorReason(reasons []string) bool {
	for _, r := range reasons {
		if strings.HasPrefix(r, "error") {
			return true
		}
	}
	return false
}

func reasonsOverlap(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, r := range a {
		set[r] = true
	}
	for _, r := range b {
		if set[r] {
			return true
		}
	}
	return false
}

func (c *Collector) compute(record Record, elapsed time.Duration) Signals {
	var sig Signals

	if containsErrorReason(record.EscalationReasons) {
		clean := true
		for _, d := range c.deps.RecentDigests(3) {
			if scorer.HasErrorPattern(d) {
				clean = false
				break
			}
		}
		sig.ErrorCleared = &clean
	}

	if elapsed >= pass1Delay {
		noReEscalation := true
		c.mu.Lock()
		for id, other := range c.scheduled {
			if id == record.ID {
				continue
			}
			delta := other.TS - record.TS
			if delta > 0 && time.Duration(delta)*time.Millisecond <= noReEscalationWindow &&
				reasonsOverlap(record.EscalationReasons, other.EscalationReasons) {
				noReEscalation = false
				break
			}
		}
		c.mu.Unlock()
		sig.NoReEscalation = &noReEscalation
	}

	for _, e := range c.deps.PushedEntries() {
		if e.Pushed && e.TS > record.TS {
			dwell := e.TS - record.TS
			sig.DwellTimeMs = &dwell
			break
		}
	}

	quickSwitch := false
	hist := c.deps.AppHistory(record.TS)
	for _, h := range hist {
		delta := h.TS - record.TS
		if delta > 0 && time.Duration(delta)*time.Millisecond <= quickSwitchWindow {
			quickSwitch = true
			break
		}
	}
	sig.QuickAppSwitch = &quickSwitch

	sig.Composite = composite(sig)
	return sig
}

// composite computes the weighted-sum outcome score, clamped to [-1, 1].
// Each known signal contributes weight*value; unknown signals contribute
// nothing. Weights: error_cleared 0.5, no_re_escalation 0.3, dwell 0.15,
// quick_app_switch 0.1.
func composite(sig Signals) *float64 {
	var sum float64
	any := false

	if sig.ErrorCleared != nil {
		any = true
		if *sig.ErrorCleared {
			sum += 0.5 * 0.5
		} else {
			sum += 0.5 * -0.3
		}
	}

	if sig.NoReEscalation != nil {
		any = true
		if *sig.NoReEscalation {
			sum += 0.3 * 0.3
		} else {
			sum += 0.3 * -0.2
		}
	}

	if sig.DwellTimeMs != nil {
		any = true
		d := time.Duration(*sig.DwellTimeMs) * time.Millisecond
		switch {
		case d > dwellLongThreshold:
			sum += 0.15 * 0.15
		case d < dwellShortThreshold:
			sum += 0.15 * -0.1
		}
	}

	if sig.QuickAppSwitch != nil {
		any = true
		if *sig.QuickAppSwitch {
			sum += 0.1 * -0.15
		} else {
			sum += 0.1 * 0.05
		}
	}

	if !any {
		return nil
	}

	if sum > 1 {
		sum = 1
	} else if sum < -1 {
		sum = -1
	}
	return &sum
}
