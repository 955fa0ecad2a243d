// Package sense implements C2: a bounded ring of screen/OCR sensor
// events with same-app OCR deduplication and app-transition history.
package sense

import (
	"sync"
	"time"

	"github.com/sinain/sinain-core/internal/metrics"
)

// EventType is a closed, tagged variant for sense events; unknown
// variants are rejected at ingestion (see Admit).
type EventType string

const (
	TypeText    EventType = "text"
	TypeContext EventType = "context"
	TypeImage   EventType = "image"
)

func (t EventType) valid() bool {
	switch t {
	case TypeText, TypeContext, TypeImage:
		return true
	default:
		return false
	}
}

// Rect is an on-screen bounding box, used to locate OCR/ROI snippets.
type Rect struct {
	X, Y, W, H int
}

// Event is a single admitted sense event.
type Event struct {
	ID          uint64
	TS          int64
	Type        EventType
	App         string
	WindowTitle string
	ScreenID    int
	SSIM        float64
	OCR         string
	Image       []byte
	BBox        *Rect
}

// HasImage reports whether this event carries image bytes.
func (e Event) HasImage() bool { return len(e.Image) > 0 }

// AppHistoryEntry records an app transition.
type AppHistoryEntry struct {
	TS  int64
	App string
}

const defaultCapacity = 30

// Ring is C2: a bounded, single-writer/many-reader sequence of sense
// events with type-aware coalescing and derived app-transition history.
type Ring struct {
	mu         sync.RWMutex
	events     []Event // oldest-first
	capacity   int
	nextID     uint64
	lastOCR    map[string]string // app -> most recent OCR text, for dedup
	appHistory []AppHistoryEntry // derived: one entry per app transition
	lastApp    string
	deltaCursor uint64
}

// New creates a Ring with the given capacity (default 30 if <= 0).
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Ring{capacity: capacity, lastOCR: make(map[string]string)}
}

// AdmitResult reports the outcome of an Admit call.
type AdmitResult struct {
	Event        Event
	Deduplicated bool
	Rejected     bool // unknown event type
}

// Admit attempts to add a new sense event. Two consecutive events with
// the same (app, ocr) are coalesced: the second is rejected as a
// duplicate and AdmitResult.Deduplicated is true. Events with an unknown
// Type are rejected outright (AdmitResult.Rejected).
func (r *Ring) Admit(e Event) AdmitResult {
	if !e.Type.valid() {
		return AdmitResult{Rejected: true}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e.OCR != "" && r.lastOCR[e.App] == e.OCR {
		return AdmitResult{Deduplicated: true}
	}

	r.nextID++
	e.ID = r.nextID
	if e.TS == 0 {
		e.TS = time.Now().UnixMilli()
	}

	if e.OCR != "" {
		r.lastOCR[e.App] = e.OCR
	}

	if e.App != "" && e.App != r.lastApp {
		r.appHistory = append(r.appHistory, AppHistoryEntry{TS: e.TS, App: e.App})
		r.lastApp = e.App
	}

	if len(r.events) >= r.capacity {
		copy(r.events, r.events[1:])
		r.events[len(r.events)-1] = e
	} else {
		r.events = append(r.events, e)
	}

	metrics.SenseEventsTotal.Inc()
	return AdmitResult{Event: e}
}

// Query returns retained events with ID strictly greater than afterID,
// oldest first. When metaOnly is true, Image bytes are stripped from the
// returned copies to keep the response small.
func (r *Ring) Query(afterID uint64, metaOnly bool) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Event, 0)
	for _, e := range r.events {
		if e.ID > afterID {
			if metaOnly {
				e.Image = nil
			}
			out = append(out, e)
		}
	}
	return out
}

// QueryByTime returns retained events with TS >= sinceTS, oldest first.
func (r *Ring) QueryByTime(sinceTS int64) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Event, 0)
	for _, e := range r.events {
		if e.TS >= sinceTS {
			out = append(out, e)
		}
	}
	return out
}

// AppHistory returns app-transition entries with TS >= sinceTS.
// Contiguous runs of the same app are already collapsed at admission
// time, so no further compression is needed here.
func (r *Ring) AppHistory(sinceTS int64) []AppHistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AppHistoryEntry, 0)
	for _, h := range r.appHistory {
		if h.TS >= sinceTS {
			out = append(out, h)
		}
	}
	return out
}

// RecentImages returns up to n most recent image-bearing events, newest
// first.
func (r *Ring) RecentImages(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Event, 0, n)
	for i := len(r.events) - 1; i >= 0 && len(out) < n; i-- {
		if r.events[i].HasImage() {
			out = append(out, r.events[i])
		}
	}
	return out
}

// LatestActivity returns the most recent event's app and timestamp, or
// ("unknown", 0) if the ring is empty.
func (r *Ring) LatestActivity() (app string, ts int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.events) == 0 {
		return "unknown", 0
	}
	last := r.events[len(r.events)-1]
	return last.App, last.TS
}

// AccumulatedDeltas returns every retained event since the last flush. If
// flush is true, the internal cursor advances so a subsequent call with
// flush=false returns nothing new until more events are admitted.
func (r *Ring) AccumulatedDeltas(flush bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0)
	for _, e := range r.events {
		if e.ID > r.deltaCursor {
			out = append(out, e)
		}
	}
	if flush && len(r.events) > 0 {
		r.deltaCursor = r.events[len(r.events)-1].ID
	}
	return out
}

// Len reports the number of events currently retained.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
