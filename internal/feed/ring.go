// Package feed implements C1: a bounded, ordered ring of outbound text
// items tagged by source, priority, and channel.
package feed

import (
	"sync"
	"time"

	"github.com/sinain/sinain-core/internal/metrics"
)

// Priority is totally ordered: Urgent > High > Normal.
type Priority int

const (
	Normal Priority = iota
	High
	Urgent
)

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Urgent:
		return "urgent"
	default:
		return "normal"
	}
}

// ParsePriority converts a string to a Priority, defaulting to Normal
// for anything unrecognized.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return High
	case "urgent":
		return Urgent
	default:
		return Normal
	}
}

// Channel distinguishes the stream-of-consciousness feed from the
// agent's own replies.
type Channel string

const (
	ChannelStream Channel = "stream"
	ChannelAgent  Channel = "agent"
)

// Item is a single admitted feed entry. Never mutated after admission.
type Item struct {
	ID       uint64
	TS       int64
	Text     string
	Priority Priority
	Source   string
	Channel  Channel
}

const defaultCapacity = 100

// Ring is a bounded, append-only, single-writer/many-reader sequence of
// Items. The zero value is not usable; use New.
type Ring struct {
	mu       sync.RWMutex
	items    []Item // oldest-first
	capacity int
	nextID   uint64
}

// New creates a Ring with the given capacity (default 100 if <= 0).
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Ring{capacity: capacity}
}

// Push admits a new item, evicting the oldest entry first if the ring is
// at capacity. Returns a copy of the admitted item.
func (r *Ring) Push(text string, priority Priority, source string, channel Channel) Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	it := Item{
		ID:       r.nextID,
		TS:       time.Now().UnixMilli(),
		Text:     text,
		Priority: priority,
		Source:   source,
		Channel:  channel,
	}

	if len(r.items) >= r.capacity {
		copy(r.items, r.items[1:])
		r.items[len(r.items)-1] = it
	} else {
		r.items = append(r.items, it)
	}

	metrics.FeedItemsTotal.WithLabelValues(source).Inc()
	return it
}

// Query returns every retained item with ID strictly greater than
// afterID, oldest first. Readers always observe a consistent snapshot;
// no torn reads are possible since items are copied under the read lock.
func (r *Ring) Query(afterID uint64) []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Item, 0, len(r.items))
	for _, it := range r.items {
		if it.ID > afterID {
			out = append(out, it)
		}
	}
	return out
}

// QueryBySource returns retained items from the given source admitted at
// or after sinceTS (epoch ms), oldest first.
func (r *Ring) QueryBySource(source string, sinceTS int64) []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Item, 0)
	for _, it := range r.items {
		if it.Source == source && it.TS >= sinceTS {
			out = append(out, it)
		}
	}
	return out
}

// Snapshot returns every retained item, oldest first.
func (r *Ring) Snapshot() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

// Len reports the number of items currently retained.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

