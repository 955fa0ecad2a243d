// Package overlay implements C4: a WebSocket fan-out hub for HUD overlay
// clients. It accepts connections, streams feed/status frames, and
// routes incoming command frames to a registered listener.
package overlay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/sinain/sinain-core/internal/feed"
	"github.com/sinain/sinain-core/internal/id"
	"github.com/sinain/sinain-core/internal/metrics"
)

const (
	pingInterval    = 30 * time.Second
	maxMissedPongs  = 3
	sendQueueCap    = 32
	handshakeWindow = 10 * time.Second
)

// Frame is the envelope for every message sent to overlay clients.
type Frame struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Priority string          `json:"priority,omitempty"`
	Channel  string          `json:"channel,omitempty"`
	State    json.RawMessage `json:"state,omitempty"`
	TS       int64           `json:"ts,omitempty"`
}

// CommandHandler is invoked for every incoming "command" frame.
type CommandHandler func(clientID string, payload json.RawMessage)

type client struct {
	id          string
	conn        *websocket.Conn
	send        chan Frame
	connectedAt time.Time
	lastPongTS  atomicTime
	missedPongs int
	cancel      context.CancelFunc
}

// Hub is C4: the overlay fan-out server. The zero value is not usable;
// use New.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	onIncoming CommandHandler
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// OnIncoming registers the callback invoked for incoming command frames.
func (h *Hub) OnIncoming(cb CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onIncoming = cb
}

// ClientCount reports the number of currently connected overlay clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP accepts a WebSocket connection, registers the client, sends
// an initial status frame, and services it until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("overlay: accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		id:          id.Short(),
		conn:        conn,
		send:        make(chan Frame, sendQueueCap),
		connectedAt: time.Now(),
		cancel:      cancel,
	}
	c.lastPongTS.Store(time.Now())

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.OverlayClientsActive.Inc()

	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		metrics.OverlayClientsActive.Dec()
		_ = conn.CloseNow()
	}()

	h.enqueue(c, Frame{Type: "status", TS: time.Now().UnixMilli()})

	go h.writeLoop(ctx, c)
	go h.pingLoop(ctx, c)

	h.readLoop(ctx, c)
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			data, err := json.Marshal(f)
			if err != nil {
				cancel()
				continue
			}
			err = c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
			metrics.OverlayMessagesTotal.Inc()
		}
	}
}

func (h *Hub) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(c.lastPongTS.Load()) > pingInterval*time.Duration(maxMissedPongs) {
				c.missedPongs++
			}
			if c.missedPongs >= maxMissedPongs {
				metrics.OverlayClientsDropped.Inc()
				c.cancel()
				return
			}
			h.enqueue(c, Frame{Type: "ping", TS: time.Now().UnixMilli()})
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var in struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}

		switch in.Type {
		case "pong":
			c.lastPongTS.Store(time.Now())
			c.missedPongs = 0
		case "command":
			h.mu.RLock()
			cb := h.onIncoming
			h.mu.RUnlock()
			if cb != nil {
				cb(c.id, in.Payload)
			}
		}
	}
}

// enqueue delivers a frame to a single client's send queue, dropping the
// client instead of blocking if the queue is full.
func (h *Hub) enqueue(c *client, f Frame) {
	select {
	case c.send <- f:
	default:
		metrics.OverlayClientsDropped.Inc()
		c.cancel()
	}
}

// Broadcast fans a feed item out to every connected client.
func (h *Hub) Broadcast(text string, priority feed.Priority, channel feed.Channel) {
	f := Frame{
		Type:     "feed",
		Text:     text,
		Priority: priority.String(),
		Channel:  string(channel),
		TS:       time.Now().UnixMilli(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, f)
	}
}

// UpdateState fans a partial state document out to every connected
// client as a "state" frame.
func (h *Hub) UpdateState(partial json.RawMessage) {
	f := Frame{Type: "state", State: partial, TS: time.Now().UnixMilli()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, f)
	}
}
