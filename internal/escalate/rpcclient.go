// Package escalate implements C7: the escalation gate, message builder,
// circuit-broken RPC delivery with HTTP fallback, and spawn-task
// bookkeeping.
package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/sinain/sinain-core/internal/id"
)

const (
	rpcResetThreshold = 30 * time.Second
	rpcSendTimeout     = 30 * time.Second
)

// rpcEnvelope is the JSON-RPC-over-WebSocket wire shape for agent.call.
type rpcEnvelope struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcReply struct {
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RPCClient is a persistent, reconnecting WebSocket JSON-RPC client to
// the agent peer, correlating requests to replies by a generated request id.
type RPCClient struct {
	url        string
	sessionKey string

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan rpcReply
}

// NewRPCClient creates a client for the given WebSocket URL and session
// key. Call Run in a goroutine to establish and maintain the connection.
func NewRPCClient(url, sessionKey string) *RPCClient {
	return &RPCClient{
		url:        url,
		sessionKey: sessionKey,
		pending:    make(map[string]chan rpcReply),
	}
}

// Run maintains the connection with exponential backoff (1s→60s,
// factor 2, 0.2 jitter) until ctx is cancelled.
func (c *RPCClient) Run(ctx context.Context) {
	b := newDefaultBackoff()
	for {
		start := time.Now()
		err := c.connectAndReceive(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) >= rpcResetThreshold {
			b.Reset()
		}
		interval := b.NextBackOff()
		slog.Warn("escalate: rpc connection lost, reconnecting", "error", err, "backoff", interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func newDefaultBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 60 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

func (c *RPCClient) connectAndReceive(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var reply rpcReply
		if err := json.Unmarshal(data, &reply); err != nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[reply.ID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- reply:
			default:
			}
		}
	}
}

// Call implements collab.AgentRPCPeer: it sends a request for method with
// a generated request id and the session key, and awaits the reply with
// the same id.
func (c *RPCClient) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("escalate: rpc client not connected")
	}

	paramsWithSession, err := withSessionKey(params, c.sessionKey)
	if err != nil {
		return nil, err
	}

	reqID := "hud-" + id.Short()
	env := rpcEnvelope{ID: reqID, Method: method, Params: paramsWithSession}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ch := make(chan rpcReply, 1)
	c.mu.Lock()
	c.pending[reqID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	sendCtx, cancel := context.WithTimeout(ctx, rpcSendTimeout)
	defer cancel()
	if err := conn.Write(sendCtx, websocket.MessageText, data); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-ch:
		if !reply.OK {
			return nil, fmt.Errorf("escalate: rpc error: %s", reply.Error)
		}
		return reply.Payload, nil
	}
}

func withSessionKey(params any, sessionKey string) (json.RawMessage, error) {
	base, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(base, &m); err != nil {
		m = map[string]any{"value": json.RawMessage(base)}
	}
	m["session_key"] = sessionKey
	return json.Marshal(m)
}
