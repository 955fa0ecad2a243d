package agentloop

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sinain/sinain-core/internal/feed"
	"github.com/sinain/sinain-core/internal/sense"
)

type fakePeer struct {
	payload json.RawMessage
	err     error
	calls   int
}

func (f *fakePeer) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.calls++
	return f.payload, f.err
}

func testConfig() Config {
	return Config{
		DebounceMs:    20,
		MinIntervalMs: 0,
		MaxIntervalMs: 2000,
		Enabled:       true,
	}
}

func TestLoop_NudgeProducesAppliedEntry(t *testing.T) {
	peer := &fakePeer{payload: json.RawMessage(`{"digest":"d","hud":"HUD line"}`)}
	l := New(testConfig(), feed.New(10), sense.New(10), peer, func() string { return "lean" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.OnNewContext()
	require.Eventually(t, func() bool {
		return len(l.History()) == 1
	}, time.Second, 10*time.Millisecond)

	hist := l.History()
	require.Equal(t, "HUD line", hist[0].HUD)
	require.True(t, hist[0].Pushed)
}

func TestLoop_MalformedPayloadYieldsIdle(t *testing.T) {
	peer := &fakePeer{payload: json.RawMessage(`not json`)}
	l := New(testConfig(), feed.New(10), sense.New(10), peer, func() string { return "lean" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.OnNewContext()
	require.Eventually(t, func() bool {
		return len(l.History()) == 1
	}, time.Second, 10*time.Millisecond)

	hist := l.History()
	require.Equal(t, "Idle", hist[0].HUD)
	require.Equal(t, "", hist[0].Digest)
}

func TestLoop_TransportErrorRecordsFailure(t *testing.T) {
	peer := &fakePeer{err: context.DeadlineExceeded}
	l := New(testConfig(), feed.New(10), sense.New(10), peer, func() string { return "lean" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.OnNewContext()
	require.Eventually(t, func() bool {
		return l.BackoffFailures() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestLoop_DisabledNeverTicks(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	peer := &fakePeer{payload: json.RawMessage(`{"digest":"d","hud":"h"}`)}
	l := New(cfg, feed.New(10), sense.New(10), peer, func() string { return "lean" })

	ctx, cancel := context.WithCancel(context.Background())
	l.OnNewContext()
	go l.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	require.Equal(t, 0, peer.calls)
}
