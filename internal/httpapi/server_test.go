package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sinain/sinain-core/internal/agentloop"
	"github.com/sinain/sinain-core/internal/collab"
	"github.com/sinain/sinain-core/internal/config"
	"github.com/sinain/sinain-core/internal/escalate"
	"github.com/sinain/sinain-core/internal/feed"
	"github.com/sinain/sinain-core/internal/overlay"
	"github.com/sinain/sinain-core/internal/sense"
)

func newTestServer(t *testing.T) (*Server, *feed.Ring, *sense.Ring) {
	t.Helper()
	cfg := &config.Config{
		Port:                 9500,
		AgentDebounceMs:      4000,
		AgentMaxIntervalMs:   60000,
		EscalationMode:       config.ModeSelective,
		EscalationCooldownMs: 30000,
	}
	live := config.NewLive(cfg)

	fr := feed.New(10)
	sr := sense.New(10)
	hub := overlay.New()
	loop := agentloop.New(agentloop.Config{Enabled: false}, fr, sr, collab.NoopAgentRPCPeer{}, func() string { return "lean" })
	esc := escalate.New(
		func() config.EscalationMode { return live.Mode() },
		func() time.Duration { return time.Duration(live.CooldownMs()) * time.Millisecond },
		collab.NoopAgentRPCPeer{}, nil, fr,
	)

	s := New(cfg, live, fr, sr, hub, loop, esc, nil, nil)
	return s, fr, sr
}

func TestHandleFeedPostAndGet(t *testing.T) {
	s, fr, _ := newTestServer(t)
	_ = fr

	body, _ := json.Marshal(map[string]string{"text": "hello", "priority": "high"})
	req := httptest.NewRequest("POST", "/feed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	req2 := httptest.NewRequest("GET", "/feed?after=0", nil)
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, 200, rec2.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	messages, ok := resp["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	require.NotEmpty(t, resp["epoch"])
}

func TestHandleSensePostRejectsMissingFields(t *testing.T) {
	s, _, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"ocr": "x"})
	req := httptest.NewRequest("POST", "/sense", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, 400, rec.Code)
}

func TestHandleSensePostAndGet(t *testing.T) {
	s, _, sr := newTestServer(t)
	_ = sr

	body, _ := json.Marshal(map[string]any{
		"type": "text",
		"ts":   1000,
		"ocr":  "hello world",
		"meta": map[string]any{"app": "vscode", "ssim": 0.5, "screen": 0},
	})
	req := httptest.NewRequest("POST", "/sense", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	req2 := httptest.NewRequest("GET", "/sense?after=0", nil)
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, 200, rec2.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	events, ok := resp["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 1)
}

func TestHandleAgentConfigGetAndPost(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/agent/config", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	patchBody, _ := json.Marshal(map[string]any{"escalationMode": "focus"})
	req2 := httptest.NewRequest("POST", "/agent/config", bytes.NewReader(patchBody))
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, 200, rec2.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	cfg, ok := resp["config"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "focus", cfg["escalationMode"])
}

func TestHandleAgentConfigPostRejectsInvalidMode(t *testing.T) {
	s, _, _ := newTestServer(t)

	patchBody, _ := json.Marshal(map[string]any{"escalationMode": "bogus"})
	req := httptest.NewRequest("POST", "/agent/config", bytes.NewReader(patchBody))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, 400, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["ok"])
	require.Contains(t, resp, "escalation")
}

func TestHandleAgentContext(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/agent/context", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
}
