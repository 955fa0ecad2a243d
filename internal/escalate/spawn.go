package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sinain/sinain-core/internal/feed"
)

// PendingSpawn tracks a task handed off to the agent for asynchronous
// completion, persisted to disk so it survives a restart.
type PendingSpawn struct {
	RunID          string `json:"run_id"`
	ChildSessionKey string `json:"child_session_key"`
	Label          string `json:"label,omitempty"`
	StartedAt      int64  `json:"started_at"`
	PollingEmitted bool   `json:"polling_emitted"`
}

const spawnDedupWindow = 60 * time.Second

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeTask(task string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(strings.TrimSpace(task), " "))
}

// SpawnManager implements the spawn-task subprotocol: dispatch, dedup,
// atomic persistence, and completion polling.
type SpawnManager struct {
	path     string
	peer     interface {
		Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	}
	feedRing *feed.Ring

	mu       sync.Mutex
	pending  map[string]*PendingSpawn // run_id -> spawn
	recent   map[string]time.Time     // normalized task -> last dispatch time
}

// NewSpawnManager creates a SpawnManager persisting to path.
func NewSpawnManager(path string, peer interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}, feedRing *feed.Ring) *SpawnManager {
	return &SpawnManager{
		path:     path,
		peer:     peer,
		feedRing: feedRing,
		pending:  make(map[string]*PendingSpawn),
		recent:   make(map[string]time.Time),
	}
}

// LoadPending restores pending spawns from disk at startup so polling can
// resume across a restart.
func (s *SpawnManager) LoadPending() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("spawn: read pending file: %w", err)
	}

	var spawns []PendingSpawn
	if err := json.Unmarshal(data, &spawns); err != nil {
		return fmt.Errorf("spawn: parse pending file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range spawns {
		sp := spawns[i]
		s.pending[sp.RunID] = &sp
	}
	return nil
}

// persist atomically writes the current pending set: write a tempfile in
// the same directory, then rename over the target.
func (s *SpawnManager) persist() error {
	s.mu.Lock()
	spawns := make([]PendingSpawn, 0, len(s.pending))
	for _, sp := range s.pending {
		spawns = append(spawns, *sp)
	}
	s.mu.Unlock()

	data, err := json.Marshal(spawns)
	if err != nil {
		return fmt.Errorf("spawn: marshal pending: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".pending-tasks-*.tmp")
	if err != nil {
		return fmt.Errorf("spawn: create tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("spawn: write tempfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("spawn: close tempfile: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("spawn: rename tempfile: %w", err)
	}
	return nil
}

type spawnDispatchResult struct {
	RunID           string `json:"runId"`
	ChildSessionKey string `json:"childSessionKey"`
}

// DispatchSpawnTask sends a spawn request for task, deduplicating an
// identical normalized task within spawnDedupWindow.
func (s *SpawnManager) DispatchSpawnTask(ctx context.Context, task, label string) (*PendingSpawn, error) {
	norm := normalizeTask(task)

	s.mu.Lock()
	if last, ok := s.recent[norm]; ok && time.Since(last) < spawnDedupWindow {
		s.mu.Unlock()
		return nil, fmt.Errorf("spawn: duplicate task within dedup window")
	}
	s.recent[norm] = time.Now()
	s.mu.Unlock()

	payload, err := s.peer.Call(ctx, "agent.spawn", map[string]any{"task": task, "label": label})
	if err != nil {
		return nil, fmt.Errorf("spawn: dispatch: %w", err)
	}

	var result spawnDispatchResult
	if err := json.Unmarshal(payload, &result); err != nil || result.RunID == "" {
		return nil, fmt.Errorf("spawn: malformed dispatch reply")
	}

	sp := &PendingSpawn{
		RunID:           result.RunID,
		ChildSessionKey: result.ChildSessionKey,
		Label:           label,
		StartedAt:       time.Now().UnixMilli(),
	}

	s.mu.Lock()
	s.pending[sp.RunID] = sp
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		slog.Warn("spawn: persist pending spawn failed", "error", err)
	}

	go s.pollTaskCompletion(context.Background(), sp.RunID)

	return sp, nil
}

type waitReply struct {
	Status string `json:"status"`
}

type historyReply struct {
	Messages []struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"messages"`
}

const (
	pollInterval  = 5 * time.Second
	pollBudget    = 5 * time.Minute
	pollWaitMs    = 5000
)

// pollTaskCompletion polls agent.wait every 5s up to a 5-minute total
// budget. On shutdown, unfinished entries remain on disk for the next
// restart to resume.
func (s *SpawnManager) pollTaskCompletion(ctx context.Context, runID string) {
	deadline := time.Now().Add(pollBudget)

	for time.Now().Before(deadline) {
		waitCtx, cancel := context.WithTimeout(ctx, pollInterval+2*time.Second)
		payload, err := s.peer.Call(waitCtx, "agent.wait", map[string]any{"run_id": runID, "timeout_ms": pollWaitMs})
		cancel()

		if err != nil {
			time.Sleep(pollInterval)
			continue
		}

		var reply waitReply
		if json.Unmarshal(payload, &reply) != nil {
			time.Sleep(pollInterval)
			continue
		}

		switch reply.Status {
		case "ok", "completed":
			s.fetchAndPushHistory(ctx, runID)
			s.forget(runID)
			return
		case "error", "failed":
			slog.Warn("spawn: task failed", "run_id", runID)
			s.forget(runID)
			return
		case "timeout":
			continue
		default:
			time.Sleep(pollInterval)
		}
	}
}

func (s *SpawnManager) fetchAndPushHistory(ctx context.Context, runID string) {
	s.mu.Lock()
	sp, ok := s.pending[runID]
	s.mu.Unlock()
	if !ok {
		return
	}

	payload, err := s.peer.Call(ctx, "chat.history", map[string]any{"session_key": sp.ChildSessionKey, "limit": 10})
	if err != nil {
		slog.Warn("spawn: fetch history failed", "run_id", runID, "error", err)
		return
	}

	var hist historyReply
	if json.Unmarshal(payload, &hist) != nil {
		return
	}

	for i := len(hist.Messages) - 1; i >= 0; i-- {
		if hist.Messages[i].Role == "assistant" {
			label := sp.Label
			if label == "" {
				label = sp.RunID
			}
			s.feedRing.Push(label+":\n"+hist.Messages[i].Text, feed.High, "openclaw", feed.ChannelAgent)
			return
		}
	}
}

func (s *SpawnManager) forget(runID string) {
	s.mu.Lock()
	delete(s.pending, runID)
	s.mu.Unlock()
	if err := s.persist(); err != nil {
		slog.Warn("spawn: persist after completion failed", "error", err)
	}
}

// ResumePending restarts polling for every spawn restored from disk.
func (s *SpawnManager) ResumePending(ctx context.Context) {
	s.mu.Lock()
	runIDs := make([]string, 0, len(s.pending))
	for id := range s.pending {
		runIDs = append(runIDs, id)
	}
	s.mu.Unlock()

	for _, runID := range runIDs {
		go s.pollTaskCompletion(ctx, runID)
	}
}

// PendingCount reports the number of in-flight spawns, for /health.
func (s *SpawnManager) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
