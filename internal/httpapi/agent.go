package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sinain/sinain-core/internal/config"
	scontext "github.com/sinain/sinain-core/internal/context"
)

func (s *Server) handleAgentDigest(w http.ResponseWriter, r *http.Request) {
	history := s.loop.History()
	digest := ""
	if len(history) > 0 {
		digest = history[len(history)-1].Digest
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "digest": digest})
}

func (s *Server) handleAgentHistory(w http.ResponseWriter, r *http.Request) {
	limit := int(parseUintQuery(r, "limit", 20))
	history := s.loop.History()
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "results": history})
}

func (s *Server) handleAgentContext(w http.ResponseWriter, r *http.Request) {
	preset := scontext.PresetForRichness(s.live.Mode().Richness())
	win := scontext.Build(s.feedRing, s.senseRing, preset, 2*60*1000)
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "context": win})
}

func (s *Server) handleAgentConfigGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": s.configSnapshot()})
}

type agentConfigPatch struct {
	EscalationMode       *string `json:"escalationMode"`
	EscalationCooldownMs *int    `json:"escalationCooldownMs"`
}

func (s *Server) handleAgentConfigPost(w http.ResponseWriter, r *http.Request) {
	var patch agentConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if patch.EscalationMode != nil {
		mode, ok := config.ParseEscalationMode(*patch.EscalationMode)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid escalationMode")
			return
		}
		s.live.SetMode(mode)
	}
	if patch.EscalationCooldownMs != nil {
		s.live.SetCooldownMs(*patch.EscalationCooldownMs)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": s.configSnapshot()})
}

func (s *Server) configSnapshot() map[string]any {
	return map[string]any{
		"escalationMode":       string(s.live.Mode()),
		"escalationCooldownMs": s.live.CooldownMs(),
		"debounceMs":           s.cfg.AgentDebounceMs,
		"maxIntervalMs":        s.cfg.AgentMaxIntervalMs,
	}
}
