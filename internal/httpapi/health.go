package httpapi

import "net/http"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.escalator.Stats()

	body := map[string]any{
		"ok":             true,
		"messages":       s.feedRing.Len(),
		"senseEvents":    s.senseRing.Len(),
		"overlayClients": s.hub.ClientCount(),
		"agent": map[string]any{
			"state": s.loop.CurrentState().String(),
		},
		"escalation": map[string]any{
			"escalations": stats.Escalations,
			"errors":      stats.Errors,
			"noReply":     stats.NoReply,
			"circuitOpen": s.escalator.CircuitOpen(),
		},
	}
	if s.spawnMgr != nil {
		body["pendingSpawns"] = s.spawnMgr.PendingCount()
	}
	body["traces"] = s.traces != nil
	s.writeJSON(w, http.StatusOK, body)
}
