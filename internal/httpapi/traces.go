package httpapi

import (
	"net/http"
)

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	after := int64(parseUintQuery(r, "after", 0))
	limit := int(parseUintQuery(r, "limit", 100))

	records, err := s.traces.Query(r.Context(), after, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "trace query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"traces": records})
}
