package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sinain/sinain-core/internal/sinerr"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v map[string]any) {
	if v == nil {
		v = map[string]any{}
	}
	v["epoch"] = s.epoch
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError responds with a 4xx/5xx JSON error. 4xx is classified as
// input validation per the error taxonomy and logged at debug, never
// error level; 5xx is logged at warn.
func writeError(w http.ResponseWriter, status int, msg string) {
	if status >= 400 && status < 500 {
		slog.Debug("httpapi: rejected request", "error", sinerr.New(sinerr.Validation, msg))
	} else {
		slog.Warn("httpapi: request failed", "error", sinerr.New(sinerr.Persistent, msg))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": msg})
}
