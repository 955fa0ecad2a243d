package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sinain/sinain-core/internal/feed"
)

type feedItemView struct {
	ID       uint64 `json:"id"`
	TS       int64  `json:"ts"`
	Text     string `json:"text"`
	Priority string `json:"priority"`
	Source   string `json:"source"`
	Channel  string `json:"channel"`
}

func (s *Server) handleFeedGet(w http.ResponseWriter, r *http.Request) {
	after := parseUintQuery(r, "after", 0)
	items := s.feedRing.Query(after)
	views := make([]feedItemView, 0, len(items))
	for _, it := range items {
		views = append(views, feedItemView{
			ID:       it.ID,
			TS:       it.TS,
			Text:     it.Text,
			Priority: it.Priority.String(),
			Source:   string(it.Source),
			Channel:  string(it.Channel),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": views})
}

type feedPostBody struct {
	Text     string `json:"text"`
	Priority string `json:"priority"`
}

func (s *Server) handleFeedPost(w http.ResponseWriter, r *http.Request) {
	var body feedPostBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	// feedFanout (internal/orchestrator) is the sole overlay broadcaster;
	// it will pick this item up on its next poll.
	s.feedRing.Push(body.Text, feed.ParsePriority(body.Priority), "system", feed.ChannelStream)
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
