package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sinain/sinain-core/internal/sanitize"
	"github.com/sinain/sinain-core/internal/sense"
)

const maxOCRLen = 8192

type roiPayload struct {
	Data string     `json:"data"`
	BBox *sense.Rect `json:"bbox"`
}

type senseMeta struct {
	SSIM        float64 `json:"ssim"`
	App         string  `json:"app"`
	WindowTitle string  `json:"windowTitle"`
	Screen      int     `json:"screen"`
}

type sensePostBody struct {
	Type string      `json:"type"`
	TS   int64       `json:"ts"`
	OCR  string      `json:"ocr"`
	ROI  *roiPayload `json:"roi"`
	Meta senseMeta   `json:"meta"`
}

func (s *Server) handleSensePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSenseBodyBytes)

	var body sensePostBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Type == "" || body.TS == 0 {
		writeError(w, http.StatusBadRequest, "type and ts are required")
		return
	}

	var image []byte
	if body.ROI != nil && body.ROI.Data != "" {
		decoded, err := base64.StdEncoding.DecodeString(body.ROI.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, "roi.data is not valid base64")
			return
		}
		image = decoded
	}

	var bbox *sense.Rect
	if body.ROI != nil {
		bbox = body.ROI.BBox
	}

	result := s.senseRing.Admit(sense.Event{
		TS:          body.TS,
		Type:        sense.EventType(body.Type),
		App:         body.Meta.App,
		WindowTitle: body.Meta.WindowTitle,
		ScreenID:    body.Meta.Screen,
		SSIM:        body.Meta.SSIM,
		OCR:         sanitize.Text(body.OCR, maxOCRLen),
		Image:       image,
		BBox:        bbox,
	})

	if result.Rejected {
		writeError(w, http.StatusBadRequest, "unknown sense event type")
		return
	}
	if result.Deduplicated {
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deduplicated": true})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": result.Event.ID})
}

type senseEventView struct {
	ID          uint64 `json:"id"`
	TS          int64  `json:"ts"`
	Type        string `json:"type"`
	App         string `json:"app,omitempty"`
	WindowTitle string `json:"windowTitle,omitempty"`
	Screen      int    `json:"screen,omitempty"`
	SSIM        float64 `json:"ssim,omitempty"`
	OCR         string `json:"ocr,omitempty"`
	Image       string `json:"image,omitempty"`
}

func (s *Server) handleSenseGet(w http.ResponseWriter, r *http.Request) {
	after := parseUintQuery(r, "after", 0)
	metaOnly := r.URL.Query().Get("meta_only") == "true" || r.URL.Query().Get("meta_only") == "1"

	events := s.senseRing.Query(after, metaOnly)
	views := make([]senseEventView, 0, len(events))
	for _, e := range events {
		v := senseEventView{
			ID:          e.ID,
			TS:          e.TS,
			Type:        string(e.Type),
			App:         e.App,
			WindowTitle: e.WindowTitle,
			Screen:      e.ScreenID,
			SSIM:        e.SSIM,
			OCR:         e.OCR,
		}
		if !metaOnly && len(e.Image) > 0 {
			v.Image = base64.StdEncoding.EncodeToString(e.Image)
		}
		views = append(views, v)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

func parseUintQuery(r *http.Request, key string, def uint64) uint64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}
