package agentloop

import (
	"os"
	"strings"

	scontext "github.com/sinain/sinain-core/internal/context"
)

// analyzeParams builds the deterministic prompt params for the
// agent.analyze RPC call: the situation file's contents (if configured)
// plus a digest-style rendering of the context window.
func analyzeParams(cfg Config, win scontext.Window) map[string]any {
	return map[string]any{
		"model":     cfg.Model,
		"situation": readSituation(cfg.SituationPath),
		"context":   renderDigest(win),
	}
}

func readSituation(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// renderDigest flattens a context window into a compact text block the
// agent can reason over, mirroring the order fields were collected in.
func renderDigest(win scontext.Window) string {
	var b strings.Builder

	b.WriteString("app: ")
	b.WriteString(win.CurrentApp)
	b.WriteString("\n")

	if len(win.Audio) > 0 {
		b.WriteString("audio:\n")
		for _, a := range win.Audio {
			b.WriteString("- ")
			b.WriteString(a.Text)
			b.WriteString("\n")
		}
	}

	if len(win.Screen) > 0 {
		b.WriteString("screen:\n")
		for _, s := range win.Screen {
			if s.OCR == "" {
				continue
			}
			b.WriteString("- [")
			b.WriteString(s.App)
			b.WriteString("] ")
			b.WriteString(s.OCR)
			b.WriteString("\n")
		}
	}

	if len(win.AppHistory) > 0 {
		b.WriteString("app_history:\n")
		for _, h := range win.AppHistory {
			b.WriteString("- ")
			b.WriteString(h.App)
			b.WriteString("\n")
		}
	}

	return b.String()
}
