package escalate

import (
	"encoding/base64"
	"fmt"
	"strings"

	scontext "github.com/sinain/sinain-core/internal/context"
)

const topOCRLines = 5

// ideApps is the static set of app names treated as a coding context for
// response-length capping, per the resolved Open Question in the design
// notes: coding context = IDE/terminal app name OR a code-issue marker
// hit in the digest.
var ideApps = map[string]bool{
	"vscode": true, "code": true, "iterm2": true, "terminal": true,
	"warp": true, "cursor": true, "intellij idea": true, "goland": true,
	"sublime text": true, "vim": true, "neovim": true, "xcode": true,
}

// IsCodingContext reports whether app or digest indicate a coding
// session.
func IsCodingContext(app, digest string) bool {
	if ideApps[strings.ToLower(app)] {
		return true
	}
	lower := strings.ToLower(digest)
	for _, marker := range []string{"todo", "fixme", "hack", "workaround", "deprecated"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// BuildMessage renders the escalation message for the given mode, digest,
// and context window. Richer modes append more detail; rich additionally
// attaches base64-encoded images.
func BuildMessage(mode string, digest string, win scontext.Window) string {
	var b strings.Builder

	fmt.Fprintf(&b, "digest: %s\n", digest)
	fmt.Fprintf(&b, "app: %s\n", win.CurrentApp)

	if len(win.Audio) > 0 {
		b.WriteString("recent audio:\n")
		for _, a := range win.Audio {
			fmt.Fprintf(&b, "- %s\n", a.Text)
		}
	}

	ocrLines := topOCRLines
	b.WriteString("ocr:\n")
	for _, s := range win.Screen {
		if s.OCR == "" || ocrLines == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", s.OCR)
		ocrLines--
	}

	if mode == "standard" || mode == "focus" || mode == "rich" {
		b.WriteString("app_history:\n")
		for _, h := range win.AppHistory {
			fmt.Fprintf(&b, "- %s\n", h.App)
		}
	}

	if mode == "rich" {
		for i, img := range win.Images {
			fmt.Fprintf(&b, "image[%d] (%s): %s\n", i, img.App, base64.StdEncoding.EncodeToString(img.Bytes))
		}
	}

	return b.String()
}

// CapResponse caps a response's length, 4000 chars in a coding context,
// 2000 otherwise.
func CapResponse(text string, coding bool) string {
	limit := 2000
	if coding {
		limit = 4000
	}
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit])
}
