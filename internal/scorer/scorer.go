// Package scorer implements C6: a pure, side-effect-free escalation
// scoring function over a digest and its surrounding context window.
package scorer

import (
	"regexp"
	"strings"

	"github.com/sinain/sinain-core/internal/context"
)

// Threshold is the minimum score for a score-gated escalation (C7 rule 6).
const Threshold = 3

const (
	errorPoints    = 3
	questionPoints = 2
	issuePoints    = 1
	churnPoints    = 1

	churnMinAppHistory = 4
)

var errorWords = []string{
	"error", "failed", "failure", "exception", "crash", "traceback",
	"typeerror", "referenceerror", "syntaxerror", "cannot read",
	"undefined is not", "exit code", "segfault", "panic", "fatal", "enoent",
}

var questionSubstrings = []string{
	"how do i", "how to", "what if", "why is", "help me",
	"not working", "stuck", "confused", "any ideas", "suggestions",
}

var issueWords = []string{"todo", "fixme", "hack", "workaround", "deprecated"}

var (
	errorPattern = compileWordBoundary(errorWords)
	issuePattern = compileWordBoundary(issueWords)
)

// compileWordBoundary builds a single case-insensitive regexp matching any
// of words at a word boundary. Multi-word phrases (e.g. "cannot read")
// still anchor on \b at each end, which is correct since none of them
// start or end mid-word.
func compileWordBoundary(words []string) *regexp.Regexp {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(parts, "|") + `)\b`)
}

// Result is the scorer's additive breakdown for one tick.
type Result struct {
	Score   int
	Reasons []string
}

// Triggered reports whether the score meets or exceeds Threshold.
func (r Result) Triggered() bool { return r.Score >= Threshold }

// HasErrorPattern reports whether s contains an error pattern word. Used
// by the feedback collector to check whether recent digests are free of
// errors, not just the digest currently being scored.
func HasErrorPattern(s string) bool {
	return errorPattern.MatchString(s)
}

// Score computes the escalation score for a digest against its context
// window. Pure: no I/O, depends only on its arguments.
func Score(digest string, win context.Window) Result {
	var res Result

	if errorPattern.MatchString(digest) {
		res.Score += errorPoints
		res.Reasons = append(res.Reasons, "error_pattern")
	}

	if hasQuestion(win) {
		res.Score += questionPoints
		res.Reasons = append(res.Reasons, "question")
	}

	if issuePattern.MatchString(digest) {
		res.Score += issuePoints
		res.Reasons = append(res.Reasons, "code_issue_marker")
	}

	if len(win.AppHistory) >= churnMinAppHistory {
		res.Score += churnPoints
		res.Reasons = append(res.Reasons, "app_churn")
	}

	return res
}

// hasQuestion checks the recent audio and screen OCR text in the context
// window for any question substring. The digest itself is not a match
// source: a question only counts when it was actually seen or heard.
func hasQuestion(win context.Window) bool {
	for _, a := range win.Audio {
		if containsAny(a.Text, questionSubstrings) {
			return true
		}
	}
	for _, s := range win.Screen {
		if containsAny(s.OCR, questionSubstrings) {
			return true
		}
	}
	return false
}

func containsAny(s string, substrs []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
