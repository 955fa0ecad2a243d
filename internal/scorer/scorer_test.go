package scorer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sinain/sinain-core/internal/context"
	"github.com/sinain/sinain-core/internal/feed"
	"github.com/sinain/sinain-core/internal/sense"
)

func TestScore_ErrorPattern(t *testing.T) {
	res := Score("TypeError: cannot read property of undefined", context.Window{})
	require.GreaterOrEqual(t, res.Score, errorPoints)
	require.Contains(t, res.Reasons, "error_pattern")
}

func TestScore_NoFalsePositiveOnSubstring(t *testing.T) {
	// "errorhandling" should not match \berror\b as a standalone word,
	// but it does contain "error" as a substring of a larger token, so
	// the word-boundary regexp must NOT trigger here.
	res := Score("refactor errorhandling module", context.Window{})
	require.Equal(t, 0, res.Score)
}

func TestScore_QuestionInDigestAloneDoesNotCount(t *testing.T) {
	// The question signal is scoped to recent audio/screen OCR, not the
	// digest text itself.
	res := Score("user asked how do i configure this", context.Window{})
	require.NotContains(t, res.Reasons, "question")
}

func TestScore_QuestionInAudio(t *testing.T) {
	win := context.Window{Audio: []feed.Item{{Text: "why is this not working"}}}
	res := Score("working on the parser", win)
	require.Contains(t, res.Reasons, "question")
}

func TestScore_QuestionInScreenOCR(t *testing.T) {
	win := context.Window{Screen: []sense.Event{{OCR: "stuck on this error message"}}}
	res := Score("plain digest", win)
	require.Contains(t, res.Reasons, "question")
}

func TestScore_CodeIssueMarker(t *testing.T) {
	res := Score("left a TODO in the handler", context.Window{})
	require.Contains(t, res.Reasons, "code_issue_marker")
	require.Equal(t, issuePoints, res.Score)
}

func TestScore_AppChurn(t *testing.T) {
	win := context.Window{
		AppHistory: []sense.AppHistoryEntry{{App: "a"}, {App: "b"}, {App: "c"}, {App: "d"}},
	}
	res := Score("plain digest", win)
	require.Contains(t, res.Reasons, "app_churn")
	require.Equal(t, churnPoints, res.Score)
}

func TestScore_EachCategoryOnce(t *testing.T) {
	res := Score("error error error failed failed crash crash", context.Window{})
	require.Equal(t, errorPoints, res.Score)
}

func TestScore_TriggersAtThreshold(t *testing.T) {
	win := context.Window{Audio: []feed.Item{{Text: "how do i fix this"}}}
	res := Score("left a TODO", win)
	require.Equal(t, issuePoints+questionPoints, res.Score)
	require.Equal(t, Threshold, res.Score)
	require.True(t, res.Triggered())

	res2 := Score("TypeError occurred", context.Window{})
	require.True(t, res2.Triggered())
}
