package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sinain/sinain-core/internal/agentloop"
	"github.com/sinain/sinain-core/internal/sense"
)

func TestCompute_ErrorClearedTrueWhenRecentDigestsClean(t *testing.T) {
	now := time.Now().UnixMilli()
	record := NewRecord(now, 1, "error: crash", "Idle", "app", 4, []string{"error_pattern"}, false, "msg", "", 0)

	deps := Deps{
		RecentDigests: func(n int) []string { return []string{"all good now", "still fine"} },
		PushedEntries: func() []agentloop.Entry { return nil },
		AppHistory:    func(sinceTS int64) []sense.AppHistoryEntry { return nil },
	}
	c := NewCollector(nil, deps)

	sig := c.compute(record, 0)
	require.NotNil(t, sig.ErrorCleared)
	require.True(t, *sig.ErrorCleared)
}

func TestCompute_ErrorClearedFalseWhenRecentDigestsStillError(t *testing.T) {
	now := time.Now().UnixMilli()
	record := NewRecord(now, 1, "error: crash", "Idle", "app", 4, []string{"error_pattern"}, false, "msg", "", 0)

	deps := Deps{
		RecentDigests: func(n int) []string { return []string{"error: crash again"} },
		PushedEntries: func() []agentloop.Entry { return nil },
		AppHistory:    func(sinceTS int64) []sense.AppHistoryEntry { return nil },
	}
	c := NewCollector(nil, deps)

	sig := c.compute(record, 0)
	require.NotNil(t, sig.ErrorCleared)
	require.False(t, *sig.ErrorCleared)
}

func TestCompute_ErrorClearedUnsetWhenNoErrorReason(t *testing.T) {
	now := time.Now().UnixMilli()
	record := NewRecord(now, 1, "question about X", "Idle", "app", 2, []string{"question"}, false, "msg", "", 0)

	deps := Deps{
		RecentDigests: func(n int) []string { return []string{"error: crash"} },
		PushedEntries: func() []agentloop.Entry { return nil },
		AppHistory:    func(sinceTS int64) []sense.AppHistoryEntry { return nil },
	}
	c := NewCollector(nil, deps)

	sig := c.compute(record, 0)
	require.Nil(t, sig.ErrorCleared)
}

func TestCompute_NoReEscalationUnsetBeforePass1(t *testing.T) {
	now := time.Now().UnixMilli()
	record := NewRecord(now, 1, "error: crash", "Idle", "app", 4, []string{"error_pattern"}, false, "msg", "", 0)

	deps := Deps{
		RecentDigests: func(n int) []string { return nil },
		PushedEntries: func() []agentloop.Entry { return nil },
		AppHistory:    func(sinceTS int64) []sense.AppHistoryEntry { return nil },
	}
	c := NewCollector(nil, deps)

	sig := c.compute(record, 30*time.Second)
	require.Nil(t, sig.NoReEscalation)
}

func TestCompute_NoReEscalationFalseWhenOverlappingScheduledWithinWindow(t *testing.T) {
	now := time.Now().UnixMilli()
	record := NewRecord(now, 1, "error: crash", "Idle", "app", 4, []string{"error_pattern"}, false, "msg", "", 0)
	other := NewRecord(now+10_000, 2, "error: crash again", "Idle", "app", 4, []string{"error_pattern"}, false, "msg2", "", 0)

	deps := Deps{
		RecentDigests: func(n int) []string { return nil },
		PushedEntries: func() []agentloop.Entry { return nil },
		AppHistory:    func(sinceTS int64) []sense.AppHistoryEntry { return nil },
	}
	c := NewCollector(nil, deps)
	c.scheduled[record.ID] = record
	c.scheduled[other.ID] = other

	sig := c.compute(record, pass1Delay)
	require.NotNil(t, sig.NoReEscalation)
	require.False(t, *sig.NoReEscalation)
}

func TestCompute_NoReEscalationTrueWhenNoOverlap(t *testing.T) {
	now := time.Now().UnixMilli()
	record := NewRecord(now, 1, "error: crash", "Idle", "app", 4, []string{"error_pattern"}, false, "msg", "", 0)
	other := NewRecord(now+10_000, 2, "left a todo", "Idle", "app", 1, []string{"code_issue_marker"}, false, "msg2", "", 0)

	deps := Deps{
		RecentDigests: func(n int) []string { return nil },
		PushedEntries: func() []agentloop.Entry { return nil },
		AppHistory:    func(sinceTS int64) []sense.AppHistoryEntry { return nil },
	}
	c := NewCollector(nil, deps)
	c.scheduled[record.ID] = record
	c.scheduled[other.ID] = other

	sig := c.compute(record, pass1Delay)
	require.NotNil(t, sig.NoReEscalation)
	require.True(t, *sig.NoReEscalation)
}

func TestCompute_DwellTimeMsFromFirstPushedEntryAfterRecord(t *testing.T) {
	now := time.Now().UnixMilli()
	record := NewRecord(now, 1, "digest", "Idle", "app", 0, nil, false, "msg", "", 0)

	entries := []agentloop.Entry{
		{ID: 1, TS: now - 1000, Pushed: true},
		{ID: 2, TS: now + 45_000, Pushed: true},
		{ID: 3, TS: now + 90_000, Pushed: true},
	}
	deps := Deps{
		RecentDigests: func(n int) []string { return nil },
		PushedEntries: func() []agentloop.Entry { return entries },
		AppHistory:    func(sinceTS int64) []sense.AppHistoryEntry { return nil },
	}
	c := NewCollector(nil, deps)

	sig := c.compute(record, 0)
	require.NotNil(t, sig.DwellTimeMs)
	require.Equal(t, int64(45_000), *sig.DwellTimeMs)
}

func TestCompute_DwellTimeMsNilWhenNoLaterPushedEntry(t *testing.T) {
	now := time.Now().UnixMilli()
	record := NewRecord(now, 1, "digest", "Idle", "app", 0, nil, false, "msg", "", 0)

	deps := Deps{
		RecentDigests: func(n int) []string { return nil },
		PushedEntries: func() []agentloop.Entry { return nil },
		AppHistory:    func(sinceTS int64) []sense.AppHistoryEntry { return nil },
	}
	c := NewCollector(nil, deps)

	sig := c.compute(record, 0)
	require.Nil(t, sig.DwellTimeMs)
}

func TestCompute_QuickAppSwitchTrueWithinWindow(t *testing.T) {
	now := time.Now().UnixMilli()
	record := NewRecord(now, 1, "digest", "Idle", "app", 0, nil, false, "msg", "", 0)

	deps := Deps{
		RecentDigests: func(n int) []string { return nil },
		PushedEntries: func() []agentloop.Entry { return nil },
		AppHistory: func(sinceTS int64) []sense.AppHistoryEntry {
			return []sense.AppHistoryEntry{{TS: now + 5_000, App: "other-app"}}
		},
	}
	c := NewCollector(nil, deps)

	sig := c.compute(record, 0)
	require.NotNil(t, sig.QuickAppSwitch)
	require.True(t, *sig.QuickAppSwitch)
}

func TestCompute_QuickAppSwitchFalseOutsideWindow(t *testing.T) {
	now := time.Now().UnixMilli()
	record := NewRecord(now, 1, "digest", "Idle", "app", 0, nil, false, "msg", "", 0)

	deps := Deps{
		RecentDigests: func(n int) []string { return nil },
		PushedEntries: func() []agentloop.Entry { return nil },
		AppHistory: func(sinceTS int64) []sense.AppHistoryEntry {
			return []sense.AppHistoryEntry{{TS: now + 60_000, App: "other-app"}}
		},
	}
	c := NewCollector(nil, deps)

	sig := c.compute(record, 0)
	require.NotNil(t, sig.QuickAppSwitch)
	require.False(t, *sig.QuickAppSwitch)
}

func TestComposite_NilWhenNoSignalsKnown(t *testing.T) {
	require.Nil(t, composite(Signals{}))
}

func TestComposite_ClampsToUpperBound(t *testing.T) {
	allTrue := true
	dwell := int64(120_000)
	sig := Signals{ErrorCleared: &allTrue, NoReEscalation: &allTrue, DwellTimeMs: &dwell}
	// quick_app_switch false contributes positively too
	falseVal := false
	sig.QuickAppSwitch = &falseVal

	c := composite(sig)
	require.NotNil(t, c)
	require.LessOrEqual(t, *c, 1.0)
}

func TestComposite_ClampsToLowerBound(t *testing.T) {
	allFalse := false
	dwell := int64(1_000)
	allTrue := true
	sig := Signals{ErrorCleared: &allFalse, NoReEscalation: &allFalse, DwellTimeMs: &dwell, QuickAppSwitch: &allTrue}

	c := composite(sig)
	require.NotNil(t, c)
	require.GreaterOrEqual(t, *c, -1.0)
}

func TestComposite_WithinRangeForEveryKnownCombination(t *testing.T) {
	bools := []*bool{nil, boolPtr(true), boolPtr(false)}
	dwells := []*int64{nil, int64Ptr(1_000), int64Ptr(30_000), int64Ptr(120_000)}

	for _, ec := range bools {
		for _, nre := range bools {
			for _, qas := range bools {
				for _, dw := range dwells {
					sig := Signals{ErrorCleared: ec, NoReEscalation: nre, QuickAppSwitch: qas, DwellTimeMs: dw}
					c := composite(sig)
					if ec == nil && nre == nil && qas == nil && dw == nil {
						require.Nil(t, c)
						continue
					}
					require.NotNil(t, c)
					require.GreaterOrEqual(t, *c, -1.0)
					require.LessOrEqual(t, *c, 1.0)
				}
			}
		}
	}
}

func boolPtr(b bool) *bool    { return &b }
func int64Ptr(i int64) *int64 { return &i }
