package context

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sinain/sinain-core/internal/feed"
	"github.com/sinain/sinain-core/internal/sense"
)

func TestBuild_RespectsPresetCaps(t *testing.T) {
	f := feed.New(50)
	s := sense.New(50)

	for i := 0; i < 10; i++ {
		f.Push("audio chunk", feed.Normal, "audio", feed.ChannelStream)
	}
	for i := 0; i < 10; i++ {
		s.Admit(sense.Event{Type: sense.TypeText, App: "vscode", OCR: "line"})
	}

	win := Build(f, s, Lean, 2*60*1000)

	require.LessOrEqual(t, len(win.Audio), Lean.MaxAudio)
	require.LessOrEqual(t, len(win.Screen), Lean.MaxScreen)
	require.Equal(t, "lean", win.Preset)
}

func TestBuild_ScreenNewestFirst(t *testing.T) {
	f := feed.New(10)
	s := sense.New(10)

	s.Admit(sense.Event{Type: sense.TypeText, App: "a", OCR: "one"})
	s.Admit(sense.Event{Type: sense.TypeText, App: "b", OCR: "two"})
	s.Admit(sense.Event{Type: sense.TypeText, App: "c", OCR: "three"})

	win := Build(f, s, Rich, 2*60*1000)
	require.Len(t, win.Screen, 3)
	require.Equal(t, "c", win.Screen[0].App)
	require.Equal(t, "a", win.Screen[2].App)
}

func TestBuild_AudioOldestFirst(t *testing.T) {
	f := feed.New(10)
	s := sense.New(10)

	f.Push("one", feed.Normal, "audio", feed.ChannelStream)
	f.Push("two", feed.Normal, "audio", feed.ChannelStream)

	win := Build(f, s, Rich, 2*60*1000)
	require.Len(t, win.Audio, 2)
	require.Equal(t, "one", win.Audio[0].Text)
	require.Equal(t, "two", win.Audio[1].Text)
}

func TestBuild_ExcludesItemsOlderThanCutoff(t *testing.T) {
	f := feed.New(10)
	s := sense.New(10)

	old := f.Push("stale", feed.Normal, "audio", feed.ChannelStream)
	_ = old

	win := Build(f, s, Rich, 0)
	for _, a := range win.Audio {
		require.GreaterOrEqual(t, a.TS, time.Now().UnixMilli()-win.WindowMs-50)
	}
}

func TestBuild_CurrentAppUnknownWhenNoScreen(t *testing.T) {
	f := feed.New(10)
	s := sense.New(10)
	win := Build(f, s, Lean, 60000)
	require.Equal(t, "unknown", win.CurrentApp)
}

func TestBuild_CurrentAppIsLatestScreenApp(t *testing.T) {
	f := feed.New(10)
	s := sense.New(10)
	s.Admit(sense.Event{Type: sense.TypeText, App: "a", OCR: "x"})
	s.Admit(sense.Event{Type: sense.TypeText, App: "b", OCR: "y"})

	win := Build(f, s, Rich, 60000)
	require.Equal(t, "b", win.CurrentApp)
}

func TestBuild_ImagesCappedByPreset(t *testing.T) {
	f := feed.New(10)
	s := sense.New(10)
	for i := 0; i < 5; i++ {
		s.Admit(sense.Event{Type: sense.TypeImage, App: "a", Image: []byte{byte(i)}})
	}

	win := Build(f, s, Standard, 60000)
	require.LessOrEqual(t, len(win.Images), Standard.MaxImages)
}

func TestPresetForRichness(t *testing.T) {
	require.Equal(t, Lean, PresetForRichness("lean"))
	require.Equal(t, Standard, PresetForRichness("standard"))
	require.Equal(t, Rich, PresetForRichness("rich"))
	require.Equal(t, Lean, PresetForRichness("bogus"))
}
