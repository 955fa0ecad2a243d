// Package context implements C3: a pure, allocation-light builder that
// materializes a time-bounded, richness-capped ContextWindow snapshot
// from a feed.Ring and a sense.Ring.
package context

import (
	"time"

	"github.com/sinain/sinain-core/internal/feed"
	"github.com/sinain/sinain-core/internal/sense"
)

// Preset bounds the size of a ContextWindow snapshot. The three named
// presets below map to escalation mode: selective→Lean, focus→Standard,
// rich→Rich.
type Preset struct {
	Name             string
	MaxAudio         int
	MaxScreen        int
	MaxImages        int
	MaxOCRChars      int
	MaxTranscriptChars int
}

var (
	Lean = Preset{
		Name: "lean", MaxAudio: 6, MaxScreen: 8, MaxImages: 0,
		MaxOCRChars: 400, MaxTranscriptChars: 600,
	}
	Standard = Preset{
		Name: "standard", MaxAudio: 12, MaxScreen: 16, MaxImages: 1,
		MaxOCRChars: 1200, MaxTranscriptChars: 1500,
	}
	Rich = Preset{
		Name: "rich", MaxAudio: 20, MaxScreen: 24, MaxImages: 3,
		MaxOCRChars: 3000, MaxTranscriptChars: 3000,
	}
)

// PresetForRichness maps a richness name ("lean", "standard", "rich") to
// its Preset, defaulting to Lean for anything unrecognized.
func PresetForRichness(name string) Preset {
	switch name {
	case "standard":
		return Standard
	case "rich":
		return Rich
	default:
		return Lean
	}
}

// Image is a context-window image attachment.
type Image struct {
	Bytes []byte
	App   string
	TS    int64
}

// Window is an ephemeral ContextWindow snapshot. It holds value copies
// only; no component retains a reference into a ring's backing storage.
type Window struct {
	Audio         []feed.Item
	Screen        []sense.Event
	Images        []Image
	CurrentApp    string
	AppHistory    []sense.AppHistoryEntry
	WindowMs      int64
	NewestEventTS int64
	Preset        string
}

// Build materializes a ContextWindow from the given rings at the given
// preset, bounded to events/items no older than maxAgeMs. Pure: no I/O,
// no allocation beyond the returned snapshot.
func Build(feedRing *feed.Ring, senseRing *sense.Ring, preset Preset, maxAgeMs int64) Window {
	now := time.Now().UnixMilli()
	cutoff := now - maxAgeMs

	audio := audioSince(feedRing, cutoff, preset.MaxAudio)
	screen := screenSince(senseRing, cutoff, preset.MaxScreen)
	images := imagesFor(senseRing, preset.MaxImages)
	appHistory := senseRing.AppHistory(cutoff)

	currentApp := "unknown"
	if len(screen) > 0 {
		currentApp = screen[0].App // newest-first, so index 0 is latest
	}

	var newest int64
	if len(audio) > 0 {
		if t := audio[len(audio)-1].TS; t > newest {
			newest = t
		}
	}
	if len(screen) > 0 {
		if t := screen[0].TS; t > newest {
			newest = t
		}
	}

	return Window{
		Audio:         audio,
		Screen:        screen,
		Images:        images,
		CurrentApp:    currentApp,
		AppHistory:    appHistory,
		WindowMs:      maxAgeMs,
		NewestEventTS: newest,
		Preset:        preset.Name,
	}
}

// audioSince returns the last maxItems audio-source feed items with
// ts >= cutoff, oldest first.
func audioSince(r *feed.Ring, cutoff int64, maxItems int) []feed.Item {
	all := r.QueryBySource("audio", cutoff)
	if len(all) <= maxItems {
		return all
	}
	return all[len(all)-maxItems:]
}

// screenSince returns sense events with ts >= cutoff, truncated to
// maxItems and reversed to newest-first. Coalescing by equal-OCR-same-app
// already happens at admission time in sense.Ring.Admit.
func screenSince(r *sense.Ring, cutoff int64, maxItems int) []sense.Event {
	all := r.QueryByTime(cutoff)
	if len(all) > maxItems {
		all = all[len(all)-maxItems:]
	}
	out := make([]sense.Event, len(all))
	for i, e := range all {
		out[len(all)-1-i] = e
	}
	return out
}

// imagesFor returns up to maxImages most recent image-bearing events,
// converted to Image attachments, newest first.
func imagesFor(r *sense.Ring, maxImages int) []Image {
	if maxImages <= 0 {
		return nil
	}
	events := r.RecentImages(maxImages)
	out := make([]Image, 0, len(events))
	for _, e := range events {
		out = append(out, Image{Bytes: e.Image, App: e.App, TS: e.TS})
	}
	return out
}
