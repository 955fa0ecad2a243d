// Package collab defines narrow contracts for the collaborators
// sinain-core talks to but does not implement: audio capture and
// transcription, screen OCR, and the remote LLM agent reached over RPC.
// It also provides inert stand-ins used by tests and by the orchestrator
// when no real peer is configured, so startup degrades rather than fails.
package collab

import (
	"context"
	"encoding/json"
	"log/slog"
)

// AudioTranscript is the combined audio-capture-plus-transcription
// contract. A concrete implementation owns a device handle and pushes
// transcribed chunks into the feed ring itself; it is not asked to
// return them here.
type AudioTranscript interface {
	Start(ctx context.Context) error
	Stop()
}

// OCRProvider recognizes text in a captured screen image.
type OCRProvider interface {
	Recognize(ctx context.Context, image []byte) (text string, err error)
}

// AgentRPCPeer is the opaque LLM agent, spoken to only through C7's RPC
// client.
type AgentRPCPeer interface {
	Call(ctx context.Context, method string, params any) (payload json.RawMessage, err error)
}

// NoopAudioTranscript is an inert AudioTranscript used when no audio
// device is configured. Start/Stop are no-ops.
type NoopAudioTranscript struct{}

func (NoopAudioTranscript) Start(ctx context.Context) error {
	slog.Warn("collab: audio transcription disabled, no device configured")
	return nil
}

func (NoopAudioTranscript) Stop() {}

// NoopOCRProvider is an inert OCRProvider that always returns empty text.
type NoopOCRProvider struct{}

func (NoopOCRProvider) Recognize(ctx context.Context, image []byte) (string, error) {
	return "", nil
}

// NoopAgentRPCPeer is an inert AgentRPCPeer used when no agent endpoint
// is configured. Calls fail immediately so the escalator's circuit
// breaker and HTTP fallback paths engage rather than hang.
type NoopAgentRPCPeer struct{}

func (NoopAgentRPCPeer) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return nil, errNoPeer
}

var errNoPeer = &noPeerError{}

type noPeerError struct{}

func (*noPeerError) Error() string { return "collab: no agent peer configured" }
