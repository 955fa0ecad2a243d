// Package config loads sinain-core's runtime configuration from a
// layered env+file chain: built-in defaults, an optional YAML file, then
// the process environment (which always wins). It recognizes every key
// spec.md §6 lists.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EscalationMode mirrors the spec's totally-ordered escalation modes.
type EscalationMode string

const (
	ModeOff       EscalationMode = "off"
	ModeSelective EscalationMode = "selective"
	ModeFocus     EscalationMode = "focus"
	ModeRich      EscalationMode = "rich"
)

func (m EscalationMode) valid() bool {
	switch m {
	case ModeOff, ModeSelective, ModeFocus, ModeRich:
		return true
	default:
		return false
	}
}

// Richness maps an escalation mode to the context-window preset name
// C3 should build against: off/selective stay lean, focus asks for a
// standard window, rich asks for the full preset.
func (m EscalationMode) Richness() string {
	switch m {
	case ModeRich:
		return "rich"
	case ModeFocus:
		return "standard"
	default:
		return "lean"
	}
}

// ParseEscalationMode validates s against the recognized modes,
// returning ("", false) for anything else.
func ParseEscalationMode(s string) (EscalationMode, bool) {
	m := EscalationMode(s)
	if !m.valid() {
		return "", false
	}
	return m, true
}

// Config holds sinain-core's full runtime configuration.
type Config struct {
	Port int

	AudioDevice         string
	AudioCaptureCommand string
	AudioChunkMs        int
	AudioAutoStart      bool

	TranscriptionBackend string
	TranscriptionModel   string

	AgentModel          string
	AgentDebounceMs      int
	AgentMaxIntervalMs   int

	EscalationMode       EscalationMode
	EscalationCooldownMs int

	OpenclawWSURL      string
	OpenclawHookURL    string
	OpenclawHookToken  string
	OpenclawSessionKey string

	SituationMDPath string

	TraceEnabled bool
	TraceDir     string

	FeedbackRetentionDays int

	DataDir string
}

const minEscalationCooldownMs = 5000

// defaults returns the built-in default values, the lowest layer of the
// configuration chain.
func defaults() map[string]interface{} {
	home, err := os.UserHomeDir()
	dataDir := filepath.Join(".config", "sinain")
	if err == nil {
		dataDir = filepath.Join(home, ".config", "sinain")
	}
	return map[string]interface{}{
		"PORT":                     9500,
		"AUDIO_CHUNK_MS":           250,
		"AUDIO_AUTO_START":         false,
		"TRANSCRIPTION_BACKEND":    "",
		"AGENT_MODEL":              "",
		"AGENT_DEBOUNCE_MS":        4000,
		"AGENT_MAX_INTERVAL_MS":    60000,
		"ESCALATION_MODE":          "selective",
		"ESCALATION_COOLDOWN_MS":   30000,
		"SITUATION_MD_PATH":        "",
		"TRACE_ENABLED":            false,
		"TRACE_DIR":                filepath.Join(dataDir, "traces"),
		"FEEDBACK_RETENTION_DAYS":  30,
		"DATA_DIR":                dataDir,
	}
}

// Load builds a Config from defaults, an optional YAML file (path taken
// from the SINAIN_CONFIG_FILE env var, skipped if unset or missing), and
// the process environment, in that priority order (later layers win).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if p := os.Getenv("SINAIN_CONFIG_FILE"); p != "" {
		if _, statErr := os.Stat(p); statErr == nil {
			if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load file %s: %w", p, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &Config{
		Port: k.Int("PORT"),

		AudioDevice:         k.String("AUDIO_DEVICE"),
		AudioCaptureCommand: k.String("AUDIO_CAPTURE_COMMAND"),
		AudioChunkMs:        k.Int("AUDIO_CHUNK_MS"),
		AudioAutoStart:      k.Bool("AUDIO_AUTO_START"),

		TranscriptionBackend: k.String("TRANSCRIPTION_BACKEND"),
		TranscriptionModel:   k.String("TRANSCRIPTION_MODEL"),

		AgentModel:         k.String("AGENT_MODEL"),
		AgentDebounceMs:    k.Int("AGENT_DEBOUNCE_MS"),
		AgentMaxIntervalMs: k.Int("AGENT_MAX_INTERVAL_MS"),

		EscalationMode:       EscalationMode(strings.ToLower(k.String("ESCALATION_MODE"))),
		EscalationCooldownMs: k.Int("ESCALATION_COOLDOWN_MS"),

		OpenclawWSURL:      k.String("OPENCLAW_WS_URL"),
		OpenclawHookURL:    k.String("OPENCLAW_HOOK_URL"),
		OpenclawHookToken:  k.String("OPENCLAW_HOOK_TOKEN"),
		OpenclawSessionKey: k.String("OPENCLAW_SESSION_KEY"),

		SituationMDPath: k.String("SITUATION_MD_PATH"),

		TraceEnabled: k.Bool("TRACE_ENABLED"),
		TraceDir:     k.String("TRACE_DIR"),

		FeedbackRetentionDays: k.Int("FEEDBACK_RETENTION_DAYS"),

		DataDir: k.String("DATA_DIR"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants and clamps bounded values, then ensures
// required directories exist.
func (c *Config) Validate() error {
	if !c.EscalationMode.valid() {
		return fmt.Errorf("config: invalid ESCALATION_MODE %q", c.EscalationMode)
	}
	if c.EscalationCooldownMs < minEscalationCooldownMs {
		c.EscalationCooldownMs = minEscalationCooldownMs
	}
	if c.FeedbackRetentionDays <= 0 {
		c.FeedbackRetentionDays = 30
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: DATA_DIR is required")
	}
	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return fmt.Errorf("config: create data dir: %w", err)
	}
	if c.TraceEnabled {
		if err := os.MkdirAll(c.TraceDir, 0o750); err != nil {
			return fmt.Errorf("config: create trace dir: %w", err)
		}
	}
	return nil
}

// FeedbackDir returns the directory holding daily feedback JSONL files.
func (c *Config) FeedbackDir() string { return filepath.Join(c.DataDir, "feedback") }

// PendingSpawnsPath returns the path to the pending-spawns JSON file.
func (c *Config) PendingSpawnsPath() string { return filepath.Join(c.DataDir, "pending-tasks.json") }

// TraceDBPath returns the path to the SQLite trace database.
func (c *Config) TraceDBPath() string { return filepath.Join(c.TraceDir, "traces.db") }

// EscalationCooldown returns EscalationCooldownMs as a time.Duration.
func (c *Config) EscalationCooldown() time.Duration {
	return time.Duration(c.EscalationCooldownMs) * time.Millisecond
}

// Addr returns the listen address for the shared HTTP/WS listener.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
