package config

import "sync/atomic"

// Live holds the subset of configuration that can be hot-reloaded via
// POST /agent/config without a restart: escalation mode and cooldown.
// Everything else in Config is fixed at process startup.
type Live struct {
	mode       atomic.Value // EscalationMode
	cooldownMs atomic.Int64
}

// NewLive seeds a Live snapshot from the process's startup Config.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.mode.Store(cfg.EscalationMode)
	l.cooldownMs.Store(int64(cfg.EscalationCooldownMs))
	return l
}

// Mode returns the current escalation mode.
func (l *Live) Mode() EscalationMode {
	return l.mode.Load().(EscalationMode)
}

// CooldownMs returns the current escalation cooldown in milliseconds.
func (l *Live) CooldownMs() int {
	return int(l.cooldownMs.Load())
}

// SetMode updates the escalation mode if m is one of the recognized
// values; returns false (no-op) otherwise.
func (l *Live) SetMode(m EscalationMode) bool {
	if !m.valid() {
		return false
	}
	l.mode.Store(m)
	return true
}

// SetCooldownMs updates the escalation cooldown, clamped to the
// configured minimum.
func (l *Live) SetCooldownMs(ms int) {
	if ms < minEscalationCooldownMs {
		ms = minEscalationCooldownMs
	}
	l.cooldownMs.Store(int64(ms))
}
