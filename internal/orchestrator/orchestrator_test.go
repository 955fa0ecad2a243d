package orchestrator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sinain/sinain-core/internal/config"
	"github.com/sinain/sinain-core/internal/orchestrator"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Port:                 0,
		AgentDebounceMs:      4000,
		AgentMaxIntervalMs:   60000,
		EscalationMode:       config.ModeSelective,
		EscalationCooldownMs: 30000,
		FeedbackRetentionDays: 30,
		DataDir:              dir,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewWiresWithoutAgentPeerConfigured(t *testing.T) {
	cfg := testConfig(t)

	app, err := orchestrator.New(cfg)
	require.NoError(t, err)
	require.NotNil(t, app)
}

func TestNewOpensTraceStoreWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.TraceEnabled = true
	cfg.TraceDir = t.TempDir()
	require.NoError(t, cfg.Validate())

	app, err := orchestrator.New(cfg)
	require.NoError(t, err)
	require.NotNil(t, app)
}
