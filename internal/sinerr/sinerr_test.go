package sinerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sinain/sinain-core/internal/sinerr"
)

func TestWrapUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := sinerr.Wrap(sinerr.Transient, "agent.call", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "transient")
	require.Contains(t, err.Error(), "boom")
}

func TestIsMatchesKind(t *testing.T) {
	err := sinerr.New(sinerr.Validation, "missing field")

	require.True(t, sinerr.Is(err, sinerr.Validation))
	require.False(t, sinerr.Is(err, sinerr.Invariant))
	require.False(t, sinerr.Is(errors.New("plain"), sinerr.Validation))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "persistent", sinerr.Persistent.String())
	require.Equal(t, "unknown", sinerr.Kind(99).String())
}
