package trace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sinain/sinain-core/internal/trace"
)

func TestStore_AppendAndQuery(t *testing.T) {
	s, err := trace.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	tickID := int64(1)
	require.NoError(t, s.Append(ctx, trace.KindTick, &tickID, "agent tick", `{"state":"applied"}`, 1000))
	require.NoError(t, s.Append(ctx, trace.KindEscalation, &tickID, "escalated", `{}`, 2000))

	records, err := s.Query(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, trace.KindTick, records[0].Kind)
	require.Equal(t, int64(1), *records[0].TickID)
	require.Equal(t, trace.KindEscalation, records[1].Kind)
}

func TestStore_QueryFiltersByAfter(t *testing.T) {
	s, err := trace.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, trace.KindTick, nil, "first", `{}`, 1000))
	require.NoError(t, s.Append(ctx, trace.KindTick, nil, "second", `{}`, 2000))

	records, err := s.Query(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "second", records[0].Summary)
}

func TestStore_NilStoreIsNoop(t *testing.T) {
	var s *trace.Store
	require.NoError(t, s.Append(context.Background(), trace.KindTick, nil, "x", "{}", 1000))
	records, err := s.Query(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Empty(t, records)
	require.NoError(t, s.Close())
}
