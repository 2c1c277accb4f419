package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndRecent(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, Cycle{
			ID:         fmt.Sprintf("cycle-%d", i),
			Trigger:    "cli",
			Outcome:    "success",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Total:      10,
			Rendered:   i,
			Reused:     10 - i,
			Reasons:    map[string]int{"cold": i},
		}))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "cycle-2", recent[0].ID, "newest first")
	assert.Equal(t, "cycle-1", recent[1].ID)
	assert.Equal(t, map[string]int{"cold": 2}, recent[0].Reasons)
	assert.True(t, recent[0].StartedAt.Equal(base.Add(2*time.Minute)))
}

func TestRecentEmptyStore(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	recent, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestReasonsOptional(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(context.Background(), Cycle{
		ID: "no-reasons", Trigger: "watch", Outcome: "success",
		StartedAt: time.Now(), FinishedAt: time.Now(),
	}))
	recent, err := s.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Nil(t, recent[0].Reasons)
}
