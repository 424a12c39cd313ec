package discord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPacerSpacesCalls(t *testing.T) {
	pacer := NewPacer(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, pacer.Await(ctx))
	}
	elapsed := time.Since(start)

	// First call is free, the next two each wait one interval.
	require.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestPacerAwaitCancel(t *testing.T) {
	pacer := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, pacer.Await(ctx))

	done := make(chan error, 1)
	go func() {
		done <- pacer.Await(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("await did not return after cancel")
	}
}

func TestPacerPenalize(t *testing.T) {
	pacer := NewPacer(time.Millisecond)
	ctx := context.Background()

	require.NoError(t, pacer.Await(ctx))
	pacer.Penalize(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, pacer.Await(ctx))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
