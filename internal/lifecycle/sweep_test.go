package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Izume01/reliq/internal/store"
)

func TestSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	short := h.create(t, h.request(t, "short"))

	long := h.request(t, "long")
	long.TTLSeconds = 3600
	live := h.create(t, long)

	spent := h.request(t, "spent")
	spent.TTLSeconds = 3600
	spentSlug := h.create(t, spent)
	claim, err := h.meta.ConditionalIncrement(ctx, spentSlug, store.ViewCount, 1)
	require.NoError(t, err)
	require.True(t, claim.Won)

	h.advance(10 * time.Minute)

	removed, err := h.svc.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, slug := range []string{short, spentSlug} {
		_, err := h.meta.Get(ctx, slug)
		assert.ErrorIs(t, err, store.ErrNotFound, slug)
		_, err = h.blobs.Get(ctx, slug)
		assert.ErrorIs(t, err, store.ErrNotFound, slug)
	}

	_, err = h.meta.Get(ctx, live)
	require.NoError(t, err)
	_, err = h.blobs.Get(ctx, live)
	require.NoError(t, err)

	removed, err = h.svc.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSweep_Batch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for range 5 {
		h.create(t, h.request(t, "short"))
	}
	h.advance(time.Hour)

	removed, err := h.svc.Sweep(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = h.svc.Sweep(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.create(t, h.request(t, "short"))
	h.advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.RunSweeper(ctx, 10*time.Millisecond, 10)
		close(done)
	}()

	require.Eventually(t, func() bool {
		stale, err := h.meta.ListStale(context.Background(), h.clock, 10)
		return err == nil && len(stale) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
