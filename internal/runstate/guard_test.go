package runstate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gardenwatch/internal/types"
)

type adjustableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *adjustableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *adjustableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var start = time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC)

func newGuard(store Store, clock types.Clock) *Guard {
	return NewGuard(store, clock, Config{}, nil)
}

func TestGuard_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &adjustableClock{t: start}
	g := newGuard(NewMemoryStore(), clock)

	needs, err := g.NeedsRun(ctx)
	require.NoError(t, err)
	assert.True(t, needs)

	ok, err := g.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Held lease blocks a second trigger.
	ok, err = g.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.MarkCompleted(ctx))

	needs, err = g.NeedsRun(ctx)
	require.NoError(t, err)
	assert.False(t, needs)

	ok, err = g.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "already ran today")

	// The next calendar day needs a run again.
	clock.Advance(24 * time.Hour)
	needs, err = g.NeedsRun(ctx)
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestGuard_ReleaseAllowsRetrySameDay(t *testing.T) {
	ctx := context.Background()
	g := newGuard(NewMemoryStore(), &adjustableClock{t: start})

	ok, err := g.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, g.Release(ctx))

	ok, err = g.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := g.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.LastRunAt)
	assert.True(t, st.LockHeld)
}

func TestGuard_StaleLockIsTakenOver(t *testing.T) {
	ctx := context.Background()
	clock := &adjustableClock{t: start}
	store := NewMemoryStore()
	g := newGuard(store, clock)

	ok, err := g.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(14 * time.Minute)
	ok, _ = g.TryAcquire(ctx)
	assert.False(t, ok)

	clock.Advance(time.Minute)
	ok, err = g.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := store.Get(ctx, types.RunStateDailyProcess)
	require.NoError(t, err)
	require.NotNil(t, p.LockAt)
	assert.Equal(t, start.Add(15*time.Minute), *p.LockAt)
}

func TestGuard_CustomStaleness(t *testing.T) {
	g := NewGuard(NewMemoryStore(), &adjustableClock{t: start}, Config{Key: "nightly", Staleness: time.Hour}, nil)
	assert.Equal(t, "nightly", g.Key())
	assert.False(t, g.IsExpired(start.Add(-59*time.Minute)))
	assert.True(t, g.IsExpired(start.Add(-time.Hour)))
}

func TestGuard_LastRunYesterdayNeedsRun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	yesterday := start.Add(-20 * time.Hour)
	require.NoError(t, store.Update(ctx, types.RunStateDailyProcess, func(p *types.RunStatePayload) (bool, error) {
		p.LastRunAt = &yesterday
		return true, nil
	}))

	needs, err := newGuard(store, &adjustableClock{t: start}).NeedsRun(ctx)
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestGuard_ConcurrentTryAcquire(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := &adjustableClock{t: start}

	const triggers = 16
	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
		gate     = make(chan struct{})
	)
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			ok, err := newGuard(store, clock).TryAcquire(ctx)
			if err == nil && ok {
				acquired.Add(1)
			}
		}()
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (types.RunStatePayload, error) {
	return types.RunStatePayload{}, f.err
}

func (f failingStore) Update(context.Context, string, func(*types.RunStatePayload) (bool, error)) error {
	return f.err
}

func TestGuard_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	g := newGuard(failingStore{err: boom}, &adjustableClock{t: start})

	_, err := g.NeedsRun(context.Background())
	assert.ErrorIs(t, err, boom)

	ok, err := g.TryAcquire(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)

	assert.ErrorIs(t, g.MarkCompleted(context.Background()), boom)
	assert.ErrorIs(t, g.Release(context.Background()), boom)
}

func TestMemoryStore_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := start

	err := store.Update(ctx, "k", func(p *types.RunStatePayload) (bool, error) {
		p.LockAt = &now
		return true, errors.New("abort")
	})
	require.Error(t, err)

	p, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, p.LockAt)
}
