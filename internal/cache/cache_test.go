package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_TTL(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	stored, ok := c.StoredAt("k")
	require.True(t, ok)
	assert.Equal(t, now, stored)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)

	c.Set("x", "y")
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestOptionCache_MemoizesPerKey(t *testing.T) {
	c := NewOptionCache(8, time.Hour)
	var calls atomic.Int32
	compute := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"P", "S"}, nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		values, err := c.GetOrCompute(ctx, "KAT_ZLEC", compute)
		require.NoError(t, err)
		assert.Equal(t, []string{"P", "S"}, values)
	}
	assert.EqualValues(t, 1, calls.Load())

	_, err := c.GetOrCompute(ctx, "SYMBOL_OBJ", compute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load(), "distinct keys are computed separately")
	assert.Equal(t, 2, c.Stats().Entries)
}

func TestOptionCache_ReturnsCopies(t *testing.T) {
	c := NewOptionCache(8, time.Hour)
	compute := func(ctx context.Context) ([]string, error) { return []string{"A"}, nil }

	first, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	first[0] = "mutated"

	second, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, second)
}

func TestOptionCache_ErrorsAreNotCached(t *testing.T) {
	c := NewOptionCache(8, time.Hour)
	fail := true
	compute := func(ctx context.Context) ([]string, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return []string{"ok"}, nil
	}

	_, err := c.GetOrCompute(context.Background(), "k", compute)
	require.Error(t, err)
	_, ok := c.StoredAt("k")
	assert.False(t, ok)

	fail = false
	values, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, values)
}

func TestOptionCache_ConcurrentMissesShareComputation(t *testing.T) {
	c := NewOptionCache(8, time.Hour)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"v"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			values, err := c.GetOrCompute(context.Background(), "k", compute)
			assert.NoError(t, err)
			assert.Equal(t, []string{"v"}, values)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestOptionCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c := NewOptionCache(8, time.Hour)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []string{"P", "S"}, nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(first, "KAT_ZLEC", compute)
		firstErr <- err
	}()
	<-started

	waiter := make(chan []string, 1)
	go func() {
		values, err := c.GetOrCompute(context.Background(), "KAT_ZLEC", compute)
		assert.NoError(t, err)
		waiter <- values
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, []string{"P", "S"}, <-waiter)
	assert.EqualValues(t, 1, calls.Load())

	values, err := c.GetOrCompute(context.Background(), "KAT_ZLEC", compute)
	require.NoError(t, err)
	assert.Equal(t, []string{"P", "S"}, values, "result of the shared computation is cached")
}

func TestOptionCache_Invalidate(t *testing.T) {
	c := NewOptionCache(8, time.Hour)
	var calls atomic.Int32
	compute := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"v"}, nil
	}
	_, _ = c.GetOrCompute(context.Background(), "k", compute)
	c.Invalidate("k")
	_, _ = c.GetOrCompute(context.Background(), "k", compute)
	assert.EqualValues(t, 2, calls.Load())
}

func TestManager_CleansRegisteredCaches(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	now = now.Add(time.Hour)

	m := NewManager(nil)
	m.Register(c)
	assert.Equal(t, 1, m.CleanNow())

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}
