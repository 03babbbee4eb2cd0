package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func countingFetcher(calls *atomic.Int64) Fetcher[int] {
	return func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}
}

func TestGetServesFreshValues(t *testing.T) {
	clock := &fakeNow{now: time.Unix(1700000000, 0)}
	cache := New[int](Config[int]{Now: clock.Now})
	defer cache.Close()

	var calls atomic.Int64
	fetch := countingFetcher(&calls)
	ctx := context.Background()

	value, err := cache.Get(ctx, "a", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, value)

	clock.Advance(DefaultStaleTime - time.Second)
	value, err = cache.Get(ctx, "a", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, value)
	assert.True(t, cache.IsFresh("a"))

	clock.Advance(time.Second)
	assert.False(t, cache.IsFresh("a"))
	value, err = cache.Get(ctx, "a", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, value)

	value, err = cache.Get(ctx, "b", fetch)
	require.NoError(t, err)
	assert.Equal(t, 3, value)
}

func TestFetchBypassesFreshnessAndKeepsErrorsOut(t *testing.T) {
	cache := New[int](Config[int]{})
	defer cache.Close()

	var calls atomic.Int64
	ctx := context.Background()

	_, err := cache.Get(ctx, "a", countingFetcher(&calls))
	require.NoError(t, err)

	value, err := cache.Fetch(ctx, "a", countingFetcher(&calls))
	require.NoError(t, err)
	assert.Equal(t, 2, value)

	_, err = cache.Fetch(ctx, "a", func(context.Context) (int, error) {
		return 0, errors.New("execution reverted")
	})
	assert.Error(t, err)

	cached, _, ok := cache.Peek("a")
	assert.True(t, ok)
	assert.Equal(t, 2, cached)

	cache.Invalidate("a")
	_, _, ok = cache.Peek("a")
	assert.False(t, ok)
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	cache := New[int](Config[int]{})
	defer cache.Close()

	var calls atomic.Int64
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	wg := sync.WaitGroup{}
	results := make([]int, 5)
	for i := range results {
		wg.Go(func() {
			results[i], _ = cache.Get(context.Background(), "a", fetch)
		})
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, []int{7, 7, 7, 7, 7}, results)
}

func TestWatchRefreshesUntilUnwatched(t *testing.T) {
	cache := New[int](Config[int]{RefreshInterval: 5 * time.Millisecond})
	defer cache.Close()

	var calls atomic.Int64
	var updates atomic.Int64
	unwatch := cache.Watch("a", countingFetcher(&calls), func(int, error) { updates.Add(1) })
	assert.True(t, cache.Watching("a"))

	assert.Eventually(t, func() bool { return updates.Load() >= 2 }, time.Second, time.Millisecond)

	unwatch()
	unwatch()
	assert.False(t, cache.Watching("a"))

	time.Sleep(20 * time.Millisecond)
	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}

func TestCloseStopsWatchers(t *testing.T) {
	cache := New[int](Config[int]{RefreshInterval: time.Millisecond})

	var calls atomic.Int64
	cache.Watch("a", countingFetcher(&calls), nil)
	cache.Watch("b", countingFetcher(&calls), nil)
	cache.Close()

	stopped := calls.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())

	cache.Watch("c", countingFetcher(&calls), nil)
	assert.False(t, cache.Watching("c"))
}

func TestSharedWatchOutlivesOneSubscriber(t *testing.T) {
	cache := New[int](Config[int]{RefreshInterval: 5 * time.Millisecond})
	defer cache.Close()

	var calls atomic.Int64
	var first, second atomic.Int64
	unwatchFirst := cache.Watch("a", countingFetcher(&calls), func(int, error) { first.Add(1) })
	unwatchSecond := cache.Watch("a", countingFetcher(&calls), func(int, error) { second.Add(1) })

	assert.Eventually(t, func() bool { return first.Load() >= 1 && second.Load() >= 1 }, time.Second, time.Millisecond)

	unwatchSecond()
	assert.True(t, cache.Watching("a"))

	seen := first.Load()
	assert.Eventually(t, func() bool { return first.Load() >= seen+3 }, time.Second, time.Millisecond)

	unwatchFirst()
	assert.False(t, cache.Watching("a"))
}

func TestUnwatchedEntriesAreCollected(t *testing.T) {
	clock := &fakeNow{now: time.Unix(1700000000, 0)}
	cache := New[int](Config[int]{
		StaleTime:       time.Second,
		GCTime:          10 * time.Second,
		RefreshInterval: time.Hour,
		Now:             clock.Now,
	})
	defer cache.Close()

	var calls atomic.Int64
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		_, err := cache.Get(ctx, key, countingFetcher(&calls))
		require.NoError(t, err)
	}
	unwatch := cache.Watch("b", countingFetcher(&calls), nil)
	defer unwatch()

	clock.Advance(10 * time.Second)
	_, err := cache.Get(ctx, "d", countingFetcher(&calls))
	require.NoError(t, err)

	assert.Equal(t, 2, cache.Len())
	_, _, ok := cache.Peek("a")
	assert.False(t, ok)
	_, _, ok = cache.Peek("b")
	assert.True(t, ok)
}

func TestEntriesStayBoundedUnderDistinctKeys(t *testing.T) {
	clock := &fakeNow{now: time.Unix(1700000000, 0)}
	cache := New[int](Config[int]{StaleTime: time.Second, GCTime: 2 * time.Second, Now: clock.Now})
	defer cache.Close()

	var calls atomic.Int64
	for i := 0; i < 1000; i++ {
		_, err := cache.Get(context.Background(), fmt.Sprintf("amount-%d", i), countingFetcher(&calls))
		require.NoError(t, err)
		clock.Advance(100 * time.Millisecond)
	}

	assert.LessOrEqual(t, cache.Len(), 31)
}

func TestUpdatedAtKeepsOriginalAge(t *testing.T) {
	clock := &fakeNow{now: time.Unix(1700000000, 0)}
	cache := New[time.Time](Config[time.Time]{
		StaleTime: 15 * time.Second,
		Now:       clock.Now,
		UpdatedAt: func(fetchedAt time.Time) time.Time { return fetchedAt },
	})
	defer cache.Close()

	fetchedAt := clock.Now().Add(-10 * time.Second)
	_, err := cache.Get(context.Background(), "a", func(context.Context) (time.Time, error) {
		return fetchedAt, nil
	})
	require.NoError(t, err)
	assert.True(t, cache.IsFresh("a"))

	clock.Advance(5 * time.Second)
	assert.False(t, cache.IsFresh("a"))
}
