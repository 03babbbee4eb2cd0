package quotefetcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alexkalak/go_arena_market/common/core/debounce"
	"github.com/alexkalak/go_arena_market/common/core/querycache"
	"github.com/alexkalak/go_arena_market/common/external/rpcclient/rpcerrors"
	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	weth = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

type fakeQuoter struct {
	mu      sync.Mutex
	amounts []int64
	quote   func(amount *big.Int, call int) (models.Quote, error)
}

func (q *fakeQuoter) QuoteExactInputSingle(_ context.Context, _ models.AssetPair, amountIn *big.Int) (models.Quote, error) {
	q.mu.Lock()
	q.amounts = append(q.amounts, amountIn.Int64())
	call := len(q.amounts)
	q.mu.Unlock()

	if q.quote != nil {
		return q.quote(amountIn, call)
	}
	return models.Quote{AmountOut: new(big.Int).Mul(amountIn, big.NewInt(10)), FetchedAt: time.Now()}, nil
}

func (q *fakeQuoter) calls() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64{}, q.amounts...)
}

type manualTimer struct {
	fn func()
}

func (t *manualTimer) Stop() bool { return true }

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) debounce.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &manualTimer{fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *manualClock) fire(i int) {
	c.mu.Lock()
	timer := c.timers[i]
	c.mu.Unlock()
	timer.fn()
}

func (c *manualClock) fireAll() {
	c.mu.Lock()
	timers := append([]*manualTimer{}, c.timers...)
	c.mu.Unlock()
	for _, timer := range timers {
		timer.fn()
	}
}

func newTestFetcher(t *testing.T, pair models.AssetPair, q *fakeQuoter, clock *manualClock) *QuoteFetcher {
	t.Helper()

	fetcher, err := New(QuoteFetcherConfig{ChainID: 1, Pair: pair}, QuoteFetcherDependencies{
		Quoter:    q,
		AfterFunc: clock.AfterFunc,
	})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)
	return fetcher
}

func TestRapidAmountChangesQueryOnlyFinalAmount(t *testing.T) {
	q := &fakeQuoter{}
	clock := &manualClock{}
	fetcher := newTestFetcher(t, models.NewAssetPair(weth, usdc, 0), q, clock)

	fetcher.SetAmount(big.NewInt(1))
	fetcher.SetAmount(big.NewInt(12))
	fetcher.SetAmount(big.NewInt(123))
	clock.fireAll()

	assert.Equal(t, []int64{123}, q.calls())

	state := fetcher.State()
	assert.True(t, state.Enabled)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)
	assert.Equal(t, int64(123), state.CommittedAmount.Int64())
	assert.Equal(t, int64(1230), state.AmountOut.Int64())
}

func TestDisabledQueriesNeverCall(t *testing.T) {
	t.Run("empty amounts", func(t *testing.T) {
		q := &fakeQuoter{}
		clock := &manualClock{}
		fetcher := newTestFetcher(t, models.NewAssetPair(weth, usdc, 0), q, clock)

		for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
			fetcher.SetAmount(amount)
			clock.fireAll()
			assert.False(t, fetcher.State().Enabled)
		}
		assert.Empty(t, q.calls())
	})

	t.Run("identical assets", func(t *testing.T) {
		q := &fakeQuoter{}
		clock := &manualClock{}
		fetcher := newTestFetcher(t, models.NewAssetPair(weth, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", 0), q, clock)

		fetcher.SetAmount(big.NewInt(100))
		clock.fireAll()

		assert.Empty(t, q.calls())
		assert.Nil(t, fetcher.State().AmountOut)
	})
}

func TestErrorsMapToUserMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		kind    rpcerrors.Kind
	}{
		{"revert", rpcerrors.Wrap("quoteExactInputSingle", errors.New("execution reverted")), rpcerrors.MessageNoLiquidity, rpcerrors.KindRevert},
		{"network", errors.New("TypeError: Failed to fetch"), rpcerrors.MessageNetwork, rpcerrors.KindNetwork},
		{"generic", errors.New("boom"), rpcerrors.MessageGeneric, rpcerrors.KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuoter{quote: func(*big.Int, int) (models.Quote, error) {
				return models.Quote{}, tt.err
			}}
			clock := &manualClock{}
			fetcher := newTestFetcher(t, models.NewAssetPair(weth, usdc, 0), q, clock)

			fetcher.SetAmount(big.NewInt(5))
			clock.fireAll()

			state := fetcher.State()
			assert.Equal(t, tt.message, state.Error)
			assert.Equal(t, tt.kind, state.ErrorKind)
			assert.False(t, state.Loading)
		})
	}
}

func TestFreshResultsComeFromCache(t *testing.T) {
	q := &fakeQuoter{}
	clock := &manualClock{}
	fetcher := newTestFetcher(t, models.NewAssetPair(weth, usdc, 0), q, clock)

	for _, amount := range []int64{5, 6, 5} {
		fetcher.SetAmount(big.NewInt(amount))
		clock.fireAll()
	}

	assert.Equal(t, []int64{5, 6}, q.calls())
	assert.Equal(t, int64(50), fetcher.State().AmountOut.Int64())

	fetcher.Refetch(context.Background())
	assert.Equal(t, []int64{5, 6, 5}, q.calls())
}

func TestSupersededResultIsIgnored(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	q := &fakeQuoter{quote: func(amount *big.Int, _ int) (models.Quote, error) {
		if amount.Int64() == 1 {
			close(started)
			<-release
		}
		return models.Quote{AmountOut: new(big.Int).Mul(amount, big.NewInt(10))}, nil
	}}
	clock := &manualClock{}
	fetcher := newTestFetcher(t, models.NewAssetPair(weth, usdc, 0), q, clock)

	fetcher.SetAmount(big.NewInt(1))
	done := make(chan struct{})
	go func() {
		clock.fire(0)
		close(done)
	}()
	<-started

	fetcher.SetAmount(big.NewInt(2))
	clock.fire(1)
	close(release)
	<-done

	state := fetcher.State()
	assert.Equal(t, int64(2), state.CommittedAmount.Int64())
	assert.Equal(t, int64(20), state.AmountOut.Int64())
}

func TestPassiveRefreshWhileOpen(t *testing.T) {
	q := &fakeQuoter{quote: func(_ *big.Int, call int) (models.Quote, error) {
		return models.Quote{AmountOut: big.NewInt(int64(call))}, nil
	}}
	clock := &manualClock{}
	fetcher, err := New(QuoteFetcherConfig{
		ChainID:         1,
		Pair:            models.NewAssetPair(weth, usdc, 0),
		RefreshInterval: 5 * time.Millisecond,
	}, QuoteFetcherDependencies{Quoter: q, AfterFunc: clock.AfterFunc})
	require.NoError(t, err)

	fetcher.SetAmount(big.NewInt(9))
	clock.fireAll()
	assert.Equal(t, int64(1), fetcher.State().AmountOut.Int64())

	assert.Eventually(t, func() bool {
		return fetcher.State().AmountOut.Int64() > 1
	}, time.Second, time.Millisecond)

	fetcher.Close()
	_, open := <-fetcher.Updates()
	for open {
		_, open = <-fetcher.Updates()
	}
}

func TestUpdatesKeepLatestState(t *testing.T) {
	q := &fakeQuoter{}
	clock := &manualClock{}
	fetcher := newTestFetcher(t, models.NewAssetPair(weth, usdc, 0), q, clock)

	fetcher.SetAmount(big.NewInt(3))
	clock.fireAll()

	state := <-fetcher.Updates()
	assert.Equal(t, int64(30), state.AmountOut.Int64())
	assert.False(t, state.Loading)
}

func TestCloseStopsPendingCommit(t *testing.T) {
	q := &fakeQuoter{}
	clock := &manualClock{}
	fetcher := newTestFetcher(t, models.NewAssetPair(weth, usdc, 0), q, clock)

	fetcher.SetAmount(big.NewInt(3))
	fetcher.Close()
	clock.fireAll()

	assert.Empty(t, q.calls())
}

func TestSharedCacheRefreshSurvivesOtherFetcherClose(t *testing.T) {
	var mu sync.Mutex
	calls := int64(0)
	q := &fakeQuoter{quote: func(*big.Int, int) (models.Quote, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return models.Quote{AmountOut: big.NewInt(calls)}, nil
	}}
	cache := querycache.New[models.Quote](querycache.Config[models.Quote]{RefreshInterval: 5 * time.Millisecond})
	defer cache.Close()

	pair := models.NewAssetPair(weth, usdc, 0)
	newShared := func(clock *manualClock) *QuoteFetcher {
		fetcher, err := New(QuoteFetcherConfig{ChainID: 1, Pair: pair}, QuoteFetcherDependencies{
			Quoter:    q,
			Cache:     cache,
			AfterFunc: clock.AfterFunc,
		})
		require.NoError(t, err)
		return fetcher
	}

	clockA, clockB := &manualClock{}, &manualClock{}
	fetcherA := newShared(clockA)
	defer fetcherA.Close()
	fetcherB := newShared(clockB)

	fetcherA.SetAmount(big.NewInt(9))
	clockA.fireAll()
	fetcherB.SetAmount(big.NewInt(9))
	clockB.fireAll()

	key := pair.GetQuoteIdentificator(1, big.NewInt(9)).String()
	require.True(t, cache.Watching(key))

	fetcherB.Close()
	assert.True(t, cache.Watching(key))

	before := fetcherA.State().AmountOut.Int64()
	assert.Eventually(t, func() bool {
		return fetcherA.State().AmountOut.Int64() > before
	}, time.Second, time.Millisecond)

	fetcherA.Close()
	assert.False(t, cache.Watching(key))
}

func TestAmountChangeReleasesPreviousWatch(t *testing.T) {
	cache := querycache.New[models.Quote](querycache.Config[models.Quote]{RefreshInterval: time.Hour})
	defer cache.Close()

	clock := &manualClock{}
	pair := models.NewAssetPair(weth, usdc, 0)
	fetcher, err := New(QuoteFetcherConfig{ChainID: 1, Pair: pair}, QuoteFetcherDependencies{
		Quoter:    &fakeQuoter{},
		Cache:     cache,
		AfterFunc: clock.AfterFunc,
	})
	require.NoError(t, err)
	defer fetcher.Close()

	fetcher.SetAmount(big.NewInt(1))
	clock.fire(0)
	fetcher.SetAmount(big.NewInt(2))
	clock.fire(1)

	assert.False(t, cache.Watching(pair.GetQuoteIdentificator(1, big.NewInt(1)).String()))
	assert.True(t, cache.Watching(pair.GetQuoteIdentificator(1, big.NewInt(2)).String()))

	fetcher.SetAmount(nil)
	clock.fire(2)
	assert.False(t, cache.Watching(pair.GetQuoteIdentificator(1, big.NewInt(2)).String()))
}
