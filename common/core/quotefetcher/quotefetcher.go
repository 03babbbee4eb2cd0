// Package quotefetcher keeps the quote for one asset pair in sync with a user-edited
// input amount. Amount edits are debounced, results are cached per query key and
// refreshed in the background while the fetcher is open.
package quotefetcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/alexkalak/go_arena_market/common/core/debounce"
	"github.com/alexkalak/go_arena_market/common/core/querycache"
	"github.com/alexkalak/go_arena_market/common/core/quoter"
	"github.com/alexkalak/go_arena_market/common/external/rpcclient/rpcerrors"
	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/rs/zerolog"
)

type State struct {
	CommittedAmount *big.Int
	AmountOut       *big.Int
	Loading         bool
	// user-facing message, empty when the last query succeeded
	Error     string
	ErrorKind rpcerrors.Kind
	Enabled   bool
}

type QuoteFetcherConfig struct {
	ChainID         uint
	Pair            models.AssetPair
	DebounceDelay   time.Duration
	StaleTime       time.Duration
	RefreshInterval time.Duration
}

func (c *QuoteFetcherConfig) validate() error {
	if c.Pair.TokenIn == "" || c.Pair.TokenOut == "" {
		return errors.New("quote fetcher config Pair tokens not set")
	}

	return nil
}

type QuoteFetcherDependencies struct {
	Quoter quoter.Quoter
	// shared between fetchers when set, otherwise each fetcher owns one
	Cache     *querycache.Cache[models.Quote]
	Logger    *zerolog.Logger
	AfterFunc debounce.AfterFunc
}

func (d *QuoteFetcherDependencies) validate() error {
	if d.Quoter == nil {
		return errors.New("quote fetcher dependencies Quoter cannot be nil")
	}

	return nil
}

type QuoteFetcher struct {
	config    QuoteFetcherConfig
	quoter    quoter.Quoter
	logger    zerolog.Logger
	debouncer *debounce.Debouncer
	cache     *querycache.Cache[models.Quote]
	ownsCache bool

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	currentKey string
	// releases the refresh subscription of currentKey
	unwatch func()
	updates chan State
	closed  bool
}

func New(config QuoteFetcherConfig, dependencies QuoteFetcherDependencies) (*QuoteFetcher, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := dependencies.validate(); err != nil {
		return nil, err
	}

	if config.Pair.Fee == 0 {
		config.Pair.Fee = models.DEFAULT_FEE_TIER
	}

	cache := dependencies.Cache
	ownsCache := false
	if cache == nil {
		cache = querycache.New[models.Quote](querycache.Config[models.Quote]{
			StaleTime:       config.StaleTime,
			RefreshInterval: config.RefreshInterval,
		})
		ownsCache = true
	}

	logger := zerolog.Nop()
	if dependencies.Logger != nil {
		logger = *dependencies.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &QuoteFetcher{
		config:    config,
		quoter:    dependencies.Quoter,
		logger:    logger.With().Str("component", "quote_fetcher").Logger(),
		debouncer: debounce.New(config.DebounceDelay, dependencies.AfterFunc),
		cache:     cache,
		ownsCache: ownsCache,
		ctx:       ctx,
		cancel:    cancel,
		updates:   make(chan State, 1),
	}, nil
}

// SetAmount records a new input amount. Only the amount that survives the debounce
// window is committed and queried.
func (f *QuoteFetcher) SetAmount(amount *big.Int) {
	var committed *big.Int
	if amount != nil {
		committed = new(big.Int).Set(amount)
	}

	f.debouncer.Trigger(func() {
		f.commit(committed)
	})
}

func (f *QuoteFetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

// Updates delivers state changes. Only the latest undelivered state is kept.
func (f *QuoteFetcher) Updates() <-chan State {
	return f.updates
}

// Refetch queries the committed amount again, ignoring cache freshness.
func (f *QuoteFetcher) Refetch(ctx context.Context) {
	f.mu.Lock()
	if f.closed || !f.state.Enabled {
		f.mu.Unlock()
		return
	}
	key := f.currentKey
	amount := f.state.CommittedAmount
	f.state.Loading = true
	f.publishLocked()
	f.mu.Unlock()

	quote, err := f.cache.Fetch(ctx, key, f.fetcher(amount))
	f.apply(key, quote, err)
}

func (f *QuoteFetcher) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	unwatch := f.unwatch
	f.unwatch = nil
	close(f.updates)
	f.mu.Unlock()

	f.debouncer.Stop()
	if unwatch != nil {
		unwatch()
	}
	if f.ownsCache {
		f.cache.Close()
	}
	f.cancel()
}

func (f *QuoteFetcher) enabled(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0 && !f.config.Pair.SameAsset()
}

func (f *QuoteFetcher) queryKey(amount *big.Int) string {
	return f.config.Pair.GetQuoteIdentificator(f.config.ChainID, amount).String()
}

func (f *QuoteFetcher) fetcher(amount *big.Int) querycache.Fetcher[models.Quote] {
	return func(ctx context.Context) (models.Quote, error) {
		return f.quoter.QuoteExactInputSingle(ctx, f.config.Pair, amount)
	}
}

func (f *QuoteFetcher) commit(amount *big.Int) {
	key := f.queryKey(amount)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.currentKey = key
	f.state.CommittedAmount = amount

	if !f.enabled(amount) {
		f.state = State{CommittedAmount: amount}
		previousUnwatch := f.unwatch
		f.unwatch = nil
		f.publishLocked()
		f.mu.Unlock()

		if previousUnwatch != nil {
			previousUnwatch()
		}
		return
	}

	f.state.Enabled = true
	f.state.Error = ""
	f.state.ErrorKind = rpcerrors.KindNone
	cached, fresh := f.freshQuote(key)
	if fresh {
		f.state.AmountOut = cached.AmountOut
		f.state.Loading = false
	} else {
		f.state.AmountOut = nil
		f.state.Loading = true
	}
	f.publishLocked()
	f.mu.Unlock()

	fetch := f.fetcher(amount)
	unwatch := f.cache.Watch(key, fetch, func(quote models.Quote, err error) {
		f.apply(key, quote, err)
	})

	// Close or a newer commit may have run while subscribing.
	f.mu.Lock()
	if f.closed || f.currentKey != key {
		f.mu.Unlock()
		unwatch()
		return
	}
	previousUnwatch := f.unwatch
	f.unwatch = unwatch
	f.mu.Unlock()

	if previousUnwatch != nil {
		previousUnwatch()
	}

	if fresh {
		return
	}
	quote, err := f.cache.Get(f.ctx, key, fetch)
	f.apply(key, quote, err)
}

func (f *QuoteFetcher) freshQuote(key string) (models.Quote, bool) {
	if !f.cache.IsFresh(key) {
		return models.Quote{}, false
	}

	quote, _, ok := f.cache.Peek(key)
	return quote, ok
}

// apply stores a query result unless the key has been superseded in the meantime.
func (f *QuoteFetcher) apply(key string, quote models.Quote, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || key != f.currentKey {
		return
	}

	f.state.Loading = false
	if err != nil {
		kind := rpcerrors.KindOf(err)
		f.state.Error = rpcerrors.UserMessage(kind)
		f.state.ErrorKind = kind
		f.logger.Warn().Err(err).Str("key", key).Str("kind", kind.String()).Msg("quote failed")
	} else {
		f.state.AmountOut = quote.AmountOut
		f.state.Error = ""
		f.state.ErrorKind = rpcerrors.KindNone
	}
	f.publishLocked()
}

func (f *QuoteFetcher) publishLocked() {
	if f.closed {
		return
	}

	select {
	case <-f.updates:
	default:
	}
	f.updates <- f.state
}
