package quoteservice

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/alexkalak/go_arena_market/common/repo/quoterepo/quoterepoerrors"
	"github.com/alexkalak/go_arena_market/services/quoteservice/src/quoteservice/quoteserviceerrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	weth = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

type fakeQuoter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (q *fakeQuoter) QuoteExactInputSingle(_ context.Context, _ models.AssetPair, amountIn *big.Int) (models.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return models.Quote{}, q.err
	}
	return models.Quote{
		AmountIn:  amountIn,
		AmountOut: new(big.Int).Mul(amountIn, big.NewInt(2)),
		FetchedAt: time.Now(),
	}, nil
}

func (q *fakeQuoter) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

type fakeQuoteCacheRepo struct {
	mu     sync.Mutex
	quotes map[string]models.Quote
	now    func() time.Time
}

func newFakeQuoteCacheRepo() *fakeQuoteCacheRepo {
	return &fakeQuoteCacheRepo{quotes: map[string]models.Quote{}}
}

func (r *fakeQuoteCacheRepo) GetQuote(_ context.Context, id models.QuoteIdentificator) (models.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	quote, ok := r.quotes[id.String()]
	if !ok {
		return models.Quote{}, quoterepoerrors.ErrQuoteNotFound
	}
	if r.now != nil && !quote.IsFresh(r.now(), 15*time.Second) {
		delete(r.quotes, id.String())
		return models.Quote{}, quoterepoerrors.ErrQuoteStale
	}
	return quote, nil
}

func (r *fakeQuoteCacheRepo) SetQuote(_ context.Context, id models.QuoteIdentificator, quote models.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes[id.String()] = quote
	return nil
}

func (r *fakeQuoteCacheRepo) ClearQuotes(context.Context, uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes = map[string]models.Quote{}
	return nil
}

type fakeAggregator struct {
	players  []models.Player
	computed []common.Address
}

func (a *fakeAggregator) GetAllPlayers(context.Context, *big.Int) []models.Player {
	return a.players
}

func (a *fakeAggregator) GetPlayerData(_ context.Context, _ *big.Int, address common.Address) *models.Player {
	for _, player := range a.players {
		if player.Address == address {
			return &player
		}
	}
	return nil
}

func (a *fakeAggregator) ComputeRankings(_ context.Context, _ *big.Int, addresses []common.Address) models.RankingTable {
	a.computed = addresses
	table := models.RankingTable{}
	for i, address := range addresses {
		table[address] = i + 1
	}
	return table
}

func newTestService(t *testing.T, q *fakeQuoter, repo *fakeQuoteCacheRepo, aggregator *fakeAggregator) QuoteService {
	t.Helper()

	deps := QuoteServiceDependencies{
		Quoter:           q,
		PlayerAggregator: aggregator,
	}
	if repo != nil {
		deps.QuoteCacheRepo = repo
	}

	service, err := New(QuoteServiceConfig{ChainID: 1}, deps)
	require.NoError(t, err)
	return service
}

func TestNewValidates(t *testing.T) {
	_, err := New(QuoteServiceConfig{}, QuoteServiceDependencies{Quoter: &fakeQuoter{}, PlayerAggregator: &fakeAggregator{}})
	assert.Error(t, err)

	_, err = New(QuoteServiceConfig{ChainID: 1}, QuoteServiceDependencies{PlayerAggregator: &fakeAggregator{}})
	assert.Error(t, err)
}

func TestGetQuoteRejectsInvalidInput(t *testing.T) {
	q := &fakeQuoter{}
	service := newTestService(t, q, nil, &fakeAggregator{})
	ctx := context.Background()

	_, err := service.GetQuote(ctx, models.NewAssetPair(weth, usdc, 0), nil)
	assert.ErrorIs(t, err, quoteserviceerrors.ErrInvalidAmount)

	_, err = service.GetQuote(ctx, models.NewAssetPair(weth, usdc, 0), big.NewInt(0))
	assert.ErrorIs(t, err, quoteserviceerrors.ErrInvalidAmount)

	_, err = service.GetQuote(ctx, models.NewAssetPair("weth", usdc, 0), big.NewInt(1))
	assert.ErrorIs(t, err, quoteserviceerrors.ErrInvalidToken)

	_, err = service.GetQuote(ctx, models.NewAssetPair(weth, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", 0), big.NewInt(1))
	assert.ErrorIs(t, err, quoteserviceerrors.ErrSameAsset)

	assert.Equal(t, 0, q.callCount())
}

func TestGetQuoteCachesResult(t *testing.T) {
	q := &fakeQuoter{}
	repo := newFakeQuoteCacheRepo()
	service := newTestService(t, q, repo, &fakeAggregator{})
	pair := models.NewAssetPair(weth, usdc, 0)

	first, err := service.GetQuote(context.Background(), pair, big.NewInt(10))
	require.NoError(t, err)
	second, err := service.GetQuote(context.Background(), pair, big.NewInt(10))
	require.NoError(t, err)

	assert.Equal(t, int64(20), first.AmountOut.Int64())
	assert.Equal(t, first.AmountOut, second.AmountOut)
	assert.Equal(t, 1, q.callCount())

	_, err = repo.GetQuote(context.Background(), pair.GetQuoteIdentificator(1, big.NewInt(10)))
	assert.NoError(t, err)
}

func TestGetQuoteUsesSharedCache(t *testing.T) {
	q := &fakeQuoter{}
	repo := newFakeQuoteCacheRepo()
	pair := models.NewAssetPair(weth, usdc, 0)
	require.NoError(t, repo.SetQuote(context.Background(), pair.GetQuoteIdentificator(1, big.NewInt(5)), models.Quote{AmountOut: big.NewInt(99)}))

	service := newTestService(t, q, repo, &fakeAggregator{})
	quote, err := service.GetQuote(context.Background(), pair, big.NewInt(5))
	require.NoError(t, err)

	assert.Equal(t, int64(99), quote.AmountOut.Int64())
	assert.Equal(t, 0, q.callCount())
}

func TestGetQuotePropagatesQuoterError(t *testing.T) {
	quoteErr := errors.New("execution reverted")
	service := newTestService(t, &fakeQuoter{err: quoteErr}, nil, &fakeAggregator{})

	_, err := service.GetQuote(context.Background(), models.NewAssetPair(weth, usdc, 0), big.NewInt(1))
	assert.ErrorIs(t, err, quoteErr)
}

func TestGetRankings(t *testing.T) {
	alice := common.HexToAddress("0xa1")
	bob := common.HexToAddress("0xb2")
	aggregator := &fakeAggregator{players: []models.Player{
		{Address: bob, Rank: 1},
		{Address: alice, Rank: 2},
	}}
	service := newTestService(t, &fakeQuoter{}, nil, aggregator)

	table := service.GetRankings(context.Background(), big.NewInt(1), nil)
	assert.Equal(t, models.RankingTable{bob: 1, alice: 2}, table)
	assert.Nil(t, aggregator.computed)

	table = service.GetRankings(context.Background(), big.NewInt(1), []common.Address{alice})
	assert.Equal(t, models.RankingTable{alice: 1}, table)
	assert.Equal(t, []common.Address{alice}, aggregator.computed)
}

func TestGetPlayer(t *testing.T) {
	alice := common.HexToAddress("0xa1")
	service := newTestService(t, &fakeQuoter{}, nil, &fakeAggregator{players: []models.Player{{Address: alice, Rank: 1}}})

	player, err := service.GetPlayer(context.Background(), big.NewInt(1), alice)
	require.NoError(t, err)
	assert.Equal(t, alice, player.Address)

	_, err = service.GetPlayer(context.Background(), big.NewInt(1), common.HexToAddress("0xff"))
	assert.ErrorIs(t, err, quoteserviceerrors.ErrPlayerNotFound)
}

func TestGetLatestSnapshotDisabled(t *testing.T) {
	service := newTestService(t, &fakeQuoter{}, nil, &fakeAggregator{})

	_, err := service.GetLatestSnapshot(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, quoteserviceerrors.ErrSnapshotsDisabled)
}

func TestSharedQuoteKeepsItsAge(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	q := &fakeQuoter{}
	repo := newFakeQuoteCacheRepo()
	repo.now = clock
	pair := models.NewAssetPair(weth, usdc, 0)
	require.NoError(t, repo.SetQuote(context.Background(), pair.GetQuoteIdentificator(1, big.NewInt(5)), models.Quote{
		AmountOut: big.NewInt(99),
		FetchedAt: now.Add(-10 * time.Second),
	}))

	service, err := New(QuoteServiceConfig{ChainID: 1}, QuoteServiceDependencies{
		Quoter:           q,
		PlayerAggregator: &fakeAggregator{},
		QuoteCacheRepo:   repo,
		Now:              clock,
	})
	require.NoError(t, err)

	quote, err := service.GetQuote(context.Background(), pair, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, int64(99), quote.AmountOut.Int64())
	assert.Equal(t, 0, q.callCount())

	now = now.Add(6 * time.Second)
	quote, err = service.GetQuote(context.Background(), pair, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, int64(10), quote.AmountOut.Int64())
	assert.Equal(t, 1, q.callCount())
}
