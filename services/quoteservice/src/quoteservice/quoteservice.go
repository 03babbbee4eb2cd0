package quoteservice

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/alexkalak/go_arena_market/common/core/playeraggregator"
	"github.com/alexkalak/go_arena_market/common/core/querycache"
	"github.com/alexkalak/go_arena_market/common/core/quoter"
	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/alexkalak/go_arena_market/common/repo/quoterepo"
	"github.com/alexkalak/go_arena_market/common/repo/quoterepo/quoterepoerrors"
	"github.com/alexkalak/go_arena_market/common/repo/rankingrepo"
	"github.com/alexkalak/go_arena_market/services/quoteservice/src/quoteservice/quoteserviceerrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

type QuoteService interface {
	GetQuote(ctx context.Context, pair models.AssetPair, amountIn *big.Int) (models.Quote, error)
	GetPlayers(ctx context.Context, gameID *big.Int) []models.Player
	GetPlayer(ctx context.Context, gameID *big.Int, address common.Address) (*models.Player, error)
	GetRankings(ctx context.Context, gameID *big.Int, addresses []common.Address) models.RankingTable
	GetLatestSnapshot(ctx context.Context, gameID *big.Int) (*models.RankingSnapshot, error)
}

type QuoteServiceConfig struct {
	ChainID   uint
	StaleTime time.Duration
}

func (c *QuoteServiceConfig) validate() error {
	if c.ChainID == 0 {
		return errors.New("quote service config ChainID cannot be 0")
	}

	return nil
}

type QuoteServiceDependencies struct {
	Quoter           quoter.Quoter
	PlayerAggregator playeraggregator.PlayerAggregator
	// optional, shares quotes between instances
	QuoteCacheRepo quoterepo.QuoteCacheRepo
	// optional, serves persisted leaderboards
	RankingDBRepo rankingrepo.RankingDBRepo
	Logger        *zerolog.Logger
	Now           func() time.Time
}

func (d *QuoteServiceDependencies) validate() error {
	if d.Quoter == nil {
		return errors.New("quote service dependencies Quoter cannot be nil")
	}
	if d.PlayerAggregator == nil {
		return errors.New("quote service dependencies PlayerAggregator cannot be nil")
	}

	return nil
}

type quoteService struct {
	config           QuoteServiceConfig
	quoter           quoter.Quoter
	playerAggregator playeraggregator.PlayerAggregator
	quoteCacheRepo   quoterepo.QuoteCacheRepo
	rankingDBRepo    rankingrepo.RankingDBRepo
	cache            *querycache.Cache[models.Quote]
	logger           zerolog.Logger
}

func New(config QuoteServiceConfig, dependencies QuoteServiceDependencies) (QuoteService, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := dependencies.validate(); err != nil {
		return nil, err
	}
	if config.StaleTime <= 0 {
		config.StaleTime = querycache.DefaultStaleTime
	}

	logger := zerolog.Nop()
	if dependencies.Logger != nil {
		logger = dependencies.Logger.With().Str("component", "quoteservice").Logger()
	}

	return &quoteService{
		config:           config,
		quoter:           dependencies.Quoter,
		playerAggregator: dependencies.PlayerAggregator,
		quoteCacheRepo:   dependencies.QuoteCacheRepo,
		rankingDBRepo:    dependencies.RankingDBRepo,
		logger:           logger,
		cache: querycache.New[models.Quote](querycache.Config[models.Quote]{
			StaleTime: config.StaleTime,
			Now:       dependencies.Now,
			// quotes read from redis keep the age they had there
			UpdatedAt: func(quote models.Quote) time.Time { return quote.FetchedAt },
		}),
	}, nil
}

func validatePair(pair models.AssetPair, amountIn *big.Int) error {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return quoteserviceerrors.ErrInvalidAmount
	}
	if !common.IsHexAddress(pair.TokenIn) || !common.IsHexAddress(pair.TokenOut) {
		return quoteserviceerrors.ErrInvalidToken
	}
	if pair.SameAsset() {
		return quoteserviceerrors.ErrSameAsset
	}

	return nil
}

// GetQuote serves a quote from the in-process cache, then the shared redis
// cache, and only then from the quoter contract.
func (s *quoteService) GetQuote(ctx context.Context, pair models.AssetPair, amountIn *big.Int) (models.Quote, error) {
	if err := validatePair(pair, amountIn); err != nil {
		return models.Quote{}, err
	}

	quoteIdentificator := pair.GetQuoteIdentificator(s.config.ChainID, amountIn)

	return s.cache.Get(ctx, quoteIdentificator.String(), func(ctx context.Context) (models.Quote, error) {
		if quote, ok := s.getSharedQuote(ctx, quoteIdentificator); ok {
			return quote, nil
		}

		quote, err := s.quoter.QuoteExactInputSingle(ctx, pair, amountIn)
		if err != nil {
			return models.Quote{}, err
		}

		if s.quoteCacheRepo != nil {
			if err := s.quoteCacheRepo.SetQuote(ctx, quoteIdentificator, quote); err != nil {
				s.logger.Warn().Err(err).Str("key", quoteIdentificator.String()).Msg("store shared quote")
			}
		}

		return quote, nil
	})
}

func (s *quoteService) getSharedQuote(ctx context.Context, quoteIdentificator models.QuoteIdentificator) (models.Quote, bool) {
	if s.quoteCacheRepo == nil {
		return models.Quote{}, false
	}

	quote, err := s.quoteCacheRepo.GetQuote(ctx, quoteIdentificator)
	if err == nil {
		return quote, true
	}
	if !errors.Is(err, quoterepoerrors.ErrQuoteNotFound) && !errors.Is(err, quoterepoerrors.ErrQuoteStale) {
		s.logger.Warn().Err(err).Str("key", quoteIdentificator.String()).Msg("read shared quote")
	}

	return models.Quote{}, false
}

func (s *quoteService) GetPlayers(ctx context.Context, gameID *big.Int) []models.Player {
	return s.playerAggregator.GetAllPlayers(ctx, gameID)
}

func (s *quoteService) GetPlayer(ctx context.Context, gameID *big.Int, address common.Address) (*models.Player, error) {
	player := s.playerAggregator.GetPlayerData(ctx, gameID, address)
	if player == nil {
		return nil, quoteserviceerrors.ErrPlayerNotFound
	}

	return player, nil
}

// GetRankings ranks the given addresses, or every player of the game when
// addresses is empty.
func (s *quoteService) GetRankings(ctx context.Context, gameID *big.Int, addresses []common.Address) models.RankingTable {
	if len(addresses) > 0 {
		return s.playerAggregator.ComputeRankings(ctx, gameID, addresses)
	}

	players := s.playerAggregator.GetAllPlayers(ctx, gameID)
	table := make(models.RankingTable, len(players))
	for _, player := range players {
		table[player.Address] = player.Rank
	}

	return table
}

func (s *quoteService) GetLatestSnapshot(ctx context.Context, gameID *big.Int) (*models.RankingSnapshot, error) {
	if s.rankingDBRepo == nil {
		return nil, quoteserviceerrors.ErrSnapshotsDisabled
	}

	return s.rankingDBRepo.GetLatestSnapshot(ctx, s.config.ChainID, gameID)
}
