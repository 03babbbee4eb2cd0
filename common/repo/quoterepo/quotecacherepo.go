package quoterepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/alexkalak/go_arena_market/common/periphery/redisdb"
	"github.com/alexkalak/go_arena_market/common/repo/quoterepo/quoterepoerrors"
	"github.com/redis/go-redis/v9"
)

const QUOTES_HASH = "quotes"

func getQuotesHashByChainID(chainID uint) string {
	return fmt.Sprintf("%d.%s", chainID, QUOTES_HASH)
}

// QuoteCacheRepo shares quotes between service instances. Entries older than
// StaleTime are reported as ErrQuoteStale and removed.
type QuoteCacheRepo interface {
	GetQuote(ctx context.Context, quoteIdentificator models.QuoteIdentificator) (models.Quote, error)
	SetQuote(ctx context.Context, quoteIdentificator models.QuoteIdentificator, quote models.Quote) error
	ClearQuotes(ctx context.Context, chainID uint) error
}

type QuoteCacheRepoConfig struct {
	StaleTime time.Duration
}

type QuoteCacheRepoDependencies struct {
	Database *redisdb.RedisDatabase
	Now      func() time.Time
}

func (d *QuoteCacheRepoDependencies) validate() error {
	if d.Database == nil {
		return errors.New("quote cache repo dependencies Database cannot be nil")
	}

	return nil
}

type quoteCacheRepo struct {
	config  QuoteCacheRepoConfig
	redisDB *redisdb.RedisDatabase
	now     func() time.Time
}

func NewCacheRepo(config QuoteCacheRepoConfig, dependencies QuoteCacheRepoDependencies) (QuoteCacheRepo, error) {
	if err := dependencies.validate(); err != nil {
		return nil, err
	}
	if config.StaleTime <= 0 {
		config.StaleTime = 15 * time.Second
	}

	now := dependencies.Now
	if now == nil {
		now = time.Now
	}

	return &quoteCacheRepo{
		config:  config,
		redisDB: dependencies.Database,
		now:     now,
	}, nil
}

func (r *quoteCacheRepo) GetQuote(ctx context.Context, quoteIdentificator models.QuoteIdentificator) (models.Quote, error) {
	rdb, err := r.redisDB.GetDB()
	if err != nil {
		return models.Quote{}, err
	}

	hash := getQuotesHashByChainID(quoteIdentificator.ChainID)
	field := quoteIdentificator.String()

	quoteStr, err := rdb.HGet(ctx, hash, field).Result()
	if errors.Is(err, redis.Nil) {
		return models.Quote{}, quoterepoerrors.ErrQuoteNotFound
	}
	if err != nil {
		return models.Quote{}, err
	}

	quote := models.Quote{}
	if err := quote.FillFromJSON([]byte(quoteStr)); err != nil {
		return models.Quote{}, err
	}

	if !quote.IsFresh(r.now(), r.config.StaleTime) {
		if err := rdb.HDel(ctx, hash, field).Err(); err != nil {
			return models.Quote{}, err
		}
		return models.Quote{}, quoterepoerrors.ErrQuoteStale
	}

	return quote, nil
}

func (r *quoteCacheRepo) SetQuote(ctx context.Context, quoteIdentificator models.QuoteIdentificator, quote models.Quote) error {
	rdb, err := r.redisDB.GetDB()
	if err != nil {
		return err
	}

	quoteJSON, err := quote.GetJSON()
	if err != nil {
		return err
	}

	return rdb.HSet(ctx, getQuotesHashByChainID(quoteIdentificator.ChainID), quoteIdentificator.String(), quoteJSON).Err()
}

func (r *quoteCacheRepo) ClearQuotes(ctx context.Context, chainID uint) error {
	rdb, err := r.redisDB.GetDB()
	if err != nil {
		return err
	}

	return rdb.Del(ctx, getQuotesHashByChainID(chainID)).Err()
}
