package quoter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/alexkalak/go_arena_market/common/core/quoter/quotererrors"
	"github.com/alexkalak/go_arena_market/common/external/rpcclient"
	"github.com/alexkalak/go_arena_market/common/external/rpcclient/rpcerrors"
	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/alexkalak/go_arena_market/common/observability"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const quoteExactInputSingleMethod = "quoteExactInputSingle"

// One automatic retry before the error is surfaced.
const defaultMaxAttempts = 2

type Quoter interface {
	QuoteExactInputSingle(ctx context.Context, pair models.AssetPair, amountIn *big.Int) (models.Quote, error)
}

type QuoterConfig struct {
	QuoterAddress common.Address
	MaxAttempts   int
	RetryDelay    time.Duration
}

func (c *QuoterConfig) validate() error {
	if c.QuoterAddress == (common.Address{}) {
		return errors.New("quoter config QuoterAddress not set")
	}

	return nil
}

type QuoterDependencies struct {
	ContractReader rpcclient.ContractReader
	// parsed from the embedded QuoterV2 ABI when nil
	QuoterABI *abi.ABI
	Logger    *zerolog.Logger
	Metrics   *observability.Metrics
	Now       func() time.Time
}

func (d *QuoterDependencies) validate() error {
	if d.ContractReader == nil {
		return errors.New("quoter dependencies ContractReader cannot be nil")
	}

	return nil
}

type quoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

type quoter struct {
	config         QuoterConfig
	contractReader rpcclient.ContractReader
	quoterABI      *abi.ABI
	logger         zerolog.Logger
	metrics        *observability.Metrics
	now            func() time.Time
}

func New(config QuoterConfig, dependencies QuoterDependencies) (Quoter, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := dependencies.validate(); err != nil {
		return nil, err
	}

	quoterABI := dependencies.QuoterABI
	if quoterABI == nil {
		parsed, err := rpcclient.ParseQuoterABI()
		if err != nil {
			return nil, err
		}
		quoterABI = parsed
	}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}

	logger := zerolog.Nop()
	if dependencies.Logger != nil {
		logger = *dependencies.Logger
	}

	now := dependencies.Now
	if now == nil {
		now = time.Now
	}

	return &quoter{
		config:         config,
		contractReader: dependencies.ContractReader,
		quoterABI:      quoterABI,
		logger:         logger.With().Str("component", "quoter").Logger(),
		metrics:        dependencies.Metrics,
		now:            now,
	}, nil
}

func (q *quoter) QuoteExactInputSingle(ctx context.Context, pair models.AssetPair, amountIn *big.Int) (models.Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 || pair.SameAsset() {
		return models.Quote{}, quotererrors.ErrQuoteDisabled
	}

	params := quoteExactInputSingleParams{
		TokenIn:           common.HexToAddress(pair.TokenIn),
		TokenOut:          common.HexToAddress(pair.TokenOut),
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(pair.Fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	var out []any
	var err error
	for attempt := 1; attempt <= q.config.MaxAttempts; attempt++ {
		out, err = q.contractReader.CallContract(ctx, q.config.QuoterAddress, q.quoterABI, quoteExactInputSingleMethod, params)
		if err == nil {
			break
		}

		q.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("token_in", pair.TokenIn).
			Str("token_out", pair.TokenOut).
			Str("amount_in", amountIn.String()).
			Msg("quote call failed")

		if attempt == q.config.MaxAttempts {
			break
		}

		q.metrics.IncQuoteRetry()
		if err := sleep(ctx, q.config.RetryDelay); err != nil {
			break
		}
	}
	if err != nil {
		err = rpcerrors.Wrap(quoteExactInputSingleMethod, err)
		q.metrics.ObserveQuote(rpcerrors.KindOf(err).String())
		return models.Quote{}, err
	}

	quote, err := decodeQuote(out)
	if err != nil {
		q.metrics.ObserveQuote(rpcerrors.KindGeneric.String())
		return models.Quote{}, err
	}
	quote.AmountIn = new(big.Int).Set(amountIn)
	quote.FetchedAt = q.now()

	q.metrics.ObserveQuote("ok")
	return quote, nil
}

func decodeQuote(out []any) (models.Quote, error) {
	if len(out) != 4 {
		return models.Quote{}, fmt.Errorf("%w: expected 4 values, got %d", quotererrors.ErrInvalidQuoterOutput, len(out))
	}

	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: amountOut", quotererrors.ErrInvalidQuoterOutput)
	}
	sqrtPriceX96After, ok := out[1].(*big.Int)
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: sqrtPriceX96After", quotererrors.ErrInvalidQuoterOutput)
	}
	initializedTicksCrossed, ok := out[2].(uint32)
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: initializedTicksCrossed", quotererrors.ErrInvalidQuoterOutput)
	}
	gasEstimate, ok := out[3].(*big.Int)
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: gasEstimate", quotererrors.ErrInvalidQuoterOutput)
	}

	return models.Quote{
		AmountOut:               amountOut,
		SqrtPriceX96After:       sqrtPriceX96After,
		InitializedTicksCrossed: initializedTicksCrossed,
		GasEstimate:             gasEstimate,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
