package playeraggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/alexkalak/go_arena_market/common/external/rpcclient"
	"github.com/alexkalak/go_arena_market/common/external/rpcclient/rpcerrors"
	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/alexkalak/go_arena_market/common/observability"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const (
	getPlayersMethod = "getPlayers"
	getPlayerMethod  = "getPlayer"
)

// PlayerAggregator reads game players and ranks them. None of its operations fail:
// players that cannot be read are logged and left out.
type PlayerAggregator interface {
	GetAllPlayers(ctx context.Context, gameID *big.Int) []models.Player
	GetPlayerData(ctx context.Context, gameID *big.Int, address common.Address) *models.Player
	ComputeRankings(ctx context.Context, gameID *big.Int, addresses []common.Address) models.RankingTable
}

type PlayerAggregatorConfig struct {
	GameAddress common.Address
}

func (c *PlayerAggregatorConfig) validate() error {
	if c.GameAddress == (common.Address{}) {
		return errors.New("player aggregator config GameAddress not set")
	}

	return nil
}

type PlayerAggregatorDependencies struct {
	ContractReader rpcclient.ContractReader
	// parsed from the embedded game ABI when nil
	GameABI *abi.ABI
	Logger  *zerolog.Logger
	Metrics *observability.Metrics
}

func (d *PlayerAggregatorDependencies) validate() error {
	if d.ContractReader == nil {
		return errors.New("player aggregator dependencies ContractReader cannot be nil")
	}

	return nil
}

type playerRecord struct {
	index             *big.Int
	startingBalance   *big.Int
	isAlive           bool
	eliminationReason string
}

type playerAggregator struct {
	config         PlayerAggregatorConfig
	contractReader rpcclient.ContractReader
	gameABI        *abi.ABI
	logger         zerolog.Logger
	metrics        *observability.Metrics
}

func New(config PlayerAggregatorConfig, dependencies PlayerAggregatorDependencies) (PlayerAggregator, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := dependencies.validate(); err != nil {
		return nil, err
	}

	gameABI := dependencies.GameABI
	if gameABI == nil {
		parsed, err := rpcclient.ParseGameABI()
		if err != nil {
			return nil, err
		}
		gameABI = parsed
	}

	logger := zerolog.Nop()
	if dependencies.Logger != nil {
		logger = *dependencies.Logger
	}

	return &playerAggregator{
		config:         config,
		contractReader: dependencies.ContractReader,
		gameABI:        gameABI,
		logger:         logger.With().Str("component", "player_aggregator").Logger(),
		metrics:        dependencies.Metrics,
	}, nil
}

func (a *playerAggregator) GetAllPlayers(ctx context.Context, gameID *big.Int) []models.Player {
	addresses, err := a.getPlayerAddresses(ctx, gameID)
	if err != nil {
		a.logger.Error().Err(err).Str("game_id", gameID.String()).Msg("unable to fetch players")
		return []models.Player{}
	}
	addresses = uniqueAddresses(addresses)

	fetched := make([]*models.Player, len(addresses))
	wg := sync.WaitGroup{}
	for i, address := range addresses {
		wg.Go(func() {
			fetched[i] = a.GetPlayerData(ctx, gameID, address)
		})
	}
	wg.Wait()

	players := make([]models.Player, 0, len(fetched))
	for _, player := range fetched {
		if player != nil {
			players = append(players, *player)
		}
	}

	table := rankPlayers(players)
	for i := range players {
		players[i].Rank = table[players[i].Address]
	}
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Rank < players[j].Rank
	})

	a.metrics.SetRankedPlayers(len(players))
	return players
}

func (a *playerAggregator) GetPlayerData(ctx context.Context, gameID *big.Int, address common.Address) *models.Player {
	player, err := a.fetchPlayer(ctx, gameID, address)
	if err != nil {
		a.metrics.IncPlayerFetchFailure()
		a.logger.Warn().
			Err(err).
			Str("game_id", gameID.String()).
			Str("player", address.Hex()).
			Str("kind", rpcerrors.KindOf(err).String()).
			Msg("unable to fetch player data")
		return nil
	}

	return &player
}

func (a *playerAggregator) ComputeRankings(ctx context.Context, gameID *big.Int, addresses []common.Address) models.RankingTable {
	addresses = uniqueAddresses(addresses)
	fetched := make([]*rankEntry, len(addresses))
	wg := sync.WaitGroup{}
	for i, address := range addresses {
		wg.Go(func() {
			record, balance, err := a.fetchRecordAndBalance(ctx, gameID, address)
			if err != nil {
				a.metrics.IncPlayerFetchFailure()
				a.logger.Warn().Err(err).Str("player", address.Hex()).Msg("unable to fetch player for ranking")
				return
			}

			fetched[i] = &rankEntry{
				address: address,
				alive:   record.isAlive,
				gain:    rawGain(record.startingBalance, balance),
			}
		})
	}
	wg.Wait()

	entries := make([]rankEntry, 0, len(fetched))
	for _, entry := range fetched {
		if entry != nil {
			entries = append(entries, *entry)
		}
	}

	return rank(entries)
}

func (a *playerAggregator) fetchPlayer(ctx context.Context, gameID *big.Int, address common.Address) (models.Player, error) {
	record, currentBalance, err := a.fetchRecordAndBalance(ctx, gameID, address)
	if err != nil {
		return models.Player{}, err
	}

	player := models.Player{
		Address:           address,
		Index:             record.index.Uint64(),
		StartingBalance:   record.startingBalance,
		CurrentBalance:    currentBalance,
		IsEliminated:      !record.isAlive,
		EliminationReason: record.eliminationReason,
		GainPercentage:    GainPercentage(record.startingBalance, currentBalance),
	}
	if player.IsEliminated {
		player.GainPercentage = models.ELIMINATED_GAIN_PERCENTAGE
	}

	return player, nil
}

// fetchRecordAndBalance reads the contract record and the native balance concurrently.
func (a *playerAggregator) fetchRecordAndBalance(ctx context.Context, gameID *big.Int, address common.Address) (playerRecord, *big.Int, error) {
	var record playerRecord
	var recordErr error
	var balance *big.Int
	var balanceErr error

	wg := sync.WaitGroup{}
	wg.Go(func() {
		record, recordErr = a.getPlayerRecord(ctx, gameID, address)
	})
	wg.Go(func() {
		balance, balanceErr = a.contractReader.BalanceAt(ctx, address)
	})
	wg.Wait()

	if recordErr != nil {
		return playerRecord{}, nil, recordErr
	}
	if balanceErr != nil {
		return playerRecord{}, nil, balanceErr
	}
	if balance == nil {
		return playerRecord{}, nil, fmt.Errorf("%w: nil balance for %s", rpcerrors.ErrUnexpectedOutput, address.Hex())
	}

	return record, balance, nil
}

func (a *playerAggregator) getPlayerAddresses(ctx context.Context, gameID *big.Int) ([]common.Address, error) {
	out, err := a.contractReader.CallContract(ctx, a.config.GameAddress, a.gameABI, getPlayersMethod, gameID)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d values", rpcerrors.ErrUnexpectedOutput, getPlayersMethod, len(out))
	}

	addresses, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: %s addresses", rpcerrors.ErrUnexpectedOutput, getPlayersMethod)
	}

	return addresses, nil
}

func (a *playerAggregator) getPlayerRecord(ctx context.Context, gameID *big.Int, address common.Address) (playerRecord, error) {
	out, err := a.contractReader.CallContract(ctx, a.config.GameAddress, a.gameABI, getPlayerMethod, gameID, address)
	if err != nil {
		return playerRecord{}, err
	}
	if len(out) != 4 {
		return playerRecord{}, fmt.Errorf("%w: %s returned %d values", rpcerrors.ErrUnexpectedOutput, getPlayerMethod, len(out))
	}

	index, ok := out[0].(*big.Int)
	if !ok {
		return playerRecord{}, fmt.Errorf("%w: %s index", rpcerrors.ErrUnexpectedOutput, getPlayerMethod)
	}
	startingBalance, ok := out[1].(*big.Int)
	if !ok {
		return playerRecord{}, fmt.Errorf("%w: %s startingBalance", rpcerrors.ErrUnexpectedOutput, getPlayerMethod)
	}
	isAlive, ok := out[2].(bool)
	if !ok {
		return playerRecord{}, fmt.Errorf("%w: %s isAlive", rpcerrors.ErrUnexpectedOutput, getPlayerMethod)
	}
	eliminationReason, ok := out[3].(string)
	if !ok {
		return playerRecord{}, fmt.Errorf("%w: %s eliminationReason", rpcerrors.ErrUnexpectedOutput, getPlayerMethod)
	}

	return playerRecord{
		index:             index,
		startingBalance:   startingBalance,
		isAlive:           isAlive,
		eliminationReason: eliminationReason,
	}, nil
}

// uniqueAddresses keeps the first occurrence of every address so ranks stay a
// permutation of 1..N.
func uniqueAddresses(addresses []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(addresses))
	unique := make([]common.Address, 0, len(addresses))
	for _, address := range addresses {
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		unique = append(unique, address)
	}

	return unique
}
