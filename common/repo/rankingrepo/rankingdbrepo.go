package rankingrepo

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/alexkalak/go_arena_market/common/periphery/pgdatabase"
	"github.com/alexkalak/go_arena_market/common/repo/rankingrepo/rankingrepoerrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type RankingDBRepo interface {
	CreateSnapshot(ctx context.Context, snapshot *models.RankingSnapshot) error
	GetLatestSnapshot(ctx context.Context, chainID uint, gameID *big.Int) (*models.RankingSnapshot, error)
}

type RankingDBRepoDependencies struct {
	Database *pgdatabase.PgDatabase
	Logger   *zerolog.Logger
}

func (d *RankingDBRepoDependencies) validate() error {
	if d.Database == nil {
		return errors.New("ranking repo dependencies database cannot be nil")
	}

	return nil
}

type rankingDBRepo struct {
	pgDatabase *pgdatabase.PgDatabase
	logger     zerolog.Logger
}

func NewDBRepo(dependencies RankingDBRepoDependencies) (RankingDBRepo, error) {
	if err := dependencies.validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if dependencies.Logger != nil {
		logger = dependencies.Logger.With().Str("component", "rankingrepo").Logger()
	}

	return &rankingDBRepo{
		pgDatabase: dependencies.Database,
		logger:     logger,
	}, nil
}

func buildInsertSnapshotQuery(snapshot *models.RankingSnapshot) (sq.InsertBuilder, error) {
	if snapshot == nil || len(snapshot.Players) == 0 {
		return sq.InsertBuilder{}, rankingrepoerrors.ErrEmptySnapshot
	}
	if snapshot.GameID == nil {
		return sq.InsertBuilder{}, errors.New("ranking snapshot game id cannot be nil")
	}

	query := psql.
		Insert(models.RANKING_SNAPSHOTS_TABLE).
		Columns(
			models.RANKING_SNAPSHOT_CHAIN_ID,
			models.RANKING_SNAPSHOT_GAME_ID,
			models.RANKING_SNAPSHOT_BLOCK_NUMBER,
			models.RANKING_SNAPSHOT_TAKEN_AT,
			models.RANKING_SNAPSHOT_PLAYER_ADDRESS,
			models.RANKING_SNAPSHOT_PLAYER_INDEX,
			models.RANKING_SNAPSHOT_STARTING_BALANCE,
			models.RANKING_SNAPSHOT_CURRENT_BALANCE,
			models.RANKING_SNAPSHOT_IS_ELIMINATED,
			models.RANKING_SNAPSHOT_ELIMINATION_REASON,
			models.RANKING_SNAPSHOT_GAIN_PERCENTAGE,
			models.RANKING_SNAPSHOT_RANK,
		)

	for _, player := range snapshot.Players {
		query = query.Values(
			snapshot.ChainID,
			snapshot.GameID.String(),
			snapshot.BlockNumber,
			snapshot.TakenAt.UTC(),
			player.Address.Hex(),
			player.Index,
			bigIntText(player.StartingBalance),
			bigIntText(player.CurrentBalance),
			player.IsEliminated,
			player.EliminationReason,
			player.GainPercentage,
			player.Rank,
		)
	}

	return query, nil
}

func bigIntText(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func (r *rankingDBRepo) CreateSnapshot(ctx context.Context, snapshot *models.RankingSnapshot) error {
	db, err := r.pgDatabase.GetDB()
	if err != nil {
		return err
	}

	query, err := buildInsertSnapshotQuery(snapshot)
	if err != nil {
		return err
	}

	_, err = query.RunWith(db).ExecContext(ctx)
	if err != nil {
		r.logger.Error().Err(err).
			Str("game_id", snapshot.GameID.String()).
			Uint64("block_number", snapshot.BlockNumber).
			Msg("insert ranking snapshot")
		return rankingrepoerrors.ErrUnableToCreateSnapshot
	}

	return nil
}

func buildLatestSnapshotKeyQuery(chainID uint, gameID *big.Int) sq.SelectBuilder {
	return psql.
		Select(models.RANKING_SNAPSHOT_BLOCK_NUMBER, models.RANKING_SNAPSHOT_TAKEN_AT).
		From(models.RANKING_SNAPSHOTS_TABLE).
		Where(sq.Eq{
			models.RANKING_SNAPSHOT_CHAIN_ID: chainID,
			models.RANKING_SNAPSHOT_GAME_ID:  gameID.String(),
		}).
		OrderBy(
			models.RANKING_SNAPSHOT_BLOCK_NUMBER+" DESC",
			models.RANKING_SNAPSHOT_TAKEN_AT+" DESC",
		).
		Limit(1)
}

// A snapshot is identified by its block number and taken_at together, so two
// snapshots written at the same block never merge.
func buildSnapshotRowsQuery(chainID uint, gameID *big.Int, blockNumber uint64, takenAt time.Time) sq.SelectBuilder {
	return psql.
		Select(
			models.RANKING_SNAPSHOT_PLAYER_ADDRESS,
			models.RANKING_SNAPSHOT_PLAYER_INDEX,
			models.RANKING_SNAPSHOT_STARTING_BALANCE,
			models.RANKING_SNAPSHOT_CURRENT_BALANCE,
			models.RANKING_SNAPSHOT_IS_ELIMINATED,
			models.RANKING_SNAPSHOT_ELIMINATION_REASON,
			models.RANKING_SNAPSHOT_GAIN_PERCENTAGE,
			models.RANKING_SNAPSHOT_RANK,
		).
		From(models.RANKING_SNAPSHOTS_TABLE).
		Where(sq.Eq{
			models.RANKING_SNAPSHOT_CHAIN_ID:     chainID,
			models.RANKING_SNAPSHOT_GAME_ID:      gameID.String(),
			models.RANKING_SNAPSHOT_BLOCK_NUMBER: blockNumber,
			models.RANKING_SNAPSHOT_TAKEN_AT:     takenAt,
		}).
		OrderBy(models.RANKING_SNAPSHOT_RANK + " ASC")
}

// GetLatestSnapshot returns the most recent snapshot of the game, the one with
// the highest block number and, within that block, the latest taken_at.
func (r *rankingDBRepo) GetLatestSnapshot(ctx context.Context, chainID uint, gameID *big.Int) (*models.RankingSnapshot, error) {
	if gameID == nil {
		return nil, errors.New("game id cannot be nil")
	}

	db, err := r.pgDatabase.GetDB()
	if err != nil {
		return nil, err
	}

	var (
		latestBlock int64
		takenAt     time.Time
	)
	err = buildLatestSnapshotKeyQuery(chainID, gameID).
		RunWith(db).
		QueryRowContext(ctx).
		Scan(&latestBlock, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rankingrepoerrors.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := buildSnapshotRowsQuery(chainID, gameID, uint64(latestBlock), takenAt).
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := &models.RankingSnapshot{
		ChainID:     chainID,
		GameID:      new(big.Int).Set(gameID),
		BlockNumber: uint64(latestBlock),
		TakenAt:     takenAt,
		Players:     []models.Player{},
	}

	for rows.Next() {
		var (
			addressStr     string
			player         models.Player
			startingStr    string
			currentBalance string
		)

		err := rows.Scan(
			&addressStr,
			&player.Index,
			&startingStr,
			&currentBalance,
			&player.IsEliminated,
			&player.EliminationReason,
			&player.GainPercentage,
			&player.Rank,
		)
		if err != nil {
			return nil, err
		}

		if !common.IsHexAddress(addressStr) {
			return nil, rankingrepoerrors.ErrInvalidStoredValue
		}
		player.Address = common.HexToAddress(addressStr)

		var ok bool
		if player.StartingBalance, ok = new(big.Int).SetString(startingStr, 10); !ok {
			return nil, rankingrepoerrors.ErrInvalidStoredValue
		}
		if player.CurrentBalance, ok = new(big.Int).SetString(currentBalance, 10); !ok {
			return nil, rankingrepoerrors.ErrInvalidStoredValue
		}

		snapshot.Players = append(snapshot.Players, player)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snapshot, nil
}
