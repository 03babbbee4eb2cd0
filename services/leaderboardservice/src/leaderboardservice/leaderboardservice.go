package leaderboardservice

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/alexkalak/go_arena_market/common/core/playeraggregator"
	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/alexkalak/go_arena_market/common/observability"
	"github.com/alexkalak/go_arena_market/common/repo/rankingrepo"
	"github.com/alexkalak/go_arena_market/services/leaderboardservice/src/leaderboardservice/leaderboardserviceerrors"
	"github.com/rs/zerolog"
)

const defaultPollInterval = 30 * time.Second

type LeaderboardService interface {
	Start(ctx context.Context) error
	TakeSnapshot(ctx context.Context, gameID *big.Int) (*models.RankingSnapshot, error)
}

type BlockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

type LeaderboardServiceConfig struct {
	ChainID            uint
	GameIDs            []*big.Int
	PollInterval       time.Duration
	KafkaServer        string
	KafkaRankingsTopic string
}

func (c *LeaderboardServiceConfig) validate() error {
	if c.ChainID == 0 {
		return errors.New("LeaderboardServiceConfig.ChainID cannot be empty")
	}
	if len(c.GameIDs) == 0 {
		return errors.New("LeaderboardServiceConfig.GameIDs cannot be empty")
	}
	if c.KafkaServer != "" && c.KafkaRankingsTopic == "" {
		return errors.New("LeaderboardServiceConfig.KafkaRankingsTopic cannot be empty when KafkaServer is set")
	}

	return nil
}

type LeaderboardServiceDependencies struct {
	PlayerAggregator playeraggregator.PlayerAggregator
	BlockReader      BlockReader
	// optional, snapshots are not persisted when nil
	RankingDBRepo rankingrepo.RankingDBRepo
	Logger        *zerolog.Logger
	Metrics       *observability.Metrics
	Now           func() time.Time

	publisher snapshotPublisher
}

func (d *LeaderboardServiceDependencies) validate() error {
	if d.PlayerAggregator == nil {
		return errors.New("LeaderboardServiceDependencies.PlayerAggregator cannot be nil")
	}
	if d.BlockReader == nil {
		return errors.New("LeaderboardServiceDependencies.BlockReader cannot be nil")
	}

	return nil
}

type leaderboardService struct {
	config           LeaderboardServiceConfig
	playerAggregator playeraggregator.PlayerAggregator
	blockReader      BlockReader
	rankingDBRepo    rankingrepo.RankingDBRepo
	publisher        snapshotPublisher
	logger           zerolog.Logger
	metrics          *observability.Metrics
	now              func() time.Time

	mu sync.Mutex
	// last snapshotted block per game id
	lastBlocks map[string]uint64
}

func New(config LeaderboardServiceConfig, dependencies LeaderboardServiceDependencies) (LeaderboardService, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := dependencies.validate(); err != nil {
		return nil, err
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}

	logger := zerolog.Nop()
	if dependencies.Logger != nil {
		logger = dependencies.Logger.With().Str("component", "leaderboardservice").Logger()
	}

	now := dependencies.Now
	if now == nil {
		now = time.Now
	}

	publisher := dependencies.publisher
	if publisher == nil && config.KafkaServer != "" {
		publisher = newKafkaClient(kafkaClientConfig{
			KafkaServer: config.KafkaServer,
			KafkaTopic:  config.KafkaRankingsTopic,
		})
	}

	return &leaderboardService{
		config:           config,
		playerAggregator: dependencies.PlayerAggregator,
		blockReader:      dependencies.BlockReader,
		rankingDBRepo:    dependencies.RankingDBRepo,
		publisher:        publisher,
		logger:           logger,
		metrics:          dependencies.Metrics,
		now:              now,
		lastBlocks:       map[string]uint64{},
	}, nil
}

// ParseGameIDs parses a comma separated list of decimal game ids.
func ParseGameIDs(value string) ([]*big.Int, error) {
	gameIDs := []*big.Int{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		gameID, ok := new(big.Int).SetString(part, 10)
		if !ok || gameID.Sign() < 0 {
			return nil, leaderboardserviceerrors.ErrInvalidGameID
		}
		gameIDs = append(gameIDs, gameID)
	}

	return gameIDs, nil
}

// Start snapshots every configured game immediately and then once per poll
// interval until ctx is cancelled.
func (s *leaderboardService) Start(ctx context.Context) error {
	if s.publisher != nil {
		defer func() {
			if err := s.publisher.Close(); err != nil {
				s.logger.Warn().Err(err).Msg("close kafka writer")
			}
		}()
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info().Int("games", len(s.config.GameIDs)).Dur("interval", s.config.PollInterval).Msg("leaderboard polling started")

	for {
		s.snapshotAll(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *leaderboardService) snapshotAll(ctx context.Context) {
	for _, gameID := range s.config.GameIDs {
		if ctx.Err() != nil {
			return
		}

		snapshot, err := s.TakeSnapshot(ctx, gameID)
		if errors.Is(err, leaderboardserviceerrors.ErrBlockUnchanged) {
			s.logger.Debug().Str("game_id", gameID.String()).Msg("block unchanged, snapshot skipped")
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("game_id", gameID.String()).Msg("ranking snapshot failed")
			continue
		}

		s.logger.Info().
			Str("game_id", gameID.String()).
			Uint64("block_number", snapshot.BlockNumber).
			Int("players", len(snapshot.Players)).
			Msg("ranking snapshot taken")
	}
}

// TakeSnapshot ranks the players of gameID at the current block, then stores
// and publishes the result. A game is snapshotted at most once per block.
func (s *leaderboardService) TakeSnapshot(ctx context.Context, gameID *big.Int) (*models.RankingSnapshot, error) {
	blockNumber, err := s.blockReader.BlockNumber(ctx)
	if err != nil {
		s.metrics.ObserveSnapshot("error")
		return nil, err
	}
	if s.snapshotted(gameID, blockNumber) {
		s.metrics.ObserveSnapshot("skipped")
		return nil, leaderboardserviceerrors.ErrBlockUnchanged
	}

	players := s.playerAggregator.GetAllPlayers(ctx, gameID)
	if len(players) == 0 {
		s.metrics.ObserveSnapshot("empty")
		return nil, leaderboardserviceerrors.ErrNoPlayers
	}

	snapshot := &models.RankingSnapshot{
		ChainID:     s.config.ChainID,
		GameID:      new(big.Int).Set(gameID),
		BlockNumber: blockNumber,
		Players:     players,
		TakenAt:     s.now().UTC(),
	}

	if s.rankingDBRepo != nil {
		if err := s.rankingDBRepo.CreateSnapshot(ctx, snapshot); err != nil {
			s.metrics.ObserveSnapshot("error")
			return nil, err
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSnapshot(ctx, snapshot); err != nil {
			s.metrics.ObserveSnapshot("error")
			return nil, err
		}
	}

	s.mu.Lock()
	s.lastBlocks[gameID.String()] = blockNumber
	s.mu.Unlock()

	s.metrics.ObserveSnapshot("ok")
	return snapshot, nil
}

func (s *leaderboardService) snapshotted(gameID *big.Int, blockNumber uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastBlocks[gameID.String()]
	return ok && last == blockNumber
}
