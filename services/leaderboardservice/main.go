package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/alexkalak/go_arena_market/common/core/playeraggregator"
	"github.com/alexkalak/go_arena_market/common/external/rpcclient"
	"github.com/alexkalak/go_arena_market/common/helpers/envhelper"
	"github.com/alexkalak/go_arena_market/common/helpers/logger"
	"github.com/alexkalak/go_arena_market/common/observability"
	"github.com/alexkalak/go_arena_market/common/periphery/pgdatabase"
	"github.com/alexkalak/go_arena_market/common/repo/rankingrepo"
	"github.com/alexkalak/go_arena_market/services/leaderboardservice/src/leaderboardservice"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	env, err := envhelper.GetEnv()
	if err != nil {
		panic(err)
	}

	log := logger.New(env.LOG_LEVEL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gameIDs, err := leaderboardservice.ParseGameIDs(env.LEADERBOARD_GAME_IDS)
	if err != nil {
		panic(err)
	}

	metrics := observability.NewMetrics("arena_leaderboard", prometheus.DefaultRegisterer)

	rpcClient, err := rpcclient.NewRpcClient(ctx, rpcclient.RpcClientConfig{
		RPCUrl: env.ETH_MAINNET_RPC_HTTP,
	}, rpcclient.RpcClientDependencies{
		Metrics: metrics,
	})
	if err != nil {
		panic(err)
	}
	defer rpcClient.Close()

	playerAggregator, err := playeraggregator.New(playeraggregator.PlayerAggregatorConfig{
		GameAddress: common.HexToAddress(env.GAME_ADDRESS),
	}, playeraggregator.PlayerAggregatorDependencies{
		ContractReader: rpcClient,
		Logger:         &log,
		Metrics:        metrics,
	})
	if err != nil {
		panic(err)
	}

	pgDB, err := pgdatabase.New(pgdatabase.PgDatabaseConfig{
		Host:     env.POSTGRES_HOST,
		Port:     env.POSTGRES_PORT,
		User:     env.POSTGRES_USER,
		Password: env.POSTGRES_PASSWORD,
		DBName:   env.POSTGRES_DB_NAME,
		SSlMode:  env.POSTGRES_SSL_MODE,
	})
	if err != nil {
		panic(err)
	}
	defer pgDB.Close()

	rankingDBRepo, err := rankingrepo.NewDBRepo(rankingrepo.RankingDBRepoDependencies{
		Database: pgDB,
		Logger:   &log,
	})
	if err != nil {
		panic(err)
	}

	leaderboardService, err := leaderboardservice.New(leaderboardservice.LeaderboardServiceConfig{
		ChainID:            env.CHAIN_ID,
		GameIDs:            gameIDs,
		PollInterval:       env.LEADERBOARD_POLL_INTERVAL,
		KafkaServer:        env.KAFKA_SERVER,
		KafkaRankingsTopic: env.KAFKA_RANKINGS_TOPIC,
	}, leaderboardservice.LeaderboardServiceDependencies{
		PlayerAggregator: playerAggregator,
		BlockReader:      rpcClient,
		RankingDBRepo:    rankingDBRepo,
		Logger:           &log,
		Metrics:          metrics,
	})
	if err != nil {
		panic(err)
	}

	metricsServer, err := observability.NewMetricsServer(observability.MetricsServerConfig{
		Port: env.METRICS_PORT,
	}, observability.MetricsServerDependencies{
		Logger: &log,
	})
	if err != nil {
		panic(err)
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		if err := metricsServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
			stop()
		}
	})

	if err := leaderboardService.Start(ctx); err != nil {
		panic(err)
	}
	stop()
	wg.Wait()
}
