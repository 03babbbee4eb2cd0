package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexkalak/go_arena_market/common/core/playeraggregator"
	"github.com/alexkalak/go_arena_market/common/core/querycache"
	"github.com/alexkalak/go_arena_market/common/core/quoter"
	"github.com/alexkalak/go_arena_market/common/external/rpcclient"
	"github.com/alexkalak/go_arena_market/common/helpers/envhelper"
	"github.com/alexkalak/go_arena_market/common/helpers/logger"
	"github.com/alexkalak/go_arena_market/common/observability"
	"github.com/alexkalak/go_arena_market/common/periphery/pgdatabase"
	"github.com/alexkalak/go_arena_market/common/periphery/redisdb"
	"github.com/alexkalak/go_arena_market/common/repo/quoterepo"
	"github.com/alexkalak/go_arena_market/common/repo/rankingrepo"
	"github.com/alexkalak/go_arena_market/services/quoteservice/src/controllers/quotehttp"
	"github.com/alexkalak/go_arena_market/services/quoteservice/src/quoteservice"
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

	metrics := observability.NewMetrics("arena_market", prometheus.DefaultRegisterer)

	rpcClient, err := rpcclient.NewRpcClient(ctx, rpcclient.RpcClientConfig{
		RPCUrl: env.ETH_MAINNET_RPC_HTTP,
	}, rpcclient.RpcClientDependencies{
		Metrics: metrics,
	})
	if err != nil {
		panic(err)
	}
	defer rpcClient.Close()

	quoterService, err := quoter.New(quoter.QuoterConfig{
		QuoterAddress: common.HexToAddress(env.QUOTER_ADDRESS),
	}, quoter.QuoterDependencies{
		ContractReader: rpcClient,
		Logger:         &log,
		Metrics:        metrics,
	})
	if err != nil {
		panic(err)
	}

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

	quoteServiceDependencies := quoteservice.QuoteServiceDependencies{
		Quoter:           quoterService,
		PlayerAggregator: playerAggregator,
		Logger:           &log,
	}

	if env.REDIS_SERVER != "" {
		redisDB, err := redisdb.New(redisdb.RedisDatabaseConfig{
			RedisServer: env.REDIS_SERVER,
		})
		if err != nil {
			panic(err)
		}
		defer redisDB.Close()

		quoteCacheRepo, err := quoterepo.NewCacheRepo(quoterepo.QuoteCacheRepoConfig{
			StaleTime: querycache.DefaultStaleTime,
		}, quoterepo.QuoteCacheRepoDependencies{
			Database: redisDB,
		})
		if err != nil {
			panic(err)
		}
		quoteServiceDependencies.QuoteCacheRepo = quoteCacheRepo
	}

	if env.POSTGRES_HOST != "" {
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
		quoteServiceDependencies.RankingDBRepo = rankingDBRepo
	}

	quoteService, err := quoteservice.New(quoteservice.QuoteServiceConfig{
		ChainID: env.CHAIN_ID,
	}, quoteServiceDependencies)
	if err != nil {
		panic(err)
	}

	httpServer, err := quotehttp.New(quotehttp.QuoteHTTPServerConfig{
		Port: env.HTTP_PORT,
	}, quotehttp.QuoteHTTPServerDependencies{
		QuoteService: quoteService,
		Logger:       &log,
	})
	if err != nil {
		panic(err)
	}

	if err := httpServer.Start(ctx); err != nil {
		panic(err)
	}
}
