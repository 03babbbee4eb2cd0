package envhelper

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Environment struct {
	ETH_MAINNET_RPC_HTTP string
	CHAIN_ID             uint
	QUOTER_ADDRESS       string
	GAME_ADDRESS         string

	REDIS_SERVER string

	POSTGRES_HOST     string
	POSTGRES_PORT     string
	POSTGRES_USER     string
	POSTGRES_PASSWORD string
	POSTGRES_DB_NAME  string
	POSTGRES_SSL_MODE string

	KAFKA_SERVER         string
	KAFKA_RANKINGS_TOPIC string

	HTTP_PORT                 uint
	METRICS_PORT              uint
	LOG_LEVEL                 string
	LEADERBOARD_GAME_IDS      string
	LEADERBOARD_POLL_INTERVAL time.Duration
}

var env *Environment

func GetEnv() (*Environment, error) {
	if env != nil {
		return env, nil
	}

	env = &Environment{}
	err := load()
	if err != nil {
		env = nil
		return nil, err
	}
	return env, nil
}

const _ETH_MAINNET_RPC_HTTP = "ETH_MAINNET_RPC_HTTP"
const _CHAIN_ID = "CHAIN_ID"
const _QUOTER_ADDRESS = "QUOTER_ADDRESS"
const _GAME_ADDRESS = "GAME_ADDRESS"

const _REDIS_SERVER = "REDIS_SERVER"

const _POSTGRES_HOST = "POSTGRES_HOST"
const _POSTGRES_PORT = "POSTGRES_PORT"
const _POSTGRES_USER = "POSTGRES_USER"
const _POSTGRES_PASSWORD = "POSTGRES_PASSWORD"
const _POSTGRES_DB_NAME = "POSTGRES_DB_NAME"
const _POSTGRES_SSL_MODE = "POSTGRES_SSL_MODE"

const _KAFKA_SERVER = "KAFKA_SERVER"
const _KAFKA_RANKINGS_TOPIC = "KAFKA_RANKINGS_TOPIC"

const _HTTP_PORT = "HTTP_PORT"
const _METRICS_PORT = "METRICS_PORT"
const _LOG_LEVEL = "LOG_LEVEL"
const _LEADERBOARD_GAME_IDS = "LEADERBOARD_GAME_IDS"
const _LEADERBOARD_POLL_INTERVAL = "LEADERBOARD_POLL_INTERVAL"

// Chain access is required by every service, the rest is validated by the
// component that uses it.
func load() error {
	godotenv.Load()

	env.ETH_MAINNET_RPC_HTTP = os.Getenv(_ETH_MAINNET_RPC_HTTP)
	if env.ETH_MAINNET_RPC_HTTP == "" {
		return buildLoadingEnvError(_ETH_MAINNET_RPC_HTTP)
	}

	chainID, err := strconv.ParseUint(os.Getenv(_CHAIN_ID), 10, 64)
	if err != nil || chainID == 0 {
		return buildLoadingEnvError(_CHAIN_ID)
	}
	env.CHAIN_ID = uint(chainID)

	env.QUOTER_ADDRESS = os.Getenv(_QUOTER_ADDRESS)
	if env.QUOTER_ADDRESS == "" {
		return buildLoadingEnvError(_QUOTER_ADDRESS)
	}

	env.GAME_ADDRESS = os.Getenv(_GAME_ADDRESS)
	if env.GAME_ADDRESS == "" {
		return buildLoadingEnvError(_GAME_ADDRESS)
	}

	env.REDIS_SERVER = os.Getenv(_REDIS_SERVER)

	env.POSTGRES_HOST = os.Getenv(_POSTGRES_HOST)
	env.POSTGRES_PORT = os.Getenv(_POSTGRES_PORT)
	env.POSTGRES_USER = os.Getenv(_POSTGRES_USER)
	env.POSTGRES_PASSWORD = os.Getenv(_POSTGRES_PASSWORD)
	env.POSTGRES_DB_NAME = os.Getenv(_POSTGRES_DB_NAME)
	env.POSTGRES_SSL_MODE = getOrDefault(_POSTGRES_SSL_MODE, "disable")

	env.KAFKA_SERVER = os.Getenv(_KAFKA_SERVER)
	env.KAFKA_RANKINGS_TOPIC = os.Getenv(_KAFKA_RANKINGS_TOPIC)

	httpPort, err := strconv.Atoi(getOrDefault(_HTTP_PORT, "8080"))
	if err != nil || httpPort <= 0 {
		return buildLoadingEnvError(_HTTP_PORT)
	}
	env.HTTP_PORT = uint(httpPort)

	metricsPort, err := strconv.Atoi(getOrDefault(_METRICS_PORT, "9090"))
	if err != nil || metricsPort <= 0 {
		return buildLoadingEnvError(_METRICS_PORT)
	}
	env.METRICS_PORT = uint(metricsPort)

	env.LOG_LEVEL = getOrDefault(_LOG_LEVEL, "info")
	env.LEADERBOARD_GAME_IDS = os.Getenv(_LEADERBOARD_GAME_IDS)

	pollInterval, err := time.ParseDuration(getOrDefault(_LEADERBOARD_POLL_INTERVAL, "30s"))
	if err != nil || pollInterval <= 0 {
		return buildLoadingEnvError(_LEADERBOARD_POLL_INTERVAL)
	}
	env.LEADERBOARD_POLL_INTERVAL = pollInterval

	return nil
}

func getOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func buildLoadingEnvError(key string) error {
	return fmt.Errorf("error with variable: %s", key)
}
