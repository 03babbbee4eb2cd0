package redisdb

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

type RedisDatabaseConfig struct {
	RedisServer string
	Password    string
	DB          int
}

func (c *RedisDatabaseConfig) validate() error {
	if c.RedisServer == "" {
		return errors.New("redis database config RedisServer cannot be empty")
	}

	return nil
}

type RedisDatabase struct {
	rdb *redis.Client
}

func (d *RedisDatabase) GetDB() (*redis.Client, error) {
	if d == nil || d.rdb == nil {
		return nil, errors.New("redis database uninitialized")
	}

	return d.rdb, nil
}

func (d *RedisDatabase) Ping(ctx context.Context) error {
	rdb, err := d.GetDB()
	if err != nil {
		return err
	}

	return rdb.Ping(ctx).Err()
}

func (d *RedisDatabase) Close() error {
	rdb, err := d.GetDB()
	if err != nil {
		return err
	}

	return rdb.Close()
}

func New(config RedisDatabaseConfig) (*RedisDatabase, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisServer,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisDatabase{
		rdb: rdb,
	}, nil
}

// NewFromClient wraps an existing client, e.g. one pointed at a test server.
func NewFromClient(rdb *redis.Client) *RedisDatabase {
	return &RedisDatabase{
		rdb: rdb,
	}
}
