package leaderboardservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/segmentio/kafka-go"
)

const RANKING_SNAPSHOT_KAFKA_EVENT = "RankingSnapshot"

type rankingEvent struct {
	Type        string                  `json:"type"`
	Data        *models.RankingSnapshot `json:"data"`
	BlockNumber uint64                  `json:"block_number"`
	GameID      string                  `json:"game_id"`
}

type snapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot *models.RankingSnapshot) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaClientConfig struct {
	KafkaTopic  string
	KafkaServer string
}

type kafkaClient struct {
	rankingsWriter messageWriter
}

func newKafkaClient(config kafkaClientConfig) *kafkaClient {
	writer := kafka.Writer{
		Addr:         kafka.TCP(config.KafkaServer),
		Topic:        config.KafkaTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 1 * time.Millisecond,
		Async:        false,
	}

	return &kafkaClient{
		rankingsWriter: &writer,
	}
}

func snapshotMessageKey(snapshot *models.RankingSnapshot) []byte {
	return fmt.Appendf(nil, "%d.%s", snapshot.ChainID, snapshot.GameID.String())
}

// Messages are keyed by chain and game so snapshots of one game stay ordered.
func (c *kafkaClient) PublishSnapshot(ctx context.Context, snapshot *models.RankingSnapshot) error {
	event := rankingEvent{
		Type:        RANKING_SNAPSHOT_KAFKA_EVENT,
		Data:        snapshot,
		BlockNumber: snapshot.BlockNumber,
		GameID:      snapshot.GameID.String(),
	}

	eventJSON, err := json.Marshal(&event)
	if err != nil {
		return err
	}

	return c.rankingsWriter.WriteMessages(ctx, kafka.Message{
		Key:   snapshotMessageKey(snapshot),
		Value: eventJSON,
	})
}

func (c *kafkaClient) Close() error {
	return c.rankingsWriter.Close()
}
