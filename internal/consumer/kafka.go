package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/aspecsweb/nano-tags/internal/agent"
	"github.com/aspecsweb/nano-tags/internal/config"
)

// Applier performs page signals.
type Applier interface {
	Apply(ctx context.Context, sig agent.Signal, source string) (string, error)
}

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer feeds page signals from the signals topic into the agent.
// Messages are keyed by page id by the producer, so the signals of one page
// arrive in order on one partition.
type KafkaConsumer struct {
	reader Reader
	agent  Applier
	topic  string
	group  string
}

// NewKafkaConsumer creates a consumer on the configured signals topic.
func NewKafkaConsumer(cfg config.KafkaConfig, a Applier) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer requires at least one broker")
	}
	topic := cfg.Topics["signals"]
	if topic == "" {
		topic = "nanotags.signals"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: 1000,
		StartOffset:    kafka.LastOffset,
	})

	return NewKafkaConsumerWithReader(reader, a, topic, cfg.ConsumerGroup), nil
}

func NewKafkaConsumerWithReader(reader Reader, a Applier, topic, group string) *KafkaConsumer {
	return &KafkaConsumer{
		reader: reader,
		agent:  a,
		topic:  topic,
		group:  group,
	}
}

// Start consumes until ctx is done.
func (c *KafkaConsumer) Start(ctx context.Context) {
	log.Info().
		Str("topic", c.topic).
		Str("group", c.group).
		Msg("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Kafka consumer stopped")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("Failed to fetch message")
				continue
			}

			c.handle(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("Failed to commit message")
			}
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	var sig agent.Signal
	if err := json.Unmarshal(msg.Value, &sig); err != nil {
		log.Error().
			Err(err).
			Str("value", string(msg.Value)).
			Msg("Failed to parse signal")
		return
	}

	pageID, err := c.agent.Apply(ctx, sig, "kafka")
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, agent.ErrPageNotFound), errors.Is(err, agent.ErrRateLimited):
		// the page is gone or noisy; either way the signal is dropped
		log.Debug().Err(err).Str("page_id", pageID).Msg("Signal dropped")
	default:
		log.Error().
			Err(err).
			Str("page_id", pageID).
			Str("type", string(sig.Type)).
			Msg("Failed to apply signal")
	}
}

// Close closes the consumer
func (c *KafkaConsumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	return c.reader.Close()
}
