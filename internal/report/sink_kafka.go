package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/aspecsweb/nano-tags/internal/config"
)

// ErrNoTopic is returned when no topic is configured for a report's tag.
var ErrNoTopic = errors.New("no kafka topic for tag")

// KafkaSink publishes each report as one message on a per-tag topic, keyed by
// session id.
type KafkaSink struct {
	writers map[string]*kafka.Writer
}

// NewKafkaSink creates one async writer per tag.
func NewKafkaSink(cfg config.KafkaConfig, tags ...string) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}

	writers := make(map[string]*kafka.Writer)
	for _, tag := range tags {
		topic := cfg.Topics[tag]
		if topic == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoTopic, tag)
		}
		writers[tag] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
		}
	}

	return &KafkaSink{writers: writers}, nil
}

func (s *KafkaSink) Deliver(ctx context.Context, d Delivery) error {
	w, ok := s.writers[d.Tag]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTopic, d.Tag)
	}

	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(d.SessionID),
		Value: d.Body,
	})
}

func (s *KafkaSink) Close() error {
	var errs []error
	for _, w := range s.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
