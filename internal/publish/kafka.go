package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rickgao/quotefeed/internal/config"
	"github.com/rickgao/quotefeed/internal/model"
)

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes events to a topic keyed by ticker, so one symbol's events
// land on one partition in order.
type Kafka struct {
	w     messageWriter
	topic string
}

// NewKafka creates a Kafka publisher from config.
func NewKafka(cfg config.KafkaConfig) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  1,
	}
	return &Kafka{w: w, topic: cfg.Topic}
}

// Name implements router.Publisher.
func (k *Kafka) Name() string { return "kafka" }

// Publish implements router.Publisher.
func (k *Kafka) Publish(ctx context.Context, ev model.Event) error {
	data, err := ev.JSON()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Ticker),
		Value: data,
		Time:  ev.Time,
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
