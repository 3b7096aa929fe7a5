package outbox

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes to any productivity topic through one shared writer. Keys are
// hashed, so every event of an aggregate (or of a tenant's Pomodoro log) keeps its order
// within one partition.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer for brokers.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// WriteMessages stamps topic on msgs and writes them synchronously.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		m.Topic = topic
		out[i] = m
	}
	return p.writer.WriteMessages(ctx, out...)
}

// Close flushes and closes the writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
