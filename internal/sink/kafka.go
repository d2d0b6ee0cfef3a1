package sink

import (
	"context"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaSink batches records and writes them to a Kafka topic, grounded on
// kernel/internal/audit/kafka_producer.go's KafkaProducer, generalized from
// WriteMessages(ctx, one message) to WriteMessages(ctx, a whole batch).
type KafkaSink struct {
	*batcher
	writer *kafka.Writer
}

// KafkaSinkConfig configures the Kafka writer and the shared batcher.
type KafkaSinkConfig struct {
	Brokers         []string
	Topic           string
	WriteTimeout    time.Duration
	PartitionKeyAttr string
	Batch           Config
}

// NewKafkaSink constructs a KafkaSink.
func NewKafkaSink(cfg KafkaSinkConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink: topic required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	s := &KafkaSink{writer: writer}
	s.batcher = newBatcher(cfg.Batch, kafkaPublisher{
		writer:           writer,
		writeTimeout:     cfg.WriteTimeout,
		partitionKeyAttr: cfg.PartitionKeyAttr,
	})
	return s, nil
}

type kafkaPublisher struct {
	writer           *kafka.Writer
	writeTimeout     time.Duration
	partitionKeyAttr string
}

func (p kafkaPublisher) PublishBatch(ctx context.Context, batch []Record) error {
	msgs := make([]kafka.Message, len(batch))
	for i, rec := range batch {
		msgs[i] = kafka.Message{
			Key:   []byte(partitionKey(rec, p.partitionKeyAttr)),
			Value: rec.Data,
			Time:  time.Now().UTC(),
		}
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(attemptCtx, msgs...); err != nil {
		return fmt.Errorf("kafka write batch of %d: %w", len(batch), err)
	}
	return nil
}

// Close flushes any pending batch and closes the underlying writer.
func (s *KafkaSink) Close(ctx context.Context) error {
	flushErr := s.batcher.Close(ctx)
	closeErr := s.writer.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
