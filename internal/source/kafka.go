package source

import (
	"context"
	"log"

	kafka "github.com/segmentio/kafka-go"

	"github.com/flowlattice/enrich/internal/model"
	"github.com/flowlattice/enrich/internal/pausegate"
)

// KafkaSource streams records from a Kafka topic using a consumer-group
// Reader, acking via CommitMessages only once the pipeline confirms every
// derived outcome has been published (spec.md §4.2). Structurally mirrors
// the retry/backoff shape of kernel/internal/audit/kafka_producer.go,
// inverted from produce to consume.
type KafkaSource struct {
	reader *kafka.Reader
}

// KafkaSourceConfig configures the underlying Reader.
type KafkaSourceConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewKafkaSource constructs a KafkaSource.
func NewKafkaSource(cfg KafkaSourceConfig) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return &KafkaSource{reader: reader}
}

type kafkaAckHandle struct {
	reader *kafka.Reader
	msg    kafka.Message
}

func (h kafkaAckHandle) Ack() {
	if err := h.reader.CommitMessages(context.Background(), h.msg); err != nil {
		log.Printf("[source.kafka] commit offset failed for partition=%d offset=%d: %v", h.msg.Partition, h.msg.Offset, err)
	}
}

// Stream implements Source.
func (s *KafkaSource) Stream(ctx context.Context, gate *pausegate.Gate) (<-chan model.RawRecord, error) {
	out := make(chan model.RawRecord)
	go func() {
		defer close(out)
		for {
			gate.Wait(ctx.Done())
			if ctx.Err() != nil {
				return
			}
			msg, err := s.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[source.kafka] fetch message: %v", err)
				continue
			}
			rec := model.RawRecord{
				Payload: msg.Value,
				Ack:     kafkaAckHandle{reader: s.reader, msg: msg},
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the underlying reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
