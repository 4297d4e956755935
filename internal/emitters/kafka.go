package emitters

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"pingpay/internal/logger"
	"pingpay/internal/models"
)

// KafkaEmitter publishes transfer lifecycle events to a Kafka topic,
// keyed by transfer id so per-transfer ordering is preserved.
type KafkaEmitter struct {
	writer *kafka.Writer
	mu     sync.Mutex
}

// NewKafkaEmitter creates a new KafkaEmitter
func NewKafkaEmitter(brokerAddress, topic string) *KafkaEmitter {
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokerAddress),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (k *KafkaEmitter) EmitEvent(event models.TransferEvent) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}

	err = k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.TransferID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to Kafka: %v", err)
	}

	logger.GetLogger().Info().
		Str("type", event.Type).
		Str("transferId", event.TransferID).
		Msg("Successfully emitted event to Kafka")
	return nil
}

func (k *KafkaEmitter) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}
