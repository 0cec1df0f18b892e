package repository

import (
	"context"
	"fmt"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	pkgkafka "github.com/nimazasinich/crypto-dt-source-sub019/pkg/kafka"
)

// KafkaPublisher forwards market update envelopes to a Kafka topic, keyed
// by symbol so per-symbol ordering is preserved by the hash balancer.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, symbol string, env *models.Envelope) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(symbol), env); err != nil {
		return fmt.Errorf("kafka publish %s: %w", symbol, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
