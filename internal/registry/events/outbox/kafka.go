package outbox

import (
	"context"

	"poe/internal/platform/kafka/producer"
)

// KafkaPublisher publishes outbox messages keyed by record identity, so all
// events for one record land on one partition in order.
type KafkaPublisher struct {
	producer *producer.Producer
}

func NewKafkaPublisher(p *producer.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (k *KafkaPublisher) Publish(ctx context.Context, batch []Message) error {
	return k.producer.PublishBatch(ctx, toKafkaMessages(batch))
}

func toKafkaMessages(batch []Message) []producer.Message {
	out := make([]producer.Message, len(batch))
	for i, msg := range batch {
		out[i] = producer.Message{
			Key:   msg.RecordID.Bytes(),
			Value: msg.Payload,
			Headers: map[string]string{
				"event_id":   msg.ID.String(),
				"event_type": msg.Kind.String(),
			},
		}
	}
	return out
}
