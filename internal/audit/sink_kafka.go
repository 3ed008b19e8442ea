package audit

import (
	"encoding/json"
	"fmt"

	"civid/internal/platform/kafka/producer"
)

// KafkaSink fans persisted audit events out to a kafka topic. Delivery is
// asynchronous; the durable copy is the store, kafka is for consumers.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaSink(p *producer.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Publish(event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	return s.producer.ProduceAsync(&producer.Message{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: value,
	})
}
