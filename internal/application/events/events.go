// Package events publishes workflow milestones to the event pipeline for
// downstream consumers (card production, notification, analytics).
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"civid/internal/application/models"
	"civid/internal/platform/kafka/producer"
)

// CredentialIssued is the wire shape of a credential.issued event.
type CredentialIssued struct {
	ApplicationID string    `json:"application_id"`
	SubjectID     string    `json:"subject_id"`
	UIN           string    `json:"uin"`
	IssuedAt      time.Time `json:"issued_at"`
	ReviewedBy    string    `json:"reviewed_by"`
}

// KafkaPublisher emits events through the shared kafka producer. Delivery is
// asynchronous; the application record is the source of truth, the stream is
// a notification channel.
type KafkaPublisher struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaPublisher(p *producer.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

// PublishIssued announces a completed issuance.
func (k *KafkaPublisher) PublishIssued(app *models.Application) error {
	issuedAt := time.Now().UTC()
	if app.IssuedAt != nil {
		issuedAt = *app.IssuedAt
	}
	value, err := json.Marshal(CredentialIssued{
		ApplicationID: app.ID.String(),
		SubjectID:     app.SubjectID.String(),
		UIN:           app.UIN.String(),
		IssuedAt:      issuedAt,
		ReviewedBy:    app.ReviewedBy.String(),
	})
	if err != nil {
		return fmt.Errorf("encode credential.issued event: %w", err)
	}
	return k.producer.ProduceAsync(&producer.Message{
		Topic: k.topic,
		Key:   []byte(app.SubjectID.String()),
		Value: value,
	})
}
