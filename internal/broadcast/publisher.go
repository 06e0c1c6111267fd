package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher announces finished broadcasts to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, summary Summary) error
}

// CompletedEvent is the wire form of a finished broadcast. Per-recipient
// details stay out of the event; they only go back to the caller.
type CompletedEvent struct {
	NotificationID  string    `json:"notification_id"`
	MessagingSent   int       `json:"messaging_sent"`
	MessagingFailed int       `json:"messaging_failed"`
	EmailSent       int       `json:"email_sent"`
	EmailFailed     int       `json:"email_failed"`
	TotalRecipients int       `json:"total_recipients"`
	Unprocessed     int       `json:"unprocessed"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

func eventFromSummary(s Summary) CompletedEvent {
	return CompletedEvent{
		NotificationID:  s.NotificationID,
		MessagingSent:   s.MessagingSent,
		MessagingFailed: s.MessagingFailed,
		EmailSent:       s.EmailSent,
		EmailFailed:     s.EmailFailed,
		TotalRecipients: s.TotalRecipients,
		Unprocessed:     s.Unprocessed,
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
	}
}

type KafkaPublisher struct {
	Writer *kafka.Writer
}

func (p *KafkaPublisher) Publish(ctx context.Context, summary Summary) error {
	payload, err := json.Marshal(eventFromSummary(summary))
	if err != nil {
		return fmt.Errorf("marshal completed event: %w", err)
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(summary.NotificationID),
		Value: payload,
	})
}
