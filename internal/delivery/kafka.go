package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"

	"github.com/ecofood/foodshare/internal/model"
)

// DefaultTopic is where alerts are published when no topic is configured.
const DefaultTopic = "foodshare-alerts"

// Envelope is the JSON value of every outbox message. Consumers use ID to
// drop redeliveries.
type Envelope struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	RecipientID string    `json:"recipient_id"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	ListingID   string    `json:"listing_id"`
	ListingName string    `json:"listing_name"`
	Quantity    string    `json:"quantity"`
	ExpiresAt   time.Time `json:"expires_at"`
	Counterpart string    `json:"counterpart,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes alerts to an outbox topic, keyed by recipient so one
// recipient's alerts stay ordered within a partition.
type KafkaSender struct {
	writer messageWriter
	topic  string
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
		topic: topic,
	}
}

func (s *KafkaSender) SendPostedAlert(ctx context.Context, to *model.Account, listing *model.Listing, donor *model.Account) error {
	return s.publish(ctx, AlertPosted, to, listing, donor.Name)
}

func (s *KafkaSender) SendClaimedAlert(ctx context.Context, to *model.Account, listing *model.Listing, organization *model.Account) error {
	return s.publish(ctx, AlertClaimed, to, listing, organization.Name)
}

func (s *KafkaSender) SendPickupCompletedAlert(ctx context.Context, to *model.Account, listing *model.Listing, donor *model.Account) error {
	return s.publish(ctx, AlertPickupCompleted, to, listing, donor.Name)
}

func (s *KafkaSender) publish(ctx context.Context, kind string, to *model.Account, listing *model.Listing, counterpart string) error {
	env := Envelope{
		ID:          uuid.New().String(),
		Kind:        kind,
		RecipientID: to.ID,
		Email:       to.Email,
		ListingID:   listing.ID,
		ListingName: listing.Name,
		Quantity:    listing.Quantity,
		ExpiresAt:   listing.ExpiresAt,
		Counterpart: counterpart,
		CreatedAt:   time.Now().UTC(),
	}
	if to.Phone != nil {
		env.Phone = *to.Phone
	}

	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(to.ID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish %s alert to %s: %w", kind, s.topic, err)
	}

	slog.Info("alert published", "type", kind, "to", to.ID, "listing_id", listing.ID, "topic", s.topic)
	return nil
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
