package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/infra/config"
)

const (
	schemaVersion = "1.0"

	// PolicyChangedEventType is the event type, and topic suffix, of policy change notifications.
	PolicyChangedEventType = "abac.policy.changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   json.RawMessage  `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, key string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	bytes, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   body,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if key != "" {
		message.Key = sarama.StringEncoder(key)
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishPolicyChanged publishes abac.policy.changed events. Messages are keyed by policy id.
func (p *EventPublisher) PublishPolicyChanged(ctx context.Context, event domain.PolicyChangedEvent) error {
	return p.publish(ctx, event.EventID, PolicyChangedEventType, event.PolicyID, event.ChangedAt, event)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
