package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/infra/config"
)

// IndexRebuilder reloads the in-memory policy index.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) error
}

// PolicyChangeConsumer rebuilds the local policy index when a peer reports a policy change.
type PolicyChangeConsumer struct {
	index  IndexRebuilder
	origin string
	logger *zap.Logger
}

// NewPolicyChangeConsumer constructs a consumer. Events carrying origin were published by this
// instance, which already rebuilt synchronously, and are skipped.
func NewPolicyChangeConsumer(index IndexRebuilder, origin string, logger *zap.Logger) *PolicyChangeConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyChangeConsumer{index: index, origin: origin, logger: logger}
}

// HandleMessage decodes a Kafka message and applies it.
func (c *PolicyChangeConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}
	if envelope.EventType != PolicyChangedEventType {
		return nil
	}

	var event domain.PolicyChangedEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return fmt.Errorf("decode policy changed event: %w", err)
	}

	return c.HandleEvent(ctx, event)
}

// HandleEvent rebuilds the index unless the event originated here.
func (c *PolicyChangeConsumer) HandleEvent(ctx context.Context, event domain.PolicyChangedEvent) error {
	if event.Origin != "" && event.Origin == c.origin {
		return nil
	}

	if err := c.index.Rebuild(ctx); err != nil {
		c.logger.Warn("policy index rebuild after peer change failed",
			zap.String("kind", string(event.Kind)),
			zap.String("origin", event.Origin),
			zap.Error(err),
		)
		return fmt.Errorf("rebuild policy index: %w", err)
	}

	c.logger.Info("policy index rebuilt after peer change",
		zap.String("kind", string(event.Kind)),
		zap.String("policy_id", event.PolicyID),
		zap.String("origin", event.Origin),
	)
	return nil
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *PolicyChangeConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *PolicyChangeConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler. A failed message is logged and
// marked; the periodic reconciler covers a missed rebuild.
func (c *PolicyChangeConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				c.logger.Warn("policy change message failed",
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// RunPolicyConsumer joins the consumer group and consumes policy change events until ctx is done.
func RunPolicyConsumer(ctx context.Context, cfg config.KafkaSettings, consumer *PolicyChangeConsumer, logger *zap.Logger) error {
	saramaConfig := newSaramaConfig()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = false

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return fmt.Errorf("create kafka consumer group: %w", err)
	}
	defer group.Close()

	topics := []string{topicName(cfg.TopicPrefix, PolicyChangedEventType)}
	logger.Info("policy change consumer started", zap.Strings("topics", topics), zap.String("group_id", cfg.GroupID))

	for {
		if err := group.Consume(ctx, topics, consumer); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Warn("policy change consumer error", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*PolicyChangeConsumer)(nil)
