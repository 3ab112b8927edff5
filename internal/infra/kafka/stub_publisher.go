package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// PublishPolicyChanged logs abac.policy.changed events.
func (p *StubPublisher) PublishPolicyChanged(_ context.Context, event domain.PolicyChangedEvent) error {
	p.logger.Info("stub event published",
		zap.String("event_type", PolicyChangedEventType),
		zap.String("kind", string(event.Kind)),
		zap.String("policy_id", event.PolicyID),
		zap.String("actor_id", event.ActorID),
		zap.Time("timestamp", event.ChangedAt.UTC()),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
