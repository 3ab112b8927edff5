package port

import (
	"context"

	"github.com/arklim/abac-auth-service/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishPolicyChanged(ctx context.Context, event domain.PolicyChangedEvent) error
}
