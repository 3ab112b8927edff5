package port

import (
	"context"

	"github.com/arklim/abac-auth-service/internal/core/domain"
)

// PolicyUpdate lists the policy fields to change; nil fields are left untouched.
type PolicyUpdate struct {
	RoleName    *string
	ActionKey   *string
	ActionValue *bool
}

// ConditionUpdate lists the condition fields to change; nil fields are left untouched.
type ConditionUpdate struct {
	Key       *string
	Type      *domain.ConditionValueType
	Operation *domain.ConditionOperation
	LHSType   *domain.OperandType
	LHS       *string
	RHSType   *domain.OperandType
	RHS       *string
}

// PolicySource is the read side needed to rebuild the policy index.
type PolicySource interface {
	GetAllWithConditions(ctx context.Context) ([]domain.Policy, error)
}

// PolicyStore is the durable source of truth for policies and their conditions.
type PolicyStore interface {
	PolicySource
	Save(ctx context.Context, policy domain.Policy) error
	Get(ctx context.Context, id string) (*domain.Policy, error)
	Update(ctx context.Context, id string, fields PolicyUpdate) (*domain.Policy, error)
	Delete(ctx context.Context, id string) error
	SaveBulk(ctx context.Context, policies []domain.Policy) error
	ListConditions(ctx context.Context, policyID string) ([]domain.Condition, error)
	TableExists(ctx context.Context) (bool, error)

	SaveCondition(ctx context.Context, condition domain.Condition) error
	GetCondition(ctx context.Context, id string) (*domain.Condition, error)
	GetConditionWithPolicy(ctx context.Context, id string) (*domain.Condition, *domain.Policy, error)
	UpdateCondition(ctx context.Context, id string, fields ConditionUpdate) (*domain.Condition, error)
	DeleteCondition(ctx context.Context, id string) error
}
