package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
)

var (
	// ErrPolicyNotFound is returned for unknown policy ids.
	ErrPolicyNotFound = errors.New("policy not found")
	// ErrConditionNotFound is returned for unknown condition ids.
	ErrConditionNotFound = errors.New("condition not found")
)

// PolicyInput is the payload for creating a policy.
type PolicyInput struct {
	RoleName    string
	ActionKey   string
	ActionValue bool
	Conditions  []ConditionInput
}

// ConditionInput is the payload for creating a condition.
type ConditionInput struct {
	Key       string
	Type      domain.ConditionValueType
	Operation domain.ConditionOperation
	LHSType   domain.OperandType
	LHS       string
	RHSType   domain.OperandType
	RHS       string
	PolicyID  string
}

// PolicyService administers policies and conditions and keeps the index in step with the store.
type PolicyService struct {
	store  port.PolicyStore
	index  *authz.Index
	events port.EventPublisher
	origin string
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewPolicyService constructs a PolicyService. origin identifies this instance on published events.
func NewPolicyService(store port.PolicyStore, index *authz.Index, events port.EventPublisher, origin string, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		store:  store,
		index:  index,
		events: events,
		origin: origin,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// List returns every policy with its conditions.
func (s *PolicyService) List(ctx context.Context) ([]domain.Policy, error) {
	policies, err := s.store.GetAllWithConditions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return policies, nil
}

// Get returns one policy with its conditions.
func (s *PolicyService) Get(ctx context.Context, id string) (*domain.Policy, error) {
	policy, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return policy, nil
}

// Create stores a policy and makes it effective immediately.
func (s *PolicyService) Create(ctx context.Context, actorID string, input PolicyInput) (domain.Policy, error) {
	policy, err := s.buildPolicy(input)
	if err != nil {
		return domain.Policy{}, err
	}

	if err := s.store.Save(ctx, policy); err != nil {
		return domain.Policy{}, fmt.Errorf("save policy: %w", err)
	}

	s.index.AddEntry(policy, policy.Conditions)
	s.publish(ctx, domain.PolicyCreated, policy.ID, actorID)

	return policy, nil
}

// CreateBulk stores all policies atomically, rebuilds the index and returns the full policy set.
func (s *PolicyService) CreateBulk(ctx context.Context, actorID string, inputs []PolicyInput) ([]domain.Policy, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one policy is required", ErrInvalidInput)
	}

	policies := make([]domain.Policy, 0, len(inputs))
	for _, input := range inputs {
		policy, err := s.buildPolicy(input)
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}

	if err := s.store.SaveBulk(ctx, policies); err != nil {
		return nil, fmt.Errorf("save policies: %w", err)
	}

	s.rebuild(ctx)
	s.publish(ctx, domain.PoliciesBulk, "", actorID)

	return s.List(ctx)
}

// Update changes a policy and rebuilds the index.
func (s *PolicyService) Update(ctx context.Context, actorID, id string, fields port.PolicyUpdate) (*domain.Policy, error) {
	if fields.RoleName != nil {
		trimmed := strings.TrimSpace(*fields.RoleName)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: role name must not be empty", ErrInvalidInput)
		}
		fields.RoleName = &trimmed
	}
	if fields.ActionKey != nil {
		trimmed := strings.TrimSpace(*fields.ActionKey)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: action key must not be empty", ErrInvalidInput)
		}
		fields.ActionKey = &trimmed
	}

	policy, err := s.store.Update(ctx, id, fields)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("update policy: %w", err)
	}

	s.rebuild(ctx)
	s.publish(ctx, domain.PolicyUpdated, id, actorID)

	return policy, nil
}

// Delete removes a policy. Deleting an unknown id succeeds without touching the index.
func (s *PolicyService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete policy: %w", err)
	}

	s.rebuild(ctx)
	s.publish(ctx, domain.PolicyDeleted, id, actorID)

	return nil
}

// Conditions lists the conditions of a policy.
func (s *PolicyService) Conditions(ctx context.Context, policyID string) ([]domain.Condition, error) {
	policy, err := s.Get(ctx, policyID)
	if err != nil {
		return nil, err
	}
	return policy.Conditions, nil
}

// RebuildIndex reloads the index from the store. On failure the index keeps serving
// its previous snapshot and the error is returned.
func (s *PolicyService) RebuildIndex(ctx context.Context, actorID string) (authz.Stats, error) {
	if err := s.index.Rebuild(ctx); err != nil {
		return s.index.Stats(), err
	}
	s.publish(ctx, domain.IndexRebuilt, "", actorID)
	return s.index.Stats(), nil
}

// CreateCondition attaches a condition to an existing policy.
func (s *PolicyService) CreateCondition(ctx context.Context, actorID string, input ConditionInput) (domain.Condition, error) {
	condition, err := s.buildCondition(input)
	if err != nil {
		return domain.Condition{}, err
	}
	if strings.TrimSpace(condition.PolicyID) == "" {
		return domain.Condition{}, fmt.Errorf("%w: policy id is required", ErrInvalidInput)
	}

	if _, err := s.Get(ctx, condition.PolicyID); err != nil {
		return domain.Condition{}, err
	}

	if err := s.store.SaveCondition(ctx, condition); err != nil {
		return domain.Condition{}, fmt.Errorf("save condition: %w", err)
	}

	s.rebuild(ctx)
	s.publish(ctx, domain.ConditionChanged, condition.PolicyID, actorID)

	return condition, nil
}

// UpdateCondition changes a condition and rebuilds the index.
func (s *PolicyService) UpdateCondition(ctx context.Context, actorID, id string, fields port.ConditionUpdate) (*domain.Condition, error) {
	fields, err := normalizeConditionUpdate(fields)
	if err != nil {
		return nil, err
	}

	condition, err := s.store.UpdateCondition(ctx, id, fields)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConditionNotFound
		}
		return nil, fmt.Errorf("update condition: %w", err)
	}

	s.rebuild(ctx)
	s.publish(ctx, domain.ConditionChanged, condition.PolicyID, actorID)

	return condition, nil
}

// DeleteCondition removes a condition and rebuilds the index.
func (s *PolicyService) DeleteCondition(ctx context.Context, actorID, id string) error {
	condition, err := s.store.GetCondition(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConditionNotFound
		}
		return fmt.Errorf("get condition: %w", err)
	}

	if err := s.store.DeleteCondition(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConditionNotFound
		}
		return fmt.Errorf("delete condition: %w", err)
	}

	s.rebuild(ctx)
	s.publish(ctx, domain.ConditionChanged, condition.PolicyID, actorID)

	return nil
}

// ConditionPolicy returns the policy owning a condition.
func (s *PolicyService) ConditionPolicy(ctx context.Context, id string) (*domain.Policy, error) {
	_, policy, err := s.store.GetConditionWithPolicy(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConditionNotFound
		}
		return nil, fmt.Errorf("get condition policy: %w", err)
	}
	return policy, nil
}

func (s *PolicyService) buildPolicy(input PolicyInput) (domain.Policy, error) {
	roleName := strings.TrimSpace(input.RoleName)
	if roleName == "" {
		return domain.Policy{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	actionKey := strings.TrimSpace(input.ActionKey)
	if actionKey == "" {
		return domain.Policy{}, fmt.Errorf("%w: action key is required", ErrInvalidInput)
	}

	policy := domain.Policy{
		ID:          s.newID(),
		RoleName:    roleName,
		ActionKey:   actionKey,
		ActionValue: input.ActionValue,
	}

	for _, in := range input.Conditions {
		in.PolicyID = policy.ID
		condition, err := s.buildCondition(in)
		if err != nil {
			return domain.Policy{}, err
		}
		policy.Conditions = append(policy.Conditions, condition)
	}

	return policy, nil
}

func (s *PolicyService) buildCondition(input ConditionInput) (domain.Condition, error) {
	key := strings.TrimSpace(input.Key)
	if key == "" {
		key = domain.DefaultConditionKey
	}

	condition := domain.Condition{
		ID:        s.newID(),
		Key:       key,
		Type:      input.Type,
		Operation: input.Operation,
		LHSType:   input.LHSType,
		LHS:       strings.TrimSpace(input.LHS),
		RHSType:   input.RHSType,
		RHS:       strings.TrimSpace(input.RHS),
		PolicyID:  strings.TrimSpace(input.PolicyID),
	}

	if !condition.Type.Valid() {
		return domain.Condition{}, fmt.Errorf("%w: unknown condition type %q", ErrInvalidInput, condition.Type)
	}
	if !condition.Operation.Valid() {
		return domain.Condition{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, condition.Operation)
	}
	if !condition.LHSType.Valid() || !condition.RHSType.Valid() {
		return domain.Condition{}, fmt.Errorf("%w: operand type must be value or reference", ErrInvalidInput)
	}
	if condition.LHSType == domain.OperandReference && condition.LHS == "" {
		return domain.Condition{}, fmt.Errorf("%w: lhs attribute name is required", ErrInvalidInput)
	}
	if condition.RHSType == domain.OperandReference && condition.RHS == "" {
		return domain.Condition{}, fmt.Errorf("%w: rhs attribute name is required", ErrInvalidInput)
	}

	return condition, nil
}

func normalizeConditionUpdate(fields port.ConditionUpdate) (port.ConditionUpdate, error) {
	if fields.Type != nil && !fields.Type.Valid() {
		return fields, fmt.Errorf("%w: unknown condition type %q", ErrInvalidInput, *fields.Type)
	}
	if fields.Operation != nil && !fields.Operation.Valid() {
		return fields, fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, *fields.Operation)
	}
	if fields.LHSType != nil && !fields.LHSType.Valid() {
		return fields, fmt.Errorf("%w: unknown lhs type %q", ErrInvalidInput, *fields.LHSType)
	}
	if fields.RHSType != nil && !fields.RHSType.Valid() {
		return fields, fmt.Errorf("%w: unknown rhs type %q", ErrInvalidInput, *fields.RHSType)
	}
	if fields.Key != nil && strings.TrimSpace(*fields.Key) == "" {
		key := domain.DefaultConditionKey
		fields.Key = &key
	}
	return fields, nil
}

// rebuild refreshes the index after a committed mutation. A failure leaves the previous
// snapshot serving until the next successful rebuild.
func (s *PolicyService) rebuild(ctx context.Context) {
	if err := s.index.Rebuild(ctx); err != nil {
		s.logger.Error("policy index rebuild after mutation failed", zap.Error(err))
	}
}

func (s *PolicyService) publish(ctx context.Context, kind domain.PolicyChangeKind, policyID, actorID string) {
	if s.events == nil {
		return
	}

	event := domain.PolicyChangedEvent{
		EventID:   s.newID(),
		Kind:      kind,
		PolicyID:  policyID,
		ActorID:   actorID,
		Origin:    s.origin,
		ChangedAt: s.now(),
	}
	if err := s.events.PublishPolicyChanged(ctx, event); err != nil {
		s.logger.Warn("publish policy change failed",
			zap.String("kind", string(kind)),
			zap.String("policy_id", policyID),
			zap.Error(err),
		)
	}
}
