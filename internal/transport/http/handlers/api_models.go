package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AccessDataRequest asks for the user behind a cached token.
type AccessDataRequest struct {
	Token string `json:"token" binding:"required"`
}

// WebLoginRequest is accepted as form or JSON by the web tier.
type WebLoginRequest struct {
	Email    string `form:"email" json:"email" binding:"required,email"`
	Password string `form:"password" json:"password" binding:"required"`
}

// ConditionRequest carries the comparison part of a condition.
type ConditionRequest struct {
	Key       string `json:"key"`
	Type      string `json:"type" binding:"required,condition_type"`
	Operation string `json:"operation" binding:"required,condition_operation"`
	LHSType   string `json:"lhsType" binding:"required,operand_type"`
	LHS       string `json:"lhs"`
	RHSType   string `json:"rhsType" binding:"required,operand_type"`
	RHS       string `json:"rhs"`
}

// ConditionCreateRequest attaches a new condition to an existing policy.
type ConditionCreateRequest struct {
	ConditionRequest
	PolicyID string `json:"authorizationPolicyId" binding:"required"`
}

// ConditionUpdateRequest changes the given condition fields.
type ConditionUpdateRequest struct {
	Key       *string `json:"key"`
	Type      *string `json:"type" binding:"omitempty,condition_type"`
	Operation *string `json:"operation" binding:"omitempty,condition_operation"`
	LHSType   *string `json:"lhsType" binding:"omitempty,operand_type"`
	LHS       *string `json:"lhs"`
	RHSType   *string `json:"rhsType" binding:"omitempty,operand_type"`
	RHS       *string `json:"rhs"`
}

// PolicyRequest creates a policy, optionally with conditions.
type PolicyRequest struct {
	RoleName    string             `json:"roleName" binding:"required"`
	ActionKey   string             `json:"actionKey" binding:"required,action_key"`
	ActionValue *bool              `json:"actionValue" binding:"required"`
	Conditions  []ConditionRequest `json:"conditions" binding:"omitempty,dive"`
}

// PolicyUpdateRequest changes the given policy fields.
type PolicyUpdateRequest struct {
	RoleName    *string `json:"roleName" binding:"omitempty,min=1"`
	ActionKey   *string `json:"actionKey" binding:"omitempty,action_key"`
	ActionValue *bool   `json:"actionValue"`
}

// ConditionPayload is the API view of a condition.
type ConditionPayload struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Operation string `json:"operation"`
	LHSType   string `json:"lhsType"`
	LHS       string `json:"lhs"`
	RHSType   string `json:"rhsType"`
	RHS       string `json:"rhs"`
	PolicyID  string `json:"authorizationPolicyId"`
}

// PolicyPayload is the API view of a policy.
type PolicyPayload struct {
	ID          string             `json:"id"`
	RoleName    string             `json:"roleName"`
	ActionKey   string             `json:"actionKey"`
	ActionValue bool               `json:"actionValue"`
	Conditions  []ConditionPayload `json:"conditions"`
}

// RebuildResponse reports the policy index after a rebuild.
type RebuildResponse struct {
	Roles   int       `json:"roles"`
	Entries int       `json:"entries"`
	BuiltAt time.Time `json:"builtAt"`
}

// UserCreateRequest defines the payload for creating a user.
type UserCreateRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// UserUpdateRequest changes the given user fields.
type UserUpdateRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}

// RoleRequest creates or renames a role.
type RoleRequest struct {
	Name string `json:"name" binding:"required"`
}

// TodoRequest creates a todo for the caller.
type TodoRequest struct {
	Title string `json:"title" binding:"required"`
}

// TodoPayload is the API view of a todo.
type TodoPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

func newConditionPayload(cond domain.Condition) ConditionPayload {
	return ConditionPayload{
		ID:        cond.ID,
		Key:       cond.Key,
		Type:      string(cond.Type),
		Operation: string(cond.Operation),
		LHSType:   string(cond.LHSType),
		LHS:       cond.LHS,
		RHSType:   string(cond.RHSType),
		RHS:       cond.RHS,
		PolicyID:  cond.PolicyID,
	}
}

func newConditionPayloads(conds []domain.Condition) []ConditionPayload {
	out := make([]ConditionPayload, 0, len(conds))
	for _, cond := range conds {
		out = append(out, newConditionPayload(cond))
	}
	return out
}

func newPolicyPayload(policy domain.Policy) PolicyPayload {
	return PolicyPayload{
		ID:          policy.ID,
		RoleName:    policy.RoleName,
		ActionKey:   policy.ActionKey,
		ActionValue: policy.ActionValue,
		Conditions:  newConditionPayloads(policy.Conditions),
	}
}

func newPolicyPayloads(policies []domain.Policy) []PolicyPayload {
	out := make([]PolicyPayload, 0, len(policies))
	for _, policy := range policies {
		out = append(out, newPolicyPayload(policy))
	}
	return out
}

func newTodoPayload(todo domain.Todo) TodoPayload {
	return TodoPayload{ID: todo.ID, Title: todo.Title, UserID: todo.UserID, CreatedAt: todo.CreatedAt}
}

func newPublicUsers(users []domain.User) []domain.PublicUser {
	out := make([]domain.PublicUser, 0, len(users))
	for _, user := range users {
		out = append(out, user.Public())
	}
	return out
}

func newRebuildResponse(stats authz.Stats) RebuildResponse {
	return RebuildResponse{Roles: stats.Roles, Entries: stats.Entries, BuiltAt: stats.BuiltAt}
}

func (r ConditionRequest) input(policyID string) usecase.ConditionInput {
	return usecase.ConditionInput{
		Key:       r.Key,
		Type:      domain.ConditionValueType(r.Type),
		Operation: domain.ConditionOperation(r.Operation),
		LHSType:   domain.OperandType(r.LHSType),
		LHS:       r.LHS,
		RHSType:   domain.OperandType(r.RHSType),
		RHS:       r.RHS,
		PolicyID:  policyID,
	}
}

func (r PolicyRequest) input() usecase.PolicyInput {
	input := usecase.PolicyInput{
		RoleName:    r.RoleName,
		ActionKey:   r.ActionKey,
		ActionValue: r.ActionValue != nil && *r.ActionValue,
		Conditions:  make([]usecase.ConditionInput, 0, len(r.Conditions)),
	}
	for _, cond := range r.Conditions {
		input.Conditions = append(input.Conditions, cond.input(""))
	}
	return input
}

func (r PolicyUpdateRequest) fields() port.PolicyUpdate {
	return port.PolicyUpdate{RoleName: r.RoleName, ActionKey: r.ActionKey, ActionValue: r.ActionValue}
}

func (r ConditionUpdateRequest) fields() port.ConditionUpdate {
	fields := port.ConditionUpdate{Key: r.Key, LHS: r.LHS, RHS: r.RHS}
	if r.Type != nil {
		t := domain.ConditionValueType(*r.Type)
		fields.Type = &t
	}
	if r.Operation != nil {
		op := domain.ConditionOperation(*r.Operation)
		fields.Operation = &op
	}
	if r.LHSType != nil {
		t := domain.OperandType(*r.LHSType)
		fields.LHSType = &t
	}
	if r.RHSType != nil {
		t := domain.OperandType(*r.RHSType)
		fields.RHSType = &t
	}
	return fields
}

func (r UserUpdateRequest) input() usecase.UserInput {
	var input usecase.UserInput
	if r.Name != nil {
		input.Name = *r.Name
	}
	if r.Email != nil {
		input.Email = *r.Email
	}
	if r.Password != nil {
		input.Password = *r.Password
	}
	return input
}
