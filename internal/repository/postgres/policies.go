package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
)

var (
	policyColumns    = []string{"id", "role_name", "action_key", "action_value"}
	conditionColumns = []string{"id", "key", "type", "operation", "lhs_type", "lhs", "rhs_type", "rhs", "policy_id"}
)

// PolicyRepository implements port.PolicyStore backed by PostgreSQL.
// Policies are returned in insertion order, which is the order the index matches them in.
type PolicyRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPolicyRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewPolicyRepository(exec pgExecutor) *PolicyRepository {
	return &PolicyRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *PolicyRepository) WithTx(tx pgx.Tx) *PolicyRepository {
	if tx == nil {
		return r
	}
	return &PolicyRepository{exec: tx, builder: r.builder}
}

// GetAllWithConditions loads every policy with its conditions attached.
func (r *PolicyRepository) GetAllWithConditions(ctx context.Context) ([]domain.Policy, error) {
	stmt, args, err := r.builder.Select(policyColumns...).
		From(policiesTable).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list policies sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	policies, err := collectPolicies(rows)
	if err != nil {
		return nil, err
	}

	conditions, err := r.queryConditions(ctx, r.builder.Select(conditionColumns...).
		From(conditionsTable).
		OrderBy("policy_id ASC", "key ASC", "id ASC"))
	if err != nil {
		return nil, err
	}

	positions := make(map[string]int, len(policies))
	for i, policy := range policies {
		positions[policy.ID] = i
	}
	for _, condition := range conditions {
		if i, ok := positions[condition.PolicyID]; ok {
			policies[i].Conditions = append(policies[i].Conditions, condition)
		}
	}

	return policies, nil
}

// Save inserts the policy together with any conditions it carries in one transaction.
func (r *PolicyRepository) Save(ctx context.Context, policy domain.Policy) error {
	return r.inTx(ctx, "policy", func(txRepo *PolicyRepository) error {
		return txRepo.insertPolicy(ctx, policy)
	})
}

// SaveBulk inserts all policies in a single transaction.
func (r *PolicyRepository) SaveBulk(ctx context.Context, policies []domain.Policy) error {
	if len(policies) == 0 {
		return nil
	}
	return r.inTx(ctx, "bulk policy", func(txRepo *PolicyRepository) error {
		for _, policy := range policies {
			if err := txRepo.insertPolicy(ctx, policy); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PolicyRepository) inTx(ctx context.Context, name string, fn func(*PolicyRepository) error) (err error) {
	starter, ok := r.exec.(txStarter)
	if !ok {
		return errors.New(name + " save requires a transactional executor")
	}

	tx, err := starter.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(r.WithTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s tx: %w", name, err)
	}
	return nil
}

func (r *PolicyRepository) insertPolicy(ctx context.Context, policy domain.Policy) error {
	stmt, args, err := r.builder.Insert(policiesTable).
		Columns(policyColumns...).
		Values(policy.ID, policy.RoleName, policy.ActionKey, policy.ActionValue).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert policy sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}

	for _, condition := range policy.Conditions {
		condition.PolicyID = policy.ID
		if err := r.SaveCondition(ctx, condition); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the policy and its conditions.
func (r *PolicyRepository) Get(ctx context.Context, id string) (*domain.Policy, error) {
	stmt, args, err := r.builder.Select(policyColumns...).
		From(policiesTable).
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select policy sql: %w", err)
	}

	policy, err := scanPolicy(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}

	conditions, err := r.ListConditions(ctx, id)
	if err != nil {
		return nil, err
	}
	policy.Conditions = conditions

	return policy, nil
}

// Update applies the non-nil fields and returns the stored policy.
func (r *PolicyRepository) Update(ctx context.Context, id string, fields port.PolicyUpdate) (*domain.Policy, error) {
	query := r.builder.Update(policiesTable).Where(squirrel.Eq{"id": id})
	changed := false
	if fields.RoleName != nil {
		query = query.Set("role_name", *fields.RoleName)
		changed = true
	}
	if fields.ActionKey != nil {
		query = query.Set("action_key", *fields.ActionKey)
		changed = true
	}
	if fields.ActionValue != nil {
		query = query.Set("action_value", *fields.ActionValue)
		changed = true
	}
	if !changed {
		return r.Get(ctx, id)
	}

	stmt, args, err := query.Suffix("RETURNING id, role_name, action_key, action_value").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update policy sql: %w", err)
	}

	policy, err := scanPolicy(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}

	conditions, err := r.ListConditions(ctx, id)
	if err != nil {
		return nil, err
	}
	policy.Conditions = conditions

	return policy, nil
}

// Delete removes a policy; its conditions go with it through the foreign key cascade.
func (r *PolicyRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(policiesTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete policy sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListConditions returns the conditions owned by a policy.
func (r *PolicyRepository) ListConditions(ctx context.Context, policyID string) ([]domain.Condition, error) {
	return r.queryConditions(ctx, r.builder.Select(conditionColumns...).
		From(conditionsTable).
		Where(squirrel.Eq{"policy_id": policyID}).
		OrderBy("key ASC", "id ASC"))
}

// TableExists reports whether the policy table has been created.
func (r *PolicyRepository) TableExists(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.exec.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", policiesTable).Scan(&exists); err != nil {
		return false, fmt.Errorf("check policy table: %w", err)
	}
	return exists, nil
}

// SaveCondition inserts a condition for an existing policy.
func (r *PolicyRepository) SaveCondition(ctx context.Context, c domain.Condition) error {
	stmt, args, err := r.builder.Insert(conditionsTable).
		Columns(conditionColumns...).
		Values(c.ID, c.Key, string(c.Type), string(c.Operation), string(c.LHSType), c.LHS, string(c.RHSType), c.RHS, c.PolicyID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert condition sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert condition: %w", err)
	}

	return nil
}

// GetCondition returns a single condition.
func (r *PolicyRepository) GetCondition(ctx context.Context, id string) (*domain.Condition, error) {
	stmt, args, err := r.builder.Select(conditionColumns...).
		From(conditionsTable).
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select condition sql: %w", err)
	}

	return scanCondition(r.exec.QueryRow(ctx, stmt, args...))
}

// GetConditionWithPolicy returns a condition and the policy that owns it.
func (r *PolicyRepository) GetConditionWithPolicy(ctx context.Context, id string) (*domain.Condition, *domain.Policy, error) {
	condition, err := r.GetCondition(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	policy, err := r.Get(ctx, condition.PolicyID)
	if err != nil {
		return nil, nil, fmt.Errorf("load condition policy: %w", err)
	}

	return condition, policy, nil
}

// UpdateCondition applies the non-nil fields and returns the stored condition.
func (r *PolicyRepository) UpdateCondition(ctx context.Context, id string, fields port.ConditionUpdate) (*domain.Condition, error) {
	query := r.builder.Update(conditionsTable).Where(squirrel.Eq{"id": id})
	changed := false
	set := func(column string, value any) {
		query = query.Set(column, value)
		changed = true
	}
	if fields.Key != nil {
		set("key", *fields.Key)
	}
	if fields.Type != nil {
		set("type", string(*fields.Type))
	}
	if fields.Operation != nil {
		set("operation", string(*fields.Operation))
	}
	if fields.LHSType != nil {
		set("lhs_type", string(*fields.LHSType))
	}
	if fields.LHS != nil {
		set("lhs", *fields.LHS)
	}
	if fields.RHSType != nil {
		set("rhs_type", string(*fields.RHSType))
	}
	if fields.RHS != nil {
		set("rhs", *fields.RHS)
	}
	if !changed {
		return r.GetCondition(ctx, id)
	}

	stmt, args, err := query.Suffix("RETURNING id, key, type, operation, lhs_type, lhs, rhs_type, rhs, policy_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update condition sql: %w", err)
	}

	return scanCondition(r.exec.QueryRow(ctx, stmt, args...))
}

// DeleteCondition removes a single condition.
func (r *PolicyRepository) DeleteCondition(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(conditionsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete condition sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete condition: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *PolicyRepository) queryConditions(ctx context.Context, query squirrel.SelectBuilder) ([]domain.Condition, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list conditions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query conditions: %w", err)
	}
	defer rows.Close()

	conditions := make([]domain.Condition, 0)
	for rows.Next() {
		condition, err := scanCondition(rows)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, *condition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conditions: %w", err)
	}

	return conditions, nil
}

func collectPolicies(rows pgx.Rows) ([]domain.Policy, error) {
	defer rows.Close()

	policies := make([]domain.Policy, 0)
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *policy)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}

	return policies, nil
}

func scanPolicy(row pgx.Row) (*domain.Policy, error) {
	var policy domain.Policy
	if err := row.Scan(&policy.ID, &policy.RoleName, &policy.ActionKey, &policy.ActionValue); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	return &policy, nil
}

func scanCondition(row pgx.Row) (*domain.Condition, error) {
	var (
		c                                      domain.Condition
		valueType, operation, lhsType, rhsType string
	)
	if err := row.Scan(&c.ID, &c.Key, &valueType, &operation, &lhsType, &c.LHS, &rhsType, &c.RHS, &c.PolicyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan condition: %w", err)
	}
	c.Type = domain.ConditionValueType(valueType)
	c.Operation = domain.ConditionOperation(operation)
	c.LHSType = domain.OperandType(lhsType)
	c.RHSType = domain.OperandType(rhsType)
	return &c, nil
}

var _ port.PolicyStore = (*PolicyRepository)(nil)
