package authz

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arklim/abac-auth-service/internal/core/domain"
)

var (
	// ErrTypeMismatch indicates an operand could not be read as the declared value type.
	ErrTypeMismatch = errors.New("authz: operand type mismatch")
	// ErrUnresolvedAttribute indicates a referenced attribute is empty or missing from the request.
	ErrUnresolvedAttribute = errors.New("authz: unresolved attribute")
	// ErrUnsupportedOperation indicates the operation is not defined for the value type.
	ErrUnsupportedOperation = errors.New("authz: unsupported operation")
	// ErrInvalidCondition indicates a malformed condition row.
	ErrInvalidCondition = errors.New("authz: invalid condition")
)

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

type operand struct {
	kind domain.ConditionValueType
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

// EvaluateConditions reports whether every condition holds. The first failing or
// erroring condition stops evaluation.
func EvaluateConditions(conditions []domain.Condition, attrs Attributes) (bool, error) {
	for _, cond := range conditions {
		ok, err := EvaluateCondition(cond, attrs)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// EvaluateCondition resolves both operands of cond and applies its operation.
// Any error means the condition does not hold.
func EvaluateCondition(cond domain.Condition, attrs Attributes) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = fmt.Errorf("%w: %v", ErrInvalidCondition, r)
		}
	}()

	if !cond.Type.Valid() {
		return false, fmt.Errorf("%w: value type %q", ErrInvalidCondition, cond.Type)
	}
	if !cond.Operation.Valid() {
		return false, fmt.Errorf("%w: operation %q", ErrInvalidCondition, cond.Operation)
	}

	lhs, err := resolveOperand(cond.Type, cond.LHSType, cond.LHS, attrs)
	if err != nil {
		return false, fmt.Errorf("lhs: %w", err)
	}

	if cond.Operation == domain.OperationIn {
		set, err := resolveSet(cond.Type, cond.RHSType, cond.RHS, attrs)
		if err != nil {
			return false, fmt.Errorf("rhs: %w", err)
		}
		for _, candidate := range set {
			if c, err := compareOperands(lhs, candidate); err == nil && c == 0 {
				return true, nil
			}
		}
		return false, nil
	}

	rhs, err := resolveOperand(cond.Type, cond.RHSType, cond.RHS, attrs)
	if err != nil {
		return false, fmt.Errorf("rhs: %w", err)
	}

	return applyOperation(cond.Operation, lhs, rhs)
}

func resolveOperand(kind domain.ConditionValueType, side domain.OperandType, raw string, attrs Attributes) (operand, error) {
	switch side {
	case domain.OperandValue:
		return coerce(kind, raw)
	case domain.OperandReference:
		name := strings.TrimSpace(raw)
		value, ok := attrs.Lookup(name)
		if !ok {
			return operand{}, fmt.Errorf("%w: %q", ErrUnresolvedAttribute, name)
		}
		return coerce(kind, value)
	default:
		return operand{}, fmt.Errorf("%w: operand type %q", ErrInvalidCondition, side)
	}
}

func resolveSet(kind domain.ConditionValueType, side domain.OperandType, raw string, attrs Attributes) ([]operand, error) {
	var items []any
	switch side {
	case domain.OperandValue:
		for _, part := range strings.Split(raw, ",") {
			items = append(items, strings.TrimSpace(part))
		}
	case domain.OperandReference:
		name := strings.TrimSpace(raw)
		value, ok := attrs.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedAttribute, name)
		}
		switch v := value.(type) {
		case []string:
			for _, s := range v {
				items = append(items, s)
			}
		case []any:
			items = v
		default:
			items = []any{v}
		}
	default:
		return nil, fmt.Errorf("%w: operand type %q", ErrInvalidCondition, side)
	}

	set := make([]operand, 0, len(items))
	for _, item := range items {
		op, err := coerce(kind, item)
		if err != nil {
			return nil, err
		}
		set = append(set, op)
	}
	return set, nil
}

func coerce(kind domain.ConditionValueType, value any) (operand, error) {
	op := operand{kind: kind}
	switch kind {
	case domain.ConditionValueString:
		s, ok := value.(string)
		if !ok {
			return op, mismatch(kind, value)
		}
		op.s = s
	case domain.ConditionValueInt:
		i, ok := toInt(value)
		if !ok {
			return op, mismatch(kind, value)
		}
		op.i = i
	case domain.ConditionValueDouble:
		f, ok := toFloat(value)
		if !ok || math.IsNaN(f) {
			return op, mismatch(kind, value)
		}
		op.f = f
	case domain.ConditionValueBool:
		switch v := value.(type) {
		case bool:
			op.b = v
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return op, mismatch(kind, value)
			}
			op.b = b
		default:
			return op, mismatch(kind, value)
		}
	case domain.ConditionValueDate:
		switch v := value.(type) {
		case time.Time:
			op.t = v
		case string:
			t, ok := parseDate(v)
			if !ok {
				return op, mismatch(kind, value)
			}
			op.t = t
		default:
			return op, mismatch(kind, value)
		}
	default:
		return op, fmt.Errorf("%w: value type %q", ErrInvalidCondition, kind)
	}
	return op, nil
}

func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	if i, ok := toInt(value); ok {
		return float64(i), true
	}
	return 0, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func mismatch(kind domain.ConditionValueType, value any) error {
	return fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, value, kind)
}

func applyOperation(op domain.ConditionOperation, lhs, rhs operand) (bool, error) {
	if op == domain.OperationContains {
		if lhs.kind != domain.ConditionValueString {
			return false, fmt.Errorf("%w: contains on %s", ErrUnsupportedOperation, lhs.kind)
		}
		return strings.Contains(lhs.s, rhs.s), nil
	}

	if lhs.kind == domain.ConditionValueBool && op != domain.OperationEqual && op != domain.OperationNotEqual {
		return false, fmt.Errorf("%w: %s on bool", ErrUnsupportedOperation, op)
	}

	c, err := compareOperands(lhs, rhs)
	if err != nil {
		return false, err
	}

	switch op {
	case domain.OperationEqual:
		return c == 0, nil
	case domain.OperationNotEqual:
		return c != 0, nil
	case domain.OperationLess:
		return c < 0, nil
	case domain.OperationGreater:
		return c > 0, nil
	case domain.OperationLessOrEqual:
		return c <= 0, nil
	case domain.OperationGreaterOrEqual:
		return c >= 0, nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnsupportedOperation, op)
}

func compareOperands(lhs, rhs operand) (int, error) {
	if lhs.kind != rhs.kind {
		return 0, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, lhs.kind, rhs.kind)
	}
	switch lhs.kind {
	case domain.ConditionValueString:
		return strings.Compare(lhs.s, rhs.s), nil
	case domain.ConditionValueInt:
		return cmp.Compare(lhs.i, rhs.i), nil
	case domain.ConditionValueDouble:
		return cmp.Compare(lhs.f, rhs.f), nil
	case domain.ConditionValueBool:
		if lhs.b == rhs.b {
			return 0, nil
		}
		return 1, nil
	case domain.ConditionValueDate:
		return lhs.t.Compare(rhs.t), nil
	}
	return 0, fmt.Errorf("%w: value type %q", ErrInvalidCondition, lhs.kind)
}
