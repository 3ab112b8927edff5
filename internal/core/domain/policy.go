package domain

// DefaultConditionKey is stored when a condition is created without a key.
const DefaultConditionKey = "default"

// Policy grants (or explicitly denies) an action on a resource to a role.
// RoleName is a plain string and is not checked against the roles table.
type Policy struct {
	ID          string
	RoleName    string
	ActionKey   string
	ActionValue bool
	Conditions  []Condition
}

// ConditionValueType describes how both operands of a condition are interpreted.
type ConditionValueType string

const (
	ConditionValueString ConditionValueType = "string"
	ConditionValueInt    ConditionValueType = "int"
	ConditionValueDouble ConditionValueType = "double"
	ConditionValueBool   ConditionValueType = "bool"
	ConditionValueDate   ConditionValueType = "date"
)

// Valid reports whether the value type is one of the supported kinds.
func (t ConditionValueType) Valid() bool {
	switch t {
	case ConditionValueString, ConditionValueInt, ConditionValueDouble, ConditionValueBool, ConditionValueDate:
		return true
	}
	return false
}

// ConditionOperation is the comparator applied to the resolved operands.
type ConditionOperation string

const (
	OperationEqual          ConditionOperation = "=="
	OperationNotEqual       ConditionOperation = "!="
	OperationLess           ConditionOperation = "<"
	OperationGreater        ConditionOperation = ">"
	OperationLessOrEqual    ConditionOperation = "<="
	OperationGreaterOrEqual ConditionOperation = ">="
	OperationContains       ConditionOperation = "contains"
	OperationIn             ConditionOperation = "in"
)

// Valid reports whether the operation is known.
func (o ConditionOperation) Valid() bool {
	switch o {
	case OperationEqual, OperationNotEqual, OperationLess, OperationGreater,
		OperationLessOrEqual, OperationGreaterOrEqual, OperationContains, OperationIn:
		return true
	}
	return false
}

// OperandType tells whether an operand is a literal or a request attribute name.
type OperandType string

const (
	OperandValue     OperandType = "value"
	OperandReference OperandType = "reference"
)

// Valid reports whether the operand type is known.
func (t OperandType) Valid() bool {
	return t == OperandValue || t == OperandReference
}

// Condition is a comparison clause owned by exactly one policy.
type Condition struct {
	ID        string
	Key       string
	Type      ConditionValueType
	Operation ConditionOperation
	LHSType   OperandType
	LHS       string
	RHSType   OperandType
	RHS       string
	PolicyID  string
}
