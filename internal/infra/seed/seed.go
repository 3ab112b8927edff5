// Package seed loads the policies created at first boot from YAML.
package seed

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

//go:embed default_policies.yaml
var defaultPolicies []byte

// File is the seed document.
type File struct {
	Policies []Policy `yaml:"policies"`
}

// Policy grants action on resource to role, optionally under conditions.
type Policy struct {
	Role       string      `yaml:"role"`
	Action     string      `yaml:"action"`
	Resource   string      `yaml:"resource"`
	Allow      bool        `yaml:"allow"`
	Conditions []Condition `yaml:"conditions"`
}

type Condition struct {
	Key       string  `yaml:"key"`
	Type      string  `yaml:"type"`
	Operation string  `yaml:"operation"`
	LHS       Operand `yaml:"lhs"`
	RHS       Operand `yaml:"rhs"`
}

type Operand struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// Load reads the seed file at path, or the embedded defaults when path is empty.
func Load(path string) ([]usecase.PolicyInput, error) {
	if path == "" {
		return Parse(bytes.NewReader(defaultPolicies))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a seed document. Unknown fields, actions and resources are rejected.
func Parse(r io.Reader) ([]usecase.PolicyInput, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc File
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	inputs := make([]usecase.PolicyInput, 0, len(doc.Policies))
	for i, p := range doc.Policies {
		input, err := p.input()
		if err != nil {
			return nil, fmt.Errorf("policy %d: %w", i, err)
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

func (p Policy) input() (usecase.PolicyInput, error) {
	if p.Role == "" {
		return usecase.PolicyInput{}, fmt.Errorf("role is required")
	}
	if !slices.Contains(authz.Actions(), p.Action) {
		return usecase.PolicyInput{}, fmt.Errorf("unknown action %q", p.Action)
	}
	if !slices.Contains(domain.AllResources(), p.Resource) {
		return usecase.PolicyInput{}, fmt.Errorf("unknown resource %q", p.Resource)
	}

	input := usecase.PolicyInput{
		RoleName:    p.Role,
		ActionKey:   authz.ActionKey(p.Action, p.Resource),
		ActionValue: p.Allow,
	}
	for _, c := range p.Conditions {
		input.Conditions = append(input.Conditions, usecase.ConditionInput{
			Key:       c.Key,
			Type:      domain.ConditionValueType(c.Type),
			Operation: domain.ConditionOperation(c.Operation),
			LHSType:   domain.OperandType(c.LHS.Type),
			LHS:       c.LHS.Value,
			RHSType:   domain.OperandType(c.RHS.Type),
			RHS:       c.RHS.Value,
		})
	}
	return input, nil
}
