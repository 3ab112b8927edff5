package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arklim/abac-auth-service/internal/core/domain"
)

func TestLoad_Defaults(t *testing.T) {
	inputs, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	keys := map[string]bool{}
	for _, in := range inputs {
		if in.RoleName == "admin" {
			keys[in.ActionKey] = in.ActionValue
		}
	}
	for _, want := range []string{"readabac-auth-policies", "createabac-auth-policies", "readroles", "readauth"} {
		if !keys[want] {
			t.Fatalf("expected admin grant %q in defaults, got %v", want, keys)
		}
	}

	var ownership *domain.OperandType
	for _, in := range inputs {
		if in.ActionKey == "deletetodos" && len(in.Conditions) == 1 {
			lhs := in.Conditions[0].LHSType
			ownership = &lhs
			if in.Conditions[0].LHS != "ownerId" || in.Conditions[0].RHS != "callerId" {
				t.Fatalf("unexpected ownership condition %+v", in.Conditions[0])
			}
		}
	}
	if ownership == nil || *ownership != domain.OperandReference {
		t.Fatalf("expected ownership condition on deletetodos")
	}
}

func TestParse_RejectsUnknownEntries(t *testing.T) {
	cases := map[string]string{
		"action":   "policies:\n  - {role: admin, action: write, resource: roles, allow: true}\n",
		"resource": "policies:\n  - {role: admin, action: read, resource: widgets, allow: true}\n",
		"role":     "policies:\n  - {action: read, resource: roles, allow: true}\n",
		"field":    "policies:\n  - {role: admin, action: read, resource: roles, grant: true}\n",
	}
	for name, doc := range cases {
		if _, err := Parse(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	inputs, err := Parse(strings.NewReader(""))
	if err != nil || len(inputs) != 0 {
		t.Fatalf("expected no policies, got %v, %v", inputs, err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	doc := "policies:\n  - {role: system, action: update, resource: abac-auth-policies, allow: false}\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	inputs, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(inputs) != 1 || inputs[0].ActionKey != "updateabac-auth-policies" || inputs[0].ActionValue {
		t.Fatalf("unexpected inputs %+v", inputs)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
