package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

func newPolicyRouter(t *testing.T, store *memPolicyStore) (*gin.Engine, *authz.Index) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	index := authz.NewIndex(store, authz.WithLogger(logger))
	if err := index.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild returned error: %v", err)
	}

	handler := NewPolicyHandler(usecase.NewPolicyService(store, index, nil, "test", logger), logger)

	router := gin.New()
	api := router.Group("/api", asCaller("u-admin", "admin"))
	handler.RegisterRoutes(api.Group("/abac-auth-policies"))
	api.POST("/bulk/abac-auth-policies", handler.CreateBulk)
	api.PUT("/abac-auth-policies-service", handler.Rebuild)
	return router, index
}

func TestPolicyCreateMakesPolicyEffective(t *testing.T) {
	store := newMemPolicyStore()
	router, index := newPolicyRouter(t, store)

	rr := doJSON(t, router, http.MethodPost, "/api/abac-auth-policies", map[string]any{
		"roleName":    "editor",
		"actionKey":   "createtodos",
		"actionValue": true,
		"conditions": []map[string]any{{
			"type": "string", "operation": "==",
			"lhsType": "reference", "lhs": "ownerId",
			"rhsType": "reference", "rhs": "callerId",
		}},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var created PolicyPayload
	decodeBody(t, rr, &created)
	if created.ID == "" || created.RoleName != "editor" || len(created.Conditions) != 1 {
		t.Fatalf("unexpected payload: %+v", created)
	}
	if created.Conditions[0].Key != domain.DefaultConditionKey {
		t.Fatalf("expected default condition key, got %q", created.Conditions[0].Key)
	}

	attrs := authz.StaticAttributes(authz.Attributes{authz.AttrOwnerID: "u-1", authz.AttrCallerID: "u-1"})
	decision, err := index.Lookup(context.Background(), "editor", "createtodos", attrs)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if decision != authz.Allow {
		t.Fatalf("expected new policy to allow, got %s", decision)
	}
}

func TestPolicyCreateRejectsInvalidPayloads(t *testing.T) {
	router, _ := newPolicyRouter(t, newMemPolicyStore())

	cases := map[string]any{
		"malformed json":       "{",
		"missing action value": map[string]any{"roleName": "editor", "actionKey": "readtodos"},
		"unknown resource":     map[string]any{"roleName": "editor", "actionKey": "readinvoices", "actionValue": true},
		"unknown action":       map[string]any{"roleName": "editor", "actionKey": "patchtodos", "actionValue": true},
		"bad condition type": map[string]any{
			"roleName": "editor", "actionKey": "readtodos", "actionValue": true,
			"conditions": []map[string]any{{
				"type": "uuid", "operation": "==", "lhsType": "value", "lhs": "a", "rhsType": "value", "rhs": "a",
			}},
		},
		"bad operation": map[string]any{
			"roleName": "editor", "actionKey": "readtodos", "actionValue": true,
			"conditions": []map[string]any{{
				"type": "int", "operation": "~=", "lhsType": "value", "lhs": "1", "rhsType": "value", "rhs": "1",
			}},
		},
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := doJSON(t, router, http.MethodPost, "/api/abac-auth-policies", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestPolicyExplicitDenyIsAccepted(t *testing.T) {
	router, _ := newPolicyRouter(t, newMemPolicyStore())

	rr := doJSON(t, router, http.MethodPost, "/api/abac-auth-policies", map[string]any{
		"roleName": "guest", "actionKey": "deleteusers", "actionValue": false,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var created PolicyPayload
	decodeBody(t, rr, &created)
	if created.ActionValue {
		t.Fatalf("expected explicit deny to be stored as false")
	}
}

func TestPolicyGetUnknownAnswersBadRequest(t *testing.T) {
	router, _ := newPolicyRouter(t, newMemPolicyStore())

	rr := doJSON(t, router, http.MethodGet, "/api/abac-auth-policies/missing", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPolicyUpdateAndDelete(t *testing.T) {
	store := newMemPolicyStore(domain.Policy{ID: "p-1", RoleName: "editor", ActionKey: "readtodos", ActionValue: true})
	router, index := newPolicyRouter(t, store)

	rr := doJSON(t, router, http.MethodPut, "/api/abac-auth-policies/p-1", map[string]any{"actionValue": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	decision, err := index.Lookup(context.Background(), "editor", "readtodos", authz.StaticAttributes(nil))
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if decision != authz.Deny {
		t.Fatalf("expected update to flip the decision, got %s", decision)
	}

	rr = doJSON(t, router, http.MethodPut, "/api/abac-auth-policies/p-1", map[string]any{"actionKey": "readnothing"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid action key, got %d", rr.Code)
	}

	if rr = doJSON(t, router, http.MethodDelete, "/api/abac-auth-policies/p-1", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr = doJSON(t, router, http.MethodDelete, "/api/abac-auth-policies/p-1", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected repeated delete to succeed, got %d", rr.Code)
	}
	if got := index.Stats().Entries; got != 0 {
		t.Fatalf("expected empty index after delete, got %d entries", got)
	}
}

func TestPolicyCreateBulkReturnsAllPolicies(t *testing.T) {
	store := newMemPolicyStore(domain.Policy{ID: "p-0", RoleName: "admin", ActionKey: "readusers", ActionValue: true})
	router, index := newPolicyRouter(t, store)

	rr := doJSON(t, router, http.MethodPost, "/api/bulk/abac-auth-policies", []map[string]any{
		{"roleName": "editor", "actionKey": "readtodos", "actionValue": true},
		{"roleName": "editor", "actionKey": "createtodos", "actionValue": true},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var all []PolicyPayload
	decodeBody(t, rr, &all)
	if len(all) != 3 {
		t.Fatalf("expected 3 policies, got %d", len(all))
	}
	if got := index.Stats().Entries; got != 3 {
		t.Fatalf("expected index to hold 3 entries, got %d", got)
	}
}

func TestPolicyRebuildKeepsSnapshotOnFailure(t *testing.T) {
	store := newMemPolicyStore(domain.Policy{ID: "p-1", RoleName: "editor", ActionKey: "readtodos", ActionValue: true})
	router, index := newPolicyRouter(t, store)

	rr := doJSON(t, router, http.MethodPut, "/api/abac-auth-policies-service", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var stats RebuildResponse
	decodeBody(t, rr, &stats)
	if stats.Roles != 1 || stats.Entries != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	store.listErr = errors.New("connection reset")
	rr = doJSON(t, router, http.MethodPut, "/api/abac-auth-policies-service", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if got := index.Stats().Entries; got != 1 {
		t.Fatalf("expected previous snapshot to survive, got %d entries", got)
	}
}
