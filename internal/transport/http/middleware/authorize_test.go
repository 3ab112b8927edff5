package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/core/domain"
)

type staticPolicies []domain.Policy

func (s staticPolicies) GetAllWithConditions(context.Context) ([]domain.Policy, error) {
	return s, nil
}

func newTestAuthorization(t *testing.T, policies ...domain.Policy) *Authorization {
	t.Helper()

	index := authz.NewIndex(staticPolicies(policies))
	if err := index.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild returned error: %v", err)
	}
	return NewAuthorization(authz.NewAuthorizer(index, domain.ProtectedResources()), zaptest.NewLogger(t))
}

// withCaller stands in for RequireBearer.
func withCaller(data domain.AccessData) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetAccessData(c, data)
		c.Next()
	}
}

func serve(router *gin.Engine, method, path string) int {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr.Code
}

func TestAuthorizationAllowsMatchingPolicyOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gate := newTestAuthorization(t, domain.Policy{ID: "p-1", RoleName: "admin", ActionKey: "readusers", ActionValue: true})

	router := gin.New()
	users := router.Group("/api/users", withCaller(accessData("u-admin", "admin")), gate.Require(domain.ResourceUsers))
	users.GET("", func(c *gin.Context) {
		role, _ := c.Get(GrantedRoleKey)
		c.String(http.StatusOK, role.(string))
	})
	users.DELETE("/:userId", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	if code := serve(router, http.MethodGet, "/api/users"); code != http.StatusOK {
		t.Fatalf("expected readusers to be allowed, got %d", code)
	}
	if code := serve(router, http.MethodDelete, "/api/users/u-1"); code != http.StatusForbidden {
		t.Fatalf("expected deleteusers to be denied, got %d", code)
	}
}

func TestAuthorizationPassesUnprotectedResources(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gate := newTestAuthorization(t)

	router := gin.New()
	router.POST("/auth/login", gate.Require(domain.ResourceLogin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/api/roles", withCaller(accessData("u-1", "admin")), gate.Require(domain.ResourceRoles), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/api/todos", gate.Require(domain.ResourceTodos), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	if code := serve(router, http.MethodPost, "/auth/login"); code != http.StatusOK {
		t.Fatalf("unprotected resource should pass through, got %d", code)
	}
	if code := serve(router, http.MethodGet, "/api/roles"); code != http.StatusForbidden {
		t.Fatalf("protected resource without policy should be denied, got %d", code)
	}
	if code := serve(router, http.MethodGet, "/api/todos"); code != http.StatusUnauthorized {
		t.Fatalf("protected resource without caller should answer 401, got %d", code)
	}
}

func TestAuthorizationEvaluatesOwnershipCondition(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gate := newTestAuthorization(t, domain.Policy{
		ID:          "p-todo",
		RoleName:    "user",
		ActionKey:   "deletetodos",
		ActionValue: true,
		Conditions: []domain.Condition{{
			ID:        "c-1",
			Key:       "owner",
			Type:      domain.ConditionValueString,
			Operation: domain.OperationEqual,
			LHSType:   domain.OperandReference,
			LHS:       authz.AttrOwnerID,
			RHSType:   domain.OperandReference,
			RHS:       authz.AttrCallerID,
			PolicyID:  "p-todo",
		}},
	})

	owners := map[string]string{"t-1": "u-1", "t-2": "u-2"}
	owner := func(c *gin.Context) (authz.Attributes, error) {
		id, ok := owners[c.Param("todoId")]
		if !ok {
			return nil, errors.New("todo not found")
		}
		return authz.Attributes{authz.AttrOwnerID: id}, nil
	}

	router := gin.New()
	router.DELETE("/api/todos/:todoId", withCaller(accessData("u-1", "user")), gate.Require(domain.ResourceTodos, owner), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	if code := serve(router, http.MethodDelete, "/api/todos/t-1"); code != http.StatusNoContent {
		t.Fatalf("owner should be allowed, got %d", code)
	}
	if code := serve(router, http.MethodDelete, "/api/todos/t-2"); code != http.StatusForbidden {
		t.Fatalf("non-owner should be denied, got %d", code)
	}
	if code := serve(router, http.MethodDelete, "/api/todos/t-missing"); code != http.StatusForbidden {
		t.Fatalf("unresolvable attributes must deny, got %d", code)
	}
}

func TestAuthorizationExplicitDenyWins(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gate := newTestAuthorization(t,
		domain.Policy{ID: "p-1", RoleName: "auditor", ActionKey: "readroles", ActionValue: false},
		domain.Policy{ID: "p-2", RoleName: "auditor", ActionKey: "readroles", ActionValue: true},
	)

	router := gin.New()
	router.GET("/api/roles", withCaller(accessData("u-1", "auditor")), gate.Require(domain.ResourceRoles), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	if code := serve(router, http.MethodGet, "/api/roles"); code != http.StatusForbidden {
		t.Fatalf("first matching deny should win, got %d", code)
	}
}
