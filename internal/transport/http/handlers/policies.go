package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

// PolicyHandler serves the policy admin API.
type PolicyHandler struct {
	policies *usecase.PolicyService
	logger   *zap.Logger
}

// NewPolicyHandler constructs PolicyHandler.
func NewPolicyHandler(policies *usecase.PolicyService, log *zap.Logger) *PolicyHandler {
	mustRegisterValidators()
	if log == nil {
		log = zap.NewNop()
	}
	return &PolicyHandler{policies: policies, logger: log}
}

// RegisterRoutes mounts the policy endpoints on an already authorized group.
func (h *PolicyHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("", h.List)
	r.POST("", h.Create)
	r.GET("/:policyId", h.Get)
	r.PUT("/:policyId", h.Update)
	r.DELETE("/:policyId", h.Delete)
	r.GET("/:policyId/abac-conditions", h.Conditions)
}

// List returns every policy with its conditions.
func (h *PolicyHandler) List(c *gin.Context) {
	policies, err := h.policies.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to list policies")
		return
	}
	c.JSON(http.StatusOK, newPolicyPayloads(policies))
}

// Get returns one policy.
func (h *PolicyHandler) Get(c *gin.Context) {
	policy, err := h.policies.Get(c.Request.Context(), c.Param("policyId"))
	if err != nil {
		respondError(c, err, "failed to load policy")
		return
	}
	c.JSON(http.StatusOK, newPolicyPayload(*policy))
}

// Create stores a policy and makes it effective immediately.
func (h *PolicyHandler) Create(c *gin.Context) {
	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "policy")
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	policy, err := h.policies.Create(c.Request.Context(), actorID, req.input())
	if err != nil {
		respondError(c, err, "failed to create policy")
		return
	}
	c.JSON(http.StatusCreated, newPolicyPayload(policy))
}

// CreateBulk stores several policies at once and rebuilds the index.
func (h *PolicyHandler) CreateBulk(c *gin.Context) {
	var req []PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "bulk policy")
		return
	}

	inputs := make([]usecase.PolicyInput, 0, len(req))
	for _, item := range req {
		inputs = append(inputs, item.input())
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	policies, err := h.policies.CreateBulk(c.Request.Context(), actorID, inputs)
	if err != nil {
		respondError(c, err, "failed to create policies")
		return
	}
	c.JSON(http.StatusCreated, newPolicyPayloads(policies))
}

// Update changes a policy and rebuilds the index.
func (h *PolicyHandler) Update(c *gin.Context) {
	var req PolicyUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "policy")
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	policy, err := h.policies.Update(c.Request.Context(), actorID, c.Param("policyId"), req.fields())
	if err != nil {
		respondError(c, err, "failed to update policy")
		return
	}
	c.JSON(http.StatusOK, newPolicyPayload(*policy))
}

// Delete removes a policy. Unknown ids are not an error.
func (h *PolicyHandler) Delete(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)
	if err := h.policies.Delete(c.Request.Context(), actorID, c.Param("policyId")); err != nil {
		respondError(c, err, "failed to delete policy")
		return
	}
	c.Status(http.StatusNoContent)
}

// Conditions lists the conditions of a policy.
func (h *PolicyHandler) Conditions(c *gin.Context) {
	conditions, err := h.policies.Conditions(c.Request.Context(), c.Param("policyId"))
	if err != nil {
		respondError(c, err, "failed to list conditions")
		return
	}
	c.JSON(http.StatusOK, newConditionPayloads(conditions))
}

// Rebuild reloads the in-memory policy index from the store. When the store cannot be
// read the previous snapshot keeps serving and the call fails.
func (h *PolicyHandler) Rebuild(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)
	stats, err := h.policies.RebuildIndex(c.Request.Context(), actorID)
	if err != nil {
		h.logger.Error("policy index rebuild requested but failed", zap.String("actor_id", actorID), zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "rebuild failed, serving the previous policy snapshot"))
		return
	}
	c.JSON(http.StatusOK, newRebuildResponse(stats))
}
