package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/abac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

// ConditionHandler serves the condition admin API. Every mutation rebuilds the index.
type ConditionHandler struct {
	policies *usecase.PolicyService
}

// NewConditionHandler constructs ConditionHandler.
func NewConditionHandler(policies *usecase.PolicyService) *ConditionHandler {
	mustRegisterValidators()
	return &ConditionHandler{policies: policies}
}

// RegisterRoutes mounts the condition endpoints on an already authorized group.
func (h *ConditionHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("", h.Create)
	r.PUT("/:conditionId", h.Update)
	r.DELETE("/:conditionId", h.Delete)
	r.GET("/:conditionId/abac-auth-policies", h.Policy)
}

// Create attaches a condition to a policy. An empty key is stored as the default key.
func (h *ConditionHandler) Create(c *gin.Context) {
	var req ConditionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "condition")
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	condition, err := h.policies.CreateCondition(c.Request.Context(), actorID, req.input(req.PolicyID))
	if err != nil {
		respondError(c, err, "failed to create condition")
		return
	}
	c.JSON(http.StatusCreated, newConditionPayload(condition))
}

// Update changes the given condition fields.
func (h *ConditionHandler) Update(c *gin.Context) {
	var req ConditionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "condition")
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	condition, err := h.policies.UpdateCondition(c.Request.Context(), actorID, c.Param("conditionId"), req.fields())
	if err != nil {
		respondError(c, err, "failed to update condition")
		return
	}
	c.JSON(http.StatusOK, newConditionPayload(*condition))
}

// Delete removes a condition.
func (h *ConditionHandler) Delete(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)
	if err := h.policies.DeleteCondition(c.Request.Context(), actorID, c.Param("conditionId")); err != nil {
		respondError(c, err, "failed to delete condition")
		return
	}
	c.Status(http.StatusNoContent)
}

// Policy returns the policy owning the condition.
func (h *ConditionHandler) Policy(c *gin.Context) {
	policy, err := h.policies.ConditionPolicy(c.Request.Context(), c.Param("conditionId"))
	if err != nil {
		respondError(c, err, "failed to load policy")
		return
	}
	c.JSON(http.StatusOK, newPolicyPayload(*policy))
}
