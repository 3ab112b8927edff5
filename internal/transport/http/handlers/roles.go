package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/abac-auth-service/internal/usecase"
)

var roleCases = []ErrorCase{
	{Err: usecase.ErrRoleExists, Status: http.StatusConflict, Message: "role already exists"},
}

type RoleHandler struct {
	roles *usecase.RoleService
}

func NewRoleHandler(roles *usecase.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

func (h *RoleHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("", h.List)
	r.POST("", h.Create)
	r.GET("/:roleId", h.Get)
	r.PUT("/:roleId", h.Update)
	r.DELETE("/:roleId", h.Delete)
	r.GET("/:roleId/users", h.Users)
}

func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to list roles")
		return
	}
	c.JSON(http.StatusOK, roles)
}

func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.roles.Get(c.Request.Context(), c.Param("roleId"))
	if err != nil {
		respondError(c, err, "failed to load role")
		return
	}
	c.JSON(http.StatusOK, role)
}

func (h *RoleHandler) Create(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "role")
		return
	}

	role, err := h.roles.Create(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err, "failed to create role", roleCases...)
		return
	}
	c.JSON(http.StatusCreated, role)
}

// Update renames a role; cached credentials of its holders follow the new name.
func (h *RoleHandler) Update(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "role")
		return
	}

	role, err := h.roles.Update(c.Request.Context(), c.Param("roleId"), req.Name)
	if err != nil {
		respondError(c, err, "failed to update role", roleCases...)
		return
	}
	c.JSON(http.StatusOK, role)
}

func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.roles.Delete(c.Request.Context(), c.Param("roleId")); err != nil {
		respondError(c, err, "failed to delete role")
		return
	}
	c.Status(http.StatusNoContent)
}

// Users lists the holders of a role.
func (h *RoleHandler) Users(c *gin.Context) {
	users, err := h.roles.Users(c.Request.Context(), c.Param("roleId"))
	if err != nil {
		respondError(c, err, "failed to list role users")
		return
	}
	c.JSON(http.StatusOK, newPublicUsers(users))
}
