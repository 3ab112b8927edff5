package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

var userCases = []ErrorCase{
	{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
}

// UserHandler serves user administration and the caller's own account.
type UserHandler struct {
	users *usecase.UserService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users *usecase.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// UserOwner exposes the addressed user as the ownerId attribute.
func UserOwner(c *gin.Context) (authz.Attributes, error) {
	return authz.Attributes{authz.AttrOwnerID: c.Param("userId")}, nil
}

// RegisterRoutes mounts /users on an already authorized group.
func (h *UserHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("", h.List)
	r.POST("", h.Create)
	r.GET("/:userId", h.Get)
	r.PUT("/:userId", h.Update)
	r.DELETE("/:userId", h.Delete)
	r.GET("/:userId/roles", h.Roles)
	r.POST("/:userId/roles/:roleId", h.AddRole)
	r.DELETE("/:userId/roles/:roleId", h.RemoveRole)
}

// RegisterMyUserRoutes mounts /my-user on an already authorized group.
func (h *UserHandler) RegisterMyUserRoutes(r gin.IRoutes) {
	r.GET("", h.Me)
	r.PUT("", h.UpdateMe)
	r.DELETE("", h.DeleteMe)
	r.GET("/roles", h.MyRoles)
}

// List returns every user without credentials.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to list users")
		return
	}
	c.JSON(http.StatusOK, newPublicUsers(users))
}

// Get returns one user.
func (h *UserHandler) Get(c *gin.Context) {
	h.respondUser(c, c.Param("userId"))
}

// Create registers a user with a hashed password.
func (h *UserHandler) Create(c *gin.Context) {
	var req UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "user")
		return
	}

	user, err := h.users.Create(c.Request.Context(), usecase.UserInput{
		Name:     req.Name,
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err, "failed to create user", userCases...)
		return
	}
	c.JSON(http.StatusCreated, user.Public())
}

// Update changes the given user fields.
func (h *UserHandler) Update(c *gin.Context) {
	h.update(c, c.Param("userId"))
}

// Delete removes a user and revokes its token.
func (h *UserHandler) Delete(c *gin.Context) {
	h.delete(c, c.Param("userId"))
}

// Roles lists the roles of a user.
func (h *UserHandler) Roles(c *gin.Context) {
	h.respondRoles(c, c.Param("userId"))
}

// AddRole assigns a role and refreshes the cached credential of the user.
func (h *UserHandler) AddRole(c *gin.Context) {
	roles, err := h.users.AddRole(c.Request.Context(), c.Param("userId"), c.Param("roleId"))
	if err != nil {
		respondError(c, err, "failed to assign role")
		return
	}
	c.JSON(http.StatusOK, roles)
}

// RemoveRole unassigns a role and refreshes the cached credential of the user.
func (h *UserHandler) RemoveRole(c *gin.Context) {
	roles, err := h.users.RemoveRole(c.Request.Context(), c.Param("userId"), c.Param("roleId"))
	if err != nil {
		respondError(c, err, "failed to unassign role")
		return
	}
	c.JSON(http.StatusOK, roles)
}

// Me returns the caller.
func (h *UserHandler) Me(c *gin.Context) {
	if userID, ok := callerID(c); ok {
		h.respondUser(c, userID)
	}
}

// UpdateMe changes the caller's name, email or password.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	if userID, ok := callerID(c); ok {
		h.update(c, userID)
	}
}

// DeleteMe removes the caller's account.
func (h *UserHandler) DeleteMe(c *gin.Context) {
	if userID, ok := callerID(c); ok {
		h.delete(c, userID)
	}
}

// MyRoles lists the caller's roles.
func (h *UserHandler) MyRoles(c *gin.Context) {
	if userID, ok := callerID(c); ok {
		h.respondRoles(c, userID)
	}
}

func (h *UserHandler) respondUser(c *gin.Context, id string) {
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, user.Public())
}

func (h *UserHandler) respondRoles(c *gin.Context, id string) {
	roles, err := h.users.Roles(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to list roles")
		return
	}
	c.JSON(http.StatusOK, roles)
}

func (h *UserHandler) update(c *gin.Context, id string) {
	var req UserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "user")
		return
	}

	user, err := h.users.Update(c.Request.Context(), id, req.input())
	if err != nil {
		respondError(c, err, "failed to update user", userCases...)
		return
	}
	c.JSON(http.StatusOK, user.Public())
}

func (h *UserHandler) delete(c *gin.Context, id string) {
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, "failed to delete user")
		return
	}
	c.Status(http.StatusNoContent)
}

func callerID(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
	}
	return userID, ok
}
