package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

// TodoHandler serves the caller's todos.
type TodoHandler struct {
	todos *usecase.TodoService
}

// NewTodoHandler constructs TodoHandler.
func NewTodoHandler(todos *usecase.TodoService) *TodoHandler {
	return &TodoHandler{todos: todos}
}

// Owner loads the addressed todo and exposes its user as the ownerId attribute.
func (h *TodoHandler) Owner() middleware.AttributeFunc {
	return func(c *gin.Context) (authz.Attributes, error) {
		id := c.Param("todoId")
		if id == "" {
			return authz.Attributes{}, nil
		}
		todo, err := h.todos.Get(c.Request.Context(), id)
		if err != nil {
			return nil, err
		}
		return authz.Attributes{authz.AttrOwnerID: todo.UserID}, nil
	}
}

// List returns the caller's todos.
func (h *TodoHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	todos, err := h.todos.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to list todos")
		return
	}

	out := make([]TodoPayload, 0, len(todos))
	for _, todo := range todos {
		out = append(out, newTodoPayload(todo))
	}
	c.JSON(http.StatusOK, out)
}

// Create adds a todo owned by the caller.
func (h *TodoHandler) Create(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req TodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "todo")
		return
	}

	todo, err := h.todos.Create(c.Request.Context(), userID, req.Title)
	if err != nil {
		respondError(c, err, "failed to create todo")
		return
	}
	c.JSON(http.StatusCreated, newTodoPayload(todo))
}

// Delete removes a todo. Ownership is enforced by the policy conditions.
func (h *TodoHandler) Delete(c *gin.Context) {
	if err := h.todos.Delete(c.Request.Context(), c.Param("todoId")); err != nil {
		respondError(c, err, "failed to delete todo")
		return
	}
	c.Status(http.StatusNoContent)
}
