package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/abac-auth-service/internal/repository"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// Unknown ids are a client mistake and answer 400 rather than 404.
var notFoundCases = []ErrorCase{
	{Err: usecase.ErrPolicyNotFound, Status: http.StatusBadRequest, Message: "policy not found"},
	{Err: usecase.ErrConditionNotFound, Status: http.StatusBadRequest, Message: "condition not found"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusBadRequest, Message: "user not found"},
	{Err: usecase.ErrRoleNotFound, Status: http.StatusBadRequest, Message: "role not found"},
	{Err: usecase.ErrTodoNotFound, Status: http.StatusBadRequest, Message: "todo not found"},
}

var commonCases = append([]ErrorCase{
	{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "invalid input"},
	{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "backend temporarily unavailable"},
}, notFoundCases...)

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

func respondError(c *gin.Context, err error, fallbackMessage string, extra ...ErrorCase) {
	RespondWithMappedError(c, err, append(extra, commonCases...), http.StatusInternalServerError, fallbackMessage)
}

func respondBindError(c *gin.Context, what string) {
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid "+what+" payload"))
}
