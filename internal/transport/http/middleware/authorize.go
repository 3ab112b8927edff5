package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/authz"
	appLogger "github.com/arklim/abac-auth-service/internal/infra/logger"
)

// GrantedRoleKey holds the role whose policy allowed the request.
const GrantedRoleKey = "granted_role"

// AttributeFunc contributes route specific attributes, such as the owner of the
// addressed record. It only runs when a candidate policy carries conditions.
type AttributeFunc func(c *gin.Context) (authz.Attributes, error)

// Authorization turns access decisions into a per-route gate.
type Authorization struct {
	authorizer *authz.Authorizer
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthorization builds the access decision middleware factory.
func NewAuthorization(authorizer *authz.Authorizer, log *zap.Logger) *Authorization {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authorization{authorizer: authorizer, logger: log, now: time.Now}
}

// WithClock overrides the clock used for the "now" attribute.
func (a *Authorization) WithClock(now func() time.Time) *Authorization {
	if now != nil {
		a.now = now
	}
	return a
}

// Require gates the route on resource. It must run after RequireBearer or
// RequireSession. Unprotected resources pass through untouched.
func (a *Authorization) Require(resource string, extra ...AttributeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authorizer.IsProtected(resource) {
			c.Next()
			return
		}

		data, ok := GetAccessData(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication required"))
			return
		}

		method := c.Request.Method
		source := func(context.Context) (authz.Attributes, error) {
			attrs := authz.BaseAttributes(data.UserID, data.UserData.User.Email, method, a.now())
			for _, fn := range extra {
				more, err := fn(c)
				if err != nil {
					return nil, err
				}
				attrs = attrs.Merge(more)
			}
			return attrs, nil
		}

		roles := data.RoleNames()
		result, _, err := a.authorizer.CheckAccess(c.Request.Context(), roles, method, resource, source)
		if err != nil || !result.Allowed() {
			fields := []zap.Field{
				zap.Strings("roles", roles),
				zap.String("action_key", actionKey(method, resource)),
				zap.String("caller", appLogger.MaskEmail(data.UserData.User.Email)),
				zap.String("trace_id", GetTraceID(c)),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			a.logger.Warn("access denied", fields...)
			c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "access denied"))
			return
		}

		c.Set(GrantedRoleKey, result.Role)
		c.Next()
	}
}

func actionKey(method, resource string) string {
	action, ok := authz.ActionForMethod(method)
	if !ok {
		return fmt.Sprintf("%s %s", method, resource)
	}
	return authz.ActionKey(action, resource)
}
