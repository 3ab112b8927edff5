package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/infra/config"
	"github.com/arklim/abac-auth-service/internal/transport/http/handlers"
	"github.com/arklim/abac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth     *usecase.AuthService
	Users    *usecase.UserService
	Roles    *usecase.RoleService
	Todos    *usecase.TodoService
	Policies *usecase.PolicyService
	Web      *usecase.WebSessionService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	RateLimiter    *middleware.RateLimiter
	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler
	Authorizer     *authz.Authorizer
	Services       ServiceSet
	Database       DatabaseChecker
	Cache          CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	if len(deps.Config.App.CORSOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.CORSOrigins))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	if deps.Services.Auth == nil || deps.Authorizer == nil {
		return r
	}

	bearer := middleware.RequireBearer(deps.Services.Auth, deps.Logger)
	gate := middleware.NewAuthorization(deps.Authorizer, deps.Logger)

	authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Logger)
	authGroup := r.Group("/" + domain.ResourceAuth)
	{
		login := append(buildLoginMiddlewares(deps), authHandler.Login)
		authGroup.POST("/"+domain.ResourceLogin, login...)
		authGroup.POST("/"+domain.ResourceLogout, bearer, authHandler.Logout)
		authGroup.POST("/"+domain.ResourceAccessData, authHandler.AccessData)
	}

	entry := deps.Config.App.APIEntry
	if entry == "" {
		entry = domain.APIEntry
	}
	api := r.Group("/"+entry, bearer)

	if deps.Services.Policies != nil {
		policyHandler := handlers.NewPolicyHandler(deps.Services.Policies, deps.Logger)

		api.PUT("/"+domain.ResourceABACAuthPolicies+"/"+domain.ResourceABACAuthPoliciesService,
			middleware.RequireRole(systemRole(deps.Config)), policyHandler.Rebuild)
		api.POST("/"+domain.ResourceBulk+"/"+domain.ResourceABACAuthPolicies,
			gate.Require(domain.ResourceABACAuthPolicies), policyHandler.CreateBulk)

		policyHandler.RegisterRoutes(api.Group("/"+domain.ResourceABACAuthPolicies, gate.Require(domain.ResourceABACAuthPolicies)))

		conditionHandler := handlers.NewConditionHandler(deps.Services.Policies)
		conditionHandler.RegisterRoutes(api.Group("/"+domain.ResourceABACConditions, gate.Require(domain.ResourceABACConditions)))
	}

	if deps.Services.Users != nil {
		userHandler := handlers.NewUserHandler(deps.Services.Users)
		userHandler.RegisterRoutes(api.Group("/"+domain.ResourceUsers, gate.Require(domain.ResourceUsers, handlers.UserOwner)))
		userHandler.RegisterMyUserRoutes(api.Group("/"+domain.ResourceMyUser, gate.Require(domain.ResourceMyUser)))
	}

	if deps.Services.Roles != nil {
		roleHandler := handlers.NewRoleHandler(deps.Services.Roles)
		roleHandler.RegisterRoutes(api.Group("/"+domain.ResourceRoles, gate.Require(domain.ResourceRoles)))
	}

	if deps.Services.Todos != nil {
		todoHandler := handlers.NewTodoHandler(deps.Services.Todos)
		todos := api.Group("/"+domain.ResourceTodos, gate.Require(domain.ResourceTodos, todoHandler.Owner()))
		todos.GET("", todoHandler.List)
		todos.POST("", todoHandler.Create)
		todos.DELETE("/:todoId", todoHandler.Delete)
	}

	if deps.Services.Web != nil {
		registerWebRoutes(r, deps)
	}

	return r
}

func registerWebRoutes(r *gin.Engine, deps Dependencies) {
	auth := deps.Config.Auth
	cookieName := auth.SessionCookie
	if cookieName == "" {
		cookieName = "abac-session"
	}
	redirect := auth.LoginRedirect
	if redirect == "" {
		redirect = "/login"
	}

	webHandler := handlers.NewWebHandler(deps.Services.Web, handlers.WebCookieConfig{
		Name:   cookieName,
		MaxAge: deps.Config.Redis.SessionTTL,
		Secure: deps.Config.App.Env == "production",
	}, deps.Logger)

	web := r.Group("/web")
	login := append(buildLoginMiddlewares(deps), webHandler.Login)
	web.POST("/login", login...)
	web.POST("/logout", webHandler.Logout)
	web.GET("/me", middleware.RequireSession(deps.Services.Web, cookieName, redirect, deps.Logger), webHandler.Me)
}

func systemRole(cfg *config.AppConfig) string {
	if cfg.Authz.SystemRole == "" {
		return "system"
	}
	return cfg.Authz.SystemRole
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(
		middleware.RateLimitRule{
			Name:       "auth_login_ip",
			Limit:      limit,
			Window:     window,
			Identifier: middleware.ClientIPIdentifier(),
		},
		middleware.RateLimitRule{
			Name:       "auth_login_email",
			Limit:      limit,
			Window:     window,
			Identifier: middleware.BasicAuthEmailIdentifier(),
		},
	)}
}
