package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/infra/config"
	"github.com/arklim/abac-auth-service/internal/infra/database"
	kafkainfra "github.com/arklim/abac-auth-service/internal/infra/kafka"
	"github.com/arklim/abac-auth-service/internal/infra/logger"
	redisinfra "github.com/arklim/abac-auth-service/internal/infra/redis"
	"github.com/arklim/abac-auth-service/internal/infra/security"
	"github.com/arklim/abac-auth-service/internal/infra/seed"
	"github.com/arklim/abac-auth-service/internal/infra/telemetry"
	postgresrepo "github.com/arklim/abac-auth-service/internal/repository/postgres"
	redisrepo "github.com/arklim/abac-auth-service/internal/repository/redis"
	"github.com/arklim/abac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/abac-auth-service/internal/transport/http/routes"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

const (
	metricsNamespace       = "abac"
	defaultRebuildInterval = 5 * time.Minute
)

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	telemetry *telemetry.Provider
	index     *authz.Index
	producer  *kafkainfra.Producer
	consumer  *kafkainfra.PolicyChangeConsumer
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	provider, err := telemetry.Attach(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	cache := redisrepo.NewGuardedCache(
		redisrepo.NewCredentialCache(redisClient.Client(), cfg.Redis.KeyPrefix),
		redisrepo.BreakerSettings{
			MaxRequests:         cfg.Redis.Breaker.MaxRequests,
			Interval:            cfg.Redis.Breaker.Interval,
			Timeout:             cfg.Redis.Breaker.Timeout,
			ConsecutiveFailures: cfg.Redis.Breaker.ConsecutiveFailures,
		},
		log,
	)
	sessions := redisrepo.NewSessionRepository(cache, redisrepo.SessionConfig{
		KeyPrefix: cfg.Redis.SessionPrefix,
		IndexKey:  cfg.Redis.SessionIndexKey,
		TTL:       cfg.Redis.SessionTTL,
	})

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "abac:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	authzMetrics, err := authz.NewMetrics(authz.MetricsOptions{Registerer: provider.Registry(), Namespace: metricsNamespace})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init authz metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: provider.Registry(), Namespace: metricsNamespace})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	index := authz.NewIndex(repos.Policies, authz.WithLogger(log), authz.WithMetrics(authzMetrics))
	authorizer := authz.NewAuthorizer(index, domain.ProtectedResources())

	origin := uuid.NewString()
	var (
		eventPublisher port.EventPublisher
		producer       *kafkainfra.Producer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
			producer = nil
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var consumer *kafkainfra.PolicyChangeConsumer
	if producer != nil && cfg.Kafka.ConsumePolicyEvents {
		consumer = kafkainfra.NewPolicyChangeConsumer(index, origin, log)
	}

	authService := usecase.NewAuthService(
		repos.Users, repos.Roles, cache, sessions, hasher, security.GenerateSecureToken,
		usecase.AuthConfig{TokenBytes: cfg.Auth.AccessTokenBytes, TokenTTL: cfg.Auth.AccessTokenTTL},
		log,
	)
	services := routes.ServiceSet{
		Auth:     authService,
		Users:    usecase.NewUserService(repos.Users, repos.Roles, cache, sessions, hasher, log),
		Roles:    usecase.NewRoleService(repos.Roles, cache, log),
		Todos:    usecase.NewTodoService(repos.Todos),
		Policies: usecase.NewPolicyService(repos.Policies, index, eventPublisher, origin, log),
		Web:      usecase.NewWebSessionService(authService, sessions, log),
	}

	seeds, err := seed.Load(cfg.Authz.SeedFile)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("load policy seeds: %w", err)
	}
	bootstrapper := usecase.NewBootstrapper(repos.Users, repos.Roles, repos.Policies, index, hasher, security.GenerateSecureToken,
		usecase.BootstrapConfig{
			AdminEmail:  cfg.Auth.AdminEmail,
			SystemEmail: cfg.Auth.SystemEmail,
			AdminRole:   cfg.Authz.AdminRole,
			SystemRole:  cfg.Authz.SystemRole,
		},
		log,
	)
	if err := bootstrapper.Run(ctx, seeds); err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:         cfg,
		Logger:         log,
		RateLimiter:    rateLimiter,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: provider.Handler(),
		Authorizer:     authorizer,
		Services:       services,
		Database:       pool,
		Cache:          redisClient,
	})

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		pool:      pool,
		redis:     redisClient,
		telemetry: provider,
		index:     index,
		producer:  producer,
		consumer:  consumer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	interval := a.cfg.Authz.RebuildInterval
	if interval <= 0 {
		interval = defaultRebuildInterval
	}
	go a.index.RunReconciler(ctx, interval)

	if a.consumer != nil {
		go func() {
			if err := kafkainfra.RunPolicyConsumer(ctx, a.cfg.Kafka, a.consumer, a.logger); err != nil {
				a.logger.Error("policy change consumer stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting ABAC auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.Int("policy_entries", a.index.Stats().Entries),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
