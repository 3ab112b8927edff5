package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ABAC"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Authz     AuthzSettings     `mapstructure:"authz"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
}

type AppSettings struct {
	Name        string   `mapstructure:"name"`
	Env         string   `mapstructure:"env"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	APIEntry    string   `mapstructure:"api_entry"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	Schema            string        `mapstructure:"schema"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the credential cache connection, session layout and read breaker.
type RedisSettings struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	DB              int             `mapstructure:"db"`
	Password        string          `mapstructure:"password"`
	TLSEnabled      bool            `mapstructure:"tls_enabled"`
	KeyPrefix       string          `mapstructure:"key_prefix"`
	SessionPrefix   string          `mapstructure:"session_prefix"`
	SessionIndexKey string          `mapstructure:"session_index_key"`
	SessionTTL      time.Duration   `mapstructure:"session_ttl"`
	Breaker         BreakerSettings `mapstructure:"breaker"`
}

type BreakerSettings struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// KafkaSettings configures policy change events. No brokers means events are only logged.
type KafkaSettings struct {
	Brokers             []string `mapstructure:"brokers"`
	TopicPrefix         string   `mapstructure:"topic_prefix"`
	GroupID             string   `mapstructure:"group_id"`
	ConsumePolicyEvents bool     `mapstructure:"consume_policy_events"`
}

type AuthSettings struct {
	AccessTokenBytes int           `mapstructure:"access_token_bytes"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	SessionCookie    string        `mapstructure:"session_cookie"`
	LoginRedirect    string        `mapstructure:"login_redirect"`
	AdminEmail       string        `mapstructure:"admin_email"`
	SystemEmail      string        `mapstructure:"system_email"`
}

type AuthzSettings struct {
	SystemRole      string        `mapstructure:"system_role"`
	AdminRole       string        `mapstructure:"admin_role"`
	RebuildInterval time.Duration `mapstructure:"rebuild_interval"`
	SeedFile        string        `mapstructure:"seed_file"`
}

type TelemetrySettings struct {
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
}

// RateLimitSettings configures the login throttle.
type RateLimitSettings struct {
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.api_entry",
		"app.cors_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.schema",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"redis.session_prefix",
		"redis.session_index_key",
		"redis.session_ttl",
		"redis.breaker.max_requests",
		"redis.breaker.interval",
		"redis.breaker.timeout",
		"redis.breaker.consecutive_failures",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.group_id",
		"kafka.consume_policy_events",
		"auth.access_token_bytes",
		"auth.access_token_ttl",
		"auth.session_cookie",
		"auth.login_redirect",
		"auth.admin_email",
		"auth.system_email",
		"authz.system_role",
		"authz.admin_role",
		"authz.rebuild_interval",
		"authz.seed_file",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"telemetry.tracing_enabled",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "abac-auth-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.api_entry", "api")
	v.SetDefault("app.cors_origins", []string{})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "abac")
	v.SetDefault("postgres.password", "abac_password")
	v.SetDefault("postgres.database", "abac")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.schema", "abac")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "")
	v.SetDefault("redis.session_prefix", "session")
	v.SetDefault("redis.session_index_key", "session-index")
	v.SetDefault("redis.session_ttl", "72h")
	v.SetDefault("redis.breaker.max_requests", 1)
	v.SetDefault("redis.breaker.interval", "1m")
	v.SetDefault("redis.breaker.timeout", "10s")
	v.SetDefault("redis.breaker.consecutive_failures", 5)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "abac")
	v.SetDefault("kafka.group_id", "abac-auth-service")
	v.SetDefault("kafka.consume_policy_events", true)

	// Access tokens live 72 hours unless overridden.
	v.SetDefault("auth.access_token_bytes", 32)
	v.SetDefault("auth.access_token_ttl", "259200s")
	v.SetDefault("auth.session_cookie", "abac-session")
	v.SetDefault("auth.login_redirect", "/login")
	v.SetDefault("auth.admin_email", "webmaster@foo.com")
	v.SetDefault("auth.system_email", "systembot@foo.com")

	v.SetDefault("authz.system_role", "system")
	v.SetDefault("authz.admin_role", "admin")
	v.SetDefault("authz.rebuild_interval", "5m")
	v.SetDefault("authz.seed_file", "")

	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "abac-auth-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("telemetry.tracing_enabled", false)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
