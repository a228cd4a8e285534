package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Storage   StorageSettings   `mapstructure:"storage"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Identity  IdentitySettings  `mapstructure:"identity"`
	Session   SessionSettings   `mapstructure:"session"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// LogLevel overrides the environment default (debug in development, info in production).
	LogLevel string `mapstructure:"log_level"`
}

// StorageSettings selects the account store implementation.
type StorageSettings struct {
	Driver       string `mapstructure:"driver"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection backing rate limits.
type RedisSettings struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the account event producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration            time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts          int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts       int           `mapstructure:"register_max_attempts"`
	ForgotPasswordMaxAttempts int           `mapstructure:"forgot_password_max_attempts"`
	ResetPasswordMaxAttempts  int           `mapstructure:"reset_password_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// IdentitySettings holds the account policy.
type IdentitySettings struct {
	PasswordPolicy             PasswordPolicySettings `mapstructure:"password_policy"`
	Lockout                    LockoutSettings        `mapstructure:"lockout"`
	Tokens                     TokenSettings          `mapstructure:"tokens"`
	DefaultRole                string                 `mapstructure:"default_role"`
	RequireConfirmedEmail      bool                   `mapstructure:"require_confirmed_email"`
	SendConfirmationOnRegister bool                   `mapstructure:"send_confirmation_on_register"`
	Seed                       SeedSettings           `mapstructure:"seed"`
}

type PasswordPolicySettings struct {
	MinLength              int  `mapstructure:"min_length"`
	RequireUppercase       bool `mapstructure:"require_uppercase"`
	RequireLowercase       bool `mapstructure:"require_lowercase"`
	RequireDigit           bool `mapstructure:"require_digit"`
	RequireNonAlphanumeric bool `mapstructure:"require_non_alphanumeric"`
	// MinStrengthScore enables the zxcvbn check when above zero (0-4).
	MinStrengthScore int `mapstructure:"min_strength_score"`
}

type LockoutSettings struct {
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	Duration          time.Duration `mapstructure:"duration"`
}

// TokenSettings configures password reset and email confirmation tokens.
type TokenSettings struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	ResetTTL        time.Duration `mapstructure:"reset_ttl"`
	ConfirmationTTL time.Duration `mapstructure:"confirmation_ttl"`
}

type SeedSettings struct {
	Enabled       bool   `mapstructure:"enabled"`
	AdminUserName string `mapstructure:"admin_user_name"`
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

// SessionSettings configures the signed session token returned by login.
type SessionSettings struct {
	Secret        string        `mapstructure:"secret"`
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	TTL           time.Duration `mapstructure:"ttl"`
	RememberMeTTL time.Duration `mapstructure:"remember_me_ttl"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IAM")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.log_level",
		"storage.driver",
		"storage.ensure_schema",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.rate_limit_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"rate_limit.forgot_password_max_attempts",
		"rate_limit.reset_password_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"identity.password_policy.min_length",
		"identity.password_policy.require_uppercase",
		"identity.password_policy.require_lowercase",
		"identity.password_policy.require_digit",
		"identity.password_policy.require_non_alphanumeric",
		"identity.password_policy.min_strength_score",
		"identity.lockout.max_failed_attempts",
		"identity.lockout.duration",
		"identity.tokens.secret",
		"identity.tokens.issuer",
		"identity.tokens.reset_ttl",
		"identity.tokens.confirmation_ttl",
		"identity.default_role",
		"identity.require_confirmed_email",
		"identity.send_confirmation_on_register",
		"identity.seed.enabled",
		"identity.seed.admin_user_name",
		"identity.seed.admin_email",
		"identity.seed.admin_password",
		"session.secret",
		"session.issuer",
		"session.audience",
		"session.ttl",
		"session.remember_me_ttl",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Identity.Tokens.Secret == "" {
		return fmt.Errorf("identity.tokens.secret is required")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "identity-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("storage.ensure_schema", true)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "identity")
	v.SetDefault("postgres.password", "identity_password")
	v.SetDefault("postgres.database", "identity")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_prefix", "identity:rate_limit")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "identity")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "identity-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.forgot_password_max_attempts", 3)
	v.SetDefault("rate_limit.reset_password_max_attempts", 5)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("identity.password_policy.min_length", 8)
	v.SetDefault("identity.password_policy.require_uppercase", true)
	v.SetDefault("identity.password_policy.require_lowercase", true)
	v.SetDefault("identity.password_policy.require_digit", true)
	v.SetDefault("identity.password_policy.require_non_alphanumeric", true)
	v.SetDefault("identity.password_policy.min_strength_score", 0)
	v.SetDefault("identity.lockout.max_failed_attempts", 5)
	v.SetDefault("identity.lockout.duration", "5m")
	v.SetDefault("identity.tokens.secret", "")
	v.SetDefault("identity.tokens.issuer", "identity-service")
	v.SetDefault("identity.tokens.reset_ttl", "1h")
	v.SetDefault("identity.tokens.confirmation_ttl", "24h")
	v.SetDefault("identity.default_role", "User")
	v.SetDefault("identity.require_confirmed_email", false)
	v.SetDefault("identity.send_confirmation_on_register", true)
	v.SetDefault("identity.seed.enabled", true)
	v.SetDefault("identity.seed.admin_user_name", "admin")
	v.SetDefault("identity.seed.admin_email", "admin@example.com")
	v.SetDefault("identity.seed.admin_password", "")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.issuer", "identity-service")
	v.SetDefault("session.audience", "identity-api")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.remember_me_ttl", "336h")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "IAM_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
