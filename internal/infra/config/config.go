package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App            AppSettings            `mapstructure:"app"`
	Postgres       PostgresSettings       `mapstructure:"postgres"`
	Redis          RedisSettings          `mapstructure:"redis"`
	Kafka          KafkaSettings          `mapstructure:"kafka"`
	Auth           AuthSettings           `mapstructure:"auth"`
	Telemetry      TelemetrySettings      `mapstructure:"telemetry"`
	RateLimit      RateLimitSettings      `mapstructure:"rate_limit"`
	Argon2         Argon2Settings         `mapstructure:"argon2"`
	PasswordPolicy PasswordPolicySettings `mapstructure:"password_policy"`
	Lockout        LockoutSettings        `mapstructure:"lockout"`
	Audit          AuditSettings          `mapstructure:"audit"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
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

// RedisSettings configures Redis connection, TLS, and key prefixes
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	AttemptPrefix   string `mapstructure:"attempt_prefix"`
	LockoutPrefix   string `mapstructure:"lockout_prefix"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the Kafka producer and the change-stream consumer
type KafkaSettings struct {
	Brokers       []string `mapstructure:"brokers"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	Async         bool     `mapstructure:"async"`
	ChangeTopic   string   `mapstructure:"change_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

// AuthSettings configures admin bearer token verification
type AuthSettings struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	AdminRole      string        `mapstructure:"admin_role"`
}

// RateLimitSettings configures per-endpoint sliding-window HTTP limits
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	EvaluateMaxAttempts int           `mapstructure:"evaluate_max_attempts"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// PasswordPolicySettings configures the candidate password rules
type PasswordPolicySettings struct {
	MinLength           int     `mapstructure:"min_length"`
	MinEntropyBits      float64 `mapstructure:"min_entropy_bits"`
	MinStrengthScore    int     `mapstructure:"min_strength_score"`
	PersonalTokenMinLen int     `mapstructure:"personal_token_min_len"`
	HistoryDepth        int     `mapstructure:"history_depth"`
}

// LockoutSettings configures the failed-login governor. A zero window falls
// back to the cooloff duration.
type LockoutSettings struct {
	Threshold   int           `mapstructure:"threshold"`
	Cooloff     time.Duration `mapstructure:"cooloff"`
	Window      time.Duration `mapstructure:"window"`
	KeyStrategy string        `mapstructure:"key_strategy"`
}

// AuditSettings configures the audit trail retention, redaction, and fan-out
type AuditSettings struct {
	Retention         time.Duration `mapstructure:"retention"`
	SensitiveFields   []string      `mapstructure:"sensitive_fields"`
	DegradationPolicy string        `mapstructure:"degradation_policy"`
	QueryDefaultLimit int           `mapstructure:"query_default_limit"`
	QueryMaxLimit     int           `mapstructure:"query_max_limit"`
}

type TelemetrySettings struct {
	MetricsPort     int     `mapstructure:"metrics_port"`
	TracingEndpoint string  `mapstructure:"tracing_endpoint"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	ServiceName     string  `mapstructure:"service_name"`
	SamplingRate    float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTHGUARD")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
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
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.attempt_prefix",
		"redis.lockout_prefix",
		"redis.rate_limit_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"kafka.change_topic",
		"kafka.consumer_group",
		"auth.jwt_secret",
		"auth.issuer",
		"auth.access_token_ttl",
		"auth.admin_role",
		"telemetry.metrics_port",
		"telemetry.tracing_endpoint",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.evaluate_max_attempts",
		"rate_limit.login_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"password_policy.min_length",
		"password_policy.min_entropy_bits",
		"password_policy.min_strength_score",
		"password_policy.personal_token_min_len",
		"password_policy.history_depth",
		"lockout.threshold",
		"lockout.cooloff",
		"lockout.window",
		"lockout.key_strategy",
		"audit.retention",
		"audit.sensitive_fields",
		"audit.degradation_policy",
		"audit.query_default_limit",
		"audit.query_max_limit",
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
	v.SetDefault("app.name", "authguard-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "authguard")
	v.SetDefault("postgres.password", "authguard_password")
	v.SetDefault("postgres.database", "authguard")
	v.SetDefault("postgres.ssl_mode", "disable")
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
	v.SetDefault("redis.attempt_prefix", "authguard:attempts")
	v.SetDefault("redis.lockout_prefix", "authguard:lockout")
	v.SetDefault("redis.rate_limit_prefix", "authguard:ratelimit")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "authguard")
	v.SetDefault("kafka.async", true)
	v.SetDefault("kafka.change_topic", "platform.entity.changes")
	v.SetDefault("kafka.consumer_group", "authguard-audit")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "authguard")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.admin_role", "admin")

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.tracing_endpoint", "http://localhost:4317")
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "authguard-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.evaluate_max_attempts", 20)
	v.SetDefault("rate_limit.login_max_attempts", 30)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("password_policy.min_length", 12)
	v.SetDefault("password_policy.min_entropy_bits", 50)
	v.SetDefault("password_policy.min_strength_score", 2)
	v.SetDefault("password_policy.personal_token_min_len", 4)
	v.SetDefault("password_policy.history_depth", 5)

	v.SetDefault("lockout.threshold", 5)
	v.SetDefault("lockout.cooloff", "30m")
	v.SetDefault("lockout.window", "0s")
	v.SetDefault("lockout.key_strategy", "source_username")

	v.SetDefault("audit.retention", "2160h") // 90 days
	v.SetDefault("audit.sensitive_fields", []string{"password", "password_hash", "secret", "token", "credential"})
	v.SetDefault("audit.degradation_policy", "lenient")
	v.SetDefault("audit.query_default_limit", 50)
	v.SetDefault("audit.query_max_limit", 500)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTHGUARD_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
