package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "POSAUTH"

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
)

// Token store backends.
const (
	TokenStoreDatabase = "database"
	TokenStoreRedis    = "redis"
)

type AppConfig struct {
	App         AppSettings         `mapstructure:"app"`
	GRPC        GRPCSettings        `mapstructure:"grpc"`
	Storage     StorageSettings     `mapstructure:"storage"`
	Postgres    PostgresSettings    `mapstructure:"postgres"`
	Redis       RedisSettings       `mapstructure:"redis"`
	Kafka       KafkaSettings       `mapstructure:"kafka"`
	Auth        AuthSettings        `mapstructure:"auth"`
	Audit       AuditSettings       `mapstructure:"audit"`
	Password    PasswordSettings    `mapstructure:"password"`
	Argon2      Argon2Settings      `mapstructure:"argon2"`
	RateLimit   RateLimitSettings   `mapstructure:"rate_limit"`
	ServiceAuth ServiceAuthSettings `mapstructure:"service_auth"`
	Telemetry   TelemetrySettings   `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GRPCSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StorageSettings selects the account/audit backend and the token backend.
type StorageSettings struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
	TokenStore string `mapstructure:"token_store"`
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

// RedisSettings configures Redis connection and key layout
type RedisSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              int           `mapstructure:"db"`
	Password        string        `mapstructure:"password"`
	TLSEnabled      bool          `mapstructure:"tls_enabled"`
	TokenPrefix     string        `mapstructure:"token_prefix"`
	TokenRetention  time.Duration `mapstructure:"token_retention"`
	RateLimitPrefix string        `mapstructure:"rate_limit_prefix"`
}

// Enabled reports whether a Redis host is configured.
func (r RedisSettings) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// KafkaSettings configures the audit/event producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	AuditTopic  string   `mapstructure:"audit_topic"`
}

// AuthSettings carries the lockout and token lifetime policy.
type AuthSettings struct {
	LockoutThreshold               int           `mapstructure:"lockout_threshold"`
	LockoutDuration                time.Duration `mapstructure:"lockout_duration"`
	TokenTTL                       time.Duration `mapstructure:"token_ttl"`
	CASMaxRetries                  int           `mapstructure:"cas_max_retries"`
	RevokeSessionsOnPasswordChange bool          `mapstructure:"revoke_sessions_on_password_change"`
	AuditRefresh                   bool          `mapstructure:"audit_refresh"`
}

// AuditSettings configures the asynchronous audit dispatcher.
type AuditSettings struct {
	BufferSize int  `mapstructure:"buffer_size"`
	Persist    bool `mapstructure:"persist"`
}

// PasswordSettings configures the password policy for new passwords.
type PasswordSettings struct {
	MinLength           int `mapstructure:"min_length"`
	MinCharacterClasses int `mapstructure:"min_character_classes"`
	MinStrengthScore    int `mapstructure:"min_strength_score"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// RateLimitSettings configures request throttling on credential endpoints
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts int           `mapstructure:"register_max_attempts"`
	LocalRPS            float64       `mapstructure:"local_rps"`
}

// ServiceAuthSettings configures HS256 credentials for gRPC callers.
type ServiceAuthSettings struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

var envKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.allowed_origins",
	"grpc.host",
	"grpc.port",
	"storage.driver",
	"storage.sqlite_path",
	"storage.token_store",
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
	"redis.token_prefix",
	"redis.token_retention",
	"redis.rate_limit_prefix",
	"kafka.brokers",
	"kafka.topic_prefix",
	"kafka.audit_topic",
	"auth.lockout_threshold",
	"auth.lockout_duration",
	"auth.token_ttl",
	"auth.cas_max_retries",
	"auth.revoke_sessions_on_password_change",
	"auth.audit_refresh",
	"audit.buffer_size",
	"audit.persist",
	"password.min_length",
	"password.min_character_classes",
	"password.min_strength_score",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"rate_limit.window_duration",
	"rate_limit.login_max_attempts",
	"rate_limit.register_max_attempts",
	"rate_limit.local_rps",
	"service_auth.secret",
	"service_auth.issuer",
	"service_auth.audience",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.App.AllowedOrigins = splitList(cfg.App.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == StorageDriverSQLite && strings.TrimSpace(c.Storage.SQLitePath) == "" {
		errs = append(errs, errors.New("storage.sqlite_path: required for sqlite driver"))
	}

	switch c.Storage.TokenStore {
	case TokenStoreDatabase:
	case TokenStoreRedis:
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("storage.token_store: redis selected but redis.host is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.token_store: unknown backend %q", c.Storage.TokenStore))
	}

	if c.Auth.LockoutThreshold <= 0 {
		errs = append(errs, errors.New("auth.lockout_threshold: must be positive"))
	}
	if c.Auth.LockoutDuration <= 0 {
		errs = append(errs, errors.New("auth.lockout_duration: must be positive"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl: must be positive"))
	}
	if c.Audit.BufferSize <= 0 {
		errs = append(errs, errors.New("audit.buffer_size: must be positive"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pos-auth-gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{})

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("storage.sqlite_path", "./data/auth.db")
	v.SetDefault("storage.token_store", TokenStoreDatabase)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "pos")
	v.SetDefault("postgres.password", "pos_password")
	v.SetDefault("postgres.database", "pos")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.token_prefix", "posauth:token")
	v.SetDefault("redis.token_retention", "24h")
	v.SetDefault("redis.rate_limit_prefix", "posauth:ratelimit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "posauth")
	v.SetDefault("kafka.audit_topic", "auth.login_audit")

	v.SetDefault("auth.lockout_threshold", 5)
	v.SetDefault("auth.lockout_duration", "30m")
	v.SetDefault("auth.token_ttl", "60m")
	v.SetDefault("auth.cas_max_retries", 8)
	v.SetDefault("auth.revoke_sessions_on_password_change", true)
	v.SetDefault("auth.audit_refresh", false)

	v.SetDefault("audit.buffer_size", 1024)
	v.SetDefault("audit.persist", true)

	v.SetDefault("password.min_length", 10)
	v.SetDefault("password.min_character_classes", 3)
	v.SetDefault("password.min_strength_score", 3)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.local_rps", 5)

	v.SetDefault("service_auth.secret", "")
	v.SetDefault("service_auth.issuer", "pos-platform")
	v.SetDefault("service_auth.audience", "pos-auth-gateway")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "pos-auth-gateway")
	v.SetDefault("telemetry.sampling_rate", 1.0)
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

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
