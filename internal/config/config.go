package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/spec-kit/official-relay/pkg/util/errorutil"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Official     OfficialConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// OfficialConfig holds the Official Account credential pair and API endpoints.
type OfficialConfig struct {
	AppID                  string
	AppSecret              string
	Token                  string
	APIBaseURL             string
	QRCodeBaseURL          string
	UpstreamTimeoutSeconds int
	TokenMarginSeconds     int
	TokenFallbackSeconds   int
	QRCodeExpireSeconds    int
	DedupWindowSeconds     int
}

// StoreConfig selects the document store backing binding codes and staff records.
type StoreConfig struct {
	Driver string
	EnvID  string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer authentication for the proxy API.
type AuthConfig struct {
	JWTSecret           string
	ServiceTokenTTLMins int
}

// NotificationConfig controls follow-up messages after a staff record is bound.
type NotificationConfig struct {
	BindTemplateID string
	QueueSize      int
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	driver := strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	if driver != StoreDriverPostgres && driver != StoreDriverMemory {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", driver)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "official-relay"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Official: OfficialConfig{
			AppID:                  getEnvFirst("WX_APPID", "OFFICIAL_APPID"),
			AppSecret:              getEnvFirst("WX_SECRET", "OFFICIAL_SECRET"),
			Token:                  getEnvFirst("WX_TOKEN", "OFFICIAL_TOKEN"),
			APIBaseURL:             strings.TrimRight(getEnv("OFFICIAL_API_BASE_URL", "https://api.weixin.qq.com"), "/"),
			QRCodeBaseURL:          getEnv("OFFICIAL_QRCODE_BASE_URL", "https://mp.weixin.qq.com/cgi-bin/showqrcode"),
			UpstreamTimeoutSeconds: getEnvAsInt("OFFICIAL_UPSTREAM_TIMEOUT_SECONDS", 5),
			TokenMarginSeconds:     getEnvAsInt("OFFICIAL_TOKEN_MARGIN_SECONDS", 100),
			TokenFallbackSeconds:   getEnvAsInt("OFFICIAL_TOKEN_FALLBACK_SECONDS", 7000),
			QRCodeExpireSeconds:    getEnvAsInt("OFFICIAL_QRCODE_EXPIRE_SECONDS", 1800),
			DedupWindowSeconds:     getEnvAsInt("OFFICIAL_CALLBACK_DEDUP_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver: driver,
			EnvID:  getEnvFirst("STORE_ENV_ID", "TCB_ENV_ID", "WX_ENV", "ENV_ID"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:           os.Getenv("API_JWT_SECRET"),
			ServiceTokenTTLMins: getEnvAsInt("API_JWT_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			BindTemplateID: os.Getenv("OFFICIAL_BIND_TEMPLATE_ID"),
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", 64),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ValidateCredentials reports a missing appid/secret pair. Proxy routes stay
// disabled while this returns an error.
func (o OfficialConfig) ValidateCredentials() error {
	var missing []string
	if o.AppID == "" {
		missing = append(missing, "WX_APPID")
	}
	if o.AppSecret == "" {
		missing = append(missing, "WX_SECRET")
	}
	if len(missing) > 0 {
		return apperrors.NewConfigError("official account credentials", missing...)
	}
	return nil
}

// ValidateHandshake reports a missing handshake token.
func (o OfficialConfig) ValidateHandshake() error {
	if o.Token == "" {
		return apperrors.NewConfigError("callback handshake", "WX_TOKEN")
	}
	return nil
}

// UpstreamTimeout bounds every outbound platform call.
func (o OfficialConfig) UpstreamTimeout() time.Duration {
	if o.UpstreamTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(o.UpstreamTimeoutSeconds) * time.Second
}

// TokenMargin is subtracted from every reported credential lifetime.
func (o OfficialConfig) TokenMargin() time.Duration {
	if o.TokenMarginSeconds < 0 {
		return 0
	}
	return time.Duration(o.TokenMarginSeconds) * time.Second
}

// TokenFallback is used when the platform omits expires_in.
func (o OfficialConfig) TokenFallback() time.Duration {
	if o.TokenFallbackSeconds <= 0 {
		return 7000 * time.Second
	}
	return time.Duration(o.TokenFallbackSeconds) * time.Second
}

// DedupWindow is how long a delivered callback is remembered.
func (o OfficialConfig) DedupWindow() time.Duration {
	if o.DedupWindowSeconds <= 0 {
		return 0
	}
	return time.Duration(o.DedupWindowSeconds) * time.Second
}

// Validate reports store settings that would leave the binding workflow without a backend.
func (s StoreConfig) Validate(pg PostgresConfig) error {
	if s.Driver == StoreDriverMemory {
		return nil
	}
	var missing []string
	if s.EnvID == "" {
		missing = append(missing, "STORE_ENV_ID")
	}
	if pg.DSN == "" {
		missing = append(missing, "POSTGRES_DSN")
	}
	if len(missing) > 0 {
		return apperrors.NewConfigError("binding store", missing...)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvFirst(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
