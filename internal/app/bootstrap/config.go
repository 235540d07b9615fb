package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	RegistryBackendPostgres = "postgres"
	RegistryBackendRedis    = "redis"
)

// Config is the resolved runtime configuration.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string
	Env       string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	RabbitMQURL string

	JWTSecret        string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	BcryptCost      int
	HashConcurrency int

	ResetCodeTTL               time.Duration
	FailedLoginThreshold       int
	LockoutDuration            time.Duration
	RegisterRateLimitThreshold int
	RegisterRateLimitWindow    time.Duration
	ResetRateLimitThreshold    int
	ResetRateLimitWindow       time.Duration

	ResetSubmitRateLimitThreshold int
	ResetSubmitRateLimitWindow    time.Duration
	ResetWrongCodeThreshold       int
	ResetWrongCodeWindow          time.Duration

	RefreshRegistryBackend string

	MailHost     string
	MailPort     int
	MailUser     string
	MailPassword string
	MailFrom     string
	MailTimeout  time.Duration

	CookieSecure       bool
	CORSAllowedOrigins []string
	TrustProxy         bool

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
	SweepInterval      time.Duration
	SweepBatchSize     int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		Env      string `yaml:"env"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
		RabbitMQURL string `yaml:"rabbitmq_url"`
	} `yaml:"dependencies"`
	Auth struct {
		AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
		RefreshTokenTTLDays   int    `yaml:"refresh_token_ttl_days"`
		ResetCodeTTLMinutes   int    `yaml:"reset_code_ttl_minutes"`
		BcryptRounds          int    `yaml:"bcrypt_rounds"`
		HashConcurrency       int    `yaml:"hash_concurrency"`
		RegistryBackend       string `yaml:"refresh_registry_backend"`
	} `yaml:"auth"`
	Mail struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		From string `yaml:"from"`
	} `yaml:"mail"`
	HTTP struct {
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"http"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> .env -> env.
// Variables already present in the environment win over .env entries.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                  "burgerverse-auth",
		Env:                        "development",
		HTTPPort:                   3001,
		GRPCPort:                   9090,
		AccessTokenTTL:             15 * time.Minute,
		RefreshTokenTTL:            7 * 24 * time.Hour,
		BcryptCost:                 10,
		HashConcurrency:            4,
		ResetCodeTTL:               time.Hour,
		FailedLoginThreshold:       5,
		LockoutDuration:            15 * time.Minute,
		RegisterRateLimitThreshold: 20,
		RegisterRateLimitWindow:    time.Minute,
		ResetRateLimitThreshold:    5,
		ResetRateLimitWindow:       15 * time.Minute,

		ResetSubmitRateLimitThreshold: 10,
		ResetSubmitRateLimitWindow:    15 * time.Minute,
		ResetWrongCodeThreshold:       100,
		ResetWrongCodeWindow:          time.Hour,

		RefreshRegistryBackend:     RegistryBackendPostgres,
		MailPort:                   465,
		MailTimeout:                10 * time.Second,
		CORSAllowedOrigins:         []string{"http://localhost:4000"},
		MaxDBConns:                 20,
		OutboxPollInterval:         2 * time.Second,
		OutboxBatchSize:            100,
		OutboxClaimTTL:             30 * time.Second,
		OutboxMaxRetries:           5,
		SweepInterval:              time.Hour,
		SweepBatchSize:             500,
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := applyFile(&cfg, raw); err != nil {
			return Config{}, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.Env != "" {
		cfg.Env = f.Service.Env
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if f.Dependencies.RabbitMQURL != "" {
		cfg.RabbitMQURL = f.Dependencies.RabbitMQURL
	}
	if f.Auth.AccessTokenTTLMinutes > 0 {
		cfg.AccessTokenTTL = time.Duration(f.Auth.AccessTokenTTLMinutes) * time.Minute
	}
	if f.Auth.RefreshTokenTTLDays > 0 {
		cfg.RefreshTokenTTL = time.Duration(f.Auth.RefreshTokenTTLDays) * 24 * time.Hour
	}
	if f.Auth.ResetCodeTTLMinutes > 0 {
		cfg.ResetCodeTTL = time.Duration(f.Auth.ResetCodeTTLMinutes) * time.Minute
	}
	if f.Auth.BcryptRounds > 0 {
		cfg.BcryptCost = f.Auth.BcryptRounds
	}
	if f.Auth.HashConcurrency > 0 {
		cfg.HashConcurrency = f.Auth.HashConcurrency
	}
	if f.Auth.RegistryBackend != "" {
		cfg.RefreshRegistryBackend = f.Auth.RegistryBackend
	}
	if f.Mail.Host != "" {
		cfg.MailHost = f.Mail.Host
	}
	if f.Mail.Port > 0 {
		cfg.MailPort = f.Mail.Port
	}
	if f.Mail.From != "" {
		cfg.MailFrom = f.Mail.From
	}
	if len(f.HTTP.CORSAllowedOrigins) > 0 {
		cfg.CORSAllowedOrigins = f.HTTP.CORSAllowedOrigins
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envOrDefault("APP_ENV", cfg.Env)
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.RabbitMQURL = envOrDefault("RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTRefreshSecret = envOrDefault("JWT_REFRESH_SECRET", cfg.JWTRefreshSecret)
	cfg.RefreshRegistryBackend = strings.ToLower(strings.TrimSpace(envOrDefault("REFRESH_REGISTRY_BACKEND", cfg.RefreshRegistryBackend)))

	cfg.MailHost = envOrDefault("MAIL_HOST", cfg.MailHost)
	cfg.MailPort = envInt("MAIL_PORT", cfg.MailPort)
	cfg.MailUser = envOrDefault("MAIL_USER", cfg.MailUser)
	cfg.MailPassword = envOrDefault("MAIL_PASS", cfg.MailPassword)
	cfg.MailFrom = envOrDefault("MAIL_FROM", cfg.MailFrom)
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.MailUser
	}

	cfg.CookieSecure = envBool("COOKIE_SECURE", cfg.Env == "production")
	cfg.CORSAllowedOrigins = envCSV("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	cfg.TrustProxy = envBool("TRUST_PROXY", cfg.TrustProxy)

	cfg.HTTPPort = envInt("HTTP_PORT", envInt("PORT", cfg.HTTPPort))
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.HashConcurrency = envInt("HASH_CONCURRENCY", cfg.HashConcurrency)
	cfg.FailedLoginThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedLoginThreshold)
	cfg.RegisterRateLimitThreshold = envInt("REGISTER_RATE_LIMIT_THRESHOLD", cfg.RegisterRateLimitThreshold)
	cfg.ResetRateLimitThreshold = envInt("RESET_RATE_LIMIT_THRESHOLD", cfg.ResetRateLimitThreshold)
	cfg.ResetSubmitRateLimitThreshold = envInt("RESET_SUBMIT_RATE_LIMIT_THRESHOLD", cfg.ResetSubmitRateLimitThreshold)
	cfg.ResetWrongCodeThreshold = envInt("RESET_WRONG_CODE_THRESHOLD", cfg.ResetWrongCodeThreshold)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.AccessTokenTTL = time.Duration(envInt("ACCESS_TOKEN_TTL_MINUTES", int(cfg.AccessTokenTTL.Minutes()))) * time.Minute
	cfg.RefreshTokenTTL = time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", int(cfg.RefreshTokenTTL.Hours()/24))) * 24 * time.Hour
	cfg.ResetCodeTTL = time.Duration(envInt("RESET_CODE_TTL_MINUTES", int(cfg.ResetCodeTTL.Minutes()))) * time.Minute
	cfg.LockoutDuration = time.Duration(envInt("ACCOUNT_LOCKOUT_MINUTES", int(cfg.LockoutDuration.Minutes()))) * time.Minute
	cfg.RegisterRateLimitWindow = time.Duration(envInt("REGISTER_RATE_LIMIT_WINDOW_SECONDS", int(cfg.RegisterRateLimitWindow.Seconds()))) * time.Second
	cfg.ResetRateLimitWindow = time.Duration(envInt("RESET_RATE_LIMIT_WINDOW_SECONDS", int(cfg.ResetRateLimitWindow.Seconds()))) * time.Second
	cfg.ResetSubmitRateLimitWindow = time.Duration(envInt("RESET_SUBMIT_RATE_LIMIT_WINDOW_SECONDS", int(cfg.ResetSubmitRateLimitWindow.Seconds()))) * time.Second
	cfg.ResetWrongCodeWindow = time.Duration(envInt("RESET_WRONG_CODE_WINDOW_MINUTES", int(cfg.ResetWrongCodeWindow.Minutes()))) * time.Minute
	cfg.MailTimeout = time.Duration(envInt("MAIL_TIMEOUT_SECONDS", int(cfg.MailTimeout.Seconds()))) * time.Second
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.SweepInterval = time.Duration(envInt("SWEEP_INTERVAL_SECONDS", int(cfg.SweepInterval.Seconds()))) * time.Second
	cfg.SweepBatchSize = envInt("SWEEP_BATCH_SIZE", cfg.SweepBatchSize)
}

// validate fails start-up on anything the service cannot run safely without.
func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("missing REDIS_URL")
	}
	if c.JWTSecret == "" || c.JWTRefreshSecret == "" {
		return fmt.Errorf("missing JWT_SECRET or JWT_REFRESH_SECRET")
	}
	if c.JWTSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.ResetCodeTTL <= 0 {
		return fmt.Errorf("token and reset code ttls must be positive")
	}
	switch c.RefreshRegistryBackend {
	case RegistryBackendPostgres, RegistryBackendRedis:
	default:
		return fmt.Errorf("unknown REFRESH_REGISTRY_BACKEND %q", c.RefreshRegistryBackend)
	}
	return nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
