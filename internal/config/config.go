package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Kerhoff/ChoreBoT/internal/familycode"
)

// Backends accepted by BACKEND
const (
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
	BackendMemory   = "memory"
)

// Session stores accepted by SESSION_STORE
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Backend     string
	DatabaseURL string

	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	SessionStore  string
	SessionDir    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TelegramToken  string
	Port           string
	PrometheusPort string
	LogLevel       string
	LogFormat      string

	AuthSessionTTL     time.Duration
	JanitorInterval    time.Duration
	SessionIdleTimeout time.Duration
	CodePolicy      familycode.Policy

	LoginRatePerMinute int
	LoginBurst         int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Backend:            getEnvOrDefault("BACKEND", BackendPostgres),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:    os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		SessionStore:       getEnvOrDefault("SESSION_STORE", StoreFile),
		SessionDir:         getEnvOrDefault("SESSION_DIR", "./data/sessions"),
		RedisAddr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		TelegramToken:      os.Getenv("TELEGRAM_TOKEN"),
		Port:               getEnvOrDefault("PORT", "8080"),
		PrometheusPort:     getEnvOrDefault("PROMETHEUS_PORT", "9090"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          getEnvOrDefault("LOG_FORMAT", "text"),
		CodePolicy:         familycode.DefaultPolicy(),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.AuthSessionTTL, err = getEnvDuration("AUTH_SESSION_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.JanitorInterval, err = getEnvDuration("JANITOR_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LoginRatePerMinute, err = getEnvInt("LOGIN_RATE_PER_MINUTE", 5); err != nil {
		return nil, err
	}
	if cfg.LoginBurst, err = getEnvInt("LOGIN_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.LoginRatePerMinute < 1 || cfg.LoginBurst < 1 {
		return nil, fmt.Errorf("LOGIN_RATE_PER_MINUTE and LOGIN_BURST must be positive")
	}
	if cfg.CodePolicy.MaxAttempts, err = getEnvInt("FAMILY_CODE_ATTEMPTS", familycode.DefaultMaxAttempts); err != nil {
		return nil, err
	}
	if cfg.CodePolicy.MaxAttempts < 1 {
		return nil, fmt.Errorf("FAMILY_CODE_ATTEMPTS must be at least 1")
	}
	if v := os.Getenv("FAMILY_CODE_ON_EXHAUSTION"); v != "" {
		if cfg.CodePolicy.OnExhaustion, err = familycode.ParseExhaustion(v); err != nil {
			return nil, err
		}
	}

	switch cfg.Backend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
	case BackendSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY environment variables are required")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unknown BACKEND %q", cfg.Backend)
	}

	switch cfg.SessionStore {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
	}

	return cfg, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
