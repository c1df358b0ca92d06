// Package config loads rentflow settings from the process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Session store kinds accepted by RENTFLOW_SESSION_STORE.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// APIConfig describes the remote rental API.
type APIConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// SessionConfig selects where the session value is persisted.
type SessionConfig struct {
	Store string
	File  string
}

// RedisConfig Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig broker settings for payment status nudges.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// SandboxConfig settings for the local reference API.
type SandboxConfig struct {
	Addr      string
	JWTSecret string
}

type Config struct {
	API         APIConfig
	Timezone    string
	Session     SessionConfig
	Redis       RedisConfig
	DatabaseURL string
	MQTT        MQTTConfig
	Sandbox     SandboxConfig

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration. Callers that want .env support load it first.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.API.BaseURL = getEnv("RENTFLOW_API_URL", "http://127.0.0.1:5000/api/v1")
	timeout, err := time.ParseDuration(getEnv("RENTFLOW_API_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("config: RENTFLOW_API_TIMEOUT: %w", err)
	}
	cfg.API.Timeout = timeout
	retries, err := strconv.Atoi(getEnv("RENTFLOW_RETRY_COUNT", "2"))
	if err != nil || retries < 0 {
		return nil, fmt.Errorf("config: RENTFLOW_RETRY_COUNT must be a non-negative integer")
	}
	cfg.API.RetryCount = retries

	cfg.Timezone = getEnv("RENTFLOW_TIMEZONE", "UTC")
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("config: RENTFLOW_TIMEZONE: %w", err)
	}

	cfg.Session.Store = getEnv("RENTFLOW_SESSION_STORE", StoreFile)
	switch cfg.Session.Store {
	case StoreFile, StoreMemory, StoreRedis, StorePostgres:
	default:
		return nil, fmt.Errorf("config: unknown session store %q", cfg.Session.Store)
	}
	cfg.Session.File = getEnv("RENTFLOW_SESSION_FILE", defaultSessionFile())

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("config: REDIS_DB: %w", err)
	}
	cfg.Redis.DB = db

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "rentctl")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "rentflow/payments/+/status")

	cfg.Sandbox.Addr = getEnv("SANDBOX_ADDR", ":5000")
	cfg.Sandbox.JWTSecret = getEnv("SANDBOX_JWT_SECRET", "rentflow-sandbox-secret")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "rentflow", "session.json")
	}
	return filepath.Join(home, ".rentflow", "session.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
