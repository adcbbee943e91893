package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	DBName             string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	MaxLifetimeMinutes int
	LogLevel           string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// Enabled gates whether the leader-gated poll optimization
	// (internal/lock) is wired up at all; single-process deployments can
	// leave Redis unconfigured.
	Enabled bool
}

// RateLimitConfig mirrors engine.RateLimitConfig for the config layer so
// this package doesn't need to import internal/engine.
type RateLimitConfig struct {
	Capacity         int64
	RefillRate       int64
	RefillIntervalMs int64
	Burst            int64
}

// EngineConfig covers the scheduler engine's tunables (spec.md §6).
type EngineConfig struct {
	SchedulerID         string
	PollIntervalMs      int
	LeaseMs             int
	HeartbeatIntervalMs int
	StalledAfterMs      int
	MisfireToleranceMs  int
	MaxMisfireSkip      int
	MaxConcurrentRuns   int
	GlobalRateLimit     *RateLimitConfig
}

func LoadConfig() *Config {
	cfg, _ := Load()
	return cfg
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var globalRateLimit *RateLimitConfig
	if capacity := getEnvInt("ENGINE_GLOBAL_RATE_LIMIT_CAPACITY", 0); capacity > 0 {
		globalRateLimit = &RateLimitConfig{
			Capacity:         int64(capacity),
			RefillRate:       int64(getEnvInt("ENGINE_GLOBAL_RATE_LIMIT_REFILL_RATE", capacity)),
			RefillIntervalMs: int64(getEnvInt("ENGINE_GLOBAL_RATE_LIMIT_REFILL_INTERVAL_MS", 1000)),
			Burst:            int64(getEnvInt("ENGINE_GLOBAL_RATE_LIMIT_BURST", capacity)),
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 5003),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Postgres: PostgresConfig{
			Host:               getEnv("POSTGRES_HOST", "localhost"),
			Port:               getEnv("POSTGRES_PORT", "5432"),
			User:               getEnv("POSTGRES_USER", "jobkeeper_user"),
			Password:           getEnv("POSTGRES_PASSWORD", "jobkeeper_password"),
			DBName:             getEnv("POSTGRES_DB", "jobkeeper_db"),
			SSLMode:            getEnv("POSTGRES_SSL_MODE", "disable"),
			MaxOpenConns:       getEnvInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt("POSTGRES_MAX_IDLE_CONNS", 10),
			MaxLifetimeMinutes: getEnvInt("POSTGRES_MAX_LIFETIME_MINS", 30),
			LogLevel:           getEnv("POSTGRES_LOG_LEVEL", "warn"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 2),
			Enabled:  getEnvBool("REDIS_ENABLED", false),
		},
		Engine: EngineConfig{
			SchedulerID:         getEnv("ENGINE_SCHEDULER_ID", "scheduler-"+uuid.NewString()),
			PollIntervalMs:      getEnvInt("ENGINE_POLL_INTERVAL_MS", 250),
			LeaseMs:             getEnvInt("ENGINE_LEASE_MS", 30000),
			HeartbeatIntervalMs: getEnvInt("ENGINE_HEARTBEAT_INTERVAL_MS", 30000),
			StalledAfterMs:      getEnvInt("ENGINE_STALLED_AFTER_MS", 90000),
			MisfireToleranceMs:  getEnvInt("ENGINE_MISFIRE_TOLERANCE_MS", 60000),
			MaxMisfireSkip:      getEnvInt("ENGINE_MAX_MISFIRE_SKIP", 1000),
			MaxConcurrentRuns:   getEnvInt("ENGINE_MAX_CONCURRENT_RUNS", 0),
			GlobalRateLimit:     globalRateLimit,
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
