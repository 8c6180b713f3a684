package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig connection settings for one Postgres database.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// Config zerosync service configuration. Everything is loaded from the
// environment; defaults match the on-site deployment.
type Config struct {
	HTTP struct {
		Addr string
	}

	// Primary holds the authoritative inventory; Staging is the independently
	// maintained development copy that must be kept in lockstep.
	Primary DatabaseConfig
	Staging DatabaseConfig

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	ERP struct {
		BaseURL  string
		Username string
		Password string
		Source   string
	}

	Watch struct {
		Dir           string
		PollInterval  time.Duration
		QuietPeriod   time.Duration
		ReadyTimeout  time.Duration
		ReprintWindow time.Duration
	}

	Sync struct {
		Interval      time.Duration
		ErrorCooldown time.Duration
		BatchSize     int
	}

	Log struct {
		Level  string
		Format string
	}
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Primary = loadDatabase("DB", "zerodb")
	cfg.Staging = loadDatabase("STAGING_DB", "zerodev")
	// Staging shares the primary's host/credentials unless overridden.
	if os.Getenv("STAGING_DB_HOST") == "" {
		cfg.Staging.Host = cfg.Primary.Host
		cfg.Staging.User = cfg.Primary.User
		cfg.Staging.Password = cfg.Primary.Password
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.ERP.BaseURL = getEnv("ERP_BASE_URL", "https://erp.zerounique.com")
	cfg.ERP.Username = getEnv("ERP_USERNAME", "")
	cfg.ERP.Password = getEnv("ERP_PASSWORD", "")
	cfg.ERP.Source = getEnv("ERP_SOURCE", "zerosync")

	cfg.Watch.Dir = getEnv("WATCH_DIR", "./data")
	cfg.Watch.PollInterval = parseDuration(getEnv("WATCH_POLL_INTERVAL", "2s"), 2*time.Second)
	cfg.Watch.QuietPeriod = parseDuration(getEnv("WATCH_QUIET_PERIOD", "1s"), time.Second)
	cfg.Watch.ReadyTimeout = parseDuration(getEnv("WATCH_READY_TIMEOUT", "10s"), 10*time.Second)
	cfg.Watch.ReprintWindow = parseDuration(getEnv("REPRINT_WINDOW", "30s"), 30*time.Second)

	cfg.Sync.Interval = parseDuration(getEnv("SYNC_INTERVAL", "5m"), 5*time.Minute)
	cfg.Sync.ErrorCooldown = parseDuration(getEnv("SYNC_ERROR_COOLDOWN", "1m"), time.Minute)
	cfg.Sync.BatchSize = parseInt(getEnv("SYNC_BATCH_SIZE", "100"), 100)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func loadDatabase(prefix, defaultName string) DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv(prefix+"_HOST", "localhost"),
		Port:     parseInt(getEnv(prefix+"_PORT", "5432"), 5432),
		User:     getEnv(prefix+"_USER", "zero"),
		Password: getEnv(prefix+"_PASSWORD", "zero"),
		Database: getEnv(prefix+"_NAME", defaultName),
		SSLMode:  getEnv(prefix+"_SSLMODE", "disable"),
		MaxConns: parseInt(getEnv(prefix+"_MAX_CONNS", "10"), 10),
		MaxIdle:  parseInt(getEnv(prefix+"_MAX_IDLE", "5"), 5),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
