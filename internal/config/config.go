package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Config captures all tunable parameters of the reservation engine. Values
// come from an optional YAML file, overridden by environment variables, with
// defaults that let a client run without setup.
type Config struct {
	// DatabaseURL enables the Postgres-backed store when set; otherwise the
	// in-memory store is used.
	DatabaseURL string `yaml:"database_url"`
	// RedisURL enables the Redis pub/sub change-feed broker when set.
	RedisURL string `yaml:"redis_url"`
	// FeedURL points at a remote WebSocket change feed when set.
	FeedURL string `yaml:"feed_url"`
	// AuthSecret is the HMAC secret for session token verification.
	AuthSecret string `yaml:"auth_secret"`

	RiderListLimit     int           `yaml:"rider_list_limit"`
	DriverListLimit    int           `yaml:"driver_list_limit"`
	DriverPollInterval time.Duration `yaml:"driver_poll_interval"`
	MinLeadTime        time.Duration `yaml:"min_lead_time"`

	LogLevel string `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		RiderListLimit:     10,
		DriverListLimit:    100,
		DriverPollInterval: 15 * time.Second,
		MinLeadTime:        time.Hour,
		LogLevel:           "info",
	}
}

// Load reads .env (best effort), then the YAML file at path when present,
// then environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	var errs []error

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				errs = append(errs, fmt.Errorf("parse %s: %w", path, err))
			}
		case !os.IsNotExist(err):
			errs = append(errs, err)
		}
	}

	setStringFromEnv(&cfg.DatabaseURL, "DATABASE_URL")
	setStringFromEnv(&cfg.RedisURL, "REDIS_URL")
	setStringFromEnv(&cfg.FeedURL, "FEED_URL")
	cfg.AuthSecret = strings.TrimSpace(envOr("AUTH_HMAC_SECRET", cfg.AuthSecret))

	setIntFromEnv(&cfg.RiderListLimit, "RIDER_LIST_LIMIT", &errs)
	setIntFromEnv(&cfg.DriverListLimit, "DRIVER_LIST_LIMIT", &errs)
	setDurationFromEnv(&cfg.DriverPollInterval, "DRIVER_POLL_INTERVAL", &errs)
	setDurationFromEnv(&cfg.MinLeadTime, "MIN_LEAD_TIME", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.RiderListLimit <= 0 {
		errs = append(errs, fmt.Errorf("RIDER_LIST_LIMIT must be > 0"))
	}
	if cfg.DriverListLimit <= 0 {
		errs = append(errs, fmt.Errorf("DRIVER_LIST_LIMIT must be > 0"))
	}
	if cfg.DriverPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("DRIVER_POLL_INTERVAL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}
