package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	// AdminAPIToken lets non-browser callers (CLI tooling) hit the admin
	// endpoints with an Authorization: Bearer header instead of a session
	// cookie. If empty, bearer auth is disabled.
	AdminAPIToken string

	DatabaseURL string

	ListenAddr string

	// ProviderTimeout bounds every outbound call to a fulfillment provider
	// (catalog listing, order submission and status polling).
	ProviderTimeout time.Duration

	// ReconcileInterval is how often the background sweep refreshes
	// non-terminal orders against their providers.
	ReconcileInterval time.Duration

	// KeyRetentionDays is how long soft-deleted keys are kept before the
	// purge worker removes them for good.
	KeyRetentionDays int

	// DefaultValidityDays is used for generated keys when the generation
	// request does not specify a validity window.
	DefaultValidityDays int
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminUser:           getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:       getenv("APP_ADMIN_PASSWORD", "changeme"),
		AdminAPIToken:       getenv("APP_ADMIN_API_TOKEN", ""),
		DatabaseURL:         os.Getenv("APP_DATABASE_URL"),
		ListenAddr:          getenv("APP_LISTEN_ADDR", ":8080"),
		ProviderTimeout:     30 * time.Second,
		ReconcileInterval:   time.Minute,
		KeyRetentionDays:    30,
		DefaultValidityDays: 30,
	}

	if v := getint("APP_PROVIDER_TIMEOUT_SECONDS"); v > 0 {
		cfg.ProviderTimeout = time.Duration(v) * time.Second
	}
	if v := getint("APP_RECONCILE_INTERVAL_SECONDS"); v > 0 {
		cfg.ReconcileInterval = time.Duration(v) * time.Second
	}
	if v := getint("APP_KEY_RETENTION_DAYS"); v > 0 {
		cfg.KeyRetentionDays = v
	}
	if v := getint("APP_DEFAULT_VALIDITY_DAYS"); v > 0 {
		cfg.DefaultValidityDays = v
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
