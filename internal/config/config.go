// Package config loads alertwx settings from the environment and exposes
// them behind a reloadable snapshot.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Geographic and phenomenon filters applied by the alert parser façade.
	FilterStates    []string
	TargetPhenomena []string

	// Alert lifecycle.
	DefaultAlertLifetime   time.Duration
	AlertCleanupInterval   time.Duration
	MaxRecentProducts      int
	PersistAlerts          bool
	AlertPersistencePath   string

	// REST polling.
	NWSAPIBaseURL       string
	NWSAPIUserAgent     string
	APIPollInterval     time.Duration
	APIRequestTimeout   time.Duration

	// Geometry resolver.
	ZoneCacheTTL          time.Duration
	ZoneMaxConcurrentFetch int
	GeometryPersistencePath string

	// NWWS-OI XMPP credentials.
	NWWSUsername string
	NWWSPassword string
	NWWSResource string

	// Fan-out broker transport.
	BrokerAddr string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownStr := envOrDefault("SHUTDOWN_TIMEOUT", "10s")
	shutdownTimeout, err := time.ParseDuration(shutdownStr)
	if err != nil || shutdownTimeout <= 0 {
		return nil, errors.New("invalid SHUTDOWN_TIMEOUT")
	}

	lifetimeMinutes, err := envIntOrDefault("DEFAULT_ALERT_LIFETIME_MINUTES", 60)
	if err != nil || lifetimeMinutes <= 0 {
		return nil, errors.New("invalid DEFAULT_ALERT_LIFETIME_MINUTES")
	}

	cleanupSeconds, err := envIntOrDefault("ALERT_CLEANUP_INTERVAL_SECONDS", 60)
	if err != nil || cleanupSeconds <= 0 {
		return nil, errors.New("invalid ALERT_CLEANUP_INTERVAL_SECONDS")
	}

	pollSeconds, err := envIntOrDefault("API_POLL_INTERVAL_SECONDS", 60)
	if err != nil || pollSeconds <= 0 {
		return nil, errors.New("invalid API_POLL_INTERVAL_SECONDS")
	}

	zoneCacheHours, err := envIntOrDefault("ZONE_CACHE_TTL_HOURS", 24)
	if err != nil || zoneCacheHours <= 0 {
		return nil, errors.New("invalid ZONE_CACHE_TTL_HOURS")
	}

	maxRecent, err := envIntOrDefault("MAX_RECENT_PRODUCTS", 50)
	if err != nil || maxRecent <= 0 {
		return nil, errors.New("invalid MAX_RECENT_PRODUCTS")
	}

	maxConcurrentFetch, err := envIntOrDefault("ZONE_MAX_CONCURRENT_FETCH", 10)
	if err != nil || maxConcurrentFetch <= 0 {
		return nil, errors.New("invalid ZONE_MAX_CONCURRENT_FETCH")
	}

	apiTimeout, err := time.ParseDuration(envOrDefault("API_REQUEST_TIMEOUT", "30s"))
	if err != nil || apiTimeout <= 0 {
		return nil, errors.New("invalid API_REQUEST_TIMEOUT")
	}

	persistAlerts := envOrDefault("PERSIST_ALERTS", "true") == "true"

	cfg := &Config{
		FilterStates:    parseList(envOrDefault("FILTER_STATES", "")),
		TargetPhenomena: parseList(envOrDefault("TARGET_PHENOMENA", "TO,SV,FF,SS,SPS")),

		DefaultAlertLifetime: time.Duration(lifetimeMinutes) * time.Minute,
		AlertCleanupInterval: time.Duration(cleanupSeconds) * time.Second,
		MaxRecentProducts:    maxRecent,
		PersistAlerts:        persistAlerts,
		AlertPersistencePath: envOrDefault("ALERT_PERSISTENCE_PATH", "data/alerts.json"),

		NWSAPIBaseURL:     envOrDefault("NWS_API_BASE_URL", "https://api.weather.gov"),
		NWSAPIUserAgent:   envOrDefault("NWS_API_USER_AGENT", "alertwx/1.0 (contact@example.com)"),
		APIPollInterval:   time.Duration(pollSeconds) * time.Second,
		APIRequestTimeout: apiTimeout,

		ZoneCacheTTL:            time.Duration(zoneCacheHours) * time.Hour,
		ZoneMaxConcurrentFetch:  maxConcurrentFetch,
		GeometryPersistencePath: envOrDefault("GEOMETRY_PERSISTENCE_PATH", "data/zone-geometry-cache.json"),

		NWWSUsername: os.Getenv("NWWS_USERNAME"),
		NWWSPassword: os.Getenv("NWWS_PASSWORD"),
		NWWSResource: envOrDefault("NWWS_RESOURCE", "nwws"),

		BrokerAddr: envOrDefault("BROKER_ADDR", ":8090"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.NWWSUsername != "" && cfg.NWWSPassword == "" {
		return nil, errors.New("NWWS_USERNAME is set but NWWS_PASSWORD is not")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}

// Snapshot holds a live, atomically-swappable Config. A reader that calls
// Current() on every operation sees a Reload without restarting; a *Config
// obtained earlier keeps its old values. The service wiring in cmd/alertwxd
// passes fields of the startup Config directly and does not read a Snapshot.
type Snapshot struct {
	ptr atomic.Pointer[Config]
}

// NewSnapshot wraps an initial Config in a Snapshot.
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	s.ptr.Store(cfg)
	return s
}

// Current returns the currently active Config.
func (s *Snapshot) Current() *Config {
	return s.ptr.Load()
}

// Reload loads configuration from the environment again and swaps it in
// atomically. Callers already holding a *Config from Current() keep the old
// values; only subsequent Current() calls observe the update.
func (s *Snapshot) Reload() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	s.ptr.Store(cfg)
	return nil
}
