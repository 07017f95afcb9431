// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all configuration values for the API server and sync engine.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"] (Vite dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// NotionToken is the integration token for the workspace store. Required.
	NotionToken string

	// GoogleClientID, GoogleClientSecret, and GoogleRefreshToken are the
	// OAuth credentials the calendar client authenticates with. Required.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string

	// WorkspacePollInterval is how often the poller reconciles each trip's
	// workspace database. Defaults to 10m.
	WorkspacePollInterval time.Duration

	// TripMarker is the calendar event summary substring that identifies a
	// travel event. Defaults to "出國".
	TripMarker string

	// TimeZone is the IANA zone calendar event times are interpreted in.
	// Defaults to "Asia/Taipei".
	TimeZone string
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		TripMarker:  getEnv("TRIP_MARKER", "出國"),
		TimeZone:    getEnv("TIME_ZONE", "Asia/Taipei"),
	}

	interval, err := time.ParseDuration(getEnv("WORKSPACE_POLL_INTERVAL", "10m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid WORKSPACE_POLL_INTERVAL: %w", err)
	}
	cfg.WorkspacePollInterval = interval

	var missing []string
	for _, v := range []struct {
		key  string
		dest *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"NOTION_TOKEN", &cfg.NotionToken},
		{"GOOGLE_CLIENT_ID", &cfg.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret},
		{"GOOGLE_REFRESH_TOKEN", &cfg.GoogleRefreshToken},
	} {
		*v.dest = os.Getenv(v.key)
		if *v.dest == "" {
			missing = append(missing, v.key)
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
