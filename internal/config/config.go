package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values used by the backend service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18111".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql. Either supplied directly
	// or constructed from the Supabase* values below.
	DatabaseURL string

	// SupabaseProjectRef is the project reference of the Supabase-managed database.
	SupabaseProjectRef string

	// SupabaseDBPassword is the password of the Supabase database user.
	SupabaseDBPassword string

	// SupabaseDBUser defaults to "postgres".
	SupabaseDBUser string

	// SupabaseDBName defaults to "postgres".
	SupabaseDBName string

	// ConflictRetries is how many times an activation that lost a race is attempted in total.
	ConflictRetries int

	// WorkerConcurrency is the number of job processors.
	WorkerConcurrency int

	// WorkerPollInterval is the wait between polls of an empty job queue.
	WorkerPollInterval time.Duration

	// CORSAllowedOrigins lists the origins the admin UI is served from. Empty disables CORS.
	CORSAllowedOrigins []string

	// ExpirySweepSchedule is the cron expression for the subscription expiry sweep.
	ExpirySweepSchedule string
}

const (
	defaultServerAddress      = ":18111"
	defaultSupabaseDBUser     = "postgres"
	defaultSupabaseDBName     = "postgres"
	defaultConflictRetries    = 3
	defaultWorkerConcurrency  = 2
	defaultWorkerPollInterval = time.Second
	defaultExpirySchedule     = "@hourly"

	envServerAddress      = "BACKEND_ADDR"
	envDatabaseURL        = "DATABASE_URL"
	envSupabaseProjectRef = "SUPABASE_PROJECT_REF"
	envSupabaseDBPassword = "SUPABASE_DB_PASSWORD"
	envSupabaseDBUser     = "SUPABASE_DB_USER"
	envSupabaseDBName     = "SUPABASE_DB_NAME"
	envConflictRetries    = "ACTIVATION_CONFLICT_RETRIES"
	envWorkerConcurrency  = "WORKER_CONCURRENCY"
	envWorkerPollInterval = "WORKER_POLL_INTERVAL"
	envCORSAllowedOrigins = "CORS_ALLOWED_ORIGINS"
	envExpirySchedule     = "EXPIRY_SWEEP_SCHEDULE"
)

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress:       firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		DatabaseURL:         os.Getenv(envDatabaseURL),
		SupabaseProjectRef:  os.Getenv(envSupabaseProjectRef),
		SupabaseDBPassword:  os.Getenv(envSupabaseDBPassword),
		SupabaseDBUser:      firstNonEmpty(os.Getenv(envSupabaseDBUser), defaultSupabaseDBUser),
		SupabaseDBName:      firstNonEmpty(os.Getenv(envSupabaseDBName), defaultSupabaseDBName),
		CORSAllowedOrigins:  splitList(os.Getenv(envCORSAllowedOrigins)),
		ExpirySweepSchedule: firstNonEmpty(os.Getenv(envExpirySchedule), defaultExpirySchedule),
	}

	var err error
	if cfg.ConflictRetries, err = positiveInt(envConflictRetries, defaultConflictRetries); err != nil {
		return Config{}, err
	}
	if cfg.WorkerConcurrency, err = positiveInt(envWorkerConcurrency, defaultWorkerConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.WorkerPollInterval, err = positiveDuration(envWorkerPollInterval, defaultWorkerPollInterval); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" {
		if cfg.SupabaseProjectRef == "" || cfg.SupabaseDBPassword == "" {
			return Config{}, fmt.Errorf("%s is required (or set %s and %s)",
				envDatabaseURL, envSupabaseProjectRef, envSupabaseDBPassword)
		}
		cfg.DatabaseURL = buildSupabaseURL(cfg)
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func positiveInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return value, nil
}

func positiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return value, nil
}

// buildSupabaseURL points at the direct connection host of a Supabase project.
func buildSupabaseURL(cfg Config) string {
	u := &url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(cfg.SupabaseDBUser, cfg.SupabaseDBPassword),
		Host:   fmt.Sprintf("db.%s.supabase.co:5432", cfg.SupabaseProjectRef),
		Path:   "/" + cfg.SupabaseDBName,
	}

	q := u.Query()
	q.Set("sslmode", "require")
	u.RawQuery = q.Encode()

	return u.String()
}
