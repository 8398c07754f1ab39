package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	SessionSecret string        // secret used to sign session tokens
	SessionTTL    time.Duration // lifetime of a hold session token

	BackendBaseURL  string        // base URL of the booking backend
	BackendAPIKey   string        // optional X-Api-Key for the backend
	BackendTimeout  time.Duration // timeout for lookup and lifecycle calls
	BookingIDPrefix string        // prefix of booking ids we issue, e.g. "BK-"

	HoldStore     string        // "redis" or "memory"
	HoldKeyPrefix string        // Redis key prefix for session hashes
	HoldTTL       time.Duration // idle lifetime of a session hash

	DBUser string // attempt log database user; empty disables the log
	DBPass string
	DBHost string
	DBPort string
	DBName string

	RabbitURL     string        // broker for lifecycle events; empty disables publishing
	LogDir        string        // directory the lifecycle consumer appends to
	SweepInterval time.Duration // abandoned-hold sweeper period; 0 disables it

	LogLevel  string // logrus level name
	LogFormat string // "text" or "json"
}

// Load reads configuration from the environment.  A .env file in the
// working directory is loaded first when present; real environment
// variables win.  Missing required variables terminate the program.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Env:  envStr("APP_ENV", "dev"),
		Port: envStr("APP_PORT", "8080"),

		SessionSecret: must("SESSION_SECRET"),
		SessionTTL:    envDur("SESSION_TTL", 2*time.Hour),

		BackendBaseURL:  must("BACKEND_BASE_URL"),
		BackendAPIKey:   os.Getenv("BACKEND_API_KEY"),
		BackendTimeout:  envDur("BACKEND_TIMEOUT", 10*time.Second),
		BookingIDPrefix: envStr("BOOKING_ID_PREFIX", "BK-"),

		HoldStore:     strings.ToLower(envStr("HOLD_STORE", "redis")),
		HoldKeyPrefix: envStr("HOLD_KEY_PREFIX", "hold"),
		HoldTTL:       envDur("HOLD_TTL", 24*time.Hour),

		DBUser: os.Getenv("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: envStr("DB_HOST", "127.0.0.1"),
		DBPort: envStr("DB_PORT", "3306"),
		DBName: envStr("DB_NAME", "checkout"),

		RabbitURL:     os.Getenv("RABBITMQ_URL"),
		LogDir:        envStr("LIFECYCLE_LOG_DIR", "logs"),
		SweepInterval: envDur("SWEEP_INTERVAL", time.Minute),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),
	}
}

// AttemptLogEnabled reports whether a MySQL attempt log is configured.
func (c Config) AttemptLogEnabled() bool { return c.DBUser != "" }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	switch strings.ToLower(v) {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
