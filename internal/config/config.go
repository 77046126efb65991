package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env        string         // application environment (e.g. "dev", "prod")
	Port       string         // HTTP port to listen on
	LogLevel   string         // debug, info, warn or error
	Location   *time.Location // hotel timezone used for calendar-day rules
	DBUser     string         // database username
	DBPass     string         // database password (optional)
	DBHost     string         // database host address
	DBPort     string         // database port number
	DBName     string         // database name
	Migrate    bool           // apply embedded migrations at startup
	JWTSecret  string         // secret used to verify JWTs
	SummaryTTL time.Duration  // lifetime of cached guest summaries
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:        must("APP_ENV"),
		Port:       must("APP_PORT"),
		LogLevel:   strings.ToLower(envStr("LOG_LEVEL", "info")),
		Location:   mustLocation("HOTEL_TZ"),
		DBUser:     must("DB_USER"),
		DBPass:     os.Getenv("DB_PASS"),
		DBHost:     must("DB_HOST"),
		DBPort:     must("DB_PORT"),
		DBName:     must("DB_NAME"),
		Migrate:    envBool("DB_MIGRATE", true),
		JWTSecret:  must("JWT_SECRET"),
		SummaryTTL: envDur("GUEST_SUMMARY_TTL", 5*time.Minute),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustLocation resolves an IANA zone name.  An unset variable means UTC.
func mustLocation(key string) *time.Location {
	name := os.Getenv(key)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Fatalf("invalid timezone for %s: %q", key, name)
	}
	return loc
}
