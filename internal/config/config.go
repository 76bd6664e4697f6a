package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Load policies for overlapping availability requests.
const (
	LoadPolicyLatestIssued  = "latest-issued"
	LoadPolicyLastCompleted = "last-completed"
)

// Config holds application configuration
type Config struct {
	Port     string `validate:"required,numeric"`
	Env      string `validate:"required"`
	LogLevel string `validate:"oneof=debug info warn warning error"`

	// Booking API
	BookingAPIBaseURL       string        `validate:"required,url"`
	BookingAvailabilityPath string        `validate:"required,startswith=/"`
	BookingSubmitPath       string        `validate:"required,startswith=/"`
	BookingWindowDays       int           `validate:"gte=1,lte=90"`
	BookingTimezone         string        `validate:"required"`
	BookingFeedbackTTL      time.Duration `validate:"gt=0"`
	BookingHTTPTimeout      time.Duration `validate:"gt=0"`
	BookingLoadPolicy       string        `validate:"oneof=latest-issued last-completed"`

	// Session persistence
	SessionStore  string        `validate:"oneof=memory redis"`
	SessionTTL    time.Duration `validate:"gt=0"`
	RedisAddr     string        `validate:"required_if=SessionStore redis"`
	RedisPassword string
	RedisTLS      bool

	// HTTP surface
	CORSAllowedOrigins []string
	RateLimitRPS       float64 `validate:"gt=0"`
	RateLimitBurst     int     `validate:"gte=1"`
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		BookingAPIBaseURL:       strings.TrimRight(getEnv("BOOKING_API_BASE_URL", "http://localhost:3000"), "/"),
		BookingAvailabilityPath: getEnv("BOOKING_AVAILABILITY_PATH", "/api/bookings/availability"),
		BookingSubmitPath:       getEnv("BOOKING_SUBMIT_PATH", "/api/bookings"),
		BookingWindowDays:       getEnvAsInt("BOOKING_WINDOW_DAYS", 35),
		BookingTimezone:         getEnv("BOOKING_TIMEZONE", "America/New_York"),
		BookingFeedbackTTL:      getEnvAsDuration("BOOKING_FEEDBACK_TTL", 6*time.Second),
		BookingHTTPTimeout:      getEnvAsDuration("BOOKING_HTTP_TIMEOUT", 15*time.Second),
		BookingLoadPolicy:       strings.ToLower(getEnv("BOOKING_LOAD_POLICY", LoadPolicyLatestIssued)),

		SessionStore:  strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", "memory"))),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// Validate checks the loaded values and that the booking timezone resolves.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := time.LoadLocation(c.BookingTimezone); err != nil {
		return fmt.Errorf("config: BOOKING_TIMEZONE %q: %w", c.BookingTimezone, err)
	}
	return nil
}

// Location resolves BookingTimezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BookingTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
