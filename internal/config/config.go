package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/checkout-api/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string

	BasePrice pricing.Money
	Currency  string

	ProviderTimeout time.Duration
	StoreTimeout    time.Duration

	AccountUpdateURL     string
	AccountUpdateToken   string
	AccountUpdateTimeout time.Duration

	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	RateLimitWindow    time.Duration
	RateLimitMax       int

	AdminUser string
	AdminPass string

	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration

	MigrateOnStart bool

	LogFormat        string
	LogLevel         string
	TracingExporter  string
	TracingEndpoint  string
	TracingSampling  float64
	MetricsNamespace string
	PprofEnabled     bool
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	basePrice, err := pricing.ToSubunits(valueOrDefault(k.String("CHECKOUT_BASE_PRICE"), "1499.00"))
	if err != nil {
		return nil, fmt.Errorf("CHECKOUT_BASE_PRICE: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:    strings.TrimSpace(k.String("REDIS_URL")),

		RazorpayKeyID:         strings.TrimSpace(k.String("RAZORPAY_KEY_ID")),
		RazorpayKeySecret:     strings.TrimSpace(k.String("RAZORPAY_KEY_SECRET")),
		RazorpayWebhookSecret: strings.TrimSpace(k.String("RAZORPAY_WEBHOOK_SECRET")),
		RazorpayBaseURL:       strings.TrimRight(valueOrDefault(k.String("RAZORPAY_BASE_URL"), "https://api.razorpay.com"), "/"),

		BasePrice: basePrice,
		Currency:  strings.ToUpper(valueOrDefault(k.String("CHECKOUT_CURRENCY"), "INR")),

		ProviderTimeout: parseDuration(k.String("PROVIDER_TIMEOUT"), "10s"),
		StoreTimeout:    parseDuration(k.String("STORE_TIMEOUT"), "3s"),

		AccountUpdateURL:     strings.TrimSpace(k.String("ACCOUNT_UPDATE_URL")),
		AccountUpdateToken:   strings.TrimSpace(k.String("ACCOUNT_UPDATE_TOKEN")),
		AccountUpdateTimeout: parseDuration(k.String("ACCOUNT_UPDATE_TIMEOUT"), "5s"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:       parseInt(k.String("RATE_LIMIT_MAX"), 30),

		AdminUser: strings.TrimSpace(k.String("ADMIN_BASIC_AUTH_USER")),
		AdminPass: k.String("ADMIN_BASIC_AUTH_PASS"),

		CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 5),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		MigrateOnStart: parseBool(k.String("MIGRATE_ON_START")),

		LogFormat:        valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("LOG_LEVEL"), "info"),
		TracingExporter:  valueOrDefault(k.String("OTEL_EXPORTER"), "none"),
		TracingEndpoint:  strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		TracingSampling:  parseFloat(k.String("OTEL_SAMPLING_RATIO"), 1),
		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "checkout"),
		PprofEnabled:     parseBool(k.String("PPROF_ENABLED")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	required := []struct{ name, value string }{
		{"DATABASE_URL", c.DatabaseURL},
		{"REDIS_URL", c.RedisURL},
		{"RAZORPAY_KEY_ID", c.RazorpayKeyID},
		{"RAZORPAY_KEY_SECRET", c.RazorpayKeySecret},
		{"RAZORPAY_WEBHOOK_SECRET", c.RazorpayWebhookSecret},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}
	if c.BasePrice <= 0 {
		errs = append(errs, errors.New("CHECKOUT_BASE_PRICE must be positive"))
	}
	if (c.AdminUser == "") != (c.AdminPass == "") {
		errs = append(errs, errors.New("ADMIN_BASIC_AUTH_USER and ADMIN_BASIC_AUTH_PASS must be set together"))
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.AppEnv) {
	case "production", "prod":
		return true
	}
	return false
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	d, err := time.ParseDuration(valueOrDefault(value, fallback))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests sets the given variables for the duration of Load and restores them after.
// An empty value unsets the variable.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]*string, len(env))
	for key, value := range env {
		if prev, ok := os.LookupEnv(key); ok {
			original[key] = &prev
		} else {
			original[key] = nil
		}
		if err := setEnvVar(key, value); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]*string) error {
	var errs []error
	for key, value := range values {
		var err error
		if value == nil {
			err = os.Unsetenv(key)
		} else {
			err = os.Setenv(key, *value)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %w", errors.Join(errs...))
	}
	return nil
}
