package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	PaymobBaseURL       string
	PaymobAPIKey        string
	PaymobSecretKey     string
	PaymobPublicKey     string
	PaymobIntegrationID string
	PaymobHMACSecret    string

	TokenTTL         time.Duration
	WebhookReplayTTL time.Duration
	HTTPTimeout      time.Duration
}

// DefaultBaseURL is the production Paymob acceptance host.
const DefaultBaseURL = "https://accept.paymob.com"

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		PaymobBaseURL:       strings.TrimRight(valueOrDefault(k.String("PAYMOB_BASE_URL"), DefaultBaseURL), "/"),
		PaymobAPIKey:        k.String("PAYMOB_API_KEY"),
		PaymobSecretKey:     k.String("PAYMOB_SECRET_KEY"),
		PaymobPublicKey:     k.String("PAYMOB_PUBLIC_KEY"),
		PaymobIntegrationID: k.String("PAYMOB_INTEGRATION_ID"),
		PaymobHMACSecret:    k.String("PAYMOB_HMAC_SECRET"),

		TokenTTL:         parseDuration(k.String("PAYMOB_TOKEN_TTL"), "55m"),
		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		HTTPTimeout:      parseDuration(k.String("PAYMOB_HTTP_TIMEOUT"), "15s"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	missing := make([]string, 0, 5)
	for _, field := range []struct {
		name  string
		value string
	}{
		{"PAYMOB_API_KEY", c.PaymobAPIKey},
		{"PAYMOB_SECRET_KEY", c.PaymobSecretKey},
		{"PAYMOB_PUBLIC_KEY", c.PaymobPublicKey},
		{"PAYMOB_INTEGRATION_ID", c.PaymobIntegrationID},
		{"PAYMOB_HMAC_SECRET", c.PaymobHMACSecret},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if !strings.HasPrefix(c.PaymobBaseURL, "https://") {
		return errors.New("PAYMOB_BASE_URL must start with https://")
	}
	return nil
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
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
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

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
