package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string `validate:"required,oneof=development staging production test"`
	HTTPPort    string `validate:"required,numeric"`
	PublicURL   string `validate:"required,url"`
	DatabaseURL string `validate:"required"`
	AdminEmail  string `validate:"omitempty,email"`

	RedisAddr     string `validate:"required"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	OuraClientID     string   `validate:"required"`
	OuraClientSecret string   `validate:"required"`
	OuraRedirectURI  string   `validate:"required,url"`
	OuraAuthURL      string   `validate:"required,url"`
	OuraTokenURL     string   `validate:"required,url"`
	OuraAPIURL       string   `validate:"required,url"`
	OuraScopes       []string `validate:"required,min=1"`

	// TokenCipherKey is the decoded 32-byte key for stored OAuth tokens.
	TokenCipherKey []byte        `validate:"len=32"`
	SessionSecret  string        `validate:"min=32"`
	SessionTTL     time.Duration `validate:"gt=0"`
	CookieSecure   bool

	MetricsCacheTTL time.Duration `validate:"gte=0"`
	SyncInterval    time.Duration `validate:"gte=0"`
	SyncConcurrency int           `validate:"gte=1"`
	UIDir           string

	ServiceName          string `validate:"required"`
	RateLimitRPM         int    `validate:"gte=0"`
	LoginRateLimitRPM    int    `validate:"gte=0"`
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TelemetrySampleRatio float64 `validate:"gte=0,lte=1"`
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	rawKey := strings.TrimSpace(os.Getenv("TOKEN_CIPHER_KEY"))
	if rawKey == "" {
		return Config{}, fmt.Errorf("TOKEN_CIPHER_KEY is required")
	}
	key, err := DecodeKey(rawKey)
	if err != nil {
		return Config{}, fmt.Errorf("TOKEN_CIPHER_KEY: %w", err)
	}

	env := getEnv("APP_ENV", "development")
	cfg := Config{
		Environment:          env,
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		PublicURL:            strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		AdminEmail:           strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		OuraClientID:         strings.TrimSpace(os.Getenv("OURA_CLIENT_ID")),
		OuraClientSecret:     strings.TrimSpace(os.Getenv("OURA_CLIENT_SECRET")),
		OuraRedirectURI:      getEnv("OURA_REDIRECT_URI", "http://localhost:8080/auth/oura/callback"),
		OuraAuthURL:          getEnv("OURA_AUTH_URL", "https://cloud.ouraring.com/oauth/authorize"),
		OuraTokenURL:         getEnv("OURA_TOKEN_URL", "https://api.ouraring.com/oauth/token"),
		OuraAPIURL:           strings.TrimRight(getEnv("OURA_API_URL", "https://api.ouraring.com"), "/"),
		OuraScopes:           getFields("OURA_SCOPES", []string{"email", "personal", "daily"}),
		TokenCipherKey:       key,
		SessionSecret:        os.Getenv("SESSION_SECRET"),
		SessionTTL:           getDuration("SESSION_TTL", 24*time.Hour),
		CookieSecure:         getBool("COOKIE_SECURE", env == "production"),
		MetricsCacheTTL:      getDuration("METRICS_CACHE_TTL", 5*time.Minute),
		SyncInterval:         getDuration("SYNC_INTERVAL", 6*time.Hour),
		SyncConcurrency:      getInt("SYNC_CONCURRENCY", 4),
		UIDir:                getEnv("UI_DIR", "ui/dist"),
		ServiceName:          getEnv("SERVICE_NAME", "sleepboard"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		LoginRateLimitRPM:    getInt("LOGIN_RATE_LIMIT_RPM", 30),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TelemetrySampleRatio: getFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Content-Type", "X-Request-ID"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OuraClientID == "" || cfg.OuraClientSecret == "" {
		return Config{}, fmt.Errorf("OURA_CLIENT_ID and OURA_CLIENT_SECRET are required")
	}
	if cfg.SessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET is required")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints declared on Config.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DecodeKey accepts a base64 key in the standard or URL alphabet, padded or not.
func DecodeKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		key, err := enc.DecodeString(raw)
		if err != nil {
			continue
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
		}
		return key, nil
	}
	return nil, fmt.Errorf("key is not valid base64")
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}

// getFields splits on commas or whitespace; OAuth scopes are usually space separated.
func getFields(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		fields := strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) > 0 {
			return fields
		}
	}
	return def
}
