package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	Port      string
	AuthToken string
	LogLevel  string

	FetchTimeout     time.Duration
	MaxResources     int
	FetchConcurrency int

	RateLimit      rate.Limit
	RateLimitBurst int

	// Storage is nil when no bucket is configured.
	Storage *StorageConfig

	CacheDir      string
	CacheMaxAge   time.Duration
	CacheInterval time.Duration

	SentryDSN     string
	Environment   string
	TraceEndpoint string
}

type StorageConfig struct {
	ServiceURL string
	AccessKey  string
	SecretKey  string
	BucketName string
	Region     string
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getenv("PORT", "8080"),
		AuthToken:        os.Getenv("AUTH_TOKEN"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		FetchTimeout:     30 * time.Second,
		MaxResources:     200,
		FetchConcurrency: 8,
		RateLimit:        2,
		RateLimitBurst:   5,
		CacheDir:         getenv("CACHE_DIR", filepath.Join(os.TempDir(), "carbon-cache")),
		CacheMaxAge:      time.Hour,
		CacheInterval:    5 * time.Minute,
		SentryDSN:        os.Getenv("SENTRY_DSN"),
		Environment:      getenv("ENVIRONMENT", "production"),
		TraceEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", cfg.FetchTimeout); err != nil {
		return nil, err
	}
	if cfg.CacheMaxAge, err = durationEnv("CACHE_MAX_AGE", cfg.CacheMaxAge); err != nil {
		return nil, err
	}
	if cfg.CacheInterval, err = durationEnv("CACHE_CLEANUP_INTERVAL", cfg.CacheInterval); err != nil {
		return nil, err
	}
	if cfg.MaxResources, err = intEnv("MAX_RESOURCES", cfg.MaxResources); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency, err = intEnv("FETCH_CONCURRENCY", cfg.FetchConcurrency); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return nil, err
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT %q: must be a positive number", v)
		}
		cfg.RateLimit = rate.Limit(f)
	}

	serviceURL := os.Getenv("S3_SERVICE_URL")
	bucket := os.Getenv("S3_BUCKET_NAME")
	if serviceURL != "" || bucket != "" {
		if bucket == "" {
			bucket = "carbon-results"
		}
		cfg.Storage = &StorageConfig{
			ServiceURL: serviceURL,
			AccessKey:  os.Getenv("S3_ACCESS_KEY"),
			SecretKey:  os.Getenv("S3_SECRET_KEY"),
			BucketName: bucket,
			Region:     getenv("S3_REGION", "us-east-1"),
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, v)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, v)
	}
	return n, nil
}
