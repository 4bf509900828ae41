/*
Package config provides configuration management for the feed republisher.

This package separates configuration concerns from business logic and provides
a centralized way to build the document store, the publishing engine and the
other service dependencies from environment variables.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/Nexora-Open-Source/feed-republisher/cache"
	"github.com/Nexora-Open-Source/feed-republisher/container"
	"github.com/Nexora-Open-Source/feed-republisher/engine"
	"github.com/Nexora-Open-Source/feed-republisher/middleware"
	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
	"github.com/Nexora-Open-Source/feed-republisher/sources"
	"github.com/Nexora-Open-Source/feed-republisher/store"
	"github.com/sirupsen/logrus"
)

// Store backends
const (
	StoreBackendDatastore = "datastore"
	StoreBackendMemory    = "memory"
)

// Config holds all application configuration
type Config struct {
	ProjectID    string
	DatabaseID   string
	LogLevel     string
	ServerPort   string
	StoreBackend string
	SourcesFile  string
	// Rate limiting configuration for the admin API
	RateLimitRequestsPerMinute float64
	RateLimitBurst             int
	ClientCleanupInterval      time.Duration
	// Tracing
	JaegerEndpoint string
	// Engine settings
	EngineConfig EngineConfig
}

// EngineConfig holds the polling and publishing settings
type EngineConfig struct {
	PollInterval      time.Duration `json:"poll_interval"`
	ProcessInterval   time.Duration `json:"process_interval"`
	BatchSize         int           `json:"batch_size"`
	RetryWindow       time.Duration `json:"retry_window"`
	TargetCooldown    time.Duration `json:"target_cooldown"`
	PageTimeout       time.Duration `json:"page_timeout"`
	TargetTimeout     time.Duration `json:"target_timeout"`
	FeedTimeout       time.Duration `json:"feed_timeout"`
	TargetConcurrency int           `json:"target_concurrency"`
	FeedRateLimit     float64       `json:"feed_rate_limit"`
	FeedRateBurst     int           `json:"feed_rate_burst"`
	MaxItemAttempts   int           `json:"max_item_attempts"`
	CategoryCacheTTL  time.Duration `json:"category_cache_ttl"`
}

// Services holds all service dependencies
type Services struct {
	Container     *container.Container
	CategoryCache *cache.CategoryCache
	Logger        *logrus.Logger
}

// AppConfig holds both configuration and services
type AppConfig struct {
	Config   *Config
	Services *Services
}

// NewConfig creates a new configuration instance
func NewConfig() *Config {
	return &Config{
		ProjectID:    getEnv("PROJECT_ID", ""),
		DatabaseID:   getEnv("DATASTORE_DATABASE", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreBackendDatastore)),
		SourcesFile:  getEnv("SOURCES_FILE", "config.json"),
		// Admin API rate limiting (60 requests per minute, burst of 10)
		RateLimitRequestsPerMinute: getEnvFloat("RATE_LIMIT_RPM", 60.0),
		RateLimitBurst:             getEnvInt("RATE_LIMIT_BURST", 10),
		ClientCleanupInterval:      getEnvDuration("CLIENT_CLEANUP_INTERVAL", 1*time.Minute),
		JaegerEndpoint:             getEnv("JAEGER_ENDPOINT", ""),
		EngineConfig: EngineConfig{
			PollInterval:      getEnvDuration("POLL_INTERVAL", 10*time.Minute),
			ProcessInterval:   getEnvDuration("PROCESS_INTERVAL", 10*time.Second),
			BatchSize:         getEnvInt("BATCH_SIZE", 10),
			RetryWindow:       getEnvDuration("RETRY_WINDOW", 30*time.Minute),
			TargetCooldown:    getEnvDuration("TARGET_COOLDOWN", 10*time.Minute),
			PageTimeout:       getEnvDuration("PAGE_TIMEOUT", 15*time.Second),
			TargetTimeout:     getEnvDuration("TARGET_TIMEOUT", 20*time.Second),
			FeedTimeout:       getEnvDuration("FEED_TIMEOUT", 20*time.Second),
			TargetConcurrency: getEnvInt("TARGET_CONCURRENCY", 0), // 0 = one goroutine per target
			FeedRateLimit:     getEnvFloat("FEED_RATE_LIMIT", 2.0),
			FeedRateBurst:     getEnvInt("FEED_RATE_BURST", 4),
			MaxItemAttempts:   getEnvInt("MAX_ITEM_ATTEMPTS", 0), // 0 = retry forever
			CategoryCacheTTL:  getEnvDuration("CATEGORY_CACHE_TTL", 30*time.Minute),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendDatastore:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable is required")
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	if c.SourcesFile == "" {
		return fmt.Errorf("SOURCES_FILE environment variable is required")
	}

	e := c.EngineConfig
	if e.PollInterval <= 0 || e.ProcessInterval <= 0 {
		return fmt.Errorf("poll and process intervals must be positive")
	}
	if e.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}
	if e.RetryWindow <= 0 || e.TargetCooldown <= 0 {
		return fmt.Errorf("retry window and target cooldown must be positive")
	}
	if e.PageTimeout <= 0 || e.TargetTimeout <= 0 || e.FeedTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if e.TargetConcurrency < 0 || e.MaxItemAttempts < 0 {
		return fmt.Errorf("TARGET_CONCURRENCY and MAX_ITEM_ATTEMPTS cannot be negative")
	}
	return nil
}

// EngineOptions converts the engine settings into engine options
func (c *Config) EngineOptions() engine.Options {
	e := c.EngineConfig
	return engine.Options{
		BatchSize:         e.BatchSize,
		RetryWindow:       e.RetryWindow,
		TargetCooldown:    e.TargetCooldown,
		PageTimeout:       e.PageTimeout,
		TargetTimeout:     e.TargetTimeout,
		FeedTimeout:       e.FeedTimeout,
		TargetConcurrency: e.TargetConcurrency,
		FeedRateLimit:     e.FeedRateLimit,
		FeedRateBurst:     e.FeedRateBurst,
		MaxItemAttempts:   e.MaxItemAttempts,
	}
}

// NewServices creates and initializes all service dependencies using DI container
func NewServices(config *Config) (*Services, error) {
	logger := middleware.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	var itemStore store.Store
	switch config.StoreBackend {
	case StoreBackendMemory:
		itemStore = store.NewMemoryStore()
		logger.Warn("Using in-memory store, pending items will not survive a restart")
	default:
		ctx := context.Background()
		var (
			client *datastore.Client
			err    error
		)
		if config.DatabaseID != "" {
			client, err = datastore.NewClientWithDatabase(ctx, config.ProjectID, config.DatabaseID)
		} else {
			client, err = datastore.NewClient(ctx, config.ProjectID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create Datastore client: %w", err)
		}
		itemStore = store.NewDatastoreStore(client)
		logger.WithField("project_id", config.ProjectID).Info("Datastore client initialized successfully")
	}

	categoryCache := cache.NewCategoryCache(config.EngineConfig.CategoryCacheTTL)
	alertManager := monitoring.NewAlertManager(logger)
	loader := sources.NewFileLoader(config.SourcesFile)

	diContainer := container.NewContainer()
	if err := diContainer.InitializeServices(container.Dependencies{
		Store:         itemStore,
		CategoryCache: categoryCache,
		Alerts:        alertManager,
		Loader:        loader,
		Logger:        logger,
		Options:       config.EngineOptions(),
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize dependency container: %w", err)
	}

	return &Services{
		Container:     diContainer,
		CategoryCache: categoryCache,
		Logger:        logger,
	}, nil
}

// NewAppConfig creates a new application configuration with all dependencies
func NewAppConfig() (*AppConfig, error) {
	config := NewConfig()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Fail fast on a broken sources file; cycles reload it on every run.
	if _, err := sources.NewFileLoader(config.SourcesFile).Load(); err != nil {
		return nil, fmt.Errorf("sources validation failed: %w", err)
	}

	services, err := NewServices(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &AppConfig{
		Config:   config,
		Services: services,
	}, nil
}

// Close gracefully closes all service connections
func (s *Services) Close() error {
	if s.Container != nil {
		return s.Container.Close()
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float64 with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as time.Duration with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
