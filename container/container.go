/*
Package container provides dependency injection capabilities for the feed republisher.

This package implements a simple dependency injection container that builds the
publishing pipeline once and hands the shared instances to the scheduler and the
admin API.
*/
package container

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/Nexora-Open-Source/feed-republisher/cache"
	"github.com/Nexora-Open-Source/feed-republisher/engine"
	"github.com/Nexora-Open-Source/feed-republisher/extractor"
	"github.com/Nexora-Open-Source/feed-republisher/handlers"
	"github.com/Nexora-Open-Source/feed-republisher/health"
	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
	"github.com/Nexora-Open-Source/feed-republisher/poller"
	"github.com/Nexora-Open-Source/feed-republisher/publisher"
	"github.com/Nexora-Open-Source/feed-republisher/sources"
	"github.com/Nexora-Open-Source/feed-republisher/store"
	"github.com/Nexora-Open-Source/feed-republisher/wordpress"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Service names
const (
	ServiceLogger   = "logger"
	ServiceStore    = "store"
	ServiceRegistry = "registry"
	ServiceEngine   = "engine"
	ServiceHandler  = "handler"
	ServiceAlerts   = "alerts"
)

// Dependencies are the externally built services the container wires together.
type Dependencies struct {
	Store         store.Store
	CategoryCache *cache.CategoryCache
	Alerts        *monitoring.AlertManager
	Loader        sources.Loader
	Logger        *logrus.Logger
	Options       engine.Options
	// HTTPClient is shared by feeds, pages and targets. Built when nil.
	HTTPClient *http.Client
}

// Container holds all service dependencies
type Container struct {
	mu         sync.RWMutex
	services   map[string]interface{}
	factories  map[string]func() (interface{}, error)
	singletons map[string]interface{}
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		services:   make(map[string]interface{}),
		factories:  make(map[string]func() (interface{}, error)),
		singletons: make(map[string]interface{}),
	}
}

// Register registers a service instance
func (c *Container) Register(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
}

// RegisterFactory registers a factory function for lazy service creation.
// The first successful result is kept as a singleton.
func (c *Container) RegisterFactory(name string, factory func() (interface{}, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

// RegisterSingleton registers a singleton service
func (c *Container) RegisterSingleton(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singletons[name] = service
}

// Get retrieves a service by name
func (c *Container) Get(name string) (interface{}, error) {
	c.mu.RLock()
	if service, exists := c.services[name]; exists {
		c.mu.RUnlock()
		return service, nil
	}
	if singleton, exists := c.singletons[name]; exists {
		c.mu.RUnlock()
		return singleton, nil
	}
	factory, exists := c.factories[name]
	c.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("service %s not found", name)
	}

	service, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create service %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.singletons[name]; ok {
		return existing, nil
	}
	c.singletons[name] = service
	return service, nil
}

// GetLogger retrieves the logger service
func (c *Container) GetLogger() (*logrus.Logger, error) {
	return get[*logrus.Logger](c, ServiceLogger)
}

// GetStore retrieves the store service
func (c *Container) GetStore() (store.Store, error) {
	return get[store.Store](c, ServiceStore)
}

// GetRegistry retrieves the target health registry
func (c *Container) GetRegistry() (*health.Registry, error) {
	return get[*health.Registry](c, ServiceRegistry)
}

// GetEngine retrieves the engine service
func (c *Container) GetEngine() (*engine.Engine, error) {
	return get[*engine.Engine](c, ServiceEngine)
}

// GetAlerts retrieves the alert manager
func (c *Container) GetAlerts() (*monitoring.AlertManager, error) {
	return get[*monitoring.AlertManager](c, ServiceAlerts)
}

// GetHandler retrieves the admin handler service
func (c *Container) GetHandler() (*handlers.Handler, error) {
	return get[*handlers.Handler](c, ServiceHandler)
}

func get[T any](c *Container, name string) (T, error) {
	var zero T
	service, err := c.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("%s service is not of expected type", name)
	}
	return typed, nil
}

// NewHTTPClient returns the client shared by every outbound request.
// Requests are traced; per-request timeouts are applied by the callers.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 10
	return &http.Client{Transport: otelhttp.NewTransport(transport)}
}

// InitializeServices initializes all core services with proper dependencies
func (c *Container) InitializeServices(deps Dependencies) error {
	if deps.Store == nil {
		return fmt.Errorf("store is required")
	}
	if deps.Loader == nil {
		return fmt.Errorf("sources loader is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	terms := deps.CategoryCache
	if terms == nil {
		terms = cache.NewCategoryCache(cache.DefaultTTL)
	}
	opts := deps.Options

	c.RegisterSingleton(ServiceLogger, logger)
	c.RegisterSingleton(ServiceStore, deps.Store)
	if deps.Alerts != nil {
		c.RegisterSingleton(ServiceAlerts, deps.Alerts)
	}

	registry := health.NewRegistry(deps.Store, opts.TargetCooldown, deps.Alerts, logger)
	c.RegisterSingleton(ServiceRegistry, registry)

	c.RegisterFactory(ServiceEngine, func() (interface{}, error) {
		pub := publisher.New(deps.Store,
			extractor.New(httpClient, opts.PageTimeout, logger),
			wordpress.NewClient(httpClient, opts.TargetTimeout, terms, logger),
			registry,
			publisher.Options{
				TargetConcurrency: opts.TargetConcurrency,
				MaxItemAttempts:   opts.MaxItemAttempts,
			},
			logger,
		)
		feeds := poller.New(deps.Store, httpClient, poller.Options{
			Timeout:   opts.FeedTimeout,
			RateLimit: opts.FeedRateLimit,
			RateBurst: opts.FeedRateBurst,
		}, deps.Alerts, logger)
		return engine.New(deps.Store, deps.Loader, feeds, pub, opts, logger), nil
	})

	c.RegisterFactory(ServiceHandler, func() (interface{}, error) {
		eng, err := c.GetEngine()
		if err != nil {
			return nil, err
		}
		return handlers.NewHandler(deps.Store, eng, registry, deps.Alerts, logger), nil
	})

	return nil
}

// Close gracefully closes all service connections
func (c *Container) Close() error {
	st, err := c.GetStore()
	if err != nil || st == nil {
		return nil
	}
	if err := st.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
