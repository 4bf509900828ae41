/*
Package main starts the feed republisher.

The service polls the configured RSS/Atom feeds, stores every new entry as a
pending item, extracts each article from its source page and republishes it
to every configured WordPress site. A site that rejects a post is skipped for a
cooldown window; an item that reaches no site is retried later.

Run the application:

	$ SOURCES_FILE=sources.yaml PROJECT_ID=my-project go run .

Endpoints:
  - GET /health, /health/live, /health/ready: probes.
  - GET /metrics: Prometheus metrics.
  - GET /feeds, /items, /targets, /cycles, /alerts: admin views.
  - POST /cycles/poll, /cycles/process: run a cycle now.
*/
package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/config"
	_ "github.com/Nexora-Open-Source/feed-republisher/docs"
	"github.com/Nexora-Open-Source/feed-republisher/handlers"
	"github.com/Nexora-Open-Source/feed-republisher/handlers/feed"
	healthhandlers "github.com/Nexora-Open-Source/feed-republisher/handlers/health"
	"github.com/Nexora-Open-Source/feed-republisher/middleware"
	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
	"github.com/Nexora-Open-Source/feed-republisher/scheduler"
	"github.com/Nexora-Open-Source/feed-republisher/sources"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"golang.org/x/time/rate"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	clients map[string]*ClientLimiter
	mutex   sync.RWMutex
	rate    rate.Limit
	burst   int
}

// ClientLimiter represents a rate limiter for a specific client
type ClientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*ClientLimiter),
		rate:    r,
		burst:   b,
	}
}

// Allow checks if a client is allowed to make a request
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	client, exists := rl.clients[clientID]
	if !exists {
		client = &ClientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[clientID] = client
	}
	client.lastSeen = time.Now()
	return client.limiter.Allow()
}

// Cleanup removes client entries not seen for maxIdle
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	removed := 0
	for clientID, client := range rl.clients {
		if time.Since(client.lastSeen) > maxIdle {
			delete(rl.clients, clientID)
			removed++
		}
	}
	return removed
}

func main() {
	cfg := config.NewConfig()
	logger := middleware.InitLogger(cfg.LogLevel)
	logger.Info("Starting feed republisher")

	tracerProvider, err := monitoring.InitTracing("feed-republisher", cfg.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer monitoring.ShutdownTracing(tracerProvider)

	appConfig, err := config.NewAppConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application configuration")
	}
	defer appConfig.Services.Close()

	services := appConfig.Services.Container
	eng, err := services.GetEngine()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize engine")
	}
	adminHandler, err := services.GetHandler()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize admin handler")
	}
	st, err := services.GetStore()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize store")
	}
	loader := sources.NewFileLoader(appConfig.Config.SourcesFile)
	healthHandler := healthhandlers.NewHandler(st, healthhandlers.SourcesCheckFunc(func() error {
		_, err := loader.Load()
		return err
	}), logger)
	feedHandler := feed.NewHandler(loader, logger)

	engineCfg := appConfig.Config.EngineConfig
	sched := scheduler.New(eng, engineCfg.PollInterval, engineCfg.ProcessInterval, logger)
	if err := sched.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}

	limiter := NewRateLimiter(rate.Limit(appConfig.Config.RateLimitRequestsPerMinute/60.0), appConfig.Config.RateLimitBurst)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(appConfig.Config.ClientCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(5 * time.Minute)
				appConfig.Services.CategoryCache.Cleanup()
			}
		}
	}()

	server := &http.Server{
		Addr:              ":" + appConfig.Config.ServerPort,
		Handler:           middleware.LoggingMiddleware(newRouter(adminHandler, healthHandler, feedHandler, limiter)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Admin server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Admin server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Admin server shutdown failed")
	}
	sched.Stop()
}

// newRouter registers every admin route
func newRouter(h *handlers.Handler, healthHandler *healthhandlers.Handler, feedHandler *feed.Handler, limiter *RateLimiter) *mux.Router {
	router := mux.NewRouter()

	monitoring.SetupMetricsEndpoint(router)

	// Probes are not rate limited
	router.HandleFunc("/health", healthHandler.HandleHealthCheck).Methods("GET")
	router.HandleFunc("/health/live", healthHandler.HandleLivenessCheck).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.HandleReadinessCheck).Methods("GET")

	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return MonitoringMiddleware(RateLimitMiddleware(limiter, next))
	}
	router.HandleFunc("/feeds", admin(feedHandler.HandleGetFeeds)).Methods("GET")
	router.HandleFunc("/items", admin(h.HandleListItems)).Methods("GET")
	router.HandleFunc("/targets", admin(h.HandleListTargets)).Methods("GET")
	router.HandleFunc("/alerts", admin(h.HandleListAlerts)).Methods("GET")
	router.HandleFunc("/cycles", admin(h.HandleLastCycles)).Methods("GET")
	router.HandleFunc("/cycles/poll", admin(h.HandleRunPollCycle)).Methods("POST")
	router.HandleFunc("/cycles/process", admin(h.HandleRunProcessCycle)).Methods("POST")

	return router
}

// MonitoringMiddleware adds metrics and tracing to HTTP handlers
func MonitoringMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := monitoring.CreateSpan(r.Context(), fmt.Sprintf("%s %s", r.Method, r.URL.Path))
		defer span.End()

		monitoring.SetSpanAttributes(span, map[string]interface{}{
			"http.method":     r.Method,
			"http.url":        r.URL.String(),
			"http.user_agent": r.UserAgent(),
			"remote.addr":     r.RemoteAddr,
		})

		r = r.WithContext(ctx)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		monitoring.RecordHTTPRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", rw.statusCode), duration)

		monitoring.SetSpanAttributes(span, map[string]interface{}{
			"http.status_code": rw.statusCode,
			"duration_seconds": duration,
		})
		if rw.statusCode >= 400 {
			monitoring.SetSpanError(span, fmt.Errorf("HTTP %d", rw.statusCode))
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIdentifier derives a stable client id from the caller's address and user agent
func getClientIdentifier(r *http.Request) string {
	var identifiers []string

	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	} else if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		ip = realIP
	} else if i := strings.LastIndex(ip, ":"); i > 0 {
		ip = ip[:i]
	}
	identifiers = append(identifiers, "ip:"+ip)

	if fields := strings.Fields(strings.ToLower(r.UserAgent())); len(fields) > 0 {
		identifiers = append(identifiers, "ua:"+fields[0])
	}

	hash := sha256.Sum256([]byte(strings.Join(identifiers, "|")))
	return fmt.Sprintf("%x", hash)[:16]
}

// RateLimitMiddleware rejects clients that exceed their request budget
func RateLimitMiddleware(limiter *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(getClientIdentifier(r)) {
			middleware.RespondRateLimited(w, fmt.Errorf("rate limit exceeded"), middleware.RequestID(r))
			return
		}
		next.ServeHTTP(w, r)
	}
}
