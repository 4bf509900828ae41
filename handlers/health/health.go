// Package health provides health check handlers for the feed republisher
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/middleware"
	"github.com/sirupsen/logrus"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthStatus represents the health check response structure
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
}

// Pinger checks connectivity of a dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// SourcesChecker loads the sources file
type SourcesChecker interface {
	CheckSources() error
}

// SourcesCheckFunc adapts a function to SourcesChecker
type SourcesCheckFunc func() error

// CheckSources calls f
func (f SourcesCheckFunc) CheckSources() error { return f() }

// Handler contains dependencies for health handlers
type Handler struct {
	Store   Pinger
	Sources SourcesChecker
	Logger  *logrus.Logger
	Timeout time.Duration
}

// NewHandler creates a new health handler. sources may be nil.
func NewHandler(st Pinger, sources SourcesChecker, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		Store:   st,
		Sources: sources,
		Logger:  logger,
		Timeout: 5 * time.Second,
	}
}

// @Summary Health check
// @Description Reports the connectivity of the store and the validity of the sources file.
// @Tags Health
// @Produce json
// @Success 200 {object} HealthStatus
// @Router /health [get]
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(middleware.RequestIDHeader, middleware.RequestID(r))

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   Version,
		Services:  make(map[string]string),
		Uptime:    time.Since(startTime).String(),
	}

	for name, check := range h.checks(r.Context()) {
		if check != nil {
			health.Status = "unhealthy"
			health.Services[name] = "unhealthy: " + check.Error()
			h.Logger.WithFields(logrus.Fields{
				"service": name,
				"error":   check.Error(),
			}).Error("Health check failed")
			continue
		}
		health.Services[name] = "healthy"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// HandleLivenessCheck provides a simple liveness probe
func (h *Handler) HandleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// HandleReadinessCheck provides a readiness probe
func (h *Handler) HandleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestID(r)

	services := make(map[string]string)
	for name, err := range h.checks(r.Context()) {
		if err != nil {
			middleware.RespondServiceUnavailable(w, err, requestID)
			return
		}
		services[name] = "ready"
	}

	response := map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().Format(time.RFC3339),
		"services":  services,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func (h *Handler) checks(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	results := map[string]error{"store": h.Store.Ping(ctx)}
	if h.Sources != nil {
		results["sources"] = h.Sources.CheckSources()
	}
	return results
}

var startTime = time.Now()
