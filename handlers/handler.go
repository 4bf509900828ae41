/*
Package handlers provides the admin HTTP API of the feed republisher.

The API exposes the pending items, the health of every publish target and the
last cycle summaries, and lets an operator trigger a poll or process cycle
without waiting for the scheduler.
*/
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/engine"
	"github.com/Nexora-Open-Source/feed-republisher/health"
	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
	"github.com/Nexora-Open-Source/feed-republisher/sources"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/sirupsen/logrus"
)

// ItemReader reads stored items
type ItemReader interface {
	ListItems(ctx context.Context, limit int) ([]*types.FeedItem, error)
}

// CycleRunner runs cycles on demand and reports on past ones
type CycleRunner interface {
	RunPollCycle(ctx context.Context) (*types.CycleSummary, error)
	RunProcessCycle(ctx context.Context) (*types.CycleSummary, error)
	LastCycles() []types.CycleSummary
	Snapshot() (*sources.Snapshot, error)
	Options() engine.Options
}

// TargetHealth reports the health of a target
type TargetHealth interface {
	State(ctx context.Context, target types.Target, now time.Time) (health.TargetStatus, error)
}

// AlertSource lists the active alerts
type AlertSource interface {
	GetActiveAlerts() []*monitoring.Alert
}

// Handler contains all service dependencies for HTTP handlers
type Handler struct {
	Items   ItemReader
	Cycles  CycleRunner
	Targets TargetHealth
	Alerts  AlertSource
	Logger  *logrus.Logger
	now     func() time.Time
}

// NewHandler creates a new handler instance with injected dependencies.
// alerts may be nil.
func NewHandler(items ItemReader, cycles CycleRunner, targets TargetHealth, alerts *monitoring.AlertManager, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	h := &Handler{
		Items:   items,
		Cycles:  cycles,
		Targets: targets,
		Logger:  logger,
		now:     time.Now,
	}
	if alerts != nil {
		h.Alerts = alerts
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
