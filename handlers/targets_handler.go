package handlers

import (
	"fmt"
	"net/http"

	"github.com/Nexora-Open-Source/feed-republisher/health"
	"github.com/Nexora-Open-Source/feed-republisher/middleware"
	"github.com/sirupsen/logrus"
)

// TargetView is the health of one configured target
type TargetView struct {
	health.TargetStatus
	Error string `json:"error,omitempty"`
}

// TargetsResponse lists every configured target
type TargetsResponse struct {
	Targets []TargetView `json:"targets"`
	Cooling int          `json:"cooling"`
}

// @Summary List publish targets
// @Description Returns every configured WordPress target with its active or cooling state.
// @Tags Targets
// @Produce json
// @Success 200 {object} TargetsResponse "Target health"
// @Failure 500 {object} middleware.APIError "Sources file could not be loaded"
// @Router /targets [get]
func (h *Handler) HandleListTargets(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestID(r)

	snapshot, err := h.Cycles.Snapshot()
	if err != nil {
		middleware.RespondInternalError(w, fmt.Errorf("failed to load sources: %w", err), requestID)
		return
	}

	now := h.now()
	resp := TargetsResponse{Targets: []TargetView{}}
	for _, target := range snapshot.Targets() {
		status, err := h.Targets.State(r.Context(), target, now)
		view := TargetView{TargetStatus: status}
		if err != nil {
			view.Error = err.Error()
			h.Logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"target":     target.BaseURL,
				"error":      err.Error(),
			}).Warn("Failed to read target health")
		}
		if status.State == health.StateCooling {
			resp.Cooling++
		}
		resp.Targets = append(resp.Targets, view)
	}
	writeJSON(w, http.StatusOK, resp)
}

// @Summary List active alerts
// @Description Returns the alerts raised for cooling targets and failing feeds.
// @Tags Monitoring
// @Produce json
// @Success 200 {array} monitoring.Alert "Active alerts"
// @Router /alerts [get]
func (h *Handler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.Alerts == nil {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	alerts := h.Alerts.GetActiveAlerts()
	if alerts == nil {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}
