package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Nexora-Open-Source/feed-republisher/engine"
	"github.com/Nexora-Open-Source/feed-republisher/middleware"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/sirupsen/logrus"
)

// @Summary Run a poll cycle
// @Description Polls every configured feed now and registers new items.
// @Tags Cycles
// @Produce json
// @Success 200 {object} types.CycleSummary "Cycle summary"
// @Failure 409 {object} middleware.APIError "A poll cycle is already running"
// @Failure 500 {object} middleware.APIError "Cycle failed"
// @Router /cycles/poll [post]
func (h *Handler) HandleRunPollCycle(w http.ResponseWriter, r *http.Request) {
	h.runCycle(w, r, engine.KindPoll, h.Cycles.RunPollCycle)
}

// @Summary Run a process cycle
// @Description Processes one batch of pending items now and waits for every item to finish.
// @Tags Cycles
// @Produce json
// @Success 200 {object} types.CycleSummary "Cycle summary"
// @Failure 409 {object} middleware.APIError "A process cycle is already running"
// @Failure 500 {object} middleware.APIError "Cycle failed"
// @Router /cycles/process [post]
func (h *Handler) HandleRunProcessCycle(w http.ResponseWriter, r *http.Request) {
	h.runCycle(w, r, engine.KindProcess, h.Cycles.RunProcessCycle)
}

// @Summary Last cycle summaries
// @Description Returns the most recent summary of each cycle kind.
// @Tags Cycles
// @Produce json
// @Success 200 {array} types.CycleSummary "Cycle summaries"
// @Router /cycles [get]
func (h *Handler) HandleLastCycles(w http.ResponseWriter, r *http.Request) {
	cycles := h.Cycles.LastCycles()
	if cycles == nil {
		cycles = []types.CycleSummary{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (h *Handler) runCycle(w http.ResponseWriter, r *http.Request, kind string, run func(context.Context) (*types.CycleSummary, error)) {
	requestID := middleware.RequestID(r)
	h.Logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"kind":       kind,
	}).Info("Manual cycle requested")

	// a cycle must not be cut short by the client going away
	summary, err := run(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, engine.ErrCycleRunning):
		middleware.RespondConflict(w, fmt.Errorf("%s cycle: %w", kind, err), requestID)
	case err != nil:
		middleware.RespondInternalError(w, fmt.Errorf("%s cycle: %w", kind, err), requestID)
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}
