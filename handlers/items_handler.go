package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Nexora-Open-Source/feed-republisher/middleware"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/sirupsen/logrus"
)

const (
	defaultItemsLimit = 100
	maxItemsLimit     = 1000
)

// ItemView is a stored item with its derived state
type ItemView struct {
	types.FeedItem
	State types.ItemState `json:"state"`
}

// ItemsResponse lists stored items
type ItemsResponse struct {
	Items []ItemView `json:"items"`
	Count int        `json:"count"`
}

// @Summary List stored feed items
// @Description Returns the items waiting to be republished, oldest first, with their pending or cooling state.
// @Tags Items
// @Produce json
// @Param limit query int false "Number of items to return (default: 100, max: 1000)"
// @Success 200 {object} ItemsResponse "Stored items"
// @Failure 400 {object} middleware.APIError "Bad request"
// @Failure 500 {object} middleware.APIError "Internal server error"
// @Router /items [get]
func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestID(r)

	limit := defaultItemsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			middleware.RespondBadRequest(w, fmt.Errorf("invalid limit parameter %q", raw), requestID)
			return
		}
		limit = min(parsed, maxItemsLimit)
	}

	items, err := h.Items.ListItems(r.Context(), limit)
	if err != nil {
		middleware.RespondInternalError(w, fmt.Errorf("failed to list items: %w", err), requestID)
		return
	}

	retryWindow := h.Cycles.Options().RetryWindow
	now := h.now()
	resp := ItemsResponse{Items: make([]ItemView, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, ItemView{
			FeedItem: *item,
			State:    types.StateOf(item, retryWindow, now),
		})
	}
	resp.Count = len(resp.Items)

	h.Logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"count":      resp.Count,
	}).Debug("Listed stored items")
	writeJSON(w, http.StatusOK, resp)
}
