// Package feed provides the configured feed listing of the feed republisher
package feed

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Nexora-Open-Source/feed-republisher/middleware"
	"github.com/Nexora-Open-Source/feed-republisher/sources"
	"github.com/sirupsen/logrus"
)

// FeedSource is a configured feed as shown to operators. Credentials are never included.
type FeedSource struct {
	URL               string   `json:"url"`
	TitleSelector     string   `json:"title_selector"`
	ContentSelector   string   `json:"content_selector"`
	DefaultCategories []string `json:"default_categories,omitempty"`
	DefaultTags       []string `json:"default_tags,omitempty"`
	DefaultStatus     string   `json:"default_status"`
	Targets           []string `json:"targets"`
}

// Handler contains dependencies for feed handlers
type Handler struct {
	Loader sources.Loader
	Logger *logrus.Logger
}

// NewHandler creates a new feed handler
func NewHandler(loader sources.Loader, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		Loader: loader,
		Logger: logger,
	}
}

// @Summary List configured feeds
// @Description Returns the feeds of the sources file with their selectors, defaults and target sites.
// @Tags Feeds
// @Produce json
// @Success 200 {array} FeedSource "Configured feeds"
// @Failure 500 {object} middleware.APIError "Sources file could not be loaded"
// @Router /feeds [get]
func (h *Handler) HandleGetFeeds(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestID(r)

	snapshot, err := h.Loader.Load()
	if err != nil {
		h.Logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to load configured feeds")
		middleware.RespondInternalError(w, fmt.Errorf("failed to load sources: %w", err), requestID)
		return
	}

	feeds := make([]FeedSource, 0, len(snapshot.Sources()))
	for _, src := range snapshot.Sources() {
		defaults := src.Defaults()
		feed := FeedSource{
			URL:               src.RSSURL,
			TitleSelector:     src.TitleSelector,
			ContentSelector:   src.ContentSelector,
			DefaultCategories: defaults.Categories,
			DefaultTags:       defaults.Tags,
			DefaultStatus:     defaults.Status,
			Targets:           make([]string, 0, len(src.Domains)),
		}
		for _, d := range src.Domains {
			feed.Targets = append(feed.Targets, d.BaseURL)
		}
		feeds = append(feeds, feed)
	}

	h.Logger.WithFields(logrus.Fields{
		"request_id":  requestID,
		"feeds_count": len(feeds),
	}).Debug("Feed list retrieved")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(feeds)
}
