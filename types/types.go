// Package types contains shared types used across the feed republisher
package types

import (
	"strings"
	"time"
)

// FeedItem is a syndicated entry waiting to be republished.
// The canonical link is its identity in the store.
type FeedItem struct {
	Link      string    `datastore:"link" json:"link"`
	FeedURL   string    `datastore:"feed_url" json:"feed_url"`
	Slug      string    `datastore:"slug,noindex" json:"slug"`
	CreatedAt time.Time `datastore:"created_at" json:"created_at"`
	FailedAt  time.Time `datastore:"failed_at,noindex" json:"failed_at,omitempty"`
	Attempts  int       `datastore:"attempts,noindex" json:"attempts,omitempty"`
}

// ContentUnit is the normalized article extracted from a source page.
// It is produced fresh for every processing attempt and never persisted.
type ContentUnit struct {
	Title       string
	Content     string
	PublishedAt *time.Time
	ImageURL    string
}

// Selectors are the per-feed CSS selectors used by the extractor.
type Selectors struct {
	Title         string
	Content       string
	Time          string
	FeaturedImage string
}

// Target is one remote WordPress site receiving republished posts.
type Target struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"-"`
	Category string `json:"category"`
}

// APIBase returns the base URL without a trailing slash.
func (t Target) APIBase() string {
	return strings.TrimRight(t.BaseURL, "/")
}

// PostDefaults carries the feed-level publishing settings applied to every target.
type PostDefaults struct {
	Categories []string
	Tags       []string
	Status     string
}

// DeliveryRecord proves that a target durably accepted an item.
type DeliveryRecord struct {
	TargetURL string    `datastore:"site_url" json:"site_url"`
	Slug      string    `datastore:"slug" json:"slug"`
	PostID    int       `datastore:"post_id,noindex" json:"post_id,omitempty"`
	PostedAt  time.Time `datastore:"posted_at,noindex" json:"posted_at"`
}

// TargetFailure marks a target as cooling down after a failed delivery.
type TargetFailure struct {
	TargetURL string    `datastore:"site_url" json:"site_url"`
	FailedAt  time.Time `datastore:"failed_at,noindex" json:"failed_at"`
}

// CycleSummary describes one finished poll or process cycle
type CycleSummary struct {
	CycleID     string         `json:"cycle_id"`
	Kind        string         `json:"kind"` // poll, process
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	DurationMs  int64          `json:"duration_ms"`
	Items       int            `json:"items"`
	Outcomes    map[string]int `json:"outcomes,omitempty"`
	FeedErrors  int            `json:"feed_errors,omitempty"`
	Error       string         `json:"error,omitempty"`
}
