/*
Package store is the single source of truth for pending items, delivery
records and target failure records.

Every mutation of persisted item state goes through this package. Two
implementations are provided: DatastoreStore backed by Google Cloud Datastore,
and MemoryStore for tests and single-process runs.
*/
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
	"github.com/Nexora-Open-Source/feed-republisher/types"
)

// Datastore kinds
const (
	KindPendingItem    = "PendingItem"
	KindDeliveryRecord = "DeliveryRecord"
	KindTargetFailure  = "TargetFailure"
)

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = errors.New("store: not found")

// ItemStore manages pending feed items.
type ItemStore interface {
	// RegisterIfNew inserts item unless an item with the same link exists.
	RegisterIfNew(ctx context.Context, item *types.FeedItem) (bool, error)
	// ListPending returns up to limit items without a failure marker or whose
	// marker is older than retryAfter, oldest first.
	ListPending(ctx context.Context, retryAfter time.Duration, limit int, now time.Time) ([]*types.FeedItem, error)
	// ListItems returns up to limit stored items, oldest first.
	ListItems(ctx context.Context, limit int) ([]*types.FeedItem, error)
	// MarkFailed sets the retry marker. countAttempt also increments the
	// attempt counter.
	MarkFailed(ctx context.Context, link string, at time.Time, countAttempt bool) error
	ClearFailed(ctx context.Context, link string) error
	Delete(ctx context.Context, link string) error
}

// DeliveryStore manages delivery records.
type DeliveryStore interface {
	HasDelivery(ctx context.Context, targetURL, slug string) (bool, error)
	RecordDelivery(ctx context.Context, record *types.DeliveryRecord) error
}

// TargetFailureStore manages target failure records.
type TargetFailureStore interface {
	// TargetFailure returns nil when the target has no failure record.
	TargetFailure(ctx context.Context, targetURL string) (*types.TargetFailure, error)
	SetTargetFailure(ctx context.Context, targetURL string, at time.Time) error
	ClearTargetFailure(ctx context.Context, targetURL string) error
}

// Store combines all collections.
type Store interface {
	ItemStore
	DeliveryStore
	TargetFailureStore
	Ping(ctx context.Context) error
	Close() error
}

// DeliveryKey is the identity of a delivery record.
func DeliveryKey(targetURL, slug string) string {
	return targetURL + "|" + slug
}

// observe records the outcome of a store operation.
func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "failed"
	}
	monitoring.RecordStoreOperation(operation, status, time.Since(start).Seconds())
}
