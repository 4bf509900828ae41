package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"google.golang.org/api/iterator"
)

// DatastoreStore implements Store on Google Cloud Datastore.
//
// Pending items are keyed by link, delivery records by "<site>|<slug>" and
// target failures by site URL, so every uniqueness rule is enforced by the
// entity key itself.
type DatastoreStore struct {
	client *datastore.Client
}

// NewDatastoreStore wraps an existing client.
func NewDatastoreStore(client *datastore.Client) *DatastoreStore {
	return &DatastoreStore{client: client}
}

func itemKey(link string) *datastore.Key {
	return datastore.NameKey(KindPendingItem, link, nil)
}

func deliveryKey(targetURL, slug string) *datastore.Key {
	return datastore.NameKey(KindDeliveryRecord, DeliveryKey(targetURL, slug), nil)
}

func failureKey(targetURL string) *datastore.Key {
	return datastore.NameKey(KindTargetFailure, targetURL, nil)
}

// RegisterIfNew inserts the item inside a transaction so concurrent pollers
// cannot both register the same link.
func (s *DatastoreStore) RegisterIfNew(ctx context.Context, item *types.FeedItem) (bool, error) {
	start := time.Now()
	created := false
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		created = false
		var existing types.FeedItem
		err := tx.Get(itemKey(item.Link), &existing)
		if err == nil {
			return nil
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if _, err := tx.Put(itemKey(item.Link), item); err != nil {
			return err
		}
		created = true
		return nil
	})
	observe("register", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to register %s: %w", item.Link, err)
	}
	return created, nil
}

// ListPending walks items in discovery order and keeps those that are due.
// failed_at is stored noindex and an inequality on it would also have to lead
// the created_at ordering, so the retry marker is checked here. When fewer
// than limit items are due the walk reads the whole kind.
func (s *DatastoreStore) ListPending(ctx context.Context, retryAfter time.Duration, limit int, now time.Time) ([]*types.FeedItem, error) {
	start := time.Now()
	query := datastore.NewQuery(KindPendingItem).Order("created_at")
	it := s.client.Run(ctx, query)

	var pending []*types.FeedItem
	for limit <= 0 || len(pending) < limit {
		var item types.FeedItem
		_, err := it.Next(&item)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			observe("list_pending", start, err)
			return nil, fmt.Errorf("failed to list pending items: %w", err)
		}
		if types.StateOf(&item, retryAfter, now) != types.StatePending {
			continue
		}
		pending = append(pending, &item)
	}
	observe("list_pending", start, nil)
	return pending, nil
}

func (s *DatastoreStore) ListItems(ctx context.Context, limit int) ([]*types.FeedItem, error) {
	start := time.Now()
	query := datastore.NewQuery(KindPendingItem).Order("created_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var items []*types.FeedItem
	_, err := s.client.GetAll(ctx, query, &items)
	observe("list_items", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (s *DatastoreStore) update(ctx context.Context, operation, link string, mutate func(*types.FeedItem)) error {
	start := time.Now()
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var item types.FeedItem
		if err := tx.Get(itemKey(link), &item); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return ErrNotFound
			}
			return err
		}
		mutate(&item)
		_, err := tx.Put(itemKey(link), &item)
		return err
	})
	observe(operation, start, err)
	if err != nil {
		return fmt.Errorf("%s %s: %w", operation, link, err)
	}
	return nil
}

func (s *DatastoreStore) MarkFailed(ctx context.Context, link string, at time.Time, countAttempt bool) error {
	return s.update(ctx, "mark_failed", link, func(item *types.FeedItem) {
		item.FailedAt = at
		if countAttempt {
			item.Attempts++
		}
	})
}

func (s *DatastoreStore) ClearFailed(ctx context.Context, link string) error {
	return s.update(ctx, "clear_failed", link, func(item *types.FeedItem) {
		item.FailedAt = time.Time{}
		item.Attempts = 0
	})
}

func (s *DatastoreStore) Delete(ctx context.Context, link string) error {
	start := time.Now()
	err := s.client.Delete(ctx, itemKey(link))
	observe("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", link, err)
	}
	return nil
}

func (s *DatastoreStore) HasDelivery(ctx context.Context, targetURL, slug string) (bool, error) {
	start := time.Now()
	var record types.DeliveryRecord
	err := s.client.Get(ctx, deliveryKey(targetURL, slug), &record)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		observe("has_delivery", start, nil)
		return false, nil
	}
	observe("has_delivery", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to look up delivery %s: %w", DeliveryKey(targetURL, slug), err)
	}
	return true, nil
}

func (s *DatastoreStore) RecordDelivery(ctx context.Context, record *types.DeliveryRecord) error {
	start := time.Now()
	_, err := s.client.Put(ctx, deliveryKey(record.TargetURL, record.Slug), record)
	observe("record_delivery", start, err)
	if err != nil {
		return fmt.Errorf("failed to record delivery %s: %w", DeliveryKey(record.TargetURL, record.Slug), err)
	}
	return nil
}

func (s *DatastoreStore) TargetFailure(ctx context.Context, targetURL string) (*types.TargetFailure, error) {
	start := time.Now()
	var failure types.TargetFailure
	err := s.client.Get(ctx, failureKey(targetURL), &failure)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		observe("target_failure", start, nil)
		return nil, nil
	}
	observe("target_failure", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read failure record of %s: %w", targetURL, err)
	}
	return &failure, nil
}

func (s *DatastoreStore) SetTargetFailure(ctx context.Context, targetURL string, at time.Time) error {
	start := time.Now()
	_, err := s.client.Put(ctx, failureKey(targetURL), &types.TargetFailure{TargetURL: targetURL, FailedAt: at})
	observe("set_target_failure", start, err)
	if err != nil {
		return fmt.Errorf("failed to mark %s as failed: %w", targetURL, err)
	}
	return nil
}

func (s *DatastoreStore) ClearTargetFailure(ctx context.Context, targetURL string) error {
	start := time.Now()
	err := s.client.Delete(ctx, failureKey(targetURL))
	observe("clear_target_failure", start, err)
	if err != nil {
		return fmt.Errorf("failed to clear failure record of %s: %w", targetURL, err)
	}
	return nil
}

// Ping runs a keys-only query to check connectivity.
func (s *DatastoreStore) Ping(ctx context.Context) error {
	it := s.client.Run(ctx, datastore.NewQuery(KindPendingItem).KeysOnly().Limit(1))
	if _, err := it.Next(nil); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func (s *DatastoreStore) Close() error {
	return s.client.Close()
}
