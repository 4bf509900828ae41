package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/types"
)

// MemoryStore implements Store with mutex-guarded maps.
type MemoryStore struct {
	mu         sync.RWMutex
	items      map[string]*types.FeedItem
	deliveries map[string]*types.DeliveryRecord
	failures   map[string]*types.TargetFailure
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]*types.FeedItem),
		deliveries: make(map[string]*types.DeliveryRecord),
		failures:   make(map[string]*types.TargetFailure),
	}
}

func (m *MemoryStore) RegisterIfNew(ctx context.Context, item *types.FeedItem) (bool, error) {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[item.Link]; exists {
		observe("register", start, nil)
		return false, nil
	}
	stored := *item
	m.items[item.Link] = &stored
	observe("register", start, nil)
	return true, nil
}

func (m *MemoryStore) ListPending(ctx context.Context, retryAfter time.Duration, limit int, now time.Time) ([]*types.FeedItem, error) {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []*types.FeedItem
	for _, item := range m.sortedItems() {
		if types.StateOf(item, retryAfter, now) != types.StatePending {
			continue
		}
		pending = append(pending, item)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	observe("list_pending", start, nil)
	return pending, nil
}

func (m *MemoryStore) ListItems(ctx context.Context, limit int) ([]*types.FeedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := m.sortedItems()
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// sortedItems returns copies of all items ordered by discovery time. Callers hold mu.
func (m *MemoryStore) sortedItems() []*types.FeedItem {
	items := make([]*types.FeedItem, 0, len(m.items))
	for _, item := range m.items {
		c := *item
		items = append(items, &c)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].Link < items[j].Link
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func (m *MemoryStore) MarkFailed(ctx context.Context, link string, at time.Time, countAttempt bool) error {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[link]
	if !ok {
		observe("mark_failed", start, ErrNotFound)
		return fmt.Errorf("mark failed %s: %w", link, ErrNotFound)
	}
	item.FailedAt = at
	if countAttempt {
		item.Attempts++
	}
	observe("mark_failed", start, nil)
	return nil
}

func (m *MemoryStore) ClearFailed(ctx context.Context, link string) error {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[link]
	if !ok {
		observe("clear_failed", start, ErrNotFound)
		return fmt.Errorf("clear failed %s: %w", link, ErrNotFound)
	}
	item.FailedAt = time.Time{}
	item.Attempts = 0
	observe("clear_failed", start, nil)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, link string) error {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, link)
	observe("delete", start, nil)
	return nil
}

func (m *MemoryStore) HasDelivery(ctx context.Context, targetURL, slug string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.deliveries[DeliveryKey(targetURL, slug)]
	return ok, nil
}

func (m *MemoryStore) RecordDelivery(ctx context.Context, record *types.DeliveryRecord) error {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *record
	m.deliveries[DeliveryKey(record.TargetURL, record.Slug)] = &stored
	observe("record_delivery", start, nil)
	return nil
}

// Deliveries returns a copy of every delivery record
func (m *MemoryStore) Deliveries() []types.DeliveryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]types.DeliveryRecord, 0, len(m.deliveries))
	for _, r := range m.deliveries {
		records = append(records, *r)
	}
	sort.Slice(records, func(i, j int) bool {
		return DeliveryKey(records[i].TargetURL, records[i].Slug) < DeliveryKey(records[j].TargetURL, records[j].Slug)
	})
	return records
}

func (m *MemoryStore) TargetFailure(ctx context.Context, targetURL string) (*types.TargetFailure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.failures[targetURL]
	if !ok {
		return nil, nil
	}
	c := *f
	return &c, nil
}

func (m *MemoryStore) SetTargetFailure(ctx context.Context, targetURL string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures[targetURL] = &types.TargetFailure{TargetURL: targetURL, FailedAt: at}
	return nil
}

func (m *MemoryStore) ClearTargetFailure(ctx context.Context, targetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.failures, targetURL)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
