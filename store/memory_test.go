package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newItem(link string, created time.Time) *types.FeedItem {
	return &types.FeedItem{
		Link:      link,
		FeedURL:   "https://src.example/feed",
		Slug:      "slug",
		CreatedAt: created,
	}
}

func TestRegisterIfNew(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.RegisterIfNew(ctx, newItem("https://src.example/a", baseTime))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.RegisterIfNew(ctx, newItem("https://src.example/a", baseTime.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)

	items, err := s.ListItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, baseTime, items[0].CreatedAt)
}

func TestRegisterIfNewConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.RegisterIfNew(ctx, newItem("https://src.example/race", baseTime))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestListPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := baseTime.Add(time.Hour)

	for i := 0; i < 4; i++ {
		_, err := s.RegisterIfNew(ctx, newItem(fmt.Sprintf("https://src.example/%d", i), baseTime.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	// recently failed: not due
	require.NoError(t, s.MarkFailed(ctx, "https://src.example/1", now.Add(-10*time.Minute), true))
	// failed long ago: due again
	require.NoError(t, s.MarkFailed(ctx, "https://src.example/2", now.Add(-31*time.Minute), true))

	pending, err := s.ListPending(ctx, 30*time.Minute, 10, now)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "https://src.example/0", pending[0].Link)
	assert.Equal(t, "https://src.example/2", pending[1].Link)
	assert.Equal(t, "https://src.example/3", pending[2].Link)

	limited, err := s.ListPending(ctx, 30*time.Minute, 2, now)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMarkAndClearFailed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.RegisterIfNew(ctx, newItem("https://src.example/a", baseTime))
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed(ctx, "https://src.example/a", baseTime, true))
	require.NoError(t, s.MarkFailed(ctx, "https://src.example/a", baseTime.Add(time.Minute), true))
	require.NoError(t, s.MarkFailed(ctx, "https://src.example/a", baseTime.Add(2*time.Minute), false))

	items, _ := s.ListItems(ctx, 0)
	assert.Equal(t, 2, items[0].Attempts, "uncounted failures only move the marker")
	assert.Equal(t, baseTime.Add(2*time.Minute), items[0].FailedAt)

	require.NoError(t, s.ClearFailed(ctx, "https://src.example/a"))
	items, _ = s.ListItems(ctx, 0)
	assert.True(t, items[0].FailedAt.IsZero())
	assert.Zero(t, items[0].Attempts)

	err = s.MarkFailed(ctx, "https://src.example/missing", baseTime, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.RegisterIfNew(ctx, newItem("https://src.example/a", baseTime))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "https://src.example/a"))
	require.NoError(t, s.Delete(ctx, "https://src.example/a"))

	items, _ := s.ListItems(ctx, 0)
	assert.Empty(t, items)

	// a deleted link can be registered again
	created, err := s.RegisterIfNew(ctx, newItem("https://src.example/a", baseTime))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestDeliveryRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.HasDelivery(ctx, "https://t1.example", "story")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RecordDelivery(ctx, &types.DeliveryRecord{TargetURL: "https://t1.example", Slug: "story", PostID: 7, PostedAt: baseTime}))
	require.NoError(t, s.RecordDelivery(ctx, &types.DeliveryRecord{TargetURL: "https://t1.example", Slug: "story", PostID: 8, PostedAt: baseTime}))

	ok, err = s.HasDelivery(ctx, "https://t1.example", "story")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.HasDelivery(ctx, "https://t2.example", "story")
	assert.False(t, ok)

	assert.Len(t, s.Deliveries(), 1)
}

func TestTargetFailures(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	f, err := s.TargetFailure(ctx, "https://t1.example")
	require.NoError(t, err)
	assert.Nil(t, f)

	require.NoError(t, s.SetTargetFailure(ctx, "https://t1.example", baseTime))
	f, err = s.TargetFailure(ctx, "https://t1.example")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, baseTime, f.FailedAt)

	require.NoError(t, s.ClearTargetFailure(ctx, "https://t1.example"))
	f, _ = s.TargetFailure(ctx, "https://t1.example")
	assert.Nil(t, f)
}

func TestDeliveryKey(t *testing.T) {
	assert.Equal(t, "https://t1.example|story", DeliveryKey("https://t1.example", "story"))
}
