package store

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmulatorStore connects to the Datastore emulator, skipping the test when
// DATASTORE_EMULATOR_HOST is not set.
func newEmulatorStore(t *testing.T) *DatastoreStore {
	t.Helper()
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	client, err := datastore.NewClient(context.Background(), "feed-republisher-test")
	require.NoError(t, err)
	s := NewDatastoreStore(client)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDatastoreItemLifecycle(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	link := "https://src.example/emulator-" + time.Now().Format("150405.000000000")
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.Ping(ctx))

	created, err := s.RegisterIfNew(ctx, &types.FeedItem{Link: link, FeedURL: "https://src.example/feed", Slug: "x", CreatedAt: now})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.RegisterIfNew(ctx, &types.FeedItem{Link: link, CreatedAt: now})
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, s.MarkFailed(ctx, link, now, true))
	pending, err := s.ListPending(ctx, 30*time.Minute, 0, now.Add(time.Minute))
	require.NoError(t, err)
	for _, item := range pending {
		assert.NotEqual(t, link, item.Link)
	}

	require.NoError(t, s.ClearFailed(ctx, link))
	require.NoError(t, s.Delete(ctx, link))
	assert.ErrorIs(t, s.MarkFailed(ctx, link, now, true), ErrNotFound)
}

func TestDatastoreDeliveryAndFailureRecords(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	site := "https://emulator-" + time.Now().Format("150405.000000000") + ".example"

	ok, err := s.HasDelivery(ctx, site, "story")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RecordDelivery(ctx, &types.DeliveryRecord{TargetURL: site, Slug: "story", PostedAt: time.Now()}))
	ok, err = s.HasDelivery(ctx, site, "story")
	require.NoError(t, err)
	assert.True(t, ok)

	f, err := s.TargetFailure(ctx, site)
	require.NoError(t, err)
	assert.Nil(t, f)

	require.NoError(t, s.SetTargetFailure(ctx, site, time.Now()))
	f, err = s.TargetFailure(ctx, site)
	require.NoError(t, err)
	assert.NotNil(t, f)

	require.NoError(t, s.ClearTargetFailure(ctx, site))
}
