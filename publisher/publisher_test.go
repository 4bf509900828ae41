package publisher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/cache"
	"github.com/Nexora-Open-Source/feed-republisher/extractor"
	"github.com/Nexora-Open-Source/feed-republisher/health"
	"github.com/Nexora-Open-Source/feed-republisher/sources"
	"github.com/Nexora-Open-Source/feed-republisher/store"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/Nexora-Open-Source/feed-republisher/wordpress"
	"github.com/Nexora-Open-Source/feed-republisher/wordpress/wptest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	feedURL = "https://src.example/feed"

	storyPage = `<html><head></head><body>
<h1>Big Story</h1>
<img class="lead" src="/img/lead.jpg">
<div class="body"><p>Something happened.</p><div class="share-bar">Share</div></div>
</body></html>`
)

type fixture struct {
	t         *testing.T
	now       time.Time
	store     *store.MemoryStore
	registry  *health.Registry
	publisher *Publisher
	sites     []*wptest.Server
	snapshot  *sources.Snapshot
	page      *httptest.Server
	pageHits  atomic.Int32
}

func newFixture(t *testing.T, siteCount int, opts Options) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		t:     t,
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		store: store.NewMemoryStore(),
	}

	f.page = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.pageHits.Add(1)
		switch r.URL.Path {
		case "/a/post-1.html":
			_, _ = w.Write([]byte(storyPage))
		case "/no-title":
			_, _ = w.Write([]byte(`<html><body><div class="body"><p>text</p></div></body></html>`))
		case "/img/lead.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(f.page.Close)

	src := sources.Source{
		RSSURL:                feedURL,
		TitleSelector:         "h1",
		ContentSelector:       "div.body",
		FeaturedImageSelector: "img.lead",
		DefaultCategories:     []string{"News"},
		DefaultTags:           []string{"syndicated"},
	}
	for i := 0; i < siteCount; i++ {
		site := wptest.NewServer()
		t.Cleanup(site.Close)
		f.sites = append(f.sites, site)
		src.Domains = append(src.Domains, sources.Domain{
			BaseURL:             site.URL + "/",
			Username:            wptest.Username,
			ApplicationPassword: wptest.Password,
			Category:            "World",
		})
	}
	snapshot, err := sources.NewSnapshot(&sources.File{Sources: []sources.Source{src}})
	require.NoError(t, err)
	f.snapshot = snapshot

	httpClient := &http.Client{}
	f.registry = health.NewRegistry(f.store, health.DefaultCooldown, nil, logger)
	f.publisher = New(
		f.store,
		extractor.New(httpClient, 2*time.Second, logger),
		wordpress.NewClient(httpClient, 2*time.Second, cache.NewCategoryCache(time.Minute), logger),
		f.registry,
		opts,
		logger,
	)
	f.publisher.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) register(path string) *types.FeedItem {
	f.t.Helper()
	item := &types.FeedItem{
		Link:      f.page.URL + path,
		FeedURL:   feedURL,
		Slug:      "post-1.html",
		CreatedAt: f.now,
	}
	created, err := f.store.RegisterIfNew(context.Background(), item)
	require.NoError(f.t, err)
	require.True(f.t, created)
	return item
}

func (f *fixture) process(item *types.FeedItem) types.Outcome {
	return f.publisher.Process(context.Background(), f.snapshot, item)
}

func (f *fixture) stored() []*types.FeedItem {
	items, err := f.store.ListItems(context.Background(), 0)
	require.NoError(f.t, err)
	return items
}

func (f *fixture) target(i int) types.Target {
	return f.snapshot.Targets()[i]
}

func TestProcessDeliversToAllTargets(t *testing.T) {
	f := newFixture(t, 2, Options{})
	item := f.register("/a/post-1.html")

	assert.Equal(t, types.OutcomeDelivered, f.process(item))
	assert.Empty(t, f.stored())

	for i, site := range f.sites {
		posts := site.Posts()
		require.Len(t, posts, 1, "site %d", i)
		post := posts[0]
		assert.Equal(t, "Big Story", post.Title)
		assert.Equal(t, "post-1", post.Slug)
		assert.Equal(t, "publish", post.Status)
		assert.Contains(t, post.Content, "Something happened.")
		assert.NotContains(t, post.Content, "Share")

		news, _ := site.TermID(wordpress.Categories, "News")
		world, _ := site.TermID(wordpress.Categories, "World")
		assert.Equal(t, []int{news, world}, post.Categories)
		tag, _ := site.TermID(wordpress.Tags, "syndicated")
		assert.Equal(t, []int{tag}, post.Tags)

		require.Len(t, site.Media(), 1)
		assert.Equal(t, site.Media()[0].ID, post.FeaturedMedia)
		assert.Equal(t, "lead.jpg", site.Media()[0].Filename)

		ok, err := f.store.HasDelivery(context.Background(), f.target(i).BaseURL, "post-1.html")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestPartialDeliveryConvergesWithoutDuplicates(t *testing.T) {
	f := newFixture(t, 3, Options{})
	item := f.register("/a/post-1.html")
	f.sites[1].FailPosts(true)
	f.sites[2].FailPosts(true)

	assert.Equal(t, types.OutcomePartial, f.process(item))

	stored := f.stored()
	require.Len(t, stored, 1)
	assert.True(t, stored[0].FailedAt.IsZero(), "partially delivered items stay pending")

	for _, i := range []int{1, 2} {
		failure, err := f.store.TargetFailure(context.Background(), f.target(i).BaseURL)
		require.NoError(t, err)
		require.NotNil(t, failure)
		assert.Equal(t, f.now, failure.FailedAt)
	}

	// both failing targets recover after their cooldown and converge in one cycle
	f.sites[1].FailPosts(false)
	f.sites[2].FailPosts(false)
	f.now = f.now.Add(11 * time.Minute)

	assert.Equal(t, types.OutcomeDelivered, f.process(stored[0]))
	assert.Empty(t, f.stored())
	assert.Len(t, f.sites[0].Posts(), 1, "already delivered target is not posted twice")
	assert.Len(t, f.sites[1].Posts(), 1)
	assert.Len(t, f.sites[2].Posts(), 1)
	assert.Len(t, f.store.Deliveries(), 3)

	for _, i := range []int{1, 2} {
		failure, _ := f.store.TargetFailure(context.Background(), f.target(i).BaseURL)
		assert.Nil(t, failure, "success clears the failure record")
	}
}

func TestPartialDeliveryWhileTargetCools(t *testing.T) {
	f := newFixture(t, 2, Options{})
	item := f.register("/a/post-1.html")
	f.sites[1].FailPosts(true)
	require.Equal(t, types.OutcomePartial, f.process(item))

	// next cycle, target two still cooling: only it is left and it is not eligible
	f.sites[1].FailPosts(false)
	f.now = f.now.Add(10 * time.Second)
	assert.Equal(t, types.OutcomeDelivered, f.process(item))
	assert.Len(t, f.sites[0].Posts(), 1)
	assert.Empty(t, f.sites[1].Posts())
}

func TestNoTargetDeliveredMarksItemFailed(t *testing.T) {
	f := newFixture(t, 2, Options{})
	item := f.register("/a/post-1.html")
	for _, site := range f.sites {
		site.FailPosts(true)
	}

	assert.Equal(t, types.OutcomeFailed, f.process(item))

	stored := f.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, f.now, stored[0].FailedAt)
	assert.Equal(t, 1, stored[0].Attempts)
	assert.Empty(t, f.store.Deliveries())

	pending, err := f.store.ListPending(context.Background(), 30*time.Minute, 10, f.now.Add(29*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, pending)
	pending, err = f.store.ListPending(context.Background(), 30*time.Minute, 10, f.now.Add(31*time.Minute))
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestAllTargetsCoolingSkipsExtraction(t *testing.T) {
	f := newFixture(t, 2, Options{})
	item := f.register("/a/post-1.html")
	for i := range f.sites {
		require.NoError(t, f.store.SetTargetFailure(context.Background(), f.target(i).BaseURL, f.now.Add(-2*time.Minute)))
	}

	assert.Equal(t, types.OutcomeFailed, f.process(item))
	assert.Zero(t, f.pageHits.Load(), "no page fetch when nothing can receive the item")

	stored := f.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, f.now, stored[0].FailedAt)
}

func TestExtractionFailureDropsItem(t *testing.T) {
	f := newFixture(t, 1, Options{})
	item := f.register("/no-title")

	assert.Equal(t, types.OutcomeAbandoned, f.process(item))
	assert.Empty(t, f.stored(), "item is deleted, not marked for retry")
	assert.Empty(t, f.sites[0].Posts())

	failure, _ := f.store.TargetFailure(context.Background(), f.target(0).BaseURL)
	assert.Nil(t, failure)
}

func TestFetchFailureIsRetried(t *testing.T) {
	f := newFixture(t, 1, Options{})
	item := f.register("/unavailable")

	assert.Equal(t, types.OutcomeFailed, f.process(item))
	stored := f.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, f.now, stored[0].FailedAt)
}

func TestMissingSourceDropsItem(t *testing.T) {
	f := newFixture(t, 1, Options{})
	item := f.register("/a/post-1.html")
	item.FeedURL = "https://gone.example/feed"

	assert.Equal(t, types.OutcomeAbandoned, f.process(item))
	assert.Empty(t, f.stored())
	assert.Zero(t, f.pageHits.Load())
}

func TestImageUploadIsBestEffort(t *testing.T) {
	f := newFixture(t, 1, Options{})
	item := f.register("/a/post-1.html")
	f.sites[0].FailMedia(true)

	assert.Equal(t, types.OutcomeDelivered, f.process(item))
	posts := f.sites[0].Posts()
	require.Len(t, posts, 1)
	assert.Zero(t, posts[0].FeaturedMedia)
}

func TestDefaultCategoryFailureIsSkipped(t *testing.T) {
	f := newFixture(t, 1, Options{})
	item := f.register("/a/post-1.html")
	f.sites[0].FailCreate("News")

	assert.Equal(t, types.OutcomeDelivered, f.process(item))
	posts := f.sites[0].Posts()
	require.Len(t, posts, 1)
	world, _ := f.sites[0].TermID(wordpress.Categories, "World")
	assert.Equal(t, []int{world}, posts[0].Categories)
}

func TestTargetCategoryFailureCoolsTarget(t *testing.T) {
	f := newFixture(t, 2, Options{})
	item := f.register("/a/post-1.html")
	f.sites[1].FailCreate("World")

	assert.Equal(t, types.OutcomePartial, f.process(item))
	assert.Empty(t, f.sites[1].Posts())

	failure, _ := f.store.TargetFailure(context.Background(), f.target(1).BaseURL)
	assert.NotNil(t, failure)
}

func TestAlreadyDeliveredTargetIsNotResent(t *testing.T) {
	f := newFixture(t, 2, Options{})
	item := f.register("/a/post-1.html")
	require.NoError(t, f.store.RecordDelivery(context.Background(), &types.DeliveryRecord{
		TargetURL: f.target(0).BaseURL,
		Slug:      "post-1.html",
		PostedAt:  f.now,
	}))

	assert.Equal(t, types.OutcomeDelivered, f.process(item))
	assert.Empty(t, f.sites[0].Posts())
	assert.Len(t, f.sites[1].Posts(), 1)
}

func TestScenarioHealthyAndCoolingTarget(t *testing.T) {
	f := newFixture(t, 2, Options{})
	item := f.register("/a/post-1.html")
	t2 := f.target(1)
	require.NoError(t, f.store.SetTargetFailure(context.Background(), t2.BaseURL, f.now.Add(-2*time.Minute)))

	eligible := f.registry.EligibleTargets(context.Background(), f.snapshot.Targets(), f.now)
	require.Len(t, eligible, 1)
	assert.Equal(t, f.target(0).BaseURL, eligible[0].BaseURL)

	assert.Equal(t, types.OutcomeDelivered, f.process(item))
	assert.Empty(t, f.stored())
	assert.Len(t, f.sites[0].Posts(), 1)
	assert.Empty(t, f.sites[1].Posts(), "cooling target is untouched")

	failure, _ := f.store.TargetFailure(context.Background(), t2.BaseURL)
	require.NotNil(t, failure)
	assert.Equal(t, f.now.Add(-2*time.Minute), failure.FailedAt)
}

func TestMaxItemAttemptsAbandonsItem(t *testing.T) {
	f := newFixture(t, 1, Options{MaxItemAttempts: 2})
	item := f.register("/a/post-1.html")
	f.sites[0].FailPosts(true)

	assert.Equal(t, types.OutcomeFailed, f.process(item))
	stored := f.stored()
	require.Len(t, stored, 1)

	f.now = f.now.Add(31 * time.Minute)
	assert.Equal(t, types.OutcomeAbandoned, f.process(stored[0]))
	assert.Empty(t, f.stored())
}

func TestCoolingTargetsDoNotUseUpAttempts(t *testing.T) {
	f := newFixture(t, 1, Options{MaxItemAttempts: 1})
	item := f.register("/a/post-1.html")
	require.NoError(t, f.store.SetTargetFailure(context.Background(), f.target(0).BaseURL, f.now))

	for i := 0; i < 3; i++ {
		assert.Equal(t, types.OutcomeFailed, f.process(item))
		f.now = f.now.Add(time.Minute)
	}

	stored := f.stored()
	require.Len(t, stored, 1, "item survives an outage of every target")
	assert.Zero(t, stored[0].Attempts)
	assert.False(t, stored[0].FailedAt.IsZero())
}

func TestTargetConcurrencyLimit(t *testing.T) {
	f := newFixture(t, 3, Options{TargetConcurrency: 1})
	item := f.register("/a/post-1.html")

	assert.Equal(t, types.OutcomeDelivered, f.process(item))
	for _, site := range f.sites {
		assert.Len(t, site.Posts(), 1)
	}
}
