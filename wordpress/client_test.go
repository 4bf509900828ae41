package wordpress

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/cache"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/Nexora-Open-Source/feed-republisher/wordpress/wptest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(terms cache.TermCache) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(&http.Client{}, 2*time.Second, terms, logger)
}

func TestResolveCategoryFindsExisting(t *testing.T) {
	site := wptest.NewServer()
	defer site.Close()
	site.AddTerm(Categories, "Local News")
	want := site.AddTerm(Categories, "News")

	id, err := newTestClient(nil).ResolveCategory(context.Background(), site.Target("News"), "news")
	require.NoError(t, err)
	assert.Equal(t, want, id)
	assert.Zero(t, site.Requests("POST /wp-json/wp/v2/categories"))
}

func TestResolveCategoryCreatesMissing(t *testing.T) {
	site := wptest.NewServer()
	defer site.Close()

	id, err := newTestClient(nil).ResolveCategory(context.Background(), site.Target("World"), "World")
	require.NoError(t, err)

	created, ok := site.TermID(Categories, "World")
	require.True(t, ok)
	assert.Equal(t, created, id)
	assert.Equal(t, 1, site.Requests("POST /wp-json/wp/v2/categories"))
}

func TestResolveCategoryCreateFailure(t *testing.T) {
	site := wptest.NewServer()
	defer site.Close()
	site.FailCreate("World")

	_, err := newTestClient(nil).ResolveCategory(context.Background(), site.Target("World"), "World")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestResolveTermUsesCache(t *testing.T) {
	site := wptest.NewServer()
	defer site.Close()
	site.AddTerm(Tags, "syndicated")

	client := newTestClient(cache.NewCategoryCache(time.Minute))
	target := site.Target("")

	first, err := client.ResolveTerm(context.Background(), target, Tags, "syndicated")
	require.NoError(t, err)
	second, err := client.ResolveTerm(context.Background(), target, Tags, "syndicated")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, site.Requests("GET /wp-json/wp/v2/tags"))
}

func TestResolveTermNumericName(t *testing.T) {
	id, err := newTestClient(nil).ResolveTerm(context.Background(), types.Target{BaseURL: "http://127.0.0.1:1"}, Tags, "42")
	require.NoError(t, err)
	assert.Equal(t, 42, id)
}

func TestTermExistsRace(t *testing.T) {
	// search misses the term but creation reports it already exists
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"term_exists","message":"exists","data":{"status":400,"term_id":77}}`))
	}))
	defer srv.Close()

	target := types.Target{BaseURL: srv.URL, Username: "u", Password: "p"}
	id, err := newTestClient(nil).ResolveCategory(context.Background(), target, "Sports")
	require.NoError(t, err)
	assert.Equal(t, 77, id)
}

func TestCreatePost(t *testing.T) {
	site := wptest.NewServer()
	defer site.Close()

	result, err := newTestClient(nil).CreatePost(context.Background(), site.Target("World"), &Post{
		Title:      "Big Story",
		Content:    "<p>Body</p>",
		Status:     "publish",
		Slug:       "big-story",
		Categories: []int{3, 4},
		Tags:       []int{},
		DateGMT:    FormatDate(time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))),
	})
	require.NoError(t, err)
	assert.NotZero(t, result.ID)

	posts := site.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "big-story", posts[0].Slug)
	assert.Equal(t, []int{3, 4}, posts[0].Categories)
	assert.Equal(t, "2024-05-01T07:00:00", posts[0].DateGMT)
	assert.Zero(t, posts[0].FeaturedMedia)
}

func TestCreatePostErrors(t *testing.T) {
	site := wptest.NewServer()
	defer site.Close()

	site.FailPosts(true)
	_, err := newTestClient(nil).CreatePost(context.Background(), site.Target(""), &Post{Title: "t"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	site.FailPosts(false)
	site.FailAuth(true)
	_, err = newTestClient(nil).CreatePost(context.Background(), site.Target(""), &Post{Title: "t"})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "rest_not_logged_in", apiErr.Code)
}

func TestCreatePostTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := NewClient(&http.Client{}, 50*time.Millisecond, nil, logger)

	target := types.Target{BaseURL: srv.URL, Username: "u", Password: "p"}
	_, err := client.CreatePost(context.Background(), target, &Post{Title: "t"})
	assert.Error(t, err)
}

func TestUploadMedia(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img/lead.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/render":
			_, _ = w.Write([]byte("jpeg-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer images.Close()

	site := wptest.NewServer()
	defer site.Close()
	client := newTestClient(nil)

	id, err := client.UploadMedia(context.Background(), site.Target(""), images.URL+"/img/lead.png")
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = client.UploadMedia(context.Background(), site.Target(""), images.URL+"/render")
	require.NoError(t, err)

	media := site.Media()
	require.Len(t, media, 2)
	assert.Equal(t, "lead.png", media[0].Filename)
	assert.Equal(t, "image/png", media[0].ContentType)
	assert.Equal(t, len("png-bytes"), media[0].Size)
	assert.Equal(t, "image.jpg", media[1].Filename)

	_, err = client.UploadMedia(context.Background(), site.Target(""), images.URL+"/missing.jpg")
	assert.Error(t, err)

	site.FailMedia(true)
	_, err = client.UploadMedia(context.Background(), site.Target(""), images.URL+"/img/lead.png")
	assert.Error(t, err)
}

func TestUploadMediaRejectsOversizedImage(t *testing.T) {
	defer func(limit int64) { maxImageSize = limit }(maxImageSize)
	maxImageSize = 8

	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte(strings.Repeat("x", 9)))
	}))
	defer images.Close()

	site := wptest.NewServer()
	defer site.Close()

	_, err := newTestClient(nil).UploadMedia(context.Background(), site.Target(""), images.URL+"/big.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "larger than 8 bytes")
	assert.Empty(t, site.Media(), "a truncated image is never uploaded")
}
