/*
Package poller pulls the configured syndication feeds and registers every
entry whose canonical link has not been seen before as a pending item.

Feeds are parsed with gofeed. A failing feed is logged and skipped; it never
affects the other feeds or the processing path.
*/
package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
	"github.com/Nexora-Open-Source/feed-republisher/sources"
	"github.com/Nexora-Open-Source/feed-republisher/store"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/Nexora-Open-Source/feed-republisher/utils"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds one feed download.
	DefaultTimeout = 20 * time.Second

	userAgent       = "feed-republisher/1.0 (+https://github.com/Nexora-Open-Source/feed-republisher)"
	feedConcurrency = 4
)

// Options tune the poller.
type Options struct {
	Timeout time.Duration
	// RateLimit caps outbound feed requests per second; 0 disables the limit.
	RateLimit float64
	RateBurst int
}

// PollSummary aggregates one pass over every feed.
type PollSummary struct {
	Feeds      int `json:"feeds"`
	NewItems   int `json:"new_items"`
	FeedErrors int `json:"feed_errors"`
}

// Poller registers new feed entries.
type Poller struct {
	store   store.ItemStore
	parser  *gofeed.Parser
	limiter *rate.Limiter
	timeout time.Duration
	alerts  *monitoring.AlertManager
	logger  *logrus.Logger
	now     func() time.Time
}

// New creates a poller using the shared HTTP client. alerts may be nil.
func New(st store.ItemStore, httpClient *http.Client, opts Options, alerts *monitoring.AlertManager, logger *logrus.Logger) *Poller {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	parser := gofeed.NewParser()
	parser.Client = httpClient
	parser.UserAgent = userAgent

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Poller{
		store:   st,
		parser:  parser,
		limiter: limiter,
		timeout: opts.Timeout,
		alerts:  alerts,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the poller's clock.
func (p *Poller) SetClock(now func() time.Time) {
	p.now = now
}

// Poll fetches one feed and registers its new entries. It returns how many
// items were newly registered; entries already known are ignored.
func (p *Poller) Poll(ctx context.Context, feedURL string) (int, error) {
	start := time.Now()
	feed, err := p.fetch(ctx, feedURL)
	if err != nil {
		monitoring.RecordFeedFetch(feedURL, "error", time.Since(start).Seconds())
		return 0, err
	}
	monitoring.RecordFeedFetch(feedURL, "success", time.Since(start).Seconds())

	registered := 0
	var storeErr error
	for _, entry := range feed.Items {
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			continue
		}

		item := &types.FeedItem{
			Link:      link,
			FeedURL:   feedURL,
			Slug:      utils.SlugFromURL(link),
			CreatedAt: p.now().UTC(),
		}
		created, err := p.store.RegisterIfNew(ctx, item)
		if err != nil {
			p.logger.WithError(err).WithField("link", link).Error("Failed to register feed item")
			storeErr = errors.Join(storeErr, err)
			continue
		}
		if created {
			registered++
			p.logger.WithFields(logrus.Fields{
				"link": link,
				"slug": item.Slug,
			}).Info("Added new pending item")
		}
	}

	monitoring.RecordItemsRegistered(feedURL, registered)
	if storeErr != nil {
		return registered, fmt.Errorf("feed %s: %w", feedURL, storeErr)
	}
	return registered, nil
}

func (p *Poller) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("feed %s: %w", feedURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	feed, err := p.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}
	return feed, nil
}

// PollAll polls every configured feed. Feed errors are logged and counted.
func (p *Poller) PollAll(ctx context.Context, srcs []sources.Source) PollSummary {
	summary := PollSummary{Feeds: len(srcs)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(feedConcurrency)
	for _, src := range srcs {
		feedURL := src.RSSURL
		g.Go(func() error {
			n, err := p.Poll(ctx, feedURL)

			mu.Lock()
			summary.NewItems += n
			if err != nil {
				summary.FeedErrors++
			}
			mu.Unlock()

			p.report(feedURL, n, err)
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

func (p *Poller) report(feedURL string, registered int, err error) {
	log := p.logger.WithField("feed_url", feedURL)
	key := "feed-failure:" + feedURL

	if err != nil {
		log.WithError(err).Error("Failed to poll feed")
		if p.alerts != nil {
			p.alerts.RaiseAlert(key, monitoring.AlertTypeFeedFailure, monitoring.SeverityLow,
				"Feed poll failed", err.Error(), map[string]string{"feed_url": feedURL})
		}
		return
	}

	log.WithField("new_items", registered).Info("Polled feed")
	if p.alerts != nil {
		p.alerts.ResolveAlert(key)
	}
}
