/*
Package publisher drives one pending item through extraction and concurrent
delivery to every eligible publish target.

Each target gets its own branch. Branches never return errors, so a failing or
slow target cannot cancel or delay its siblings. The per-target outcomes are
aggregated into the item's next state: delivered items are deleted, fully
failed items get a retry marker and partially delivered items stay pending so
the next cycle retries only the targets still lacking a delivery record.
*/
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/extractor"
	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
	"github.com/Nexora-Open-Source/feed-republisher/sources"
	"github.com/Nexora-Open-Source/feed-republisher/store"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/Nexora-Open-Source/feed-republisher/utils"
	"github.com/Nexora-Open-Source/feed-republisher/wordpress"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Extractor produces a content unit from a source page.
type Extractor interface {
	Extract(ctx context.Context, pageURL string, selectors types.Selectors) (*types.ContentUnit, error)
}

// Client is the subset of the WordPress API used for delivery.
type Client interface {
	ResolveTerm(ctx context.Context, target types.Target, taxonomy, name string) (int, error)
	UploadMedia(ctx context.Context, target types.Target, imageURL string) (int, error)
	CreatePost(ctx context.Context, target types.Target, post *wordpress.Post) (*wordpress.PostResult, error)
}

// Health is the target health registry.
type Health interface {
	EligibleTargets(ctx context.Context, targets []types.Target, now time.Time) []types.Target
	MarkFailed(ctx context.Context, target types.Target, now time.Time) error
	MarkHealthy(ctx context.Context, target types.Target) error
}

// Options tune the publisher.
type Options struct {
	// TargetConcurrency caps concurrent target branches per item; 0 means one goroutine per target.
	TargetConcurrency int
	// MaxItemAttempts abandons an item after that many consecutive full failures; 0 retries forever.
	MaxItemAttempts int
}

// Publisher processes pending items.
type Publisher struct {
	store     store.Store
	extractor Extractor
	client    Client
	health    Health
	opts      Options
	logger    *logrus.Logger
	now       func() time.Time
}

// New creates a publisher.
func New(st store.Store, ex Extractor, client Client, health Health, opts Options, logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Publisher{
		store:     st,
		extractor: ex,
		client:    client,
		health:    health,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the publisher's clock.
func (p *Publisher) SetClock(now func() time.Time) {
	p.now = now
}

// Process runs the full pipeline for item against the configuration snapshot
// and returns the outcome. Every failure is converted into a store update.
func (p *Publisher) Process(ctx context.Context, snapshot *sources.Snapshot, item *types.FeedItem) types.Outcome {
	ctx, span := monitoring.CreateSpan(ctx, "publisher.process")
	defer span.End()
	monitoring.SetSpanAttributes(span, map[string]interface{}{
		"item.link": item.Link,
		"item.slug": item.Slug,
	})

	log := p.logger.WithFields(logrus.Fields{
		"link": item.Link,
		"slug": item.Slug,
	})
	log.Info("Processing pending item")

	outcome := p.process(ctx, snapshot, item, log)
	monitoring.RecordItemOutcome(string(outcome))
	monitoring.SetSpanAttributes(span, map[string]interface{}{"item.outcome": string(outcome)})
	return outcome
}

func (p *Publisher) process(ctx context.Context, snapshot *sources.Snapshot, item *types.FeedItem, log *logrus.Entry) types.Outcome {
	source, ok := snapshot.Source(item.FeedURL)
	if !ok {
		log.WithField("feed_url", item.FeedURL).Error("No configuration found for feed, dropping item")
		return p.apply(ctx, item, types.EventMissingSource, log)
	}

	eligible := p.health.EligibleTargets(ctx, snapshot.Targets(), p.now())
	if len(eligible) == 0 {
		log.Info("All targets failed recently, marking item as failed")
		return p.apply(ctx, item, types.EventTargetsCooling, log)
	}

	unit, err := p.extractor.Extract(ctx, item.Link, source.Selectors())
	if err != nil {
		if extractor.IsPermanent(err) {
			log.WithError(err).Error("Failed to extract title or content, dropping item")
			return p.apply(ctx, item, types.EventExtractionFailed, log)
		}
		log.WithError(err).Warn("Failed to fetch source page, will retry later")
		return p.apply(ctx, item, types.EventFetchFailed, log)
	}

	successes := p.fanOut(ctx, item, unit, source.Defaults(), eligible)

	switch {
	case successes == len(eligible):
		log.WithField("targets", successes).Info("Posted item to all eligible targets")
		return p.apply(ctx, item, types.EventAllDelivered, log)
	case successes == 0:
		log.WithField("targets", len(eligible)).Error("Failed to post item to any target, will retry later")
		return p.apply(ctx, item, types.EventNoneDelivered, log)
	default:
		log.WithFields(logrus.Fields{
			"succeeded": successes,
			"eligible":  len(eligible),
		}).Info("Posted item to some targets, will retry the remaining ones")
		return p.apply(ctx, item, types.EventPartialDelivery, log)
	}
}

// fanOut runs one branch per target and waits for all of them. Each branch
// writes only its own slot of results.
func (p *Publisher) fanOut(ctx context.Context, item *types.FeedItem, unit *types.ContentUnit, defaults types.PostDefaults, targets []types.Target) int {
	results := make([]bool, len(targets))

	var g errgroup.Group
	if p.opts.TargetConcurrency > 0 {
		g.SetLimit(p.opts.TargetConcurrency)
	}
	for i, target := range targets {
		g.Go(func() error {
			results[i] = p.deliver(ctx, item, unit, defaults, target)
			return nil
		})
	}
	_ = g.Wait()

	successes := 0
	for _, ok := range results {
		if ok {
			successes++
		}
	}
	return successes
}

// apply moves item through the state machine and persists the result.
func (p *Publisher) apply(ctx context.Context, item *types.FeedItem, event types.ItemEvent, log *logrus.Entry) types.Outcome {
	next, err := types.Transition(types.StatePending, event)
	if err != nil {
		log.WithError(err).Error("Invalid item transition")
		return types.OutcomeFailed
	}

	// only rejections by every eligible target count against the item
	countAttempt := event == types.EventNoneDelivered
	if next == types.StateCoolingRetry && countAttempt && p.opts.MaxItemAttempts > 0 && item.Attempts+1 >= p.opts.MaxItemAttempts {
		log.WithField("attempts", item.Attempts+1).Error("Item exhausted its attempts, dropping it")
		next = types.StateAbandoned
	}

	switch next {
	case types.StateDelivered:
		if err := p.store.Delete(ctx, item.Link); err != nil {
			log.WithError(err).Error("Failed to delete delivered item")
		}
		return types.OutcomeDelivered
	case types.StateAbandoned:
		if err := p.store.Delete(ctx, item.Link); err != nil {
			log.WithError(err).Error("Failed to delete abandoned item")
		}
		return types.OutcomeAbandoned
	case types.StateCoolingRetry:
		if err := p.store.MarkFailed(ctx, item.Link, p.now(), countAttempt); err != nil {
			log.WithError(err).Error("Failed to mark item as failed")
		}
		return types.OutcomeFailed
	default:
		if !item.FailedAt.IsZero() || item.Attempts > 0 {
			if err := p.store.ClearFailed(ctx, item.Link); err != nil {
				log.WithError(err).Error("Failed to clear retry marker")
			}
		}
		return types.OutcomePartial
	}
}

// deliver publishes unit to one target and reports success. It never returns
// an error: failures put the target into cooldown.
func (p *Publisher) deliver(ctx context.Context, item *types.FeedItem, unit *types.ContentUnit, defaults types.PostDefaults, target types.Target) bool {
	start := time.Now()
	ctx, span := monitoring.CreateSpan(ctx, "publisher.deliver")
	defer span.End()
	monitoring.SetSpanAttributes(span, map[string]interface{}{"target": target.BaseURL})

	log := p.logger.WithFields(logrus.Fields{
		"target": target.BaseURL,
		"slug":   item.Slug,
	})

	status, err := p.attempt(ctx, item, unit, defaults, target, span, log)
	monitoring.RecordPublishAttempt(target.BaseURL, status, time.Since(start).Seconds())
	if err == nil {
		return true
	}

	monitoring.SetSpanError(span, err)
	log.WithError(err).Error("Failed to post to target")

	var lookupErr *deliveryLookupError
	if errors.As(err, &lookupErr) {
		// the target did nothing wrong
		return false
	}
	if markErr := p.health.MarkFailed(ctx, target, p.now()); markErr != nil {
		log.WithError(markErr).Error("Failed to record target failure")
	}
	return false
}

type deliveryLookupError struct{ err error }

func (e *deliveryLookupError) Error() string { return "delivery lookup: " + e.err.Error() }
func (e *deliveryLookupError) Unwrap() error { return e.err }

func (p *Publisher) attempt(ctx context.Context, item *types.FeedItem, unit *types.ContentUnit, defaults types.PostDefaults, target types.Target, span trace.Span, log *logrus.Entry) (string, error) {
	delivered, err := p.store.HasDelivery(ctx, target.BaseURL, item.Slug)
	if err != nil {
		return "store_error", &deliveryLookupError{err: err}
	}
	if delivered {
		log.Info("Already posted to target, skipping")
		return "skipped", nil
	}

	categories, err := p.resolveCategories(ctx, target, defaults, log)
	if err != nil {
		return "category_failed", err
	}

	post := &wordpress.Post{
		Title:      unit.Title,
		Content:    unit.Content,
		Status:     defaults.Status,
		Slug:       utils.PostSlug(item.Slug),
		Categories: categories,
		Tags:       p.resolveTags(ctx, target, defaults.Tags, log),
	}
	if unit.PublishedAt != nil {
		post.DateGMT = wordpress.FormatDate(*unit.PublishedAt)
	}

	if unit.ImageURL != "" {
		mediaID, err := p.client.UploadMedia(ctx, target, unit.ImageURL)
		if err != nil {
			log.WithError(err).WithField("image_url", unit.ImageURL).Warn("Failed to upload featured image, posting without it")
			monitoring.AddSpanEvent(span, "image_upload_failed", map[string]interface{}{"error": err.Error()})
		} else {
			post.FeaturedMedia = mediaID
			log.WithField("media_id", mediaID).Info("Uploaded featured image")
		}
	}

	result, err := p.client.CreatePost(ctx, target, post)
	if err != nil {
		return "failed", err
	}

	record := &types.DeliveryRecord{
		TargetURL: target.BaseURL,
		Slug:      item.Slug,
		PostID:    result.ID,
		PostedAt:  p.now(),
	}
	if err := p.store.RecordDelivery(ctx, record); err != nil {
		// the post exists remotely; a replay may duplicate it
		log.WithError(err).Error("Posted but failed to write delivery record")
	}
	if err := p.health.MarkHealthy(ctx, target); err != nil {
		log.WithError(err).Warn("Failed to clear target failure record")
	}

	log.WithField("post_id", result.ID).Info("Posted to target")
	return "success", nil
}

// resolveCategories returns the ids of the feed's default categories and the
// target's own category. Only the target category is mandatory.
func (p *Publisher) resolveCategories(ctx context.Context, target types.Target, defaults types.PostDefaults, log *logrus.Entry) ([]int, error) {
	ids := make([]int, 0, len(defaults.Categories)+1)
	seen := make(map[int]bool)
	add := func(id int) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, name := range defaults.Categories {
		id, err := p.client.ResolveTerm(ctx, target, wordpress.Categories, name)
		if err != nil {
			log.WithError(err).WithField("category", name).Warn("Skipping default category")
			continue
		}
		add(id)
	}

	id, err := p.client.ResolveTerm(ctx, target, wordpress.Categories, target.Category)
	if err != nil {
		return nil, fmt.Errorf("category %q: %w", target.Category, err)
	}
	add(id)
	return ids, nil
}

func (p *Publisher) resolveTags(ctx context.Context, target types.Target, names []string, log *logrus.Entry) []int {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		id, err := p.client.ResolveTerm(ctx, target, wordpress.Tags, name)
		if err != nil {
			log.WithError(err).WithField("tag", name).Warn("Skipping tag")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
