/*
Package engine runs the two periodic cycles of the republisher.

A poll cycle pulls every configured feed into the store. A process cycle takes
a bounded batch of pending items and runs each item's pipeline concurrently,
waiting for all of them before it completes. Both cycles load a fresh,
immutable configuration snapshot and thread it through the calls they make.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
	"github.com/Nexora-Open-Source/feed-republisher/poller"
	"github.com/Nexora-Open-Source/feed-republisher/sources"
	"github.com/Nexora-Open-Source/feed-republisher/store"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/Nexora-Open-Source/feed-republisher/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Cycle kinds
const (
	KindPoll    = "poll"
	KindProcess = "process"
)

// ErrCycleRunning is returned when a cycle of the same kind is already in progress.
var ErrCycleRunning = errors.New("cycle already running")

// Options are the engine settings.
type Options struct {
	BatchSize         int
	RetryWindow       time.Duration
	TargetCooldown    time.Duration
	PageTimeout       time.Duration
	TargetTimeout     time.Duration
	FeedTimeout       time.Duration
	TargetConcurrency int
	FeedRateLimit     float64
	FeedRateBurst     int
	MaxItemAttempts   int
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:      10,
		RetryWindow:    30 * time.Minute,
		TargetCooldown: 10 * time.Minute,
		PageTimeout:    15 * time.Second,
		TargetTimeout:  20 * time.Second,
		FeedTimeout:    20 * time.Second,
		FeedRateLimit:  2,
		FeedRateBurst:  4,
	}
}

// Poller polls feeds.
type Poller interface {
	PollAll(ctx context.Context, srcs []sources.Source) poller.PollSummary
}

// Processor runs the pipeline of one item.
type Processor interface {
	Process(ctx context.Context, snapshot *sources.Snapshot, item *types.FeedItem) types.Outcome
}

// Engine coordinates the cycles.
type Engine struct {
	store     store.ItemStore
	loader    sources.Loader
	poller    Poller
	processor Processor
	opts      Options
	logger    *logrus.Logger
	now       func() time.Time

	pollMu    sync.Mutex
	processMu sync.Mutex

	lastMu sync.RWMutex
	last   map[string]types.CycleSummary
}

// New creates an engine.
func New(st store.ItemStore, loader sources.Loader, p Poller, processor Processor, opts Options, logger *logrus.Logger) *Engine {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.RetryWindow <= 0 {
		opts.RetryWindow = DefaultOptions().RetryWindow
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		store:     st,
		loader:    loader,
		poller:    p,
		processor: processor,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		last:      make(map[string]types.CycleSummary),
	}
}

// SetClock replaces the engine's clock.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Options returns the engine settings.
func (e *Engine) Options() Options {
	return e.opts
}

// Snapshot loads the current configuration.
func (e *Engine) Snapshot() (*sources.Snapshot, error) {
	return e.loader.Load()
}

// RunPollCycle polls every configured feed.
func (e *Engine) RunPollCycle(ctx context.Context) (*types.CycleSummary, error) {
	if !e.pollMu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer e.pollMu.Unlock()

	summary := e.begin(KindPoll)
	ctx, span := monitoring.CreateSpan(ctx, "engine.poll_cycle")
	defer span.End()

	snapshot, err := e.loader.Load()
	if err != nil {
		monitoring.SetSpanError(span, err)
		return e.finish(summary, fmt.Errorf("failed to load sources: %w", err))
	}

	result := e.poller.PollAll(ctx, snapshot.Sources())
	summary.Items = result.NewItems
	summary.FeedErrors = result.FeedErrors
	return e.finish(summary, nil)
}

// RunProcessCycle processes one batch of pending items concurrently and
// waits for every item to finish.
func (e *Engine) RunProcessCycle(ctx context.Context) (*types.CycleSummary, error) {
	if !e.processMu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer e.processMu.Unlock()

	summary := e.begin(KindProcess)
	ctx, span := monitoring.CreateSpan(ctx, "engine.process_cycle")
	defer span.End()

	snapshot, err := e.loader.Load()
	if err != nil {
		monitoring.SetSpanError(span, err)
		return e.finish(summary, fmt.Errorf("failed to load sources: %w", err))
	}

	items, err := e.store.ListPending(ctx, e.opts.RetryWindow, e.opts.BatchSize, e.now())
	if err != nil {
		monitoring.SetSpanError(span, err)
		return e.finish(summary, fmt.Errorf("failed to list pending items: %w", err))
	}
	if len(items) == 0 {
		e.logger.Debug("No pending items found")
		return e.finish(summary, nil)
	}

	outcomes := make([]types.Outcome, len(items))
	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = e.processor.Process(ctx, snapshot, item)
			return nil
		})
	}
	_ = g.Wait()

	summary.Items = len(items)
	for _, o := range outcomes {
		summary.Outcomes[string(o)]++
	}
	return e.finish(summary, nil)
}

func (e *Engine) begin(kind string) *types.CycleSummary {
	return &types.CycleSummary{
		CycleID:   utils.GenerateCycleID(kind),
		Kind:      kind,
		StartedAt: e.now(),
		Outcomes:  make(map[string]int),
	}
}

func (e *Engine) finish(summary *types.CycleSummary, err error) (*types.CycleSummary, error) {
	summary.CompletedAt = e.now()
	summary.DurationMs = summary.CompletedAt.Sub(summary.StartedAt).Milliseconds()
	if err != nil {
		summary.Error = err.Error()
	}

	e.lastMu.Lock()
	e.last[summary.Kind] = *summary
	e.lastMu.Unlock()

	monitoring.RecordCycle(summary.Kind, float64(summary.DurationMs)/1000, summary.Items)

	log := e.logger.WithFields(logrus.Fields{
		"cycle_id":    summary.CycleID,
		"kind":        summary.Kind,
		"items":       summary.Items,
		"duration_ms": summary.DurationMs,
	})
	switch {
	case err != nil:
		log.WithError(err).Error("Cycle failed")
	case summary.Kind == KindPoll:
		log.WithField("feed_errors", summary.FeedErrors).Info("Poll cycle completed")
	case summary.Items > 0:
		log.WithField("outcomes", summary.Outcomes).Info("Process cycle completed")
	}
	return summary, err
}

// LastCycles returns the most recent summary of each cycle kind.
func (e *Engine) LastCycles() []types.CycleSummary {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()

	var cycles []types.CycleSummary
	for _, kind := range []string{KindPoll, KindProcess} {
		if s, ok := e.last[kind]; ok {
			cycles = append(cycles, s)
		}
	}
	return cycles
}
