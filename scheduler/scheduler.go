/*
Package scheduler triggers the engine cycles on fixed intervals.

Two independent cron entries drive feed polling and pending-item processing.
A run that is still in progress when its next tick fires is skipped, and a
panicking run is recovered so the triggers keep firing.
*/
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/engine"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner executes the cycles.
type Runner interface {
	RunPollCycle(ctx context.Context) (*types.CycleSummary, error)
	RunProcessCycle(ctx context.Context) (*types.CycleSummary, error)
}

// Scheduler owns the cron instance.
type Scheduler struct {
	runner          Runner
	cron            *cron.Cron
	pollInterval    time.Duration
	processInterval time.Duration
	logger          *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler for runner.
func New(runner Runner, pollInterval, processInterval time.Duration, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	cronLogger := cron.PrintfLogger(logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner: runner,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		pollInterval:    pollInterval,
		processInterval: processInterval,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start registers both triggers, runs one poll and one process cycle right
// away, then starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(every(s.pollInterval), s.runPoll); err != nil {
		return fmt.Errorf("failed to schedule poll cycle: %w", err)
	}
	if _, err := s.cron.AddFunc(every(s.processInterval), s.runProcess); err != nil {
		return fmt.Errorf("failed to schedule process cycle: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runPoll()
		s.runProcess()
	}()

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"poll_interval":    s.pollInterval.String(),
		"process_interval": s.processInterval.String(),
	}).Info("Scheduler started")
	return nil
}

// Stop stops the triggers and waits for running cycles to finish. Cycles
// already in flight keep their context; only new ticks are skipped.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Entries returns the number of registered triggers.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

func (s *Scheduler) runPoll() {
	s.run(engine.KindPoll, s.runner.RunPollCycle)
}

func (s *Scheduler) runProcess() {
	s.run(engine.KindProcess, s.runner.RunProcessCycle)
}

func (s *Scheduler) run(kind string, cycle func(context.Context) (*types.CycleSummary, error)) {
	if s.ctx.Err() != nil {
		return
	}
	// remote calls carry their own timeouts and are never cancelled
	_, err := cycle(context.WithoutCancel(s.ctx))
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrCycleRunning):
		s.logger.WithField("kind", kind).Debug("Cycle still running, skipping tick")
	default:
		// the engine already logged the failure; the trigger keeps firing
		s.logger.WithField("kind", kind).Debug("Cycle ended with error")
	}
}
