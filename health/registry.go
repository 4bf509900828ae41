/*
Package health tracks whether each publish target may receive work.

A target is Active until a delivery to it fails; it is then Cooling for the
cooldown window. Cooling ends on the target's next successful delivery or,
lazily, the first time a caller finds the failure record older than the window.
There are no background timers.
*/
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
	"github.com/Nexora-Open-Source/feed-republisher/store"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/sirupsen/logrus"
)

// DefaultCooldown is how long a failed target is skipped.
const DefaultCooldown = 10 * time.Minute

// State of a target
type State string

const (
	StateActive  State = "active"
	StateCooling State = "cooling"
)

// TargetStatus is the health of one target at a point in time.
type TargetStatus struct {
	BaseURL      string     `json:"base_url"`
	Category     string     `json:"category"`
	State        State      `json:"state"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	CoolingUntil *time.Time `json:"cooling_until,omitempty"`
}

// Registry derives target health from the store's failure records.
type Registry struct {
	store    store.TargetFailureStore
	cooldown time.Duration
	alerts   *monitoring.AlertManager
	logger   *logrus.Logger

	mu      sync.Mutex
	cooling map[string]bool
}

// NewRegistry creates a registry. alerts may be nil.
func NewRegistry(st store.TargetFailureStore, cooldown time.Duration, alerts *monitoring.AlertManager, logger *logrus.Logger) *Registry {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		store:    st,
		cooldown: cooldown,
		alerts:   alerts,
		logger:   logger,
		cooling:  make(map[string]bool),
	}
}

// Cooldown returns the configured cooldown window.
func (r *Registry) Cooldown() time.Duration {
	return r.cooldown
}

// EligibleTargets returns the targets that are not cooling at now, in input order.
// A target whose failure record cannot be read is treated as eligible.
func (r *Registry) EligibleTargets(ctx context.Context, targets []types.Target, now time.Time) []types.Target {
	eligible := make([]types.Target, 0, len(targets))
	for _, target := range targets {
		status, err := r.State(ctx, target, now)
		if err != nil {
			r.logger.WithError(err).WithField("target", target.BaseURL).Warn("Could not read target health, treating target as active")
			eligible = append(eligible, target)
			continue
		}
		r.setCooling(target.BaseURL, status.State == StateCooling)
		if status.State == StateCooling {
			r.logger.WithFields(logrus.Fields{
				"target":        target.BaseURL,
				"cooling_until": status.CoolingUntil.Format(time.RFC3339),
			}).Info("Skipping recently failed target")
			continue
		}
		eligible = append(eligible, target)
	}

	if r.alerts != nil && len(targets) > 0 {
		if len(eligible) == 0 {
			r.alerts.RaiseAlert("targets-exhausted", monitoring.AlertTypeTargetsExhausted, monitoring.SeverityHigh,
				"All publish targets are cooling",
				fmt.Sprintf("%d targets failed within the last %s", len(targets), r.cooldown), nil)
		} else {
			r.alerts.ResolveAlert("targets-exhausted")
		}
	}
	return eligible
}

// State returns the health of target at now. It only reads; the cooling gauge
// and alerts follow EligibleTargets, MarkFailed and MarkHealthy.
func (r *Registry) State(ctx context.Context, target types.Target, now time.Time) (TargetStatus, error) {
	status := TargetStatus{BaseURL: target.BaseURL, Category: target.Category, State: StateActive}

	failure, err := r.store.TargetFailure(ctx, target.BaseURL)
	if err != nil {
		return status, fmt.Errorf("failed to read health of %s: %w", target.BaseURL, err)
	}
	if failure == nil {
		return status, nil
	}

	until := failure.FailedAt.Add(r.cooldown)
	if now.After(until) {
		// lazy expiry, the record stays until the next success
		return status, nil
	}

	failedAt := failure.FailedAt
	status.State = StateCooling
	status.FailedAt = &failedAt
	status.CoolingUntil = &until
	return status, nil
}

// MarkFailed moves target to Cooling from now on.
func (r *Registry) MarkFailed(ctx context.Context, target types.Target, now time.Time) error {
	if err := r.store.SetTargetFailure(ctx, target.BaseURL, now); err != nil {
		return err
	}
	r.setCooling(target.BaseURL, true)
	r.logger.WithFields(logrus.Fields{
		"target":   target.BaseURL,
		"cooldown": r.cooldown.String(),
	}).Warn("Target marked as failed")

	if r.alerts != nil {
		r.alerts.RaiseAlert(alertKey(target), monitoring.AlertTypeTargetCooling, monitoring.SeverityMedium,
			"Publish target is cooling",
			fmt.Sprintf("Delivery to %s failed, skipping it for %s", target.BaseURL, r.cooldown),
			map[string]string{"target": target.BaseURL})
	}
	return nil
}

// MarkHealthy moves target back to Active.
func (r *Registry) MarkHealthy(ctx context.Context, target types.Target) error {
	if err := r.store.ClearTargetFailure(ctx, target.BaseURL); err != nil {
		return err
	}
	r.setCooling(target.BaseURL, false)
	return nil
}

func (r *Registry) setCooling(baseURL string, cooling bool) {
	r.mu.Lock()
	changed := r.cooling[baseURL] != cooling
	if cooling {
		r.cooling[baseURL] = true
	} else {
		delete(r.cooling, baseURL)
	}
	count := len(r.cooling)
	r.mu.Unlock()

	monitoring.UpdateCoolingTargets(count)
	if changed && !cooling && r.alerts != nil {
		r.alerts.ResolveAlert(alertKey(types.Target{BaseURL: baseURL}))
	}
}

func alertKey(target types.Target) string {
	return "target-cooling:" + target.BaseURL
}
