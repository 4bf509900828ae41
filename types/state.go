package types

import (
	"fmt"
	"time"
)

// ItemState is the lifecycle state of a FeedItem.
type ItemState string

const (
	StatePending      ItemState = "pending"
	StateCoolingRetry ItemState = "cooling_retry"
	StateDelivered    ItemState = "delivered"
	StateAbandoned    ItemState = "abandoned"
)

// ItemEvent drives a transition of the item state machine.
type ItemEvent string

const (
	EventAllDelivered      ItemEvent = "all_delivered"
	EventPartialDelivery   ItemEvent = "partial_delivery"
	EventNoneDelivered     ItemEvent = "none_delivered"
	EventTargetsCooling    ItemEvent = "targets_cooling"
	EventFetchFailed       ItemEvent = "fetch_failed"
	EventExtractionFailed  ItemEvent = "extraction_failed"
	EventMissingSource     ItemEvent = "missing_source"
	EventRetryWindowPassed ItemEvent = "retry_window_passed"
)

type transitionKey struct {
	from  ItemState
	event ItemEvent
}

var transitions = map[transitionKey]ItemState{
	{StatePending, EventAllDelivered}:     StateDelivered,
	{StatePending, EventPartialDelivery}:  StatePending,
	{StatePending, EventNoneDelivered}:    StateCoolingRetry,
	{StatePending, EventTargetsCooling}:   StateCoolingRetry,
	{StatePending, EventFetchFailed}:      StateCoolingRetry,
	{StatePending, EventExtractionFailed}: StateAbandoned,
	{StatePending, EventMissingSource}:    StateAbandoned,

	{StateCoolingRetry, EventRetryWindowPassed}: StatePending,
}

// Transition returns the state reached from `from` on `event`.
func Transition(from ItemState, event ItemEvent) (ItemState, error) {
	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		return from, fmt.Errorf("invalid transition from %s on %s", from, event)
	}
	return to, nil
}

// StateOf derives the state of a stored item at time now.
// Delivered and abandoned items are deleted from the store, so a stored
// item is either pending or cooling.
func StateOf(item *FeedItem, retryWindow time.Duration, now time.Time) ItemState {
	if item.FailedAt.IsZero() {
		return StatePending
	}
	if now.Sub(item.FailedAt) > retryWindow {
		// lazy expiry of the retry marker
		return StatePending
	}
	return StateCoolingRetry
}

// Outcome is the result of processing one item.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomePartial   Outcome = "partially_delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)
