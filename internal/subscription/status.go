// Package subscription models the user's billing state and decides which
// billing action the primary control should trigger. The state machine owns
// the only in-memory copy of the subscription status; presentation layers
// subscribe to snapshots instead of sharing mutable state.
package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/thenewspaper/newsroom-cli/internal/api"
	"github.com/thenewspaper/newsroom-cli/internal/auth"
)

// Status enumerates the subscription states.
type Status string

const (
	// StatusUnknown is the initial state before any refresh.
	StatusUnknown Status = "unknown"
	// StatusActive means the backend reported a literally "active"
	// subscription. Only this value grants entitlement.
	StatusActive Status = "active"
	// StatusInactive covers every non-active backend answer, including
	// trialing, canceled, past_due and malformed payloads. Fail-closed.
	StatusInactive Status = "inactive"
	// StatusLoggedOut means no usable credential is present.
	StatusLoggedOut Status = "logged_out"
	// StatusError marks a transient failure; tokens are kept so the user
	// can simply retry.
	StatusError Status = "error"
)

// Snapshot is an immutable view of the subscription state.
type Snapshot struct {
	Status Status
	// RenewsAt is set when the backend reports a renewal timestamp for an
	// active subscription.
	RenewsAt *time.Time
	// Email is the logged-in identity, when known.
	Email string
	// Message is a user-facing note, mainly the surfaced error text.
	Message string
}

// Sink receives every state transition. Implementations must not call back
// into the engine.
type Sink interface {
	Publish(Snapshot)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Snapshot)

// Publish implements Sink.
func (f SinkFunc) Publish(s Snapshot) { f(s) }

// Engine fetches and owns the subscription status. Refresh is safe to call
// repeatedly and from concurrent triggers; overlapping calls are coalesced
// into one backend request.
type Engine struct {
	client *api.Client
	store  *auth.TokenStore

	group      singleflight.Group
	refreshing atomic.Bool

	mu       sync.Mutex
	snapshot Snapshot
	sinks    []Sink
}

// NewEngine creates an engine in the unknown state.
func NewEngine(client *api.Client, store *auth.TokenStore) *Engine {
	return &Engine{
		client:   client,
		store:    store,
		snapshot: Snapshot{Status: StatusUnknown},
	}
}

// AddSink registers a subscriber for state transitions.
func (e *Engine) AddSink(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// InFlight reports whether a refresh is currently running. The dispatcher
// uses it to keep a primary action from racing a status transition.
func (e *Engine) InFlight() bool {
	return e.refreshing.Load()
}

// Refresh re-derives the subscription state. Without a valid credential it
// clears the store and lands in logged_out with no network call. Otherwise
// it asks the backend and maps the answer: a literal "active" status grants
// entitlement, anything else is inactive, auth failures clear the store,
// and transient failures land in error while keeping tokens for a retry.
func (e *Engine) Refresh(ctx context.Context) Snapshot {
	result, _, _ := e.group.Do("refresh", func() (any, error) {
		e.refreshing.Store(true)
		defer e.refreshing.Store(false)
		return e.refresh(ctx), nil
	})
	return result.(Snapshot)
}

func (e *Engine) refresh(ctx context.Context) Snapshot {
	if !e.store.IsValid() {
		if err := e.store.Clear(); err != nil {
			log.Warnf("failed to clear stale credentials: %v", err)
		}
		return e.transition(Snapshot{
			Status:  StatusLoggedOut,
			Message: "You must be logged in to view your subscription.",
		})
	}

	email := ""
	if claims := e.store.Claims(); claims != nil {
		email = claims.UserEmail()
	}

	payload, err := e.client.Get(ctx, "/api/subscription-status")
	if err != nil {
		if apiErr, ok := api.AsError(err); ok && apiErr.RequiresLogin() {
			if errClear := e.store.Clear(); errClear != nil {
				log.Warnf("failed to clear rejected credentials: %v", errClear)
			}
			return e.transition(Snapshot{
				Status:  StatusLoggedOut,
				Email:   email,
				Message: "Your login has expired. Please log in again.",
			})
		}
		log.WithField("error", err).Warn("could not load subscription status")
		return e.transition(Snapshot{
			Status:  StatusError,
			Email:   email,
			Message: err.Error(),
		})
	}

	next := Snapshot{Status: StatusInactive, Email: email}
	body := payload.JSON()
	if body.Get("status").String() == "active" {
		next.Status = StatusActive
		if renews := body.Get("renews"); renews.Exists() && renews.Int() > 0 {
			at := time.UnixMilli(renews.Int())
			next.RenewsAt = &at
		}
	}
	return e.transition(next)
}

// transition records the new state and publishes it to every sink.
func (e *Engine) transition(next Snapshot) Snapshot {
	e.mu.Lock()
	e.snapshot = next
	sinks := make([]Sink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.Unlock()

	log.WithField("status", next.Status).Debug("subscription state transition")
	for _, sink := range sinks {
		sink.Publish(next)
	}
	return next
}
