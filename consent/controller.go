// Package consent serves the Kimlik consent, charge-approval and topup
// pages: backend-context fetch, decision form rendering, decision submit,
// and the typed postMessage back to the window that opened the page.
//
// Each page moves through loading → ready → submitting → done. The page
// context is fetched with the signed-in user's access token; an
// unauthenticated fetch redirects to the platform login with a return
// target instead of failing. Decisions are bound to the fetched context by a
// one-shot ticket, so a decision can neither be double-submitted nor carry
// parameters that differ from the ones the context was fetched with.
package consent

import (
	"context"
	"errors"
	"sync"

	"github.com/kimlikaz/connect/api"
)

// State is a page controller's position in its lifecycle.
type State int

const (
	// StateLoading precedes the context fetch.
	StateLoading State = iota
	// StateReady has context and awaits an explicit user decision.
	StateReady
	// StateSubmitting has a decision in flight; further submissions are
	// rejected until it resolves.
	StateSubmitting
	// StateDone is terminal: the decision was accepted.
	StateDone
	// StateFailed is terminal: the context fetch failed. A failed submit
	// is not terminal; the controller returns to StateReady.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotReady reports a submit before the context was loaded, or after
	// the controller finished.
	ErrNotReady = errors.New("consent: controller not ready")

	// ErrSubmitInFlight reports a second submit while one is pending.
	ErrSubmitInFlight = errors.New("consent: decision already submitting")
)

// Controller drives one page flow over a fetched context of type C.
// It is safe for concurrent use; the submit guard is the point.
type Controller[C any] struct {
	mu      sync.Mutex
	state   State
	context C
}

// NewController creates a Controller in StateLoading.
func NewController[C any]() *Controller[C] {
	return &Controller[C]{state: StateLoading}
}

// NewReadyController creates a Controller already holding a fetched context,
// for flows where the fetch happened in an earlier request (the ticket
// redeemed on POST restores the context this way).
func NewReadyController[C any](c C) *Controller[C] {
	return &Controller[C]{state: StateReady, context: c}
}

// State returns the current state.
func (c *Controller[C]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Context returns the fetched context. Valid from StateReady on.
func (c *Controller[C]) Context() C {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.context
}

// Load fetches the page context. api.ErrUnauthenticated passes through
// unchanged (the caller redirects to login, it is not a failure); any other
// error moves the controller to StateFailed.
func (c *Controller[C]) Load(ctx context.Context, fetch func(context.Context) (C, error)) (C, error) {
	c.mu.Lock()
	if c.state != StateLoading {
		c.mu.Unlock()
		var zero C
		return zero, ErrNotReady
	}
	c.mu.Unlock()

	loaded, err := fetch(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if !errors.Is(err, api.ErrUnauthenticated) {
			c.state = StateFailed
		}
		var zero C
		return zero, err
	}
	c.state = StateReady
	c.context = loaded
	return loaded, nil
}

// Submit sends the user's decision. Only one submit may be in flight; a
// concurrent attempt fails with ErrSubmitInFlight without calling send. A
// failed send returns the controller to StateReady so the user can retry
// against the already-fetched context.
func (c *Controller[C]) Submit(ctx context.Context, send func(context.Context) error) error {
	c.mu.Lock()
	switch c.state {
	case StateSubmitting:
		c.mu.Unlock()
		return ErrSubmitInFlight
	case StateReady:
	default:
		c.mu.Unlock()
		return ErrNotReady
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	err := send(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateReady
		return err
	}
	c.state = StateDone
	return nil
}
