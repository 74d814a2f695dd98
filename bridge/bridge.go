package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

var (
	// ErrForeignOrigin reports a delivery from any origin other than the
	// configured backend origin. The delivery has no other effect.
	ErrForeignOrigin = errors.New("bridge: message from foreign origin")

	// ErrUnknownFlow reports a delivery whose correlation key matches no
	// pending flow: never started, already resolved, or expired.
	ErrUnknownFlow = errors.New("bridge: no pending flow for message")

	// ErrDuplicateFlow reports a Listen for a key that is already pending.
	ErrDuplicateFlow = errors.New("bridge: flow already pending")

	// ErrWindowClosed resolves a flow whose window the user closed without
	// completing it.
	ErrWindowClosed = errors.New("bridge: window closed before completion")

	// ErrFlowTimeout resolves a flow that outlived the bridge's TTL.
	ErrFlowTimeout = errors.New("bridge: flow timed out")
)

// DefaultFlowTTL bounds how long a flow may stay pending.
const DefaultFlowTTL = 10 * time.Minute

// DefaultPollInterval is how often a pending flow polls its window's closed
// flag.
const DefaultPollInterval = 500 * time.Millisecond

// Result resolves a pending flow: either the typed message from the consent
// window, or the reason no message will come.
type Result struct {
	Message Message
	Err     error
}

// Pending is one registered flow awaiting its result. It owns its window
// watcher; resolution, whatever its cause, happens exactly once and tears
// the watcher down with it.
type Pending struct {
	key    string
	bridge *Bridge
	window Window

	ch   chan Result
	stop chan struct{}
	done atomic.Bool
}

// Done returns the channel carrying the flow's single Result.
func (p *Pending) Done() <-chan Result { return p.ch }

// Cancel resolves the flow as cancelled and releases its watcher. Cancelling
// a resolved flow is a no-op.
func (p *Pending) Cancel() {
	p.resolve(Result{Err: context.Canceled}, false)
}

// resolve delivers res at most once. closeWindow also closes the popup, as
// the listener does after dispatching a message.
//
// The guard is a CAS rather than sync.Once: deleting the cache entry fires
// the eviction hook, which calls back into resolve.
func (p *Pending) resolve(res Result, closeWindow bool) {
	if !p.done.CompareAndSwap(false, true) {
		return
	}
	close(p.stop)
	if closeWindow && p.window != nil {
		p.window.Close()
	}
	p.ch <- res
	p.bridge.pending.Delete(p.key)
}

// watch polls the window's closed flag. Cross-origin windows expose no close
// event, so polling is the only primitive available.
func (p *Pending) watch(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			if !p.window.Closed() {
				continue
			}
			// The window may have posted its result and closed itself;
			// postMessage is unordered relative to close detection. Give a
			// late message one more interval; if it lands, it wins.
			select {
			case <-p.stop:
				return
			case <-time.After(interval):
			}
			p.resolve(Result{Err: ErrWindowClosed}, false)
			return
		}
	}
}

// Bridge correlates consent-window messages with pending flows.
type Bridge struct {
	origin   string
	ttl      time.Duration
	interval time.Duration
	pending  *cache.Cache
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithFlowTTL overrides the pending-flow TTL.
func WithFlowTTL(d time.Duration) Option {
	return func(b *Bridge) { b.ttl = d }
}

// WithPollInterval overrides the window poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bridge) { b.interval = d }
}

// New creates a Bridge accepting messages from exactly origin
// (scheme://host, no trailing slash), typically flow.Client.Origin().
func New(origin string, opts ...Option) *Bridge {
	b := &Bridge{
		origin:   origin,
		ttl:      DefaultFlowTTL,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.pending = cache.New(b.ttl, b.ttl/2)
	b.pending.OnEvicted(func(_ string, v any) {
		if p, ok := v.(*Pending); ok {
			p.resolve(Result{Err: ErrFlowTimeout}, true)
		}
	})
	return b
}

// Listen registers a flow under key (the OAuth state, or the charge ID) and
// returns its Pending handle.
//
// window, when non-nil, is the popup presenting the flow; a watcher polls
// its closed flag and resolves the flow as ErrWindowClosed if the user
// abandons it. Cancelling ctx resolves the flow with ctx.Err(). Every
// registered listener is torn down when the flow resolves, whatever the
// path.
func (b *Bridge) Listen(ctx context.Context, key string, window Window) (*Pending, error) {
	if key == "" {
		return nil, errors.New("bridge: empty correlation key")
	}
	p := &Pending{
		key:    key,
		bridge: b,
		window: window,
		ch:     make(chan Result, 1),
		stop:   make(chan struct{}),
	}
	if err := b.pending.Add(key, p, b.ttl); err != nil {
		return nil, ErrDuplicateFlow
	}
	if window != nil {
		go p.watch(b.interval)
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				p.resolve(Result{Err: ctx.Err()}, true)
			case <-p.stop:
			}
		}()
	}
	return p, nil
}

// Deliver routes a raw message received from origin.
//
// A foreign origin is rejected before the payload is even decoded and
// produces no state change. A valid message resolves its pending flow
// exactly once and closes the flow's window; once resolved, the key is
// forgotten, so a duplicate delivery fails with ErrUnknownFlow.
func (b *Bridge) Deliver(origin string, raw []byte) error {
	if origin != b.origin {
		return ErrForeignOrigin
	}
	m, err := DecodeMessage(raw)
	if err != nil {
		return err
	}
	return b.dispatch(m)
}

// DeliverMessage is Deliver for an already-decoded message.
func (b *Bridge) DeliverMessage(origin string, m Message) error {
	if origin != b.origin {
		return ErrForeignOrigin
	}
	if _, err := m.Key(); err != nil {
		return err
	}
	return b.dispatch(m)
}

func (b *Bridge) dispatch(m Message) error {
	key, err := m.Key()
	if err != nil {
		return err
	}
	v, ok := b.pending.Get(key)
	if !ok {
		return ErrUnknownFlow
	}
	p, ok := v.(*Pending)
	if !ok {
		return ErrUnknownFlow
	}
	p.resolve(Result{Message: m}, true)
	return nil
}

// Origin returns the only origin this bridge accepts messages from.
func (b *Bridge) Origin() string { return b.origin }

// Close cancels every pending flow.
func (b *Bridge) Close() {
	for _, item := range b.pending.Items() {
		if p, ok := item.Object.(*Pending); ok {
			p.Cancel()
		}
	}
	b.pending.Flush()
}
