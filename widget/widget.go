// Package widget is the embeddable "Sign in with Kimlik" integration.
//
// A Widget owns one flow.Client and one bridge.Bridge; it is created by New
// and torn down by Close. Nothing in this package keeps global state, so a
// host application can run several widgets for different OAuth clients side
// by side.
package widget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kimlikaz/connect/bridge"
	"github.com/kimlikaz/connect/flow"
)

// DOM event names the embed snippet dispatches on the container and on
// window when a flow settles.
const (
	EventSuccess = "kimlik:success"
	EventError   = "kimlik:error"
)

// Theme selects the button color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// Size selects the button dimensions.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// ErrDenied reports that the user rejected the consent prompt.
var ErrDenied = errors.New("widget: access denied")

// Config is the embedder-facing widget configuration.
type Config struct {
	// ClientID and RedirectURI identify the registered OAuth client.
	ClientID    string
	RedirectURI string
	// ContainerID is the DOM id the snippet renders into.
	ContainerID string
	// Scopes defaults to ["openid", "profile"].
	Scopes []string

	Theme  Theme
	Size   Size
	Locale string

	// Popup selects the popup transport; false means full-page redirect.
	Popup       bool
	PopupWidth  int
	PopupHeight int
}

// normalize fills defaults and rejects unsupported values. It does not
// mutate the receiver.
func (c Config) normalize() (Config, error) {
	if c.ClientID == "" {
		return c, errors.New("widget: missing client ID")
	}
	if c.RedirectURI == "" {
		return c, errors.New("widget: missing redirect URI")
	}
	if c.ContainerID == "" {
		c.ContainerID = "kimlik-login"
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"openid", "profile"}
	}

	switch c.Theme {
	case "":
		c.Theme = ThemeLight
	case ThemeLight, ThemeDark, ThemeAuto:
	default:
		return c, fmt.Errorf("widget: unsupported theme %q", c.Theme)
	}
	switch c.Size {
	case "":
		c.Size = SizeMedium
	case SizeSmall, SizeMedium, SizeLarge:
	default:
		return c, fmt.Errorf("widget: unsupported size %q", c.Size)
	}
	switch c.Locale {
	case "":
		c.Locale = "az"
	case "az", "en", "ru":
	default:
		return c, fmt.Errorf("widget: unsupported locale %q", c.Locale)
	}

	if c.PopupWidth <= 0 {
		c.PopupWidth = bridge.DefaultPopupWidth
	}
	if c.PopupHeight <= 0 {
		c.PopupHeight = bridge.DefaultPopupHeight
	}
	return c, nil
}

// Widget runs Kimlik sign-in flows for one OAuth client.
type Widget struct {
	cfg       Config
	flow      *flow.Client
	bridge    *bridge.Bridge
	transport *bridge.Transport
}

// Option configures a Widget beyond its Config.
type Option func(*options)

type options struct {
	flowOpts   []flow.Option
	bridgeOpts []bridge.Option
}

// WithFlowOptions passes options (such as flow.WithIDTokenVerifier) to the
// underlying flow client.
func WithFlowOptions(opts ...flow.Option) Option {
	return func(o *options) { o.flowOpts = append(o.flowOpts, opts...) }
}

// WithBridgeOptions passes options to the underlying message bridge.
func WithBridgeOptions(opts ...bridge.Option) Option {
	return func(o *options) { o.bridgeOpts = append(o.bridgeOpts, opts...) }
}

// New validates cfg, fills its defaults, and builds a Widget against the
// Kimlik deployment at baseURL. transport supplies the embedder's window
// system; it may be nil when only Begin/Complete (redirect mode) or Snippet
// rendering is used.
func New(cfg Config, baseURL string, transport *bridge.Transport, opts ...Option) (*Widget, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	fc, err := flow.NewClient(flow.Config{
		ClientID:    cfg.ClientID,
		RedirectURI: cfg.RedirectURI,
		Scopes:      cfg.Scopes,
		BaseURL:     baseURL,
	}, o.flowOpts...)
	if err != nil {
		return nil, err
	}

	if transport == nil {
		transport = bridge.NewTransport(nil, nil, bridge.WithPopupSize(cfg.PopupWidth, cfg.PopupHeight))
	}

	return &Widget{
		cfg:       cfg,
		flow:      fc,
		bridge:    bridge.New(fc.Origin(), o.bridgeOpts...),
		transport: transport,
	}, nil
}

// Config returns the normalized configuration.
func (w *Widget) Config() Config { return w.cfg }

// Flow returns the underlying flow client, for integrations that persist
// pending authorizations themselves (redirect mode with a flow.Jar).
func (w *Widget) Flow() *flow.Client { return w.flow }

// Begin starts a redirect-mode authorization: the caller navigates to the
// returned Authorization's URL and later finishes with Complete.
func (w *Widget) Begin() (*flow.Authorization, error) {
	return w.flow.NewAuthorization()
}

// Complete finishes an authorization with the callback URI the flow
// returned to.
func (w *Widget) Complete(ctx context.Context, a *flow.Authorization, callbackURI string) (*flow.Result, error) {
	return w.flow.Complete(ctx, a, callbackURI)
}

// Deliver forwards a message from the consent window into the bridge.
// origin must be the sender's origin as observed by the host; messages from
// any origin other than the Kimlik deployment are rejected without touching
// pending flows.
func (w *Widget) Deliver(origin string, raw []byte) error {
	return w.bridge.Deliver(origin, raw)
}

// SignIn runs one complete popup-mode flow: it opens the consent window,
// waits for the window's message (or closure, timeout, or ctx
// cancellation), and exchanges the authorization code for tokens.
//
// A blocked popup fails immediately with bridge.ErrPopupBlocked. A user
// closing the window fails with bridge.ErrWindowClosed. A denial fails with
// ErrDenied.
func (w *Widget) SignIn(ctx context.Context) (*flow.Result, error) {
	a, err := w.flow.NewAuthorization()
	if err != nil {
		return nil, err
	}

	mode := bridge.ModeRedirect
	if w.cfg.Popup {
		mode = bridge.ModePopup
	}
	win, err := w.transport.Open(a.URL, mode)
	if err != nil {
		a.Cancel()
		return nil, err
	}
	if win == nil {
		// Redirect mode left this page; the flow resumes in Complete.
		a.Cancel()
		return nil, errors.New("widget: redirect mode cannot complete in place, use Begin")
	}

	pending, err := w.bridge.Listen(ctx, a.State, win)
	if err != nil {
		a.Cancel()
		win.Close()
		return nil, err
	}

	res := <-pending.Done()
	if res.Err != nil {
		a.Cancel()
		return nil, res.Err
	}

	switch res.Message.Type {
	case bridge.TypeOAuthSuccess:
		return w.flow.Complete(ctx, a, res.Message.RedirectURI)
	case bridge.TypeOAuthDenied:
		a.Cancel()
		return nil, ErrDenied
	default:
		a.Cancel()
		return nil, fmt.Errorf("widget: unexpected message %q", res.Message.Type)
	}
}

// SignInTimeout is a convenience wrapper bounding SignIn with a deadline.
func (w *Widget) SignInTimeout(ctx context.Context, d time.Duration) (*flow.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return w.SignIn(ctx)
}

// Close tears down the bridge and all pending flows.
func (w *Widget) Close() {
	w.bridge.Close()
}
