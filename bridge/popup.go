package bridge

import "errors"

// ErrPopupBlocked reports that the embedder could not create the popup
// window (e.g. a popup blocker). It is returned synchronously from Open; no
// watcher is registered for a window that never existed.
var ErrPopupBlocked = errors.New("bridge: popup blocked")

// Default popup dimensions, matching the widget defaults.
const (
	DefaultPopupWidth  = 480
	DefaultPopupHeight = 700
)

// Window is a live popup as seen by the embedder. Cross-origin windows expose
// nothing but their closed flag, so the bridge observes Closed by polling.
type Window interface {
	// Closed reports whether the user (or the page itself) closed the window.
	Closed() bool
	// Close closes the window. Closing an already-closed window is a no-op.
	Close()
}

// OpenFunc creates a popup window of the given size showing url. Returning
// a nil Window or an error means the popup was blocked.
type OpenFunc func(url string, width, height int) (Window, error)

// NavigateFunc performs a full-page redirect. There is no return path except
// the backend redirecting back after consent.
type NavigateFunc func(url string)

// Mode selects how the authorization URL is presented.
type Mode string

const (
	ModePopup    Mode = "popup"
	ModeRedirect Mode = "redirect"
)

// Transport opens authorization URLs in a popup or by full-page redirect.
type Transport struct {
	open     OpenFunc
	navigate NavigateFunc
	width    int
	height   int
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithPopupSize overrides the default popup dimensions.
func WithPopupSize(width, height int) TransportOption {
	return func(t *Transport) {
		t.width, t.height = width, height
	}
}

// NewTransport creates a Transport. open may be nil when only redirect mode
// is used, and navigate may be nil when only popup mode is used.
func NewTransport(open OpenFunc, navigate NavigateFunc, opts ...TransportOption) *Transport {
	t := &Transport{
		open:     open,
		navigate: navigate,
		width:    DefaultPopupWidth,
		height:   DefaultPopupHeight,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open presents url in the given mode.
//
// In popup mode it returns the created Window, or ErrPopupBlocked
// immediately when creation fails; the caller must surface that, not hang.
// In redirect mode it navigates away and returns (nil, nil); the flow
// resumes only via the backend's redirect.
func (t *Transport) Open(url string, mode Mode) (Window, error) {
	switch mode {
	case ModePopup:
		if t.open == nil {
			return nil, errors.New("bridge: transport has no popup opener")
		}
		w, err := t.open(url, t.width, t.height)
		if err != nil {
			return nil, errors.Join(ErrPopupBlocked, err)
		}
		if w == nil {
			return nil, ErrPopupBlocked
		}
		return w, nil
	case ModeRedirect:
		if t.navigate == nil {
			return nil, errors.New("bridge: transport has no navigator")
		}
		t.navigate(url)
		return nil, nil
	default:
		return nil, errors.New("bridge: unknown transport mode " + string(mode))
	}
}
