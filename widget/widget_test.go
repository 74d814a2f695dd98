package widget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kimlikaz/connect/bridge"
)

type fakeWindow struct {
	mu     sync.Mutex
	closed bool
}

func (w *fakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// backendServer serves just the token endpoint; the consent pages are played
// by the test delivering bridge messages directly.
func backendServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("token request: %v", err)
		}
		if r.PostForm.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_request"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-" + r.PostForm.Get("code"),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func minimalConfig() Config {
	return Config{
		ClientID:    "app1",
		RedirectURI: "https://shop.example/cb",
		Popup:       true,
	}
}

func TestConfigDefaults(t *testing.T) {
	w, err := New(minimalConfig(), "https://id.kimlik.az", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	cfg := w.Config()
	if cfg.ContainerID != "kimlik-login" {
		t.Errorf("ContainerID: got %q", cfg.ContainerID)
	}
	if len(cfg.Scopes) != 2 || cfg.Scopes[0] != "openid" || cfg.Scopes[1] != "profile" {
		t.Errorf("Scopes: got %v", cfg.Scopes)
	}
	if cfg.Theme != ThemeLight || cfg.Size != SizeMedium || cfg.Locale != "az" {
		t.Errorf("appearance defaults: theme=%q size=%q locale=%q", cfg.Theme, cfg.Size, cfg.Locale)
	}
	if cfg.PopupWidth != bridge.DefaultPopupWidth || cfg.PopupHeight != bridge.DefaultPopupHeight {
		t.Errorf("popup size defaults: %dx%d", cfg.PopupWidth, cfg.PopupHeight)
	}
}

func TestConfigRejectsUnsupportedValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing client ID", func(c *Config) { c.ClientID = "" }},
		{"missing redirect URI", func(c *Config) { c.RedirectURI = "" }},
		{"unknown theme", func(c *Config) { c.Theme = "sepia" }},
		{"unknown size", func(c *Config) { c.Size = "huge" }},
		{"unknown locale", func(c *Config) { c.Locale = "tr" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := minimalConfig()
			tc.mutate(&cfg)
			if _, err := New(cfg, "https://id.kimlik.az", nil); err == nil {
				t.Fatal("New accepted an invalid config")
			}
		})
	}
}

func TestLabelPerLocale(t *testing.T) {
	cases := map[string]string{
		"az": "Kimlik ilə daxil ol",
		"en": "Sign in with Kimlik",
		"ru": "Войти через Kimlik",
	}
	for locale, want := range cases {
		cfg := minimalConfig()
		cfg.Locale = locale
		w, err := New(cfg, "https://id.kimlik.az", nil)
		if err != nil {
			t.Fatalf("New(%s): %v", locale, err)
		}
		if got := w.Label(); got != want {
			t.Errorf("Label(%s): got %q want %q", locale, got, want)
		}
		w.Close()
	}
}

func TestSnippet(t *testing.T) {
	cfg := minimalConfig()
	cfg.ContainerID = "signin-box"
	cfg.Theme = ThemeDark
	cfg.Size = SizeLarge
	cfg.Locale = "en"

	w, err := New(cfg, "https://id.kimlik.az", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	html, err := w.Snippet("https://shop.example/auth/start")
	if err != nil {
		t.Fatalf("Snippet: %v", err)
	}
	s := string(html)

	for _, want := range []string{
		`id="signin-box"`,
		"kimlik-dark",
		"kimlik-large",
		"Sign in with Kimlik",
		`href="https://shop.example/auth/start"`,
		"data-kimlik-popup",
		`"https://id.kimlik.az"`,
		`"kimlik:success"`,
		`"kimlik:error"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("snippet missing %q", want)
		}
	}
}

func TestSnippetRedirectModeOmitsPopupAttributes(t *testing.T) {
	cfg := minimalConfig()
	cfg.Popup = false
	w, err := New(cfg, "https://id.kimlik.az", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	html, err := w.Snippet("/auth/start")
	if err != nil {
		t.Fatalf("Snippet: %v", err)
	}
	if strings.Contains(string(html), "data-kimlik-popup") {
		t.Fatal("redirect-mode snippet carries popup attributes")
	}
}

func TestSnippetRequiresStartURL(t *testing.T) {
	w, err := New(minimalConfig(), "https://id.kimlik.az", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if _, err := w.Snippet(""); err == nil {
		t.Fatal("Snippet accepted an empty start URL")
	}
}

// popupWidget builds a popup-mode widget against a test backend. opened
// receives the authorization URL when the popup opens.
func popupWidget(t *testing.T, srv *httptest.Server, win *fakeWindow, opened chan<- string) *Widget {
	t.Helper()
	transport := bridge.NewTransport(func(u string, _, _ int) (bridge.Window, error) {
		opened <- u
		return win, nil
	}, nil)

	w, err := New(minimalConfig(), srv.URL, transport,
		WithBridgeOptions(bridge.WithPollInterval(5*time.Millisecond)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

// deliver retries until the flow is registered; the popup opens before the
// bridge listener does.
func deliver(t *testing.T, w *Widget, origin string, raw []byte) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := w.Deliver(origin, raw)
		if err == nil {
			return
		}
		if !errors.Is(err, bridge.ErrUnknownFlow) || time.Now().After(deadline) {
			t.Errorf("Deliver: %v", err)
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// stateOf runs on the delivery goroutine, so it reports rather than fails.
func stateOf(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	if err != nil {
		t.Errorf("authorization URL: %v", err)
		return ""
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Error("authorization URL has no state")
	}
	return state
}

func TestSignIn(t *testing.T) {
	srv := backendServer(t)
	win := &fakeWindow{}
	opened := make(chan string, 1)
	w := popupWidget(t, srv, win, opened)

	go func() {
		state := stateOf(t, <-opened)
		raw, _ := json.Marshal(bridge.Message{
			Type:        bridge.TypeOAuthSuccess,
			RedirectURI: "https://shop.example/cb?code=c1&state=" + state,
		})
		deliver(t, w, srv.URL, raw)
	}()

	res, err := w.SignIn(context.Background())
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if res.Token.AccessToken != "at-c1" {
		t.Errorf("access token: got %q", res.Token.AccessToken)
	}
	if !win.Closed() {
		t.Error("consent window left open after completion")
	}
}

func TestSignInDenied(t *testing.T) {
	srv := backendServer(t)
	win := &fakeWindow{}
	opened := make(chan string, 1)
	w := popupWidget(t, srv, win, opened)

	go func() {
		state := stateOf(t, <-opened)
		raw, _ := json.Marshal(bridge.Message{Type: bridge.TypeOAuthDenied, State: state})
		deliver(t, w, srv.URL, raw)
	}()

	if _, err := w.SignIn(context.Background()); !errors.Is(err, ErrDenied) {
		t.Fatalf("SignIn: got %v want ErrDenied", err)
	}
}

func TestSignInPopupBlocked(t *testing.T) {
	srv := backendServer(t)
	transport := bridge.NewTransport(func(string, int, int) (bridge.Window, error) {
		return nil, nil
	}, nil)
	w, err := New(minimalConfig(), srv.URL, transport)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if _, err := w.SignIn(context.Background()); !errors.Is(err, bridge.ErrPopupBlocked) {
		t.Fatalf("SignIn: got %v want ErrPopupBlocked", err)
	}
}

func TestSignInWindowClosed(t *testing.T) {
	srv := backendServer(t)
	win := &fakeWindow{}
	opened := make(chan string, 1)
	w := popupWidget(t, srv, win, opened)

	go func() {
		<-opened
		win.Close()
	}()

	if _, err := w.SignIn(context.Background()); !errors.Is(err, bridge.ErrWindowClosed) {
		t.Fatalf("SignIn: got %v want ErrWindowClosed", err)
	}
}

func TestSignInTimeout(t *testing.T) {
	srv := backendServer(t)
	win := &fakeWindow{}
	opened := make(chan string, 1)
	w := popupWidget(t, srv, win, opened)

	// Nobody answers and the window stays open.
	if _, err := w.SignInTimeout(context.Background(), 30*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("SignInTimeout: got %v want DeadlineExceeded", err)
	}
	if !win.Closed() {
		t.Error("window left open after timeout")
	}
}

func TestSignInRedirectModeRefusesInPlaceCompletion(t *testing.T) {
	srv := backendServer(t)
	var navigated string
	transport := bridge.NewTransport(nil, func(u string) { navigated = u })

	cfg := minimalConfig()
	cfg.Popup = false
	w, err := New(cfg, srv.URL, transport)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if _, err := w.SignIn(context.Background()); err == nil {
		t.Fatal("SignIn succeeded without a window to wait on")
	}
	if !strings.Contains(navigated, "code_challenge=") {
		t.Errorf("navigation target not an authorization URL: %q", navigated)
	}
}

func TestBeginComplete(t *testing.T) {
	srv := backendServer(t)
	w, err := New(minimalConfig(), srv.URL, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	a, err := w.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	res, err := w.Complete(context.Background(), a, "https://shop.example/cb?code=c9&state="+a.State)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Token.AccessToken != "at-c9" {
		t.Errorf("access token: got %q", res.Token.AccessToken)
	}
}
