// Package flow implements the client side of the Kimlik authorization-code
// flow: building the authorization request (fresh state + PKCE pair per
// attempt), and exchanging the returned code for tokens with the matching
// verifier.
//
// A flow.Client is configured once per application. Each authorization
// attempt creates an Authorization, which owns its state and verifier and is
// consumed exactly once, whether by a successful exchange, a failed exchange,
// or an explicit Cancel. Reusing a consumed Authorization is an error.
package flow

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/kimlikaz/connect/pkce"
)

var (
	// ErrStateMismatch reports a callback whose state does not match the
	// authorization it is being applied to. The flow must be restarted;
	// token exchange is never attempted after a mismatch.
	ErrStateMismatch = errors.New("flow: state mismatch")

	// ErrConsumed reports reuse of an Authorization whose verifier has
	// already been spent or discarded.
	ErrConsumed = errors.New("flow: authorization already consumed")

	// ErrMissingCode reports a callback carrying neither a code nor an
	// error indicator.
	ErrMissingCode = errors.New("flow: callback has no authorization code")
)

// stateBytes is the entropy of the state parameter: 32 bytes, 256 bits.
const stateBytes = 32

// DeniedError reports an error indicator returned on the callback, e.g.
// access_denied when the user refuses consent.
type DeniedError struct {
	Code        string
	Description string
}

func (e *DeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("flow: authorization failed: %s (%s)", e.Code, e.Description)
	}
	return "flow: authorization failed: " + e.Code
}

// TokenError reports a non-2xx token endpoint response, preserving the
// backend's error and error_description so integrators can branch on codes
// such as invalid_grant.
type TokenError struct {
	Code        string
	Description string
	cause       error
}

func (e *TokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("flow: token exchange failed: %s (%s)", e.Code, e.Description)
	}
	return "flow: token exchange failed: " + e.Code
}

func (e *TokenError) Unwrap() error { return e.cause }

// Config describes one registered client application.
type Config struct {
	// ClientID identifies the application.
	ClientID string
	// ClientSecret is set only for confidential clients; public clients
	// rely on PKCE alone.
	ClientSecret string
	// RedirectURI must exactly match one of the URIs registered for the
	// application.
	RedirectURI string
	// Scopes are requested space-joined on the authorization URL.
	Scopes []string
	// BaseURL is the Kimlik backend base URL, e.g. "https://id.kimlik.az".
	// The authorize and token endpoints are derived from it.
	BaseURL string
}

// Client builds authorization requests and exchanges codes for one
// application.
type Client struct {
	conf     *oauth2.Config
	origin   string
	verifier *oidc.IDTokenVerifier
}

// Option configures a Client.
type Option func(*Client)

// WithIDTokenVerifier enables OpenID Connect validation: every authorization
// carries a nonce and Exchange verifies the returned id_token against it.
func WithIDTokenVerifier(v *oidc.IDTokenVerifier) Option {
	return func(c *Client) { c.verifier = v }
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("flow: missing client ID")
	}
	if cfg.RedirectURI == "" {
		return nil, errors.New("flow: missing redirect URI")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("flow: invalid base URL %q", cfg.BaseURL)
	}
	trimmed := strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   trimmed + "/oauth/authorize",
				TokenURL:  trimmed + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		origin: base.Scheme + "://" + base.Host,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Origin returns the backend origin. The message bridge accepts messages
// from this origin only.
func (c *Client) Origin() string { return c.origin }

// Authorization is one single-use authorization attempt.
type Authorization struct {
	// URL is the fully-formed authorization URL to open in a popup or
	// navigate to.
	URL string
	// State is the anti-CSRF token bound to this attempt; it doubles as
	// the correlation ID for the message bridge.
	State string

	verifier string
	nonce    string
	created  time.Time

	mu       sync.Mutex
	consumed bool
}

// NewAuthorization generates a fresh state and PKCE pair and builds the
// authorization URL. Two consecutive calls never share state or verifier.
func (c *Client) NewAuthorization() (*Authorization, error) {
	state, err := generateState()
	if err != nil {
		return nil, err
	}
	pair, err := pkce.NewPair()
	if err != nil {
		return nil, err
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.Method),
	}

	var nonce string
	if c.verifier != nil {
		nonce, err = generateState()
		if err != nil {
			return nil, err
		}
		opts = append(opts, oidc.Nonce(nonce))
	}

	return &Authorization{
		URL:      c.conf.AuthCodeURL(state, opts...),
		State:    state,
		verifier: pair.Verifier,
		nonce:    nonce,
		created:  time.Now(),
	}, nil
}

// consume spends the verifier exactly once.
func (a *Authorization) consume() (verifier, nonce string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.consumed {
		return "", "", ErrConsumed
	}
	a.consumed = true
	verifier, nonce = a.verifier, a.nonce
	a.verifier, a.nonce = "", ""
	return verifier, nonce, nil
}

// Cancel discards the authorization's verifier without an exchange. A
// cancelled Authorization cannot be completed.
func (a *Authorization) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.consumed = true
	a.verifier, a.nonce = "", ""
}

// Detached is the secret half of an Authorization, taken out for flows
// that span processes.
type Detached struct {
	Verifier string
	Nonce    string
}

// Detach removes the verifier and nonce from a and returns them. The
// caller becomes responsible for keeping them secret until the exchange;
// a detached Authorization cannot be completed in place.
func (a *Authorization) Detach() (Detached, error) {
	verifier, nonce, err := a.consume()
	if err != nil {
		return Detached{}, err
	}
	return Detached{Verifier: verifier, Nonce: nonce}, nil
}

// Result is a completed authorization.
type Result struct {
	Token *oauth2.Token
	// IDToken is set when the Client was built with WithIDTokenVerifier.
	IDToken *oidc.IDToken
}

// Complete finishes the authorization with the callback redirect URI
// delivered by the backend (directly, or through the message bridge).
//
// It validates the state parameter against a, checks for an error indicator,
// and exchanges the code using a's verifier. The verifier is consumed no
// matter the outcome; a second Complete returns ErrConsumed.
func (c *Client) Complete(ctx context.Context, a *Authorization, callbackURI string) (*Result, error) {
	u, err := url.Parse(callbackURI)
	if err != nil {
		return nil, fmt.Errorf("flow: malformed callback URI: %w", err)
	}
	q := u.Query()

	// State is checked before the verifier is spent: a mismatched callback
	// belongs to some other (or no) attempt and must not consume this one.
	if state := q.Get("state"); subtle.ConstantTimeCompare([]byte(state), []byte(a.State)) != 1 {
		return nil, ErrStateMismatch
	}

	verifier, nonce, err := a.consume()
	if err != nil {
		return nil, err
	}

	if ec := q.Get("error"); ec != "" {
		return nil, &DeniedError{Code: ec, Description: q.Get("error_description")}
	}
	code := q.Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}

	return c.exchange(ctx, code, verifier, nonce)
}

// ExchangeCode exchanges a raw code/verifier pair. It is the low-level
// helper for integrations that transport the code themselves; Complete is
// preferred because it also enforces the state check.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*Result, error) {
	if !pkce.ValidVerifier(verifier) {
		return nil, errors.New("flow: invalid code verifier")
	}
	return c.exchange(ctx, code, verifier, "")
}

func (c *Client) exchange(ctx context.Context, code, verifier, nonce string) (*Result, error) {
	token, err := c.conf.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode != "" {
			return nil, &TokenError{Code: re.ErrorCode, Description: re.ErrorDescription, cause: err}
		}
		return nil, fmt.Errorf("flow: token exchange: %w", err)
	}

	res := &Result{Token: token}
	if c.verifier != nil {
		raw, ok := token.Extra("id_token").(string)
		if !ok {
			return nil, errors.New("flow: backend returned no id_token")
		}
		idToken, err := c.verifier.Verify(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("flow: id_token verification: %w", err)
		}
		if nonce != "" && subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(nonce)) != 1 {
			return nil, errors.New("flow: nonce mismatch")
		}
		res.IDToken = idToken
	}
	return res, nil
}

// generateState creates a random URL-safe state string.
func generateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("flow: no secure random source: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
