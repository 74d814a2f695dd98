package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnauthenticated reports a 401 from the backend. Page controllers treat
// it as "redirect to login", not as a hard failure.
var ErrUnauthenticated = errors.New("api: unauthenticated")

// maxErrorBody bounds how much of an error response body is read.
const maxErrorBody = 64 * 1024

// Error is the backend error envelope. Code follows RFC 6749 where the
// endpoint is an OAuth one (invalid_grant, access_denied, ...).
type Error struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "api: <nil>"
	case e.Description != "":
		return fmt.Sprintf("api: %s: %s", e.Code, e.Description)
	case e.Message != "":
		return fmt.Sprintf("api: %s: %s", e.Code, e.Message)
	case e.Code != "":
		return "api: " + e.Code
	default:
		return fmt.Sprintf("api: http %d", e.Status)
	}
}

// Caller is a bearer-authenticated client for the Kimlik backend.
//
// A Caller is immutable; WithToken derives per-request callers cheaply, which
// is how the consent handlers attach each session's access token.
type Caller struct {
	base       *url.URL
	httpClient *http.Client
	token      string
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) CallerOption {
	return func(c *Caller) { c.httpClient = hc }
}

// NewCaller creates a Caller for the backend at baseURL (scheme + host, no
// trailing path components beyond an optional prefix).
func NewCaller(baseURL string, opts ...CallerOption) (*Caller, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api: base URL %q must be absolute", baseURL)
	}
	c := &Caller{
		base:       u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithToken returns a copy of the Caller authenticated with the given bearer
// token.
func (c *Caller) WithToken(token string) *Caller {
	cp := *c
	cp.token = token
	return &cp
}

// Origin returns the backend origin (scheme://host), which is also the only
// origin the message bridge accepts.
func (c *Caller) Origin() string {
	return c.base.Scheme + "://" + c.base.Host
}

// do performs one request. body (when non-nil) is sent as JSON; out (when
// non-nil) receives the decoded 2xx response.
func (c *Caller) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError turns a non-2xx response into an *Error, preserving the
// backend's error and error_description verbatim so callers can branch on
// codes like invalid_grant.
func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(raw) > 0 {
		// Ignore decode failures; the status-only Error still stands.
		json.Unmarshal(raw, apiErr)
	}
	return apiErr
}

// query converts AuthorizeParams to URL query values.
func (p AuthorizeParams) query() url.Values {
	return url.Values{
		"client_id":             {p.ClientID},
		"redirect_uri":          {p.RedirectURI},
		"response_type":         {p.ResponseType},
		"scope":                 {p.Scope},
		"state":                 {p.State},
		"code_challenge":        {p.CodeChallenge},
		"code_challenge_method": {p.CodeChallengeMethod},
	}
}

// AuthorizeContext fetches the consent page context for the given
// authorization request.
func (c *Caller) AuthorizeContext(ctx context.Context, p AuthorizeParams) (*AuthorizeContext, error) {
	var out AuthorizeContext
	if err := c.do(ctx, http.MethodGet, "/oauth/authorize", p.query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Decide submits the user's consent decision together with the exact
// parameters that were used to fetch the context.
func (c *Caller) Decide(ctx context.Context, p AuthorizeParams, d Decision) (*DecisionResult, error) {
	body := struct {
		AuthorizeParams
		Decision Decision `json:"decision"`
	}{p, d}
	var out DecisionResult
	if err := c.do(ctx, http.MethodPost, "/oauth/authorize", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// User fetches the profile scoped to the granted scopes.
func (c *Caller) User(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/oauth/user", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApproveContext fetches the charge-approval page context.
func (c *Caller) ApproveContext(ctx context.Context, chargeID string) (*ApproveContext, error) {
	var out ApproveContext
	if err := c.do(ctx, http.MethodGet, "/oauth/approve/"+url.PathEscape(chargeID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecideCharge submits the user's verdict on a charge.
func (c *Caller) DecideCharge(ctx context.Context, chargeID string, d ChargeDecision) error {
	return c.do(ctx, http.MethodPost, "/oauth/approve/"+url.PathEscape(chargeID), nil, d, nil)
}

// TopupInfo fetches the topup page context for a client application.
func (c *Caller) TopupInfo(ctx context.Context, clientID string) (*TopupInfo, error) {
	var out TopupInfo
	q := url.Values{"client_id": {clientID}}
	if err := c.do(ctx, http.MethodGet, "/oauth/topup-info", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTopup starts a topup and returns the charge ID to approve.
func (c *Caller) CreateTopup(ctx context.Context, clientID string, amount float64) (string, error) {
	body := struct {
		ClientID string  `json:"client_id"`
		Amount   float64 `json:"amount"`
	}{clientID, amount}
	var out struct {
		ChargeID string `json:"charge_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/oauth/topup", nil, body, &out); err != nil {
		return "", err
	}
	return out.ChargeID, nil
}

// Scopes fetches the scope reference data.
func (c *Caller) Scopes(ctx context.Context) ([]Scope, error) {
	var out struct {
		Scopes []Scope `json:"scopes"`
	}
	if err := c.do(ctx, http.MethodGet, "/oauth/scopes", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Scopes, nil
}
