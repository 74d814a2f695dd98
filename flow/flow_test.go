package flow

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/kimlikaz/connect/pkce"
)

func testConfig(baseURL string) Config {
	return Config{
		ClientID:    "app1",
		RedirectURI: "https://shop.example/cb",
		Scopes:      []string{"openid", "profile"},
		BaseURL:     baseURL,
	}
}

func TestNewAuthorization_URL(t *testing.T) {
	c, err := NewClient(testConfig("https://id.kimlik.az"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}

	u, err := url.Parse(a.URL)
	if err != nil {
		t.Fatalf("authorization URL does not parse: %v", err)
	}
	if u.Path != "/oauth/authorize" {
		t.Fatalf("path: got %q", u.Path)
	}
	q := u.Query()
	if q.Get("client_id") != "app1" {
		t.Errorf("client_id: got %q", q.Get("client_id"))
	}
	if q.Get("redirect_uri") != "https://shop.example/cb" {
		t.Errorf("redirect_uri: got %q", q.Get("redirect_uri"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type: got %q", q.Get("response_type"))
	}
	if q.Get("scope") != "openid profile" {
		t.Errorf("scope: got %q", q.Get("scope"))
	}
	if q.Get("state") != a.State {
		t.Errorf("state: URL has %q, Authorization has %q", q.Get("state"), a.State)
	}
	if q.Get("code_challenge_method") != pkce.Method {
		t.Errorf("code_challenge_method: got %q", q.Get("code_challenge_method"))
	}
	if ch := q.Get("code_challenge"); len(ch) != 43 {
		t.Errorf("code_challenge: got %d chars, want 43", len(ch))
	}
	if q.Get("nonce") != "" {
		t.Errorf("nonce present without OIDC verifier: %q", q.Get("nonce"))
	}
}

func TestNewAuthorization_Unique(t *testing.T) {
	c, err := NewClient(testConfig("https://id.kimlik.az"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a1, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	a2, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	if a1.State == a2.State {
		t.Fatal("two authorizations share a state")
	}
	q1, _ := url.Parse(a1.URL)
	q2, _ := url.Parse(a2.URL)
	if q1.Query().Get("code_challenge") == q2.Query().Get("code_challenge") {
		t.Fatal("two authorizations share a code challenge")
	}
}

// tokenServer returns a backend whose /oauth/token endpoint checks the PKCE
// verifier against the challenge it saw on the authorization URL.
func tokenServer(t *testing.T, challenge *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type: got %q", got)
		}
		verifier := r.Form.Get("code_verifier")
		if verifier == "" {
			t.Error("no code_verifier sent")
		}
		if *challenge != "" {
			sum := sha256.Sum256([]byte(verifier))
			if base64.RawURLEncoding.EncodeToString(sum[:]) != *challenge {
				t.Error("code_verifier does not match the challenge from the authorization URL")
			}
		}
		if got := r.Form.Get("code"); got != "c1" {
			t.Errorf("code: got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_HappyPath(t *testing.T) {
	var challenge string
	srv := tokenServer(t, &challenge)

	c, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	u, _ := url.Parse(a.URL)
	challenge = u.Query().Get("code_challenge")

	res, err := c.Complete(context.Background(), a, "https://shop.example/cb?code=c1&state="+a.State)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Token.AccessToken != "at-1" {
		t.Fatalf("access token: got %q", res.Token.AccessToken)
	}

	// The verifier is spent; the same callback cannot complete again.
	if _, err := c.Complete(context.Background(), a, "https://shop.example/cb?code=c1&state="+a.State); !errors.Is(err, ErrConsumed) {
		t.Fatalf("second Complete: got %v want ErrConsumed", err)
	}
}

func TestComplete_StateMismatchDoesNotConsume(t *testing.T) {
	var challenge string
	srv := tokenServer(t, &challenge)

	c, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}

	_, err = c.Complete(context.Background(), a, "https://shop.example/cb?code=c1&state=not-ours")
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("got %v want ErrStateMismatch", err)
	}

	// A foreign callback must not have spent this attempt's verifier.
	if _, err := c.Complete(context.Background(), a, "https://shop.example/cb?code=c1&state="+a.State); err != nil {
		t.Fatalf("Complete after mismatch: %v", err)
	}
}

func TestComplete_Denied(t *testing.T) {
	c, err := NewClient(testConfig("https://id.kimlik.az"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}

	cb := "https://shop.example/cb?error=access_denied&error_description=user+refused&state=" + a.State
	_, err = c.Complete(context.Background(), a, cb)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("got %v, want *DeniedError", err)
	}
	if denied.Code != "access_denied" || denied.Description != "user refused" {
		t.Fatalf("denied: %+v", denied)
	}

	// A denial still spends the attempt.
	if _, err := c.Complete(context.Background(), a, cb); !errors.Is(err, ErrConsumed) {
		t.Fatalf("Complete after denial: got %v want ErrConsumed", err)
	}
}

func TestComplete_MissingCode(t *testing.T) {
	c, err := NewClient(testConfig("https://id.kimlik.az"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	_, err = c.Complete(context.Background(), a, "https://shop.example/cb?state="+a.State)
	if !errors.Is(err, ErrMissingCode) {
		t.Fatalf("got %v want ErrMissingCode", err)
	}
}

func TestComplete_Cancelled(t *testing.T) {
	c, err := NewClient(testConfig("https://id.kimlik.az"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	a.Cancel()
	_, err = c.Complete(context.Background(), a, "https://shop.example/cb?code=c1&state="+a.State)
	if !errors.Is(err, ErrConsumed) {
		t.Fatalf("got %v want ErrConsumed", err)
	}
}

func TestExchange_TokenError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}

	_, err = c.Complete(context.Background(), a, "https://shop.example/cb?code=c1&state="+a.State)
	var te *TokenError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want *TokenError", err)
	}
	if te.Code != "invalid_grant" || te.Description != "code expired" {
		t.Fatalf("token error: %+v", te)
	}
}

func TestExchangeCode_RejectsBadVerifier(t *testing.T) {
	c, err := NewClient(testConfig("https://id.kimlik.az"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.ExchangeCode(context.Background(), "c1", "too-short"); err == nil {
		t.Fatal("malformed verifier accepted")
	}
}

func TestDetach(t *testing.T) {
	c, err := NewClient(testConfig("https://id.kimlik.az"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	d, err := a.Detach()
	if err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if !pkce.ValidVerifier(d.Verifier) {
		t.Fatalf("detached verifier invalid: %q", d.Verifier)
	}
	if _, err := a.Detach(); !errors.Is(err, ErrConsumed) {
		t.Fatalf("second Detach: got %v want ErrConsumed", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Config{RedirectURI: "x", BaseURL: "https://id.kimlik.az"}); err == nil {
		t.Error("missing client ID accepted")
	}
	if _, err := NewClient(Config{ClientID: "a", BaseURL: "https://id.kimlik.az"}); err == nil {
		t.Error("missing redirect URI accepted")
	}
	if _, err := NewClient(Config{ClientID: "a", RedirectURI: "x", BaseURL: "not-a-url"}); err == nil {
		t.Error("bad base URL accepted")
	}
}

// oidcBackend serves discovery, JWKS and the token endpoint from one server,
// minting id_tokens with the nonce it finds via mintNonce.
func oidcBackend(t *testing.T, mintNonce func() string) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: privKey}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		t.Fatalf("jose.NewSigner: %v", err)
	}

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issuer := srv.URL
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			json.NewEncoder(w).Encode(map[string]any{
				"issuer":                                issuer,
				"jwks_uri":                              issuer + "/keys",
				"authorization_endpoint":                issuer + "/oauth/authorize",
				"token_endpoint":                        issuer + "/oauth/token",
				"response_types_supported":              []string{"code"},
				"subject_types_supported":               []string{"public"},
				"id_token_signing_alg_values_supported": []string{"RS256"},
			})
		case "/keys":
			jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
				{Key: &privKey.PublicKey, Use: "sig", Algorithm: "RS256", KeyID: "test-key"},
			}}
			json.NewEncoder(w).Encode(jwks)
		case "/oauth/token":
			claims := jwt.Claims{
				Subject:   "user123",
				Issuer:    issuer,
				Audience:  jwt.Audience{"app1"},
				Expiry:    jwt.NewNumericDate(time.Now().Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				NotBefore: jwt.NewNumericDate(time.Now()),
			}
			rawJWT, err := jwt.Signed(signer).Claims(claims).Claims(map[string]any{"nonce": mintNonce()}).Serialize()
			if err != nil {
				t.Errorf("sign id_token: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "at-oidc",
				"token_type":   "Bearer",
				"id_token":     rawJWT,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, privKey
}

func TestComplete_OIDC(t *testing.T) {
	var authNonce string
	srv, _ := oidcBackend(t, func() string { return authNonce })

	provider, err := oidc.NewProvider(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("oidc.NewProvider: %v", err)
	}
	c, err := NewClient(testConfig(srv.URL), WithIDTokenVerifier(provider.Verifier(&oidc.Config{ClientID: "app1"})))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	u, _ := url.Parse(a.URL)
	authNonce = u.Query().Get("nonce")
	if authNonce == "" {
		t.Fatal("OIDC authorization URL carries no nonce")
	}

	res, err := c.Complete(context.Background(), a, "https://shop.example/cb?code=c1&state="+a.State)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.IDToken == nil {
		t.Fatal("no verified ID token in result")
	}
	if res.IDToken.Subject != "user123" {
		t.Fatalf("subject: got %q", res.IDToken.Subject)
	}
}

func TestComplete_OIDCNonceMismatch(t *testing.T) {
	srv, _ := oidcBackend(t, func() string { return "WRONG_NONCE" })

	provider, err := oidc.NewProvider(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("oidc.NewProvider: %v", err)
	}
	c, err := NewClient(testConfig(srv.URL), WithIDTokenVerifier(provider.Verifier(&oidc.Config{ClientID: "app1"})))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	_, err = c.Complete(context.Background(), a, "https://shop.example/cb?code=c1&state="+a.State)
	if err == nil || !strings.Contains(err.Error(), "nonce") {
		t.Fatalf("got %v, want nonce mismatch", err)
	}
}
