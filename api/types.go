// Package api is the typed client for the Kimlik backend's OAuth surface:
// authorize/consent context, charge approval, topup, token-scoped user info,
// scope reference data and developer app management.
//
// Responses are narrowed into the types below immediately after fetch;
// nothing downstream inspects raw JSON. Server-computed flags such as
// Charge.CanApprove, Charge.IsExpired and Wallet.Sufficient are authoritative
// and are never re-derived by this client.
package api

import "time"

// Decision is the user's verdict on an authorization request.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// ChargeVerdict is the user's verdict on a charge.
type ChargeVerdict string

const (
	ChargeApprove ChargeVerdict = "approve"
	ChargeReject  ChargeVerdict = "reject"
)

// Charge lifecycle statuses as reported by the backend.
const (
	ChargeStatusPending   = "pending"
	ChargeStatusApproved  = "approved"
	ChargeStatusRejected  = "rejected"
	ChargeStatusCompleted = "completed"
	ChargeStatusExpired   = "expired"
)

// AuthorizeParams are the query parameters of an authorization request.
// The same values are sent on both the context fetch and the decision
// submit; the backend rejects a decision whose parameters differ from the
// fetch.
type AuthorizeParams struct {
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	ResponseType        string `json:"response_type"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// Client is the third-party application identity shown on consent pages.
type Client struct {
	ClientID   string `json:"client_id"`
	Name       string `json:"name"`
	LogoURL    string `json:"logo_url,omitempty"`
	WebsiteURL string `json:"website_url,omitempty"`
}

// Scope is static reference data describing one grantable permission.
// DisplayName and Description are localized (keys az, en, ru).
type Scope struct {
	Name        string            `json:"name"`
	DisplayName map[string]string `json:"display_name"`
	Description map[string]string `json:"description"`
	Category    string            `json:"category,omitempty"`
}

// Local returns the localized value from m for locale, falling back to
// English and then to any value present.
func Local(m map[string]string, locale string) string {
	if v, ok := m[locale]; ok && v != "" {
		return v
	}
	if v, ok := m["en"]; ok && v != "" {
		return v
	}
	for _, v := range m {
		if v != "" {
			return v
		}
	}
	return ""
}

// User is the authenticated platform user, scoped to granted scopes.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Charge is a one-time payment authorization request against the user's
// wallet. IsExpired and CanApprove are computed server-side and are the sole
// authority on whether approval is possible.
type Charge struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsExpired   bool      `json:"is_expired"`
	CanApprove  bool      `json:"can_approve"`
}

// Wallet is the user's balance as relevant to the charge or topup being
// shown. Sufficient reflects the backend's own comparison against the charge
// amount.
type Wallet struct {
	Balance    float64 `json:"balance"`
	Currency   string  `json:"currency"`
	Sufficient bool    `json:"sufficient"`
}

// AutoApprove is the user's standing auto-approval preference for one client
// application.
type AutoApprove struct {
	Enabled   bool    `json:"enabled"`
	MaxAmount float64 `json:"max_amount,omitempty"`
}

// AuthorizeContext is the consent page context.
type AuthorizeContext struct {
	Client Client  `json:"client"`
	Scopes []Scope `json:"scopes"`
	User   User    `json:"user"`
}

// DecisionResult carries the redirect target after a consent decision. On
// allow, RedirectURI contains the code and state query parameters; on deny it
// carries the error indicator.
type DecisionResult struct {
	RedirectURI string `json:"redirect_uri"`
}

// ApproveContext is the charge-approval page context.
type ApproveContext struct {
	Charge      Charge       `json:"charge"`
	Client      Client       `json:"client"`
	Wallet      Wallet       `json:"wallet"`
	AutoApprove *AutoApprove `json:"auto_approve,omitempty"`
}

// ChargeDecision is the payload of a charge verdict. AutoApproveLimit is
// advisory: it accompanies an approve decision and the backend alone decides
// whether future charges bypass interactive consent.
type ChargeDecision struct {
	Decision         ChargeVerdict `json:"decision"`
	AutoApproveLimit float64       `json:"auto_approve_limit,omitempty"`
}

// TopupInfo is the topup page context.
type TopupInfo struct {
	Client Client `json:"client"`
	Wallet Wallet `json:"wallet"`
}

// Token is the result of an authorization-code exchange.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// App is a developer-owned OAuth client application. ClientSecret is present
// only in create and regenerate responses; listings carry MaskedSecret.
type App struct {
	ClientID       string   `json:"client_id"`
	ClientSecret   string   `json:"client_secret,omitempty"`
	MaskedSecret   string   `json:"masked_secret,omitempty"`
	Name           string   `json:"name"`
	LogoURL        string   `json:"logo_url,omitempty"`
	WebsiteURL     string   `json:"website_url,omitempty"`
	RedirectURIs   []string `json:"redirect_uris"`
	AllowedScopes  []string `json:"allowed_scopes"`
	IsConfidential bool     `json:"is_confidential"`
	IsActive       bool     `json:"is_active"`
}

// AppParams are the mutable fields of an App.
type AppParams struct {
	Name          string   `json:"name"`
	LogoURL       string   `json:"logo_url,omitempty"`
	WebsiteURL    string   `json:"website_url,omitempty"`
	RedirectURIs  []string `json:"redirect_uris"`
	AllowedScopes []string `json:"allowed_scopes"`
	Confidential  bool     `json:"is_confidential"`
}
