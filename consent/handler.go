package consent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kimlikaz/connect/api"
	"github.com/kimlikaz/connect/bridge"
	"github.com/kimlikaz/connect/endpoint"
	"github.com/kimlikaz/connect/middleware"
)

// defaultCloseDelayMS is how long the done page waits after posting its
// message before closing itself.
const defaultCloseDelayMS = 1500

// Handler serves the consent, charge-approval and topup pages.
//
// Routes (mount at the backend's public host root):
//
//	GET  /oauth/authorize          consent form
//	POST /oauth/authorize          consent decision
//	GET  /oauth/approve/{chargeID} charge form
//	POST /oauth/approve/{chargeID} charge verdict
//	GET  /oauth/topup              topup form
//	POST /oauth/topup              topup confirm/cancel
type Handler struct {
	mux       *http.ServeMux
	backend   *api.Caller
	loginURL  string
	publicURL string
	tickets   *ticketStore

	processors []endpoint.Processor
}

// Option configures a Handler.
type Option func(*handlerConfig)

type handlerConfig struct {
	processors []endpoint.Processor
	ticketTTL  time.Duration
}

// WithProcessors appends endpoint processors (session, page headers) to
// every route.
func WithProcessors(p ...endpoint.Processor) Option {
	return func(c *handlerConfig) { c.processors = append(c.processors, p...) }
}

// WithTicketTTL overrides how long a rendered decision form stays
// submittable.
func WithTicketTTL(ttl time.Duration) Option {
	return func(c *handlerConfig) { c.ticketTTL = ttl }
}

// NewHandler creates the consent page handler.
//
// backend is an unauthenticated api.Caller; each request rebinds it to the
// session's access token. loginURL is the platform login page, which
// receives return_to so an interrupted flow resumes after authentication.
// publicURL is this deployment's own base URL, used to build return targets.
func NewHandler(backend *api.Caller, loginURL, publicURL string, opts ...Option) (*Handler, error) {
	if backend == nil {
		return nil, errors.New("consent: nil backend caller")
	}
	if loginURL == "" {
		return nil, errors.New("consent: missing login URL")
	}
	cfg := handlerConfig{ticketTTL: DefaultTicketTTL}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Handler{
		mux:        http.NewServeMux(),
		backend:    backend,
		loginURL:   loginURL,
		publicURL:  strings.TrimRight(publicURL, "/"),
		tickets:    newTicketStore(cfg.ticketTTL),
		processors: cfg.processors,
	}

	h.mux.HandleFunc("GET /oauth/authorize", endpoint.HandleFunc(h.getAuthorize, h.processors...))
	h.mux.HandleFunc("POST /oauth/authorize", endpoint.HandleFunc(h.postAuthorize, h.processors...))
	h.mux.HandleFunc("GET /oauth/approve/{chargeID}", endpoint.HandleFunc(h.getCharge, h.processors...))
	h.mux.HandleFunc("POST /oauth/approve/{chargeID}", endpoint.HandleFunc(h.postCharge, h.processors...))
	h.mux.HandleFunc("GET /oauth/topup", endpoint.HandleFunc(h.getTopup, h.processors...))
	h.mux.HandleFunc("POST /oauth/topup", endpoint.HandleFunc(h.postTopup, h.processors...))

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// sessionCaller returns the backend caller bound to the session's access
// token, or false when the user is not signed in.
func (h *Handler) sessionCaller(r *http.Request) (*api.Caller, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		return nil, false
	}
	token, ok := sess.Token()
	if !ok {
		return nil, false
	}
	return h.backend.WithToken(token), true
}

// loginRedirect sends the user to the platform login carrying the current
// URL, so the flow resumes where it was interrupted.
func (h *Handler) loginRedirect(r *http.Request) endpoint.Renderer {
	returnTo := h.publicURL + r.URL.RequestURI()
	sep := "?"
	if strings.Contains(h.loginURL, "?") {
		sep = "&"
	}
	return &endpoint.RedirectRenderer{URL: h.loginURL + sep + "return_to=" + url.QueryEscape(returnTo)}
}

// normLocale narrows a requested locale to the supported set.
func normLocale(l string) string {
	switch l {
	case "az", "en", "ru":
		return l
	}
	return "az"
}

// originOf returns the origin of rawURL, or "" when it has none.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

type errorPage struct {
	Locale  string
	T       pageStrings
	Message string
}

// errorRenderer renders the terminal error page. msg is shown verbatim, so
// only backend-provided or table messages belong here.
func errorRenderer(status int, locale, msg string) endpoint.Renderer {
	return &endpoint.TemplateRenderer{
		Status:   status,
		Template: pageTemplates,
		Name:     "error",
		Values:   errorPage{Locale: locale, T: textFor(locale), Message: msg},
	}
}

// failure maps a backend call error to the error page. Unauthenticated is
// handled by callers before this.
func failure(locale string, err error) endpoint.Renderer {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		return errorRenderer(status, locale, apiErr.Error())
	}
	return errorRenderer(http.StatusBadGateway, locale, textFor(locale).ServiceUnavailable)
}

type donePage struct {
	Locale       string
	T            pageStrings
	Heading      string
	Payload      map[string]any
	TargetOrigin string
	RedirectURI  string
	CloseDelayMS int
}

func doneRenderer(p donePage) endpoint.Renderer {
	p.T = textFor(p.Locale)
	if p.CloseDelayMS == 0 {
		p.CloseDelayMS = defaultCloseDelayMS
	}
	if p.TargetOrigin == "" {
		// Without a known embedder origin the payload must not be posted
		// anywhere; the page falls back to redirect-or-close.
		p.Payload = nil
	}
	return &endpoint.TemplateRenderer{Template: pageTemplates, Name: "done", Values: p}
}

// --- consent (authorize) page ---

type authorizePageParams struct {
	ClientID            string `query:"client_id"`
	RedirectURI         string `query:"redirect_uri"`
	ResponseType        string `query:"response_type"`
	Scope               string `query:"scope"`
	State               string `query:"state"`
	CodeChallenge       string `query:"code_challenge"`
	CodeChallengeMethod string `query:"code_challenge_method"`
	Locale              string `query:"locale"`
}

type scopeView struct {
	Title       string
	Description string
}

type consentPage struct {
	Locale string
	T      pageStrings
	Client api.Client
	User   api.User
	Scopes []scopeView
	Ticket string
}

func (h *Handler) getAuthorize(w http.ResponseWriter, r *http.Request, p authorizePageParams) (endpoint.Renderer, error) {
	locale := normLocale(p.Locale)
	caller, ok := h.sessionCaller(r)
	if !ok {
		return h.loginRedirect(r), nil
	}

	ap := api.AuthorizeParams{
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		ResponseType:        p.ResponseType,
		Scope:               p.Scope,
		State:               p.State,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
	}

	ctrl := NewController[*api.AuthorizeContext]()
	cx, err := ctrl.Load(r.Context(), func(ctx context.Context) (*api.AuthorizeContext, error) {
		return caller.AuthorizeContext(ctx, ap)
	})
	if errors.Is(err, api.ErrUnauthenticated) {
		return h.loginRedirect(r), nil
	}
	if err != nil {
		return failure(locale, err), nil
	}

	ticketID, err := h.tickets.issue(ticket{Authorize: &ap})
	if err != nil {
		return nil, endpoint.Errorf(http.StatusInternalServerError, "could not prepare decision form", err)
	}

	views := make([]scopeView, 0, len(cx.Scopes))
	for _, s := range cx.Scopes {
		views = append(views, scopeView{
			Title:       api.Local(s.DisplayName, locale),
			Description: api.Local(s.Description, locale),
		})
	}

	return &endpoint.TemplateRenderer{
		Template: pageTemplates,
		Name:     "consent",
		Values: consentPage{
			Locale: locale,
			T:      textFor(locale),
			Client: cx.Client,
			User:   cx.User,
			Scopes: views,
			Ticket: ticketID,
		},
	}, nil
}

type decisionFormParams struct {
	Ticket   string `form:"ticket"`
	Decision string `form:"decision"`
	Locale   string `form:"locale"`
}

func (h *Handler) postAuthorize(w http.ResponseWriter, r *http.Request, p decisionFormParams) (endpoint.Renderer, error) {
	locale := normLocale(p.Locale)
	caller, ok := h.sessionCaller(r)
	if !ok {
		return h.loginRedirect(r), nil
	}

	var decision api.Decision
	switch p.Decision {
	case "allow":
		decision = api.DecisionAllow
	case "deny":
		decision = api.DecisionDeny
	default:
		return errorRenderer(http.StatusBadRequest, locale, textFor(locale).UnknownDecision), nil
	}

	t, err := h.tickets.redeem(p.Ticket)
	if err != nil || t.Authorize == nil {
		return errorRenderer(http.StatusBadRequest, locale, textFor(locale).ConsentGone), nil
	}
	ap := *t.Authorize

	ctrl := NewReadyController(ap)
	var res *api.DecisionResult
	err = ctrl.Submit(r.Context(), func(ctx context.Context) error {
		var submitErr error
		res, submitErr = caller.Decide(ctx, ap, decision)
		return submitErr
	})
	if errors.Is(err, api.ErrUnauthenticated) {
		h.tickets.restore(p.Ticket, t)
		return h.loginRedirect(r), nil
	}
	if err != nil {
		// The decision was not accepted; the ticket goes back so the user
		// can retry without restarting the flow.
		h.tickets.restore(p.Ticket, t)
		return failure(locale, err), nil
	}

	msgType := bridge.TypeOAuthSuccess
	heading := textFor(locale).AccessGranted
	if decision == api.DecisionDeny {
		msgType = bridge.TypeOAuthDenied
		heading = textFor(locale).AccessDenied
	}
	payload := map[string]any{"type": msgType, "state": ap.State}
	if msgType == bridge.TypeOAuthSuccess {
		payload["redirect_uri"] = res.RedirectURI
	}

	return doneRenderer(donePage{
		Locale:       locale,
		Heading:      heading,
		Payload:      payload,
		TargetOrigin: originOf(ap.RedirectURI),
		RedirectURI:  res.RedirectURI,
	}), nil
}

// --- charge approval page ---

type chargePageParams struct {
	ChargeID string `path:"chargeID"`
	Locale   string `query:"locale"`
}

type chargePage struct {
	Locale         string
	T              pageStrings
	Client         api.Client
	Charge         api.Charge
	Wallet         api.Wallet
	AutoApprove    api.AutoApprove
	ApproveEnabled bool
	Ticket         string
}

func (h *Handler) getCharge(w http.ResponseWriter, r *http.Request, p chargePageParams) (endpoint.Renderer, error) {
	locale := normLocale(p.Locale)
	caller, ok := h.sessionCaller(r)
	if !ok {
		return h.loginRedirect(r), nil
	}

	ctrl := NewController[*api.ApproveContext]()
	cx, err := ctrl.Load(r.Context(), func(ctx context.Context) (*api.ApproveContext, error) {
		return caller.ApproveContext(ctx, p.ChargeID)
	})
	if errors.Is(err, api.ErrUnauthenticated) {
		return h.loginRedirect(r), nil
	}
	if err != nil {
		return failure(locale, err), nil
	}

	ticketID, err := h.tickets.issue(ticket{
		ChargeID:     cx.Charge.ID,
		TargetOrigin: originOf(cx.Client.WebsiteURL),
	})
	if err != nil {
		return nil, endpoint.Errorf(http.StatusInternalServerError, "could not prepare decision form", err)
	}

	var auto api.AutoApprove
	if cx.AutoApprove != nil {
		auto = *cx.AutoApprove
	}

	return &endpoint.TemplateRenderer{
		Template: pageTemplates,
		Name:     "charge",
		Values: chargePage{
			Locale:      locale,
			T:           textFor(locale),
			Client:      cx.Client,
			Charge:      cx.Charge,
			Wallet:      cx.Wallet,
			AutoApprove: auto,
			// The server's flags are the only authority here; this merely
			// combines them for the button.
			ApproveEnabled: cx.Charge.CanApprove && !cx.Charge.IsExpired && cx.Wallet.Sufficient,
			Ticket:         ticketID,
		},
	}, nil
}

type chargeFormParams struct {
	ChargeID         string  `path:"chargeID"`
	Ticket           string  `form:"ticket"`
	Decision         string  `form:"decision"`
	AutoApprove      bool    `form:"auto_approve"`
	AutoApproveLimit float64 `form:"auto_approve_limit"`
	Locale           string  `form:"locale"`
}

func (h *Handler) postCharge(w http.ResponseWriter, r *http.Request, p chargeFormParams) (endpoint.Renderer, error) {
	locale := normLocale(p.Locale)
	caller, ok := h.sessionCaller(r)
	if !ok {
		return h.loginRedirect(r), nil
	}

	var verdict api.ChargeVerdict
	switch p.Decision {
	case "approve":
		verdict = api.ChargeApprove
	case "reject":
		verdict = api.ChargeReject
	default:
		return errorRenderer(http.StatusBadRequest, locale, textFor(locale).UnknownDecision), nil
	}

	t, err := h.tickets.redeem(p.Ticket)
	if err != nil || t.ChargeID == "" || t.ChargeID != p.ChargeID {
		return errorRenderer(http.StatusBadRequest, locale, textFor(locale).ChargeGone), nil
	}

	d := api.ChargeDecision{Decision: verdict}
	if verdict == api.ChargeApprove && p.AutoApprove && p.AutoApproveLimit > 0 {
		d.AutoApproveLimit = p.AutoApproveLimit
	}

	ctrl := NewReadyController(t)
	err = ctrl.Submit(r.Context(), func(ctx context.Context) error {
		return caller.DecideCharge(ctx, t.ChargeID, d)
	})
	if errors.Is(err, api.ErrUnauthenticated) {
		h.tickets.restore(p.Ticket, t)
		return h.loginRedirect(r), nil
	}
	if err != nil {
		h.tickets.restore(p.Ticket, t)
		return failure(locale, err), nil
	}

	msgType := bridge.TypeChargeApproved
	heading := textFor(locale).PaymentApproved
	if verdict == api.ChargeReject {
		msgType = bridge.TypeChargeRejected
		heading = textFor(locale).PaymentRejected
	}

	return doneRenderer(donePage{
		Locale:       locale,
		Heading:      heading,
		Payload:      map[string]any{"type": msgType, "charge_id": t.ChargeID},
		TargetOrigin: t.TargetOrigin,
	}), nil
}

// --- topup page ---

type topupPageParams struct {
	ClientID string `query:"client_id"`
	State    string `query:"state"`
	Locale   string `query:"locale"`
}

type topupPage struct {
	Locale string
	T      pageStrings
	Client api.Client
	Wallet api.Wallet
	Ticket string
}

func (h *Handler) getTopup(w http.ResponseWriter, r *http.Request, p topupPageParams) (endpoint.Renderer, error) {
	locale := normLocale(p.Locale)
	caller, ok := h.sessionCaller(r)
	if !ok {
		return h.loginRedirect(r), nil
	}

	ctrl := NewController[*api.TopupInfo]()
	cx, err := ctrl.Load(r.Context(), func(ctx context.Context) (*api.TopupInfo, error) {
		return caller.TopupInfo(ctx, p.ClientID)
	})
	if errors.Is(err, api.ErrUnauthenticated) {
		return h.loginRedirect(r), nil
	}
	if err != nil {
		return failure(locale, err), nil
	}

	ticketID, err := h.tickets.issue(ticket{
		TopupClientID: p.ClientID,
		TopupState:    p.State,
		TargetOrigin:  originOf(cx.Client.WebsiteURL),
	})
	if err != nil {
		return nil, endpoint.Errorf(http.StatusInternalServerError, "could not prepare topup form", err)
	}

	return &endpoint.TemplateRenderer{
		Template: pageTemplates,
		Name:     "topup",
		Values: topupPage{
			Locale: locale,
			T:      textFor(locale),
			Client: cx.Client,
			Wallet: cx.Wallet,
			Ticket: ticketID,
		},
	}, nil
}

type topupFormParams struct {
	Ticket   string  `form:"ticket"`
	Decision string  `form:"decision"`
	Amount   float64 `form:"amount"`
	Locale   string  `form:"locale"`
}

func (h *Handler) postTopup(w http.ResponseWriter, r *http.Request, p topupFormParams) (endpoint.Renderer, error) {
	locale := normLocale(p.Locale)
	caller, ok := h.sessionCaller(r)
	if !ok {
		return h.loginRedirect(r), nil
	}

	t, err := h.tickets.redeem(p.Ticket)
	if err != nil || t.TopupClientID == "" {
		return errorRenderer(http.StatusBadRequest, locale, textFor(locale).TopupGone), nil
	}

	switch p.Decision {
	case "cancel":
		return doneRenderer(donePage{
			Locale:       locale,
			Heading:      textFor(locale).TopupCancelled,
			Payload:      map[string]any{"type": bridge.TypeTopupCancelled, "state": t.TopupState},
			TargetOrigin: t.TargetOrigin,
		}), nil
	case "confirm":
	default:
		return errorRenderer(http.StatusBadRequest, locale, textFor(locale).UnknownDecision), nil
	}

	if p.Amount <= 0 {
		h.tickets.restore(p.Ticket, t)
		return errorRenderer(http.StatusBadRequest, locale, textFor(locale).AmountNotPositive), nil
	}

	ctrl := NewReadyController(t)
	var chargeID string
	err = ctrl.Submit(r.Context(), func(ctx context.Context) error {
		var submitErr error
		chargeID, submitErr = caller.CreateTopup(ctx, t.TopupClientID, p.Amount)
		return submitErr
	})
	if errors.Is(err, api.ErrUnauthenticated) {
		h.tickets.restore(p.Ticket, t)
		return h.loginRedirect(r), nil
	}
	if err != nil {
		h.tickets.restore(p.Ticket, t)
		return failure(locale, err), nil
	}

	return doneRenderer(donePage{
		Locale:  locale,
		Heading: fmt.Sprintf(textFor(locale).TopupStarted, p.Amount),
		Payload: map[string]any{
			"type":      bridge.TypeTopupCompleted,
			"charge_id": chargeID,
			"state":     t.TopupState,
		},
		TargetOrigin: t.TargetOrigin,
	}), nil
}
