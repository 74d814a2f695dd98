package middleware

import (
	"net/http"

	"github.com/kimlikaz/connect/endpoint"
)

// PageHeadersProcessor sets the response headers every consent/charge/topup
// page must carry.
//
// Defaults:
//   - Cache-Control: no-store (plus Pragma: no-cache). These pages embed
//     one-shot decision tokens and OAuth parameters that must never be
//     replayed from a cache.
//   - Cross-Origin-Opener-Policy: unsafe-none. The consent window signals
//     its result to window.opener via postMessage; an isolating COOP value
//     would sever that link.
//   - X-Frame-Options: DENY. Consent is never collected inside a frame.
//   - X-Content-Type-Options: nosniff.
//   - Referrer-Policy: strict-origin-when-cross-origin.
//   - A Content-Security-Policy restricted to self plus the inline
//     postMessage scriptlet on the done page.
type PageHeadersProcessor struct {
	CacheControl          string
	OpenerPolicy          string
	FrameOptions          string
	ReferrerPolicy        string
	ContentSecurityPolicy string
	ContentTypeOptions    bool
}

// PageHeadersOption configures a PageHeadersProcessor.
type PageHeadersOption func(*PageHeadersProcessor)

// WithContentSecurityPolicy overrides the default CSP.
func WithContentSecurityPolicy(csp string) PageHeadersOption {
	return func(p *PageHeadersProcessor) { p.ContentSecurityPolicy = csp }
}

// WithFrameAncestors allows the widget frame to be embedded by origin.
// Used only by the widget loader route, never by consent pages.
func WithFrameAncestors(origin string) PageHeadersOption {
	return func(p *PageHeadersProcessor) {
		p.FrameOptions = ""
		p.ContentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; frame-ancestors " + origin
	}
}

// NewPageHeadersProcessor creates a PageHeadersProcessor with the consent
// page defaults.
func NewPageHeadersProcessor(opts ...PageHeadersOption) *PageHeadersProcessor {
	p := &PageHeadersProcessor{
		CacheControl:          "no-store",
		OpenerPolicy:          "unsafe-none",
		FrameOptions:          "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' https:",
		ContentTypeOptions:    true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process implements endpoint.Processor.
func (p *PageHeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if p.CacheControl != "" {
		h.Set("Cache-Control", p.CacheControl)
		h.Set("Pragma", "no-cache")
	}
	if p.OpenerPolicy != "" {
		h.Set("Cross-Origin-Opener-Policy", p.OpenerPolicy)
	}
	if p.FrameOptions != "" {
		h.Set("X-Frame-Options", p.FrameOptions)
	}
	if p.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", p.ReferrerPolicy)
	}
	if p.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", p.ContentSecurityPolicy)
	}
	if p.ContentTypeOptions {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	return next(w, r)
}

var _ endpoint.Processor = (*PageHeadersProcessor)(nil)
