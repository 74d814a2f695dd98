package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kimlikaz/connect/endpoint"
)

var ErrNilSession = errors.New("nil session")

// DefaultSessionCookieName is the cookie holding the sealed platform session.
const DefaultSessionCookieName = "KID"

// DefaultSessionPeriod is the default platform session lifetime. The backend
// access token usually expires sooner; the 401 path handles that.
const DefaultSessionPeriod = 24 * time.Hour

// Session is the signed-in Kimlik user's request-scoped state. The consent
// pages use the stored access token to fetch and submit on the user's behalf.
type Session struct {
	data  *sessionData
	dirty bool
}

// sessionData is the sealed cookie payload.
type sessionData struct {
	AccessToken string    `cbor:"1,keyasint"`
	Subject     string    `cbor:"2,keyasint,omitempty"`
	Expires     time.Time `cbor:"3,keyasint"`
}

// Token returns the stored backend access token. ok is false when the user
// is not signed in.
func (s *Session) Token() (token string, ok bool) {
	if s == nil || s.data == nil {
		return "", false
	}
	return s.data.AccessToken, true
}

// Subject returns the signed-in user identifier, if any.
func (s *Session) Subject() string {
	if s == nil || s.data == nil {
		return ""
	}
	return s.data.Subject
}

// Expires returns the session expiry, or the zero time when signed out.
func (s *Session) Expires() time.Time {
	if s == nil || s.data == nil {
		return time.Time{}
	}
	return s.data.Expires
}

// SignIn replaces the session with a fresh one holding the given access
// token. Any previous session state is discarded.
func (s *Session) SignIn(accessToken, subject string, ttl time.Duration) error {
	if s == nil {
		return ErrNilSession
	}
	if accessToken == "" {
		return errors.New("middleware: empty access token")
	}
	if ttl <= 0 {
		ttl = DefaultSessionPeriod
	}
	s.data = &sessionData{
		AccessToken: accessToken,
		Subject:     subject,
		Expires:     time.Now().Truncate(time.Second).Add(ttl),
	}
	s.dirty = true
	return nil
}

// SignOut clears the session and schedules the cookie for removal.
func (s *Session) SignOut() {
	if s == nil {
		return
	}
	s.data = nil
	s.dirty = true
}

type sessionContextKey struct{}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the Session placed in ctx by SessionProcessor.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || sess == nil {
		return nil, false
	}
	return sess, true
}

// SessionProcessor restores the platform session from its secure cookie and
// persists changes just before response headers are written.
type SessionProcessor struct {
	cookie *SecureCookie
}

// NewSessionProcessor creates a SessionProcessor sealing with keys[keyID].
func NewSessionProcessor(keyID string, keys map[string][]byte, opts ...CookieOption) (*SessionProcessor, error) {
	cookie, err := NewSecureCookie(DefaultSessionCookieName, keyID, keys, opts...)
	if err != nil {
		return nil, err
	}
	return &SessionProcessor{cookie: cookie}, nil
}

// Process implements endpoint.Processor.
func (p *SessionProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if p == nil || p.cookie == nil {
		return errors.New("middleware: session processor without cookie")
	}

	sess := &Session{}
	if c, err := r.Cookie(p.cookie.Name()); err == nil {
		var data sessionData
		if err := p.cookie.Decode(c, &data); err == nil {
			if data.AccessToken != "" && time.Now().Before(data.Expires) {
				sess.data = &data
			} else {
				// Expired. Leave sess signed out and clear the cookie.
				sess.dirty = true
			}
		} else {
			// Tampered or stale format.
			sess.dirty = true
		}
	}

	endpoint.Defer(r.Context(), func(w http.ResponseWriter) {
		p.persist(w, sess)
	})

	*r = *r.WithContext(WithSession(r.Context(), sess))
	return next(w, r)
}

func (p *SessionProcessor) persist(w http.ResponseWriter, sess *Session) {
	if sess == nil || !sess.dirty {
		return
	}
	if sess.data == nil {
		http.SetCookie(w, p.cookie.Clear())
		return
	}
	maxAge := int(time.Until(sess.data.Expires).Seconds())
	if maxAge <= 0 {
		http.SetCookie(w, p.cookie.Clear())
		return
	}
	if c, err := p.cookie.Encode(*sess.data, maxAge); err == nil {
		http.SetCookie(w, c)
	}
}

var _ endpoint.Processor = (*SessionProcessor)(nil)
