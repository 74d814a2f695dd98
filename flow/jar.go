package flow

import (
	"errors"
	"net/http"
	"time"

	"github.com/kimlikaz/connect/middleware"
)

// DefaultJarCookieName is the cookie holding pending authorization state.
const DefaultJarCookieName = "kfs"

// maxPending bounds concurrent pending authorizations per user agent. It
// keeps the cookie small and limits the replay surface of stored verifiers.
const maxPending = 3

// pendingTTL is how long a pending authorization stays redeemable.
const pendingTTL = time.Hour

var (
	// ErrNoPending reports a callback state with no stored pending
	// authorization: already redeemed, expired, evicted, or never ours.
	ErrNoPending = errors.New("flow: no pending authorization for state")
)

// pendingAuth is the sealed record for one in-flight authorization.
type pendingAuth struct {
	Verifier string `cbor:"1,keyasint"`
	Nonce    string `cbor:"2,keyasint,omitempty"`
	ReturnTo string `cbor:"3,keyasint,omitempty"`
	// ExpiresAt is unix nanoseconds; full precision keeps the oldest-entry
	// eviction order exact.
	ExpiresAt int64 `cbor:"4,keyasint"`
}

// pendingMap is the cookie payload, keyed by state.
type pendingMap map[string]pendingAuth

// Jar stores pending authorizations in an AEAD secure cookie for
// redirect-mode integrations, where the process serving the callback may not
// be the one that started the flow. Each entry is redeemable exactly once:
// Pop removes it from the cookie in the same response.
type Jar struct {
	cookie *middleware.SecureCookie
}

// NewJar creates a Jar sealing with keys[keyID].
func NewJar(keyID string, keys map[string][]byte, opts ...middleware.CookieOption) (*Jar, error) {
	cookie, err := middleware.NewSecureCookie(DefaultJarCookieName, keyID, keys, opts...)
	if err != nil {
		return nil, err
	}
	return &Jar{cookie: cookie}, nil
}

// Put stores a's verifier keyed by its state, alongside a post-login return
// target. Expired entries are dropped; if the jar is still full the entry
// closest to expiry is evicted.
func (j *Jar) Put(w http.ResponseWriter, r *http.Request, a *Authorization, returnTo string) error {
	pending := j.read(r)

	now := time.Now()
	for state, p := range pending {
		if now.UnixNano() > p.ExpiresAt {
			delete(pending, state)
		}
	}
	if len(pending) >= maxPending {
		var oldest string
		var oldestAt int64
		for state, p := range pending {
			if oldest == "" || p.ExpiresAt < oldestAt {
				oldest, oldestAt = state, p.ExpiresAt
			}
		}
		delete(pending, oldest)
	}

	pending[a.State] = pendingAuth{
		Verifier:  a.verifier,
		Nonce:     a.nonce,
		ReturnTo:  returnTo,
		ExpiresAt: now.Add(pendingTTL).UnixNano(),
	}
	return j.write(w, pending)
}

// Pop redeems the pending authorization for state. The reconstructed
// Authorization is unconsumed and ready for Client.Complete; the stored entry
// is removed so a second Pop for the same state fails with ErrNoPending.
func (j *Jar) Pop(w http.ResponseWriter, r *http.Request, state string) (*Authorization, string, error) {
	c, err := r.Cookie(j.cookie.Name())
	if err != nil {
		return nil, "", ErrNoPending
	}
	var pending pendingMap
	if err := j.cookie.Decode(c, &pending); err != nil {
		return nil, "", ErrNoPending
	}

	p, ok := pending[state]
	if !ok {
		return nil, "", ErrNoPending
	}
	delete(pending, state)
	if err := j.write(w, pending); err != nil {
		return nil, "", err
	}
	if time.Now().UnixNano() > p.ExpiresAt {
		return nil, "", ErrNoPending
	}

	return &Authorization{
		State:    state,
		verifier: p.Verifier,
		nonce:    p.Nonce,
		created:  time.Unix(0, p.ExpiresAt).Add(-pendingTTL),
	}, p.ReturnTo, nil
}

func (j *Jar) read(r *http.Request) pendingMap {
	pending := pendingMap{}
	if c, err := r.Cookie(j.cookie.Name()); err == nil {
		// A stale or tampered cookie starts over empty.
		if err := j.cookie.Decode(c, &pending); err != nil {
			pending = pendingMap{}
		}
	}
	return pending
}

func (j *Jar) write(w http.ResponseWriter, pending pendingMap) error {
	if len(pending) == 0 {
		http.SetCookie(w, j.cookie.Clear())
		return nil
	}
	c, err := j.cookie.Encode(pending, int(pendingTTL.Seconds()))
	if err != nil {
		return err
	}
	http.SetCookie(w, c)
	return nil
}
