// Package middleware holds the request-scoped plumbing shared by the Kimlik
// consent pages: AEAD-sealed cookies for in-flight flow state, the platform
// session processor, and the page security headers.
package middleware

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrCookieFormat  = errors.New("invalid cookie format")
	ErrCookieInvalid = errors.New("invalid cookie")
	ErrCookieConfig  = errors.New("invalid secure cookie configuration")
)

// maxCookieLen bounds attacker-controlled cookie input before any decoding.
// Browsers cap cookie values around 4KB; we allow some headroom.
const maxCookieLen = 8192

// KeySize is the key length required by the default AEAD (XChaCha20-Poly1305).
const KeySize = chacha20poly1305.KeySize

// SecureCookie seals and opens small structured values in a cookie.
//
// Wire format: keyID "." base64url(nonce || AEAD.Seal(plaintext)), with the
// cookie's name, domain, path and secure flag bound in as AAD so a sealed
// value cannot be replayed under different cookie attributes. Payloads are
// CBOR by default. Keys holds every accepted decryption key; KeyID names the
// one used for sealing, which is how keys rotate.
type SecureCookie struct {
	name     string
	path     string
	domain   string
	secure   bool
	sameSite http.SameSite

	keyID string
	keys  map[string][]byte

	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
	newAEAD   func([]byte) (cipher.AEAD, error)
}

// CookieOption configures a SecureCookie.
type CookieOption func(*SecureCookie)

// WithPath sets the cookie path. Defaults to "/".
func WithPath(path string) CookieOption {
	return func(sc *SecureCookie) { sc.path = path }
}

// WithDomain sets the cookie domain.
func WithDomain(domain string) CookieOption {
	return func(sc *SecureCookie) { sc.domain = domain }
}

// WithSecure sets the Secure flag. Defaults to true; disable only for
// localhost development.
func WithSecure(secure bool) CookieOption {
	return func(sc *SecureCookie) { sc.secure = secure }
}

// WithSameSite sets the SameSite attribute. Defaults to Lax, which is what
// the OAuth redirect round-trip requires: the callback is a top-level
// cross-site navigation and must still carry the state cookie.
func WithSameSite(s http.SameSite) CookieOption {
	return func(sc *SecureCookie) { sc.sameSite = s }
}

// WithAEAD replaces the AEAD constructor (e.g. with AES-GCM).
func WithAEAD(f func([]byte) (cipher.AEAD, error)) CookieOption {
	return func(sc *SecureCookie) { sc.newAEAD = f }
}

// WithCodec replaces the payload marshal/unmarshal functions.
func WithCodec(marshal func(any) ([]byte, error), unmarshal func([]byte, any) error) CookieOption {
	return func(sc *SecureCookie) {
		sc.marshal = marshal
		sc.unmarshal = unmarshal
	}
}

// NewSecureCookie creates a SecureCookie sealing with keys[keyID].
// Every key in keys must be valid for the configured AEAD.
func NewSecureCookie(name, keyID string, keys map[string][]byte, opts ...CookieOption) (*SecureCookie, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty cookie name", ErrCookieConfig)
	}
	sc := &SecureCookie{
		name:      name,
		path:      "/",
		secure:    true,
		sameSite:  http.SameSiteLaxMode,
		keyID:     keyID,
		keys:      keys,
		marshal:   cbor.Marshal,
		unmarshal: cbor.Unmarshal,
		newAEAD:   chacha20poly1305.NewX,
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.path == "" {
		sc.path = "/"
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no keys", ErrCookieConfig)
	}
	if _, ok := keys[keyID]; !ok {
		return nil, fmt.Errorf("%w: keyID %q not present in keys", ErrCookieConfig, keyID)
	}
	for id, k := range keys {
		if _, err := sc.newAEAD(k); err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrCookieConfig, id, err)
		}
	}
	return sc, nil
}

// Name returns the cookie name.
func (sc *SecureCookie) Name() string {
	if sc == nil {
		return ""
	}
	return sc.name
}

// aad binds the cookie attributes into the sealed value.
func (sc *SecureCookie) aad() []byte {
	secure := "f"
	if sc.secure {
		secure = "t"
	}
	return []byte(sc.name + ":" + sc.domain + ":" + sc.path + ":" + secure)
}

// Encode seals plain into an http.Cookie with the given Max-Age in seconds.
func (sc *SecureCookie) Encode(plain any, maxAge int) (*http.Cookie, error) {
	if sc == nil {
		return nil, ErrCookieConfig
	}
	if maxAge <= 0 {
		return nil, ErrCookieInvalid
	}
	plainBytes, err := sc.marshal(plain)
	if err != nil {
		return nil, err
	}

	aead, err := sc.newAEAD(sc.keys[sc.keyID])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, plainBytes, sc.aad())

	return &http.Cookie{
		Name:     sc.name,
		Value:    sc.keyID + "." + base64.RawURLEncoding.EncodeToString(sealed),
		Path:     sc.path,
		Domain:   sc.domain,
		MaxAge:   maxAge,
		Expires:  time.Now().Add(time.Duration(maxAge) * time.Second),
		Secure:   sc.secure,
		HttpOnly: true,
		SameSite: sc.sameSite,
	}, nil
}

// Decode opens cookie and unmarshals the payload into v.
func (sc *SecureCookie) Decode(cookie *http.Cookie, v any) error {
	if sc == nil {
		return ErrCookieConfig
	}
	if cookie == nil {
		return ErrCookieFormat
	}
	value := cookie.Value
	if value == "" || len(value) > maxCookieLen {
		return ErrCookieFormat
	}
	keyID, encoded, ok := strings.Cut(value, ".")
	if !ok || keyID == "" || encoded == "" {
		return ErrCookieFormat
	}
	key, ok := sc.keys[keyID]
	if !ok {
		return ErrCookieInvalid
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ErrCookieFormat
	}
	aead, err := sc.newAEAD(key)
	if err != nil {
		return err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return ErrCookieFormat
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, sc.aad())
	if err != nil {
		return ErrCookieInvalid
	}
	return sc.unmarshal(plain, v)
}

// Clear returns a cookie that removes this cookie from the client.
func (sc *SecureCookie) Clear() *http.Cookie {
	if sc == nil {
		return nil
	}
	return &http.Cookie{
		Name:     sc.name,
		Path:     sc.path,
		Domain:   sc.domain,
		Value:    "",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   sc.secure,
		HttpOnly: true,
		SameSite: sc.sameSite,
	}
}
