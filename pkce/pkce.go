// Package pkce implements the Proof Key for Code Exchange pair (RFC 7636)
// used to bind an authorization code to the client that requested it.
//
// Only the S256 challenge method is supported; the plain method is banned by
// the Kimlik backend and is not implemented here.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"
)

// VerifierBytes is the number of random bytes used for the code verifier.
// 32 bytes encode to 43 raw URL base64 characters, the RFC 7636 minimum.
const VerifierBytes = 32

// Method is the challenge method sent as code_challenge_method.
const Method = "S256"

// verifierPattern is the RFC 7636 unreserved alphabet, 43-128 characters.
var verifierPattern = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// Pair is a verifier/challenge pair for a single authorization attempt.
// The verifier must be held until token exchange and then discarded; a Pair
// is never reused across attempts.
type Pair struct {
	Verifier  string
	Challenge string
}

// NewPair generates a fresh Pair from the platform CSPRNG.
//
// If the random source fails, NewPair returns the error; there is no
// fallback to a weaker source.
func NewPair() (Pair, error) {
	b := make([]byte, VerifierBytes)
	if _, err := rand.Read(b); err != nil {
		return Pair{}, fmt.Errorf("pkce: no secure random source: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(b)
	return Pair{Verifier: verifier, Challenge: Challenge(verifier)}, nil
}

// Challenge computes the S256 code challenge for verifier:
// base64url(SHA256(verifier)) without padding.
func Challenge(verifier string) string {
	s := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ValidVerifier reports whether v is a syntactically valid RFC 7636 code
// verifier.
func ValidVerifier(v string) bool {
	return verifierPattern.MatchString(v)
}
