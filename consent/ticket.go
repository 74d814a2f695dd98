package consent

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kimlikaz/connect/api"
)

// ErrTicketInvalid reports a decision ticket that is unknown, expired, or
// already redeemed.
var ErrTicketInvalid = errors.New("consent: invalid or expired decision ticket")

// DefaultTicketTTL is how long a rendered decision form stays submittable.
const DefaultTicketTTL = 10 * time.Minute

// ticketIDBytes is the entropy of a ticket identifier.
const ticketIDBytes = 32

// ticket binds a rendered decision form to the exact context-fetch
// parameters. The POSTed form carries only the ticket; the parameters come
// back out of the store, so nothing the user-agent submits can change them.
type ticket struct {
	Authorize     *api.AuthorizeParams
	ChargeID      string
	TopupClientID string
	TopupState    string

	// TargetOrigin is resolved from the client record at render time, so
	// the done page never posts to an origin the form could have chosen.
	TargetOrigin string
}

// ticketStore issues and redeems single-use decision tickets.
//
// Redeem deletes on read: a second POST with the same ticket (double click,
// replay, retry of an already-accepted decision) finds nothing. The cache
// has no atomic take, so the Get/Delete pair runs under mu; without it two
// concurrent POSTs could both redeem the same ticket.
type ticketStore struct {
	mu sync.Mutex
	c  *cache.Cache
}

func newTicketStore(ttl time.Duration) *ticketStore {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &ticketStore{c: cache.New(ttl, ttl/2)}
}

// issue stores t under a fresh random identifier.
func (s *ticketStore) issue(t ticket) (string, error) {
	b := make([]byte, ticketIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("consent: no secure random source: %w", err)
	}
	id := base64.RawURLEncoding.EncodeToString(b)
	s.c.Set(id, t, cache.DefaultExpiration)
	return id, nil
}

// redeem returns the ticket for id exactly once, however many callers race
// for it.
func (s *ticketStore) redeem(id string) (ticket, error) {
	if id == "" {
		return ticket{}, ErrTicketInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.c.Get(id)
	if !ok {
		return ticket{}, ErrTicketInvalid
	}
	s.c.Delete(id)
	t, ok := v.(ticket)
	if !ok {
		return ticket{}, ErrTicketInvalid
	}
	return t, nil
}

// restore puts a redeemed ticket back after a failed submit, so the user
// can retry the decision without restarting the flow. The concurrent
// double-submit still loses: it redeems nothing while the first attempt is
// in flight.
func (s *ticketStore) restore(id string, t ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Set(id, t, cache.DefaultExpiration)
}
