package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const (
	// TicketTTL is how long an issued WebSocket ticket stays redeemable.
	TicketTTL = 60 * time.Second

	// ticketBytes is the ticket entropy (256-bit).
	ticketBytes = 32
)

// TicketStore issues and redeems single-use WebSocket tickets.
//
// Browsers cannot set an Authorization header on a WebSocket upgrade,
// so the client first trades its JWT for a short-lived ticket over
// HTTPS and passes the ticket as a query parameter. Each ticket
// redeems exactly once; a replayed or stale ticket is rejected.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]ticket

	// now is stubbed in tests.
	now func() time.Time
}

type ticket struct {
	username  string
	expiresAt time.Time
}

// NewTicketStore creates an empty ticket store.
func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets: make(map[string]ticket),
		now:     time.Now,
	}
}

// Issue mints a ticket bound to username, valid for one minute.
func (s *TicketStore) Issue(username string) (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating ticket: %w", err)
	}
	tok := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeLocked(now)
	s.tickets[tok] = ticket{username: username, expiresAt: now.Add(TicketTTL)}

	return tok, nil
}

// Redeem consumes a ticket and returns the bound username. The ticket
// is removed whether or not redemption succeeds.
func (s *TicketStore) Redeem(tok string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tickets[tok]
	if !ok {
		return "", ErrTicketInvalid
	}
	delete(s.tickets, tok)

	if s.now().After(entry.expiresAt) {
		return "", ErrTicketExpired
	}
	return entry.username, nil
}

// purgeLocked drops expired tickets. Caller holds mu.
func (s *TicketStore) purgeLocked(now time.Time) {
	for tok, entry := range s.tickets {
		if now.After(entry.expiresAt) {
			delete(s.tickets, tok)
		}
	}
}
