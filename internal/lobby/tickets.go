/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Seednode/impostor/internal/session"
)

// Ticket is what the lobby hands back to a player: an opaque token for the
// cookie, and the binding the gateway will resolve it to.
type Ticket struct {
	Token string
	session.Binding
}

type ticketEntry struct {
	binding session.Binding
	expires time.Time
}

// Tickets holds issued lobby sessions until they sit unused for ttl.
type Tickets struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewTickets(ttl time.Duration) *Tickets {
	return &Tickets{
		tickets: make(map[string]ticketEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (t *Tickets) Issue(b session.Binding) Ticket {
	token := uuid.NewString()

	t.mu.Lock()
	t.tickets[token] = ticketEntry{binding: b, expires: t.now().Add(t.ttl)}
	t.mu.Unlock()

	return Ticket{Token: token, Binding: b}
}

// Lookup resolves token and pushes its expiry back.
func (t *Tickets) Lookup(token string) (session.Binding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.tickets[token]
	if !ok {
		return session.Binding{}, false
	}

	now := t.now()
	if now.After(e.expires) {
		delete(t.tickets, token)
		return session.Binding{}, false
	}

	e.expires = now.Add(t.ttl)
	t.tickets[token] = e

	return e.binding, true
}

func (t *Tickets) Revoke(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.tickets, token)
}

func (t *Tickets) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.tickets)
}

// Reap drops expired tickets and returns how many were removed.
func (t *Tickets) Reap() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for token, e := range t.tickets {
		if now.After(e.expires) {
			delete(t.tickets, token)
			removed++
		}
	}
	return removed
}

// Run reaps expired tickets every ttl/2 until ctx is done.
func (t *Tickets) Run(ctx context.Context) {
	if t.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(t.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Reap()
		}
	}
}
