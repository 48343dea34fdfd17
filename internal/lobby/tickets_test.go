/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"testing"
	"time"

	"github.com/Seednode/impostor/internal/session"
)

func TestTicketsExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tickets := NewTickets(time.Minute)
	tickets.now = func() time.Time { return now }

	a := tickets.Issue(session.Binding{Alias: "Ana", Room: "ABCDEF"})
	b := tickets.Issue(session.Binding{Alias: "Bea", Room: "ABCDEF"})
	if a.Token == b.Token {
		t.Fatalf("tokens must be unique")
	}

	// Using a ticket keeps it alive.
	now = now.Add(45 * time.Second)
	if _, ok := tickets.Lookup(a.Token); !ok {
		t.Fatalf("ticket a expired early")
	}

	now = now.Add(30 * time.Second)
	if removed := tickets.Reap(); removed != 1 {
		t.Fatalf("reaped %d tickets, want 1", removed)
	}
	if _, ok := tickets.Lookup(b.Token); ok {
		t.Fatalf("ticket b should have expired")
	}
	if _, ok := tickets.Lookup(a.Token); !ok {
		t.Fatalf("ticket a should still be valid")
	}

	tickets.Revoke(a.Token)
	if tickets.Len() != 0 {
		t.Fatalf("Len = %d after revoke", tickets.Len())
	}
}
