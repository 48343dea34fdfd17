/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Seednode/impostor/internal/game"
	"github.com/Seednode/impostor/internal/store"
)

func newTestLobby(t *testing.T) (*Lobby, *store.Memory, *Tickets) {
	t.Helper()

	mem := store.NewMemory()
	tickets := NewTickets(time.Hour)

	return New(store.NewRooms(mem), tickets, zap.NewNop().Sugar()), mem, tickets
}

func TestGenerateRoomCode(t *testing.T) {
	for range 100 {
		code, err := GenerateRoomCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != CodeLength {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		for _, r := range code {
			if r < 'A' || r > 'Z' {
				t.Fatalf("code %q contains %q", code, r)
			}
		}
	}
}

func TestJoinAllocatesRoom(t *testing.T) {
	ctx := context.Background()
	l, mem, tickets := newTestLobby(t)

	ticket, err := l.Join(ctx, "  Ana ", "")
	if err != nil {
		t.Fatal(err)
	}
	if ticket.Alias != "Ana" || len(ticket.Room) != CodeLength {
		t.Fatalf("unexpected ticket %+v", ticket)
	}

	snap, err := mem.Get(ctx, ticket.Room)
	if err != nil {
		t.Fatalf("room was not created: %v", err)
	}
	if len(snap.Players) != 0 {
		t.Fatalf("the lobby must not seat players: %+v", snap.Players)
	}

	b, ok := l.Resolve(ticket.Token)
	if !ok || b != ticket.Binding {
		t.Fatalf("ticket did not resolve: %+v %v", b, ok)
	}
	if tickets.Len() != 1 {
		t.Fatalf("expected one ticket, got %d", tickets.Len())
	}
}

func TestJoinNormalizesRoom(t *testing.T) {
	l, _, _ := newTestLobby(t)

	ticket, err := l.Join(context.Background(), "Ana", " abcdef ")
	if err != nil {
		t.Fatal(err)
	}
	if ticket.Room != "ABCDEF" {
		t.Fatalf("room = %q", ticket.Room)
	}
}

func TestJoinValidation(t *testing.T) {
	ctx := context.Background()
	l, mem, tickets := newTestLobby(t)

	seated := &game.Snapshot{Players: []game.Player{{Conn: "c1", Alias: "bob"}}}
	if err := mem.Set(ctx, "ABCDEF", seated); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		alias string
		room  string
		field string
	}{
		{"empty alias", "   ", "", "alias"},
		{"long alias", "abcdefghijklmnopqrstuvwxyzabcdefg", "", "alias"},
		{"duplicate alias ignoring case", "Bob", "ABCDEF", "alias"},
		{"bad room code", "Ana", "AB-CD", "room"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Join(ctx, tt.alias, tt.room)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}

	if tickets.Len() != 0 {
		t.Fatalf("rejected joins must not issue tickets, got %d", tickets.Len())
	}

	if _, err := l.Join(ctx, "Carla", "ABCDEF"); err != nil {
		t.Fatalf("distinct alias should be admitted: %v", err)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	l, _, _ := newTestLobby(t)

	if _, ok := l.Resolve(""); ok {
		t.Fatalf("empty token resolved")
	}
	if _, ok := l.Resolve("nope"); ok {
		t.Fatalf("unknown token resolved")
	}
}

func TestRevokeEndsSession(t *testing.T) {
	l, _, tickets := newTestLobby(t)

	ticket, err := l.Join(context.Background(), "Ana", "ABCDEF")
	if err != nil {
		t.Fatal(err)
	}

	l.Revoke(ticket.Token)

	if _, ok := l.Resolve(ticket.Token); ok {
		t.Fatalf("revoked ticket still resolves")
	}
	if tickets.Len() != 0 {
		t.Fatalf("tickets = %d, want 0", tickets.Len())
	}
}
