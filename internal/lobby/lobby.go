/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package lobby hands out room codes and session tickets.
package lobby

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/Seednode/impostor/internal/game"
	"github.com/Seednode/impostor/internal/session"
	"github.com/Seednode/impostor/internal/store"
)

const (
	// CodeLength is the length of generated room codes.
	CodeLength = 6

	// CodeChars are the characters used for generated room codes.
	CodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	maxRoomLength  = 32
	maxAliasLength = 32
	maxCodeTries   = 32
)

var ErrNoFreeCode = errors.New("could not allocate an unused room code")

// ValidationError is a problem with what the player typed. Message is
// safe to show back to them.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// GenerateRoomCode returns a random room code.
func GenerateRoomCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(CodeChars))))
		if err != nil {
			return "", err
		}
		code[i] = CodeChars[n.Int64()]
	}
	return string(code), nil
}

// NormalizeRoom canonicalizes a user-typed room code.
func NormalizeRoom(room string) string {
	return strings.ToUpper(strings.TrimSpace(room))
}

func validRoom(room string) bool {
	if len(room) > maxRoomLength {
		return false
	}
	for _, r := range room {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

type Lobby struct {
	rooms   *store.Rooms
	tickets *Tickets
	log     *zap.SugaredLogger
}

func New(rooms *store.Rooms, tickets *Tickets, log *zap.SugaredLogger) *Lobby {
	return &Lobby{rooms: rooms, tickets: tickets, log: log}
}

func (l *Lobby) uniqueRoomCode(ctx context.Context) (string, error) {
	for range maxCodeTries {
		code, err := GenerateRoomCode()
		if err != nil {
			return "", err
		}

		exists, err := l.rooms.Exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrNoFreeCode
}

// Join validates alias for room (allocating a fresh room when room is
// empty), creates the room if needed, and issues a ticket.
func (l *Lobby) Join(ctx context.Context, alias, room string) (Ticket, error) {
	alias = strings.TrimSpace(alias)
	switch {
	case alias == "":
		return Ticket{}, &ValidationError{Field: "alias", Message: "Please choose an alias."}
	case len(alias) > maxAliasLength:
		return Ticket{}, &ValidationError{Field: "alias", Message: fmt.Sprintf("Aliases are limited to %d characters.", maxAliasLength)}
	}

	room = NormalizeRoom(room)
	if room == "" {
		var err error
		room, err = l.uniqueRoomCode(ctx)
		if err != nil {
			return Ticket{}, err
		}
		l.log.Debugw("allocated room", "room", room)
	} else if !validRoom(room) {
		return Ticket{}, &ValidationError{Field: "room", Message: "Room codes may only contain letters and digits."}
	}

	err := l.rooms.Update(ctx, room, func(snap *game.Snapshot) (*game.Snapshot, error) {
		if snap.HasAlias(alias) {
			return nil, &ValidationError{Field: "alias", Message: "That alias is already taken in this room."}
		}
		if snap == nil {
			return &game.Snapshot{Players: []game.Player{}}, nil
		}
		return nil, nil
	})
	if err != nil {
		return Ticket{}, err
	}

	ticket := l.tickets.Issue(session.Binding{Alias: alias, Room: room})
	l.log.Infow("player admitted", "room", room, "alias", alias)

	return ticket, nil
}

// Resolve returns the binding behind a ticket token.
func (l *Lobby) Resolve(token string) (session.Binding, bool) {
	if token == "" {
		return session.Binding{}, false
	}
	return l.tickets.Lookup(token)
}

// Revoke invalidates a ticket, so it no longer admits its holder to the room.
func (l *Lobby) Revoke(token string) {
	l.tickets.Revoke(token)
}
