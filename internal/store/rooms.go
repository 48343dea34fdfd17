/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"errors"
	"sync"

	"github.com/Seednode/impostor/internal/game"
)

type roomLock struct {
	mu   sync.Mutex
	refs int
}

// Rooms serializes read-modify-write cycles per room. Different rooms
// never wait on each other.
type Rooms struct {
	store Store

	mu    sync.Mutex
	locks map[string]*roomLock
}

func NewRooms(s Store) *Rooms {
	return &Rooms{
		store: s,
		locks: make(map[string]*roomLock),
	}
}

func (r *Rooms) lock(roomID string) func() {
	r.mu.Lock()
	l, ok := r.locks[roomID]
	if !ok {
		l = &roomLock{}
		r.locks[roomID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, roomID)
		}
		r.mu.Unlock()
	}
}

// Get reads a room without taking its lock.
func (r *Rooms) Get(ctx context.Context, roomID string) (*game.Snapshot, error) {
	return r.store.Get(ctx, roomID)
}

// Exists reports whether a room has ever been written.
func (r *Rooms) Exists(ctx context.Context, roomID string) (bool, error) {
	_, err := r.store.Get(ctx, roomID)
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Update applies fn to the room while holding its lock. Errors from the
// backend or from fn leave the stored snapshot untouched.
func (r *Rooms) Update(ctx context.Context, roomID string, fn UpdateFunc) error {
	unlock := r.lock(roomID)
	defer unlock()

	if u, ok := r.store.(Updater); ok {
		return u.Update(ctx, roomID, fn)
	}

	snap, err := r.store.Get(ctx, roomID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	next, err := fn(snap)
	if err != nil || next == nil {
		return err
	}

	return r.store.Set(ctx, roomID, next)
}
