/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package store persists room snapshots. Backends offer plain get/set;
// Rooms layers per-room serialization on top so concurrent events on the
// same room never overwrite each other.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Seednode/impostor/internal/game"
)

var (
	ErrNotFound    = errors.New("room not found")
	ErrUnavailable = errors.New("room store unavailable")
	ErrCorrupt     = errors.New("room snapshot corrupt")
)

// Store maps room ids to snapshots. Get returns ErrNotFound for unknown rooms.
type Store interface {
	Get(ctx context.Context, roomID string) (*game.Snapshot, error)
	Set(ctx context.Context, roomID string, snap *game.Snapshot) error
}

// UpdateFunc receives the current snapshot (nil if the room is absent) and
// returns the snapshot to write, or nil to leave the store untouched.
type UpdateFunc func(snap *game.Snapshot) (*game.Snapshot, error)

// Updater is implemented by backends with a native atomic read-modify-write.
type Updater interface {
	Update(ctx context.Context, roomID string, fn UpdateFunc) error
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
