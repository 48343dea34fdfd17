/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"sync"

	"github.com/Seednode/impostor/internal/game"
)

// Memory keeps snapshots in a process-local map. Values are copied in and
// out so callers never share state with the store.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]*game.Snapshot
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*game.Snapshot)}
}

func (m *Memory) Get(_ context.Context, roomID string) (*game.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return snap.Clone(), nil
}

func (m *Memory) Set(_ context.Context, roomID string, snap *game.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[roomID] = snap.Clone()
	return nil
}

// Len returns the number of stored rooms.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.rooms)
}
