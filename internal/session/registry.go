/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package session tracks which alias and room each live connection speaks for.
package session

import "sync"

// Binding ties a participant to a room.
type Binding struct {
	Alias string
	Room  string
}

// Registry maps connection ids to their binding for the lifetime of the connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Binding
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Binding)}
}

// Bind associates conn with b, replacing any earlier binding.
func (r *Registry) Bind(conn string, b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn] = b
}

func (r *Registry) Resolve(conn string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.conns[conn]
	return b, ok
}

// Unbind forgets conn and reports whether it was bound.
func (r *Registry) Unbind(conn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.conns[conn]
	delete(r.conns, conn)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
