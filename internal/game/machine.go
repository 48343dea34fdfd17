/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

var (
	ErrPoolTooSmall    = errors.New("word pool smaller than round size")
	ErrImpostorMissing = errors.New("impostor is not seated in the room")
)

// Machine computes room transitions. It keeps no room state of its own;
// every method takes the current snapshot and returns the next one along
// with the messages to deliver. A nil snapshot result means nothing changed.
type Machine struct {
	pool []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMachine returns a Machine drawing from pool. A nil src uses the
// runtime's shared generator.
func NewMachine(pool []string, src rand.Source) *Machine {
	m := &Machine{pool: pool}
	if src != nil {
		m.rng = rand.New(src)
	}
	return m
}

func (m *Machine) intN(n int) int {
	if m.rng == nil {
		return rand.IntN(n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.rng.IntN(n)
}

// draw picks n distinct pool entries with a partial Fisher-Yates shuffle.
func (m *Machine) draw(n int) ([]string, error) {
	if len(m.pool) < n {
		return nil, fmt.Errorf("drawing %d words from %d: %w", n, len(m.pool), ErrPoolTooSmall)
	}

	shuffled := append([]string(nil), m.pool...)
	for i := 0; i < n; i++ {
		j := i + m.intN(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	return shuffled[:n:n], nil
}

// Join seats conn under alias, creating the room if needed. Rejoining
// with the same connection overwrites the seat in place.
func (m *Machine) Join(snap *Snapshot, conn, alias string) (*Snapshot, []Outbound) {
	next := snap.Clone()

	p := Player{Conn: conn, Alias: alias}
	if i := next.index(conn); i >= 0 {
		next.Players[i] = p
	} else {
		next.Players = append(next.Players, p)
	}

	return next, []Outbound{next.playersUpdate()}
}

// Leave removes conn from the room. If conn was the impostor of the active
// round, the round is discarded and the room falls back to ready voting.
func (m *Machine) Leave(snap *Snapshot, conn string) (*Snapshot, []Outbound) {
	if !snap.Has(conn) {
		return nil, nil
	}

	next := snap.Clone()
	next.remove(conn)

	if next.GameData != nil && next.GameData.Impostor == conn {
		next.GameData = nil
	}

	return next, []Outbound{next.playersUpdate(), next.repartirUpdate()}
}

// SetReady marks conn ready. Late arrivals to an active round get the
// round privately; otherwise a fully ready room starts a new round.
func (m *Machine) SetReady(snap *Snapshot, conn string) (*Snapshot, []Outbound, error) {
	if !snap.Has(conn) {
		return nil, nil, nil
	}

	next := snap.Clone()
	next.Players[next.index(conn)].Ready = true

	if next.RoundActive() {
		impostor, ok := next.Player(next.GameData.Impostor)
		if !ok {
			return nil, nil, ErrImpostorMissing
		}

		return next, []Outbound{
			next.startGame(conn, impostor.Alias),
			next.repartirUpdate(),
		}, nil
	}

	if next.allReady() {
		return m.StartRound(next)
	}

	return next, []Outbound{next.playersUpdate()}, nil
}

// ToggleDeal flips conn's deal request. A unanimous request starts a new round.
func (m *Machine) ToggleDeal(snap *Snapshot, conn string) (*Snapshot, []Outbound, error) {
	if !snap.Has(conn) {
		return nil, nil, nil
	}

	next := snap.Clone()
	i := next.index(conn)
	next.Players[i].Repartir = !next.Players[i].Repartir

	out := []Outbound{next.repartirUpdate()}

	if !next.allRepartir() {
		return next, out, nil
	}

	started, deal, err := m.StartRound(next)
	if err != nil {
		return nil, nil, err
	}

	return started, append(out, deal...), nil
}

// StartRound deals a new round to every seated player and resets their
// ready and deal flags. Empty rooms are left alone.
func (m *Machine) StartRound(snap *Snapshot) (*Snapshot, []Outbound, error) {
	if snap == nil || len(snap.Players) == 0 {
		return nil, nil, nil
	}

	words, err := m.draw(RoundSize)
	if err != nil {
		return nil, nil, err
	}

	next := snap.Clone()
	impostor := next.Players[m.intN(len(next.Players))]

	for i := range next.Players {
		next.Players[i].Ready = false
		next.Players[i].Repartir = false
	}

	next.GameData = &Round{Words: words, Impostor: impostor.Conn}

	out := make([]Outbound, 0, len(next.Players)+1)
	for _, p := range next.Players {
		out = append(out, next.startGame(p.Conn, impostor.Alias))
	}

	return next, append(out, next.repartirUpdate()), nil
}
