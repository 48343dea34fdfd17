/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import "strings"

// Player is one connection's seat in a room.
type Player struct {
	Conn     string `json:"conn"`
	Alias    string `json:"alias"`
	Ready    bool   `json:"ready"`
	Repartir bool   `json:"repartir"`
}

// Round is a single deal: the drawn words and the connection chosen as impostor.
type Round struct {
	Words    []string `json:"words"`
	Impostor string   `json:"impostor"`
}

// Snapshot is the full state of a room, as persisted in the store under the room id.
// Players are kept in join order so every roster renders the same way.
type Snapshot struct {
	Players  []Player `json:"players"`
	GameData *Round   `json:"game_data,omitempty"`
}

// Clone returns a deep copy. Cloning a nil snapshot yields an empty one.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{Players: []Player{}}
	if s == nil {
		return out
	}

	out.Players = append(out.Players, s.Players...)

	if s.GameData != nil {
		out.GameData = &Round{
			Words:    append([]string(nil), s.GameData.Words...),
			Impostor: s.GameData.Impostor,
		}
	}

	return out
}

func (s *Snapshot) index(conn string) int {
	for i, p := range s.Players {
		if p.Conn == conn {
			return i
		}
	}
	return -1
}

// Player returns the seat held by conn.
func (s *Snapshot) Player(conn string) (Player, bool) {
	if s == nil {
		return Player{}, false
	}
	i := s.index(conn)
	if i < 0 {
		return Player{}, false
	}
	return s.Players[i], true
}

// Has reports whether conn is seated in the room.
func (s *Snapshot) Has(conn string) bool {
	return s != nil && s.index(conn) >= 0
}

// HasAlias reports whether any seated player uses alias, ignoring case.
func (s *Snapshot) HasAlias(alias string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.Players {
		if strings.EqualFold(p.Alias, alias) {
			return true
		}
	}
	return false
}

// RoundActive reports whether a round has been dealt.
func (s *Snapshot) RoundActive() bool {
	return s != nil && s.GameData != nil && len(s.GameData.Words) > 0
}

func (s *Snapshot) remove(conn string) {
	i := s.index(conn)
	if i < 0 {
		return
	}
	s.Players = append(s.Players[:i], s.Players[i+1:]...)
}

// Empty rooms never count as all ready.
func (s *Snapshot) allReady() bool {
	if len(s.Players) == 0 {
		return false
	}
	for _, p := range s.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (s *Snapshot) allRepartir() bool {
	if len(s.Players) == 0 {
		return false
	}
	for _, p := range s.Players {
		if !p.Repartir {
			return false
		}
	}
	return true
}
