/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

// Inbound event types.
const (
	EventPlayerReady    = "player_ready"
	EventToggleRepartir = "toggle_repartir"
	EventSalir          = "salir"
)

// Outbound event types.
const (
	EventUpdatePlayers  = "update_players"
	EventUpdateRepartir = "update_repartir"
	EventStartGame      = "start_game"
)

const (
	// RoundSize is the number of words dealt per round.
	RoundSize = 10

	// Sentinel replaces every word in the impostor's deal.
	Sentinel = "impostor"
)

// ClientMessage is anything a client sends over the socket.
type ClientMessage struct {
	Type string `json:"type"` // "player_ready", "toggle_repartir", "salir"
}

type ReadyEntry struct {
	Alias string `json:"alias"`
	Ready bool   `json:"ready"`
}

type RepartirEntry struct {
	Alias    string `json:"alias"`
	Repartir bool   `json:"repartir"`
}

// PlayersMessage carries the roster with ready flags.
type PlayersMessage struct {
	Type    string       `json:"type"` // "update_players"
	Players []ReadyEntry `json:"players"`
}

// RepartirMessage carries the roster with deal-request flags.
type RepartirMessage struct {
	Type    string          `json:"type"` // "update_repartir"
	Players []RepartirEntry `json:"players"`
}

// StartGameMessage is the personalized deal sent to a single connection.
type StartGameMessage struct {
	Type     string          `json:"type"` // "start_game"
	Words    []string        `json:"words"`
	Players  []RepartirEntry `json:"players"`
	Impostor string          `json:"impostor"`
}

// Outbound is a message to deliver after a transition. An empty To addresses
// every connection in the room; otherwise only the named connection.
type Outbound struct {
	To  string
	Msg any
}

// Private reports whether the message is addressed to a single connection.
func (o Outbound) Private() bool {
	return o.To != ""
}

func (s *Snapshot) playersUpdate() Outbound {
	players := make([]ReadyEntry, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, ReadyEntry{Alias: p.Alias, Ready: p.Ready})
	}

	return Outbound{Msg: PlayersMessage{Type: EventUpdatePlayers, Players: players}}
}

func (s *Snapshot) repartirRoster() []RepartirEntry {
	players := make([]RepartirEntry, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, RepartirEntry{Alias: p.Alias, Repartir: p.Repartir})
	}
	return players
}

func (s *Snapshot) repartirUpdate() Outbound {
	return Outbound{Msg: RepartirMessage{Type: EventUpdateRepartir, Players: s.repartirRoster()}}
}

// startGame builds conn's view of the active round. The caller has already
// checked that the impostor is seated.
func (s *Snapshot) startGame(conn, impostorAlias string) Outbound {
	var words []string
	if conn == s.GameData.Impostor {
		words = make([]string, RoundSize)
		for i := range words {
			words[i] = Sentinel
		}
	} else {
		words = append([]string(nil), s.GameData.Words...)
	}

	return Outbound{
		To: conn,
		Msg: StartGameMessage{
			Type:     EventStartGame,
			Words:    words,
			Players:  s.repartirRoster(),
			Impostor: impostorAlias,
		},
	}
}
