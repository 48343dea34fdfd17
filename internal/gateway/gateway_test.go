/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gateway

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Seednode/impostor/internal/game"
	"github.com/Seednode/impostor/internal/lobby"
	"github.com/Seednode/impostor/internal/session"
	"github.com/Seednode/impostor/internal/store"
)

const cookieName = "ticket"

// flakyStore wraps the memory store so a test can take it down or hold a
// read in flight.
type flakyStore struct {
	*store.Memory

	down atomic.Bool

	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Memory: store.NewMemory()}
}

func (s *flakyStore) Get(ctx context.Context, roomID string) (*game.Snapshot, error) {
	if s.down.Load() {
		return nil, store.ErrUnavailable
	}

	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.gate, s.entered = nil, nil
	s.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}

	return s.Memory.Get(ctx, roomID)
}

func (s *flakyStore) Set(ctx context.Context, roomID string, snap *game.Snapshot) error {
	if s.down.Load() {
		return store.ErrUnavailable
	}
	return s.Memory.Set(ctx, roomID, snap)
}

// hold makes the next Get wait until release is called. entered is closed
// once that Get is waiting.
func (s *flakyStore) hold() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	in := make(chan struct{})

	s.mu.Lock()
	s.gate, s.entered = gate, in
	s.mu.Unlock()

	return in, func() { close(gate) }
}

type testEnv struct {
	srv     *httptest.Server
	gw      *Gateway
	lobby   *lobby.Lobby
	tickets *lobby.Tickets
	backend *flakyStore
	mem     *store.Memory
}

func newTestEnv(t *testing.T, pool []string, configure ...func(*Options)) *testEnv {
	t.Helper()

	log := zap.NewNop().Sugar()
	backend := newFlakyStore()
	rooms := store.NewRooms(backend)
	tickets := lobby.NewTickets(time.Hour)
	lb := lobby.New(rooms, tickets, log)

	opts := Options{
		CookieName:   cookieName,
		StoreTimeout: time.Second,
		IdleTimeout:  time.Minute,
	}
	for _, fn := range configure {
		fn(&opts)
	}

	gw := New(rooms, game.NewMachine(pool, rand.NewPCG(7, 11)), session.NewRegistry(), lb, log, opts)

	mux := httprouter.New()
	mux.GET("/room/:roomid/ws", gw.Handle())

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, gw: gw, lobby: lb, tickets: tickets, backend: backend, mem: backend.Memory}
}

func (e *testEnv) wsURL(room string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/room/" + room + "/ws"
}

func (e *testEnv) dialTicket(t *testing.T, ticket lobby.Ticket) *websocket.Conn {
	t.Helper()

	header := http.Header{"Cookie": []string{cookieName + "=" + ticket.Token}}

	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(ticket.Room), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func (e *testEnv) dial(t *testing.T, alias, room string) (*websocket.Conn, lobby.Ticket) {
	t.Helper()

	ticket, err := e.lobby.Join(context.Background(), alias, room)
	if err != nil {
		t.Fatalf("lobby join: %v", err)
	}

	return e.dialTicket(t, ticket), ticket
}

type entry struct {
	Alias    string `json:"alias"`
	Ready    bool   `json:"ready"`
	Repartir bool   `json:"repartir"`
}

type envelope struct {
	Type     string   `json:"type"`
	Players  []entry  `json:"players"`
	Words    []string `json:"words"`
	Impostor string   `json:"impostor"`
}

func expect(t *testing.T, conn *websocket.Conn, typ string) envelope {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg envelope
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("waiting for %s: %v", typ, err)
	}
	if msg.Type != typ {
		t.Fatalf("got %s, want %s", msg.Type, typ)
	}
	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))

	var msg envelope
	err := conn.ReadJSON(&msg)

	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected no message, got %+v (%v)", msg, err)
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string) {
	t.Helper()

	if err := conn.WriteJSON(game.ClientMessage{Type: typ}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func aliases(players []entry) []string {
	out := make([]string, 0, len(players))
	for _, p := range players {
		out = append(out, p.Alias)
	}
	return out
}

// seatPair connects P1 then P2 to room and drains their join broadcasts.
func seatPair(t *testing.T, e *testEnv, room string) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	p1, _ := e.dial(t, "P1", room)
	expect(t, p1, game.EventUpdatePlayers)

	p2, _ := e.dial(t, "P2", room)
	for _, c := range []*websocket.Conn{p1, p2} {
		msg := expect(t, c, game.EventUpdatePlayers)
		if got := aliases(msg.Players); !reflect.DeepEqual(got, []string{"P1", "P2"}) {
			t.Fatalf("roster = %v", got)
		}
	}

	return p1, p2
}

func TestConnectWithoutSessionRefused(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool())

	_, resp, err := websocket.DefaultDialer.Dial(e.wsURL("ABCDEF"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without a ticket, got %v", err)
	}

	ticket, err := e.lobby.Join(context.Background(), "Ana", "ABCDEF")
	if err != nil {
		t.Fatal(err)
	}

	header := http.Header{"Cookie": []string{cookieName + "=" + ticket.Token}}
	_, resp, err = websocket.DefaultDialer.Dial(e.wsURL("GHIJKL"), header)
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for a ticket from another room, got %v", err)
	}

	if e.gw.Connections() != 0 {
		t.Fatalf("refused connections must not be bound")
	}
}

func TestBothReadyDealsRound(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool())
	p1, p2 := seatPair(t, e, "ABCDEF")

	send(t, p1, "bogus")
	send(t, p1, game.EventPlayerReady)
	for _, c := range []*websocket.Conn{p1, p2} {
		msg := expect(t, c, game.EventUpdatePlayers)
		if !msg.Players[0].Ready || msg.Players[1].Ready {
			t.Fatalf("expected only P1 ready, got %+v", msg.Players)
		}
	}

	send(t, p2, game.EventPlayerReady)

	deal1 := expect(t, p1, game.EventStartGame)
	deal2 := expect(t, p2, game.EventStartGame)
	expect(t, p1, game.EventUpdateRepartir)
	expect(t, p2, game.EventUpdateRepartir)

	if !reflect.DeepEqual(deal1.Players, deal2.Players) || deal1.Impostor != deal2.Impostor {
		t.Fatalf("deals disagree on players/impostor: %+v vs %+v", deal1, deal2)
	}
	if len(deal1.Words) != game.RoundSize || len(deal2.Words) != game.RoundSize {
		t.Fatalf("expected %d words each", game.RoundSize)
	}

	sentinels := 0
	for _, d := range []envelope{deal1, deal2} {
		if d.Words[0] == game.Sentinel {
			sentinels++
			for _, w := range d.Words {
				if w != game.Sentinel {
					t.Fatalf("impostor deal leaked %q", w)
				}
			}
		}
	}
	if sentinels != 1 {
		t.Fatalf("expected exactly one impostor deal, got %d", sentinels)
	}

	snap, err := e.mem.Get(context.Background(), "ABCDEF")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range snap.Players {
		if p.Ready || p.Repartir {
			t.Fatalf("flags not reset after deal: %+v", p)
		}
	}
}

func TestToggleRepartirDealsRound(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool())
	p1, p2 := seatPair(t, e, "ABCDEF")

	send(t, p1, game.EventToggleRepartir)
	for _, c := range []*websocket.Conn{p1, p2} {
		msg := expect(t, c, game.EventUpdateRepartir)
		if !msg.Players[0].Repartir {
			t.Fatalf("P1 should want a deal: %+v", msg.Players)
		}
	}

	send(t, p2, game.EventToggleRepartir)
	for _, c := range []*websocket.Conn{p1, p2} {
		expect(t, c, game.EventUpdateRepartir)
		expect(t, c, game.EventStartGame)
		msg := expect(t, c, game.EventUpdateRepartir)
		if msg.Players[0].Repartir || msg.Players[1].Repartir {
			t.Fatalf("deal requests should reset: %+v", msg.Players)
		}
	}
}

func TestDisconnectBroadcastsRoster(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool())
	p1, p2 := seatPair(t, e, "ABCDEF")

	_ = p1.Close()

	players := expect(t, p2, game.EventUpdatePlayers)
	if got := aliases(players.Players); !reflect.DeepEqual(got, []string{"P2"}) {
		t.Fatalf("update_players = %v", got)
	}
	repartir := expect(t, p2, game.EventUpdateRepartir)
	if got := aliases(repartir.Players); !reflect.DeepEqual(got, []string{"P2"}) {
		t.Fatalf("update_repartir = %v", got)
	}

	waitFor(t, "registry teardown", func() bool { return e.gw.Connections() == 1 })
}

func TestSalirLeavesAndCloses(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool())
	p1, p2 := seatPair(t, e, "ABCDEF")

	if e.tickets.Len() != 2 {
		t.Fatalf("tickets = %d, want 2", e.tickets.Len())
	}

	send(t, p2, game.EventSalir)

	expect(t, p1, game.EventUpdatePlayers)
	expect(t, p1, game.EventUpdateRepartir)

	_ = p2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := p2.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected a normal close after salir, got %v", err)
	}

	waitFor(t, "registry teardown", func() bool { return e.gw.Connections() == 1 })
	waitFor(t, "ticket revoked", func() bool { return e.tickets.Len() == 1 })
	expectSilence(t, p1)
}

func TestFailedRoundDropsEvent(t *testing.T) {
	e := newTestEnv(t, []string{"uno", "dos", "tres"})

	p1, _ := e.dial(t, "P1", "ABCDEF")
	expect(t, p1, game.EventUpdatePlayers)

	send(t, p1, game.EventPlayerReady)
	expectSilence(t, p1)

	snap, err := e.mem.Get(context.Background(), "ABCDEF")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Players[0].Ready || snap.RoundActive() {
		t.Fatalf("failed event must not be applied: %+v", snap)
	}

	// Other rooms are unaffected.
	other, _ := e.dial(t, "Q1", "GHIJKL")
	expect(t, other, game.EventUpdatePlayers)
}

func TestDuplicateAliasRefusedAtConnect(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool())

	p1, _ := e.dial(t, "Ana", "ABCDEF")
	expect(t, p1, game.EventUpdatePlayers)

	dup := e.dialTicket(t, e.tickets.Issue(session.Binding{Alias: "ana", Room: "ABCDEF"}))

	_ = dup.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := dup.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected the duplicate to be closed, got %v", err)
	}

	expectSilence(t, p1)
	waitFor(t, "duplicate unbound", func() bool { return e.gw.Connections() == 1 })
}

func TestReapIdleHubs(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool())

	p1, ticket := e.dial(t, "P1", "ABCDEF")
	expect(t, p1, game.EventUpdatePlayers)

	if n := e.gw.reap(time.Now().Add(time.Hour)); n != 0 {
		t.Fatalf("reaped a hub with live clients")
	}

	_ = p1.Close()
	waitFor(t, "idle hub reaped", func() bool { return e.gw.reap(time.Now().Add(time.Hour)) == 1 })

	if e.gw.Connections() != 0 {
		t.Fatalf("connection still bound after disconnect")
	}

	// The room lives on in the store and a fresh hub picks it up.
	again := e.dialTicket(t, ticket)
	msg := expect(t, again, game.EventUpdatePlayers)
	if got := aliases(msg.Players); !reflect.DeepEqual(got, []string{"P1"}) {
		t.Fatalf("roster = %v", got)
	}
}

func TestStoreOutageDropsEvents(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool())
	p1, p2 := seatPair(t, e, "ABCDEF")

	e.backend.down.Store(true)

	send(t, p1, game.EventPlayerReady)
	send(t, p1, game.EventToggleRepartir)
	send(t, p2, game.EventPlayerReady)
	send(t, p2, game.EventToggleRepartir)

	expectSilence(t, p1)
	expectSilence(t, p2)

	snap, err := e.mem.Get(context.Background(), "ABCDEF")
	if err != nil {
		t.Fatal(err)
	}
	if snap.RoundActive() {
		t.Fatalf("no round may start while the store is down")
	}
	for _, p := range snap.Players {
		if p.Ready || p.Repartir {
			t.Fatalf("event applied during outage: %+v", p)
		}
	}
}

func TestDisconnectDuringOutageFreesSeat(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool())
	p1, p2 := seatPair(t, e, "ABCDEF")

	e.backend.down.Store(true)
	_ = p2.Close()
	waitFor(t, "P2 unbound", func() bool { return e.gw.Connections() == 1 })

	e.backend.down.Store(false)

	// The next event first clears the departed seat, so P1 alone is enough
	// for a deal.
	send(t, p1, game.EventPlayerReady)

	players := expect(t, p1, game.EventUpdatePlayers)
	if got := aliases(players.Players); !reflect.DeepEqual(got, []string{"P1"}) {
		t.Fatalf("update_players = %v", got)
	}
	expect(t, p1, game.EventUpdateRepartir)

	deal := expect(t, p1, game.EventStartGame)
	if got := aliases(deal.Players); !reflect.DeepEqual(got, []string{"P1"}) {
		t.Fatalf("deal roster = %v", got)
	}
	expect(t, p1, game.EventUpdateRepartir)

	snap, err := e.mem.Get(context.Background(), "ABCDEF")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Players) != 1 || !snap.RoundActive() {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestOrphanedSeatRetriedInBackground(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool(), func(o *Options) {
		o.RetryInterval = 20 * time.Millisecond
	})
	p1, p2 := seatPair(t, e, "ABCDEF")

	e.backend.down.Store(true)
	_ = p2.Close()
	waitFor(t, "P2 unbound", func() bool { return e.gw.Connections() == 1 })

	e.backend.down.Store(false)

	players := expect(t, p1, game.EventUpdatePlayers)
	if got := aliases(players.Players); !reflect.DeepEqual(got, []string{"P1"}) {
		t.Fatalf("update_players = %v", got)
	}
	expect(t, p1, game.EventUpdateRepartir)
}

func TestDisconnectHandledBeforeQueuedEvents(t *testing.T) {
	const room = "ABCDEF"

	log := zap.NewNop().Sugar()
	backend := newFlakyStore()
	rooms := store.NewRooms(backend)
	gw := New(rooms, game.NewMachine(game.DefaultPool(), rand.NewPCG(1, 2)), session.NewRegistry(),
		lobby.New(rooms, lobby.NewTickets(time.Hour), log), log, Options{StoreTimeout: 5 * time.Second})

	hub := newHub(gw, room)
	p1 := &Client{send: make(chan any, sendBuffer), id: "c1", room: room}
	p2 := &Client{send: make(chan any, sendBuffer), id: "c2", room: room}
	for _, c := range []*Client{p1, p2} {
		alias := strings.ToUpper(c.id)
		gw.registry.Bind(c.id, session.Binding{Alias: alias, Room: room})
		if _, err := gw.join(room, c.id, alias); err != nil {
			t.Fatal(err)
		}
		hub.clients[c.id] = c
	}

	go hub.run()
	t.Cleanup(func() { close(hub.done) })

	// Stall the hub inside P1's toggle, then queue P1's ready and P2's
	// disconnect behind it.
	entered, release := backend.hold()
	go hub.dispatch(event{client: p1, kind: game.EventToggleRepartir})
	<-entered

	go hub.dispatch(event{client: p1, kind: game.EventPlayerReady})
	go hub.leave(p2)
	time.Sleep(50 * time.Millisecond)
	release()

	// Only if P2 is gone before P1's ready is applied does P1 alone start a round.
	waitFor(t, "round dealt", func() bool {
		snap, err := backend.Memory.Get(context.Background(), room)
		return err == nil && snap.RoundActive()
	})

	snap, err := backend.Memory.Get(context.Background(), room)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Players) != 1 || snap.Players[0].Conn != "c1" {
		t.Fatalf("players = %+v", snap.Players)
	}
	if gw.Connections() != 1 {
		t.Fatalf("connections = %d, want 1", gw.Connections())
	}
}

func TestReconnectWithSameTicketTakesSeat(t *testing.T) {
	e := newTestEnv(t, game.DefaultPool())

	old, ticket := e.dial(t, "Ana", "ABCDEF")
	expect(t, old, game.EventUpdatePlayers)

	fresh := e.dialTicket(t, ticket)
	msg := expect(t, fresh, game.EventUpdatePlayers)
	if got := aliases(msg.Players); !reflect.DeepEqual(got, []string{"Ana"}) {
		t.Fatalf("roster = %v", got)
	}

	_ = old.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := old.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("expected the replaced socket to be closed, got %v", err)
			}
			break
		}
	}

	waitFor(t, "old connection unbound", func() bool { return e.gw.Connections() == 1 })

	snap, err := e.mem.Get(context.Background(), "ABCDEF")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Players) != 1 || snap.Players[0].Alias != "Ana" {
		t.Fatalf("players = %+v", snap.Players)
	}
}

func TestHubWithOrphansIsNotIdle(t *testing.T) {
	hub := newHub(nil, "ABCDEF")
	cutoff := time.Now().Add(time.Hour)

	if !hub.idleSince(cutoff) {
		t.Fatalf("empty hub should be idle")
	}

	hub.orphans["c1"] = struct{}{}
	if hub.idleSince(cutoff) {
		t.Fatalf("hub still owing a leave must not be reaped")
	}
}
