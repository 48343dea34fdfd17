/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package gateway owns realtime connections. It binds each websocket to a
// lobby session, runs every inbound event through the room state machine
// under the room's lock, and fans the results out to the room.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Seednode/impostor/internal/game"
	"github.com/Seednode/impostor/internal/session"
	"github.com/Seednode/impostor/internal/store"
)

// ErrAliasTaken is returned when a second live connection claims an alias
// already seated in the room.
var ErrAliasTaken = errors.New("alias already seated in room")

// Resolver turns a lobby ticket into the session it was issued for.
// Revoke is called once the player has explicitly left the room.
type Resolver interface {
	Resolve(token string) (session.Binding, bool)
	Revoke(token string)
}

const (
	defaultRetryInterval = time.Second

	leaveAttempts = 3
	leaveBackoff  = 25 * time.Millisecond
)

type Options struct {
	// CookieName holds the lobby ticket.
	CookieName string

	// StoreTimeout bounds each read-modify-write cycle.
	StoreTimeout time.Duration

	// IdleTimeout is how long an empty hub lingers before it is stopped.
	IdleTimeout time.Duration

	// RetryInterval is how often a hub retries leaves that failed because
	// the store was unavailable. Defaults to one second.
	RetryInterval time.Duration
}

func (o Options) retryInterval() time.Duration {
	if o.RetryInterval <= 0 {
		return defaultRetryInterval
	}
	return o.RetryInterval
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Gateway struct {
	rooms    *store.Rooms
	machine  *game.Machine
	registry *session.Registry
	resolver Resolver
	log      *zap.SugaredLogger
	opts     Options

	mu   sync.Mutex
	hubs map[string]*Hub
}

func New(rooms *store.Rooms, machine *game.Machine, registry *session.Registry, resolver Resolver, log *zap.SugaredLogger, opts Options) *Gateway {
	return &Gateway{
		rooms:    rooms,
		machine:  machine,
		registry: registry,
		resolver: resolver,
		log:      log,
		opts:     opts,
		hubs:     make(map[string]*Hub),
	}
}

type transition func(snap *game.Snapshot) (*game.Snapshot, []game.Outbound, error)

// apply runs fn against the room under its lock and returns the messages
// to deliver. On error nothing is written and nothing should be sent.
func (gw *Gateway) apply(roomID string, fn transition) ([]game.Outbound, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gw.opts.StoreTimeout)
	defer cancel()

	var out []game.Outbound
	err := gw.rooms.Update(ctx, roomID, func(snap *game.Snapshot) (*game.Snapshot, error) {
		out = nil

		next, msgs, err := fn(snap)
		if err != nil {
			return nil, err
		}

		out = msgs
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (gw *Gateway) join(roomID, conn, alias string) ([]game.Outbound, error) {
	return gw.apply(roomID, func(snap *game.Snapshot) (*game.Snapshot, []game.Outbound, error) {
		if snap != nil {
			for _, p := range snap.Players {
				if p.Conn != conn && strings.EqualFold(p.Alias, alias) {
					return nil, nil, ErrAliasTaken
				}
			}
		}

		next, out := gw.machine.Join(snap, conn, alias)
		return next, out, nil
	})
}

func (gw *Gateway) leaveRoom(roomID, conn string) ([]game.Outbound, error) {
	return gw.apply(roomID, func(snap *game.Snapshot) (*game.Snapshot, []game.Outbound, error) {
		next, out := gw.machine.Leave(snap, conn)
		return next, out, nil
	})
}

// leaveWithRetry retries a leave a few times while the store is
// unavailable. Other errors are returned at once.
func (gw *Gateway) leaveWithRetry(roomID, conn string) ([]game.Outbound, error) {
	backoff := leaveBackoff
	for attempt := 1; ; attempt++ {
		out, err := gw.leaveRoom(roomID, conn)
		if err == nil || !errors.Is(err, store.ErrUnavailable) || attempt == leaveAttempts {
			return out, err
		}

		time.Sleep(backoff)
		backoff *= 2
	}
}

// release vacates c's seat and forgets its session. It runs on every
// disconnect, including after an explicit leave, and is a no-op the second time.
// The session is forgotten even when the seat could not be vacated; the
// error tells the hub to keep retrying the leave.
func (gw *Gateway) release(c *Client) ([]game.Outbound, error) {
	defer gw.registry.Unbind(c.id)

	out, err := gw.leaveWithRetry(c.room, c.id)
	if err != nil {
		gw.log.Warnw("leave failed", "room", c.room, "conn", c.id, "error", err)
		return nil, err
	}

	gw.log.Debugw("disconnected", "room", c.room, "conn", c.id)
	return out, nil
}

func (gw *Gateway) getHub(roomID string) *Hub {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if hub, ok := gw.hubs[roomID]; ok {
		hub.touch()
		return hub
	}

	hub := newHub(gw, roomID)
	gw.hubs[roomID] = hub
	go hub.run()
	return hub
}

// attach registers c with its room's hub, retrying if the hub it found
// was reaped in the meantime.
func (gw *Gateway) attach(c *Client) *Hub {
	for {
		hub := gw.getHub(c.room)
		select {
		case hub.register <- c:
			return hub
		case <-hub.done:
		}
	}
}

// reap stops hubs that have had no clients since before cutoff.
func (gw *Gateway) reap(cutoff time.Time) int {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	reaped := 0
	for id, hub := range gw.hubs {
		if hub.idleSince(cutoff) {
			delete(gw.hubs, id)
			close(hub.done)
			reaped++
		}
	}
	return reaped
}

// Run reaps idle hubs until ctx is done, then stops every hub.
func (gw *Gateway) Run(ctx context.Context) {
	if gw.opts.IdleTimeout <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(gw.opts.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := gw.reap(time.Now().Add(-gw.opts.IdleTimeout)); n > 0 {
				gw.log.Debugw("reaped idle hubs", "count", n)
			}
		}
	}
}

// Connections returns the number of bound connections.
func (gw *Gateway) Connections() int {
	return gw.registry.Len()
}

// Handle serves the websocket for /:roomid. Requests without a lobby
// ticket for that room are refused before the upgrade.
func (gw *Gateway) Handle() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := strings.ToUpper(ps.ByName("roomid"))

		cookie, err := r.Cookie(gw.opts.CookieName)
		if err != nil {
			http.Error(w, "no session", http.StatusForbidden)
			return
		}

		binding, ok := gw.resolver.Resolve(cookie.Value)
		if !ok || binding.Room != roomID {
			http.Error(w, "no session", http.StatusForbidden)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			gw.log.Debugw("upgrade failed", "room", roomID, "error", err)
			return
		}

		client := &Client{
			conn:  conn,
			send:  make(chan any, sendBuffer),
			id:    uuid.NewString(),
			room:  binding.Room,
			token: cookie.Value,
		}

		gw.registry.Bind(client.id, binding)
		hub := gw.attach(client)

		go client.writePump()
		client.readPump(hub)
	}
}
