/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gateway

import (
	"sync"
	"time"

	"github.com/Seednode/impostor/internal/game"
)

type event struct {
	client *Client
	kind   string
}

// Hub owns the live connections of one room and runs every event for that
// room, one at a time, on its own goroutine.
type Hub struct {
	id string
	gw *Gateway

	clients map[string]*Client // connection id -> client

	// orphans are connection ids that disconnected while the store was
	// unavailable and are still seated in the snapshot.
	orphans map[string]struct{}

	register chan *Client
	unreg    chan *Client
	events   chan event
	done     chan struct{}

	mu         sync.RWMutex
	lastActive time.Time
}

func newHub(gw *Gateway, roomID string) *Hub {
	return &Hub{
		id:         roomID,
		gw:         gw,
		clients:    make(map[string]*Client),
		orphans:    make(map[string]struct{}),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		events:     make(chan event),
		done:       make(chan struct{}),
		lastActive: time.Now(),
	}
}

func (h *Hub) run() {
	retry := time.NewTicker(h.gw.opts.retryInterval())
	defer retry.Stop()

	for {
		// Disconnects are handled before anything else that is waiting.
		select {
		case c := <-h.unreg:
			h.handleLeave(c)
			continue
		default:
		}

		select {
		case <-h.done:
			return
		case c := <-h.unreg:
			h.handleLeave(c)
		case c := <-h.register:
			h.handleJoin(c)
		case ev := <-h.events:
			h.handleEvent(ev)
		case <-retry.C:
			h.settle()
		}
	}
}

// dispatch queues an event and reports false if the hub has stopped.
func (h *Hub) dispatch(ev event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

// leave hands a finished connection back to the hub. If the hub is already
// gone the seat is released directly.
func (h *Hub) leave(c *Client) {
	select {
	case h.unreg <- c:
	case <-h.done:
		_, _ = h.gw.release(c)
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) handleJoin(c *Client) {
	h.touch()

	h.settle()

	binding, ok := h.gw.registry.Resolve(c.id)
	if !ok {
		close(c.send)
		return
	}

	// A reloaded page reconnects with the same ticket before its old
	// socket has gone; the new connection takes over the seat.
	for _, old := range h.sameTicket(c) {
		h.gw.log.Debugw("replacing connection", "room", h.id, "old", old.id, "conn", c.id)
		h.handleLeave(old)
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	out, err := h.gw.join(h.id, c.id, binding.Alias)
	if err != nil {
		h.gw.log.Infow("join refused", "room", h.id, "conn", c.id, "alias", binding.Alias, "error", err)
		h.drop(c)
		h.gw.registry.Unbind(c.id)
		return
	}

	h.gw.log.Debugw("connected", "room", h.id, "conn", c.id, "alias", binding.Alias)
	h.deliver(out)
}

func (h *Hub) sameTicket(c *Client) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Client
	for _, other := range h.clients {
		if other != c && other.token != "" && other.token == c.token {
			out = append(out, other)
		}
	}
	return out
}

func (h *Hub) handleLeave(c *Client) {
	h.touch()

	out, err := h.gw.release(c)
	if err != nil {
		h.mu.Lock()
		h.orphans[c.id] = struct{}{}
		h.mu.Unlock()
	}

	h.deliver(out)
	h.drop(c)
}

// settle retries the leaves of orphaned connections. It stops at the first
// failure and tries again on the next event or tick.
func (h *Hub) settle() {
	h.mu.RLock()
	pending := make([]string, 0, len(h.orphans))
	for conn := range h.orphans {
		pending = append(pending, conn)
	}
	h.mu.RUnlock()

	for _, conn := range pending {
		out, err := h.gw.leaveRoom(h.id, conn)
		if err != nil {
			h.gw.log.Debugw("orphaned seat still held", "room", h.id, "conn", conn, "error", err)
			return
		}

		h.mu.Lock()
		delete(h.orphans, conn)
		h.mu.Unlock()

		h.gw.log.Infow("released orphaned seat", "room", h.id, "conn", conn)
		h.deliver(out)
	}
}

func (h *Hub) handleEvent(ev event) {
	h.touch()
	h.settle()

	c := ev.client

	h.mu.RLock()
	_, live := h.clients[c.id]
	h.mu.RUnlock()
	if !live {
		return
	}

	if _, ok := h.gw.registry.Resolve(c.id); !ok {
		return
	}

	var (
		out []game.Outbound
		err error
	)

	switch ev.kind {
	case game.EventPlayerReady:
		out, err = h.gw.apply(h.id, func(snap *game.Snapshot) (*game.Snapshot, []game.Outbound, error) {
			return h.gw.machine.SetReady(snap, c.id)
		})
	case game.EventToggleRepartir:
		out, err = h.gw.apply(h.id, func(snap *game.Snapshot) (*game.Snapshot, []game.Outbound, error) {
			return h.gw.machine.ToggleDeal(snap, c.id)
		})
	case game.EventSalir:
		out, err = h.gw.leaveRoom(h.id, c.id)
		if err == nil {
			h.gw.resolver.Revoke(c.token)
			h.drop(c)
		}
	}

	if err != nil {
		h.gw.log.Warnw("event dropped", "room", h.id, "conn", c.id, "event", ev.kind, "error", err)
		return
	}

	h.deliver(out)
}

// drop forgets a client and closes its send channel, which makes the write
// pump close the socket. Safe to call more than once.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Client) {
	if existing, ok := h.clients[c.id]; ok && existing == c {
		delete(h.clients, c.id)
		close(c.send)
	}
}

func (h *Hub) sendLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		h.gw.log.Infow("dropping slow client", "room", h.id, "conn", c.id)
		h.dropLocked(c)
	}
}

func (h *Hub) deliver(out []game.Outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, o := range out {
		if o.Private() {
			if c, ok := h.clients[o.To]; ok {
				h.sendLocked(c, o.Msg)
			}
			continue
		}

		for _, c := range h.clients {
			h.sendLocked(c, o.Msg)
		}
	}
}

func (h *Hub) idleSince(cutoff time.Time) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients) == 0 && len(h.orphans) == 0 && h.lastActive.Before(cutoff)
}

