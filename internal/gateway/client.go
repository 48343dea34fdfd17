/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gateway

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/Seednode/impostor/internal/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// Client is one websocket connection. send is closed by the hub when the
// connection is dropped; the write pump then closes the socket.
type Client struct {
	conn  *websocket.Conn
	send  chan any
	id    string
	room  string
	token string // lobby ticket the connection was admitted with
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		if r := recover(); r != nil {
			h.gw.log.Errorw("read pump panic", "room", c.room, "conn", c.id, "panic", r)
		}
		h.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg game.ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.gw.log.Debugw("read failed", "room", c.room, "conn", c.id, "error", err)
			}
			return
		}

		switch msg.Type {
		case game.EventPlayerReady, game.EventToggleRepartir, game.EventSalir:
			if !h.dispatch(event{client: c, kind: msg.Type}) {
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
