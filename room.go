/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/impostor/internal/lobby"
)

const qrSize = 320

func roomBody(cfg *Config, alias, room string) string {
	var body strings.Builder

	room = html.EscapeString(room)
	prefix := html.EscapeString(cfg.prefix)

	body.WriteString(fmt.Sprintf(`<main id="room" data-room="%s" data-prefix="%s">`, room, prefix))
	body.WriteString(fmt.Sprintf(`<h1>Room %s</h1><p>Playing as <strong>%s</strong></p>`, room, html.EscapeString(alias)))
	body.WriteString(fmt.Sprintf(`<img class="qr" src="%s/room/%s/qr" alt="QR code to join room %s" width="160" height="160">`, prefix, room, room))
	body.WriteString(`<section id="waiting"><h2>Players</h2><ul id="players"></ul><button id="ready">I'm ready</button></section>`)
	body.WriteString(`<section id="round" hidden><h2>Your words</h2><ol id="words"></ol>`)
	body.WriteString(`<details><summary>Reveal the impostor</summary><p id="impostor"></p></details>`)
	body.WriteString(`<h2>Deal again?</h2><ul id="repartir"></ul><button id="toggle-repartir">Deal again</button></section>`)
	body.WriteString(`<button id="salir" class="secondary">Leave room</button>`)
	body.WriteString(`<p id="status" role="status"></p></main>`)
	body.WriteString(fmt.Sprintf(`<script src="%s/assets/room.js"></script>`, prefix))

	return body.String()
}

func serveRoomPage(cfg *Config, lb *lobby.Lobby) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := lobby.NormalizeRoom(ps.ByName("roomid"))

		var alias string
		if cookie, err := r.Cookie(ticketCookie); err == nil {
			if binding, ok := lb.Resolve(cookie.Value); ok && binding.Room == room {
				alias = binding.Alias
			}
		}

		if alias == "" {
			http.Redirect(w, r, cfg.prefix+"/?room="+url.QueryEscape(room), http.StatusSeeOther)
			return
		}

		_, _ = writePage(cfg, w, http.StatusOK, newPage(cfg, "Impostor - "+room, roomBody(cfg, alias, room)))
	}
}

// serveRoomQR renders a PNG QR code pointing at the lobby with this room
// filled in, so others can scan their way in.
func serveRoomQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := lobby.NormalizeRoom(ps.ByName("roomid"))
		if room == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		link := scheme + "://" + r.Host + cfg.prefix + "/?room=" + url.QueryEscape(room)

		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}
