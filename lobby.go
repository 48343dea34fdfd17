/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/impostor/internal/lobby"
)

func lobbyForm(cfg *Config, alias, room, message string) string {
	var body strings.Builder

	body.WriteString(`<main><h1>Impostor</h1>`)
	body.WriteString(`<p>Everyone gets the same ten words. One of you gets none. Find them.</p>`)

	if message != "" {
		body.WriteString(fmt.Sprintf(`<p class="error" role="alert">%s</p>`, html.EscapeString(message)))
	}

	body.WriteString(fmt.Sprintf(`<form method="post" action="%s/">`, cfg.prefix))
	body.WriteString(fmt.Sprintf(`<label>Alias <input name="alias" maxlength="32" required autofocus value="%s"></label>`, html.EscapeString(alias)))
	body.WriteString(fmt.Sprintf(`<label>Room <input name="room" maxlength="32" placeholder="leave empty for a new room" value="%s"></label>`, html.EscapeString(room)))
	body.WriteString(`<button type="submit">Join</button></form></main>`)

	return newPage(cfg, "Impostor", body.String())
}

func serveLobbyPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		room := lobby.NormalizeRoom(r.URL.Query().Get("room"))

		_, _ = writePage(cfg, w, http.StatusOK, lobbyForm(cfg, "", room, ""))
	}
}

func serveLobbyJoin(cfg *Config, lb *lobby.Lobby) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := r.ParseForm(); err != nil {
			_, _ = writePage(cfg, w, http.StatusBadRequest, lobbyForm(cfg, "", "", "Could not read the form."))
			return
		}

		alias := r.PostForm.Get("alias")
		room := r.PostForm.Get("room")

		ticket, err := lb.Join(r.Context(), alias, room)

		var verr *lobby.ValidationError
		switch {
		case errors.As(err, &verr):
			_, _ = writePage(cfg, w, http.StatusUnprocessableEntity, lobbyForm(cfg, alias, room, verr.Message))
			return
		case err != nil:
			errorf(cfg, "GAMES: Lobby join for %s failed: %v", realIP(r), err)
			_, _ = writePage(cfg, w, http.StatusServiceUnavailable, lobbyForm(cfg, alias, room, "The game server is busy. Please try again."))
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     ticketCookie,
			Value:    ticket.Token,
			Path:     cfg.prefix + "/",
			HttpOnly: true,
			Secure:   cfg.scheme() == "https",
			SameSite: http.SameSiteLaxMode,
		})

		logf(cfg, "GAMES: %q joined room %s from %s", ticket.Alias, ticket.Room, realIP(r))

		http.Redirect(w, r, cfg.prefix+"/room/"+ticket.Room, http.StatusSeeOther)
	}
}
