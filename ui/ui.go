// Package ui embeds the browser player page.
package ui

import (
	"bytes"
	_ "embed"
	"net/http"
	"time"
)

//go:embed player.html
var playerHTML []byte

var buildTime = time.Now()

// Handler serves the player page. "/" redirects to it.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			target := "/player.html"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, "player.html", buildTime, bytes.NewReader(playerHTML))
	})
}
