package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// mountStatic serves the operator UI under /app (spec.md §6). It's a no-op
// when StaticDir is empty, so the gateway can run headless.
func (s *Server) mountStatic(r chi.Router) {
	if s.staticDir == "" {
		return
	}
	fileServer := http.FileServer(http.Dir(s.staticDir))
	handler := http.StripPrefix("/app", fileServer)
	r.Handle("/app", http.RedirectHandler("/app/", http.StatusMovedPermanently))
	r.Handle("/app/*", handler)
}
