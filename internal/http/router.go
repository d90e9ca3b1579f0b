package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storyreel/internal/http/handlers"
	"storyreel/internal/middleware"
)

// NewRouter wires the job submission and status endpoints behind the shared
// middleware chain.
func NewRouter(app *handlers.App, lookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.Locale("en", lookup))

	r.Get("/healthz", app.Health)
	r.Route("/api/videos", func(r chi.Router) {
		r.Post("/", app.SubmitVideo)
		r.Get("/{id}", app.GetVideo)
	})
	if base := app.Store.BasePath(); base != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(base))))
	}
	return r
}
