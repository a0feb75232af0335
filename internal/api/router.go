package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and returns the main HTTP router.
func NewRouter(ctrl Controller, bus EventBus) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	h := &Handlers{ctrl: ctrl, events: bus}

	r.Route("/api", func(r chi.Router) {
		r.Get("/", h.getState)
		r.Get("/state", h.getState)

		// Still capture
		r.Post("/capture", h.capture)
		r.Get("/capture/last", h.lastCapture)
		r.Post("/preview/restore", h.restorePreview)

		// Autofocus
		r.Route("/af", func(r chi.Router) {
			r.Post("/init", h.initAF)
			r.Post("/single", h.triggerAF)
			r.Post("/pause", h.pauseAF)
			r.Post("/release", h.releaseAF)
			r.Put("/lock", h.lockFocus)
			r.Put("/continuous", h.setContinuous)
			r.Put("/zone", h.setZone)
			r.Get("/status", h.afStatus)
		})

		r.Patch("/settings", h.updateSettings)

		// SSE
		r.Get("/subscribe", h.sseEvents)
	})

	return r
}

// corsMiddleware adds permissive CORS headers for local network access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
