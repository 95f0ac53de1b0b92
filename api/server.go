/*
server.go - Router construction

PURPOSE:
  Assembles the chi router: middleware stack (request logging, CORS, rate
  limiting, response cache for the read endpoints) and the route table for
  the allocation engine's HTTP surface.
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RouterConfig tunes the middleware stack.
type RouterConfig struct {
	RateLimit rate.Limit
	RateBurst int
	CacheTTL  time.Duration
}

// NewRouter builds the full HTTP route tree.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if cfg.RateLimit > 0 {
		r.Use(RateLimiter(cfg.RateLimit, cfg.RateBurst))
	}

	readCache := gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)

	r.Route("/api", func(r chi.Router) {
		r.Route("/rounds/{id}", func(r chi.Router) {
			r.Post("/allocate", h.AllocateRound)

			r.Group(func(r chi.Router) {
				if cfg.CacheTTL > 0 {
					r.Use(ResponseCache(readCache, cfg.CacheTTL))
				}
				r.Get("/results", h.RoundResults)
				r.Get("/report", h.RoundReport)
				r.Get("/runs", h.ListRuns)
			})

			// Conflict lookups must never serve stale answers, so they
			// bypass the read cache.
			r.Get("/affecting-slots", h.AffectingSlots)
		})

		r.Route("/sections/{id}", func(r chi.Router) {
			r.Post("/reject-all", h.RejectSection)
			r.Post("/restore-all", h.RestoreSection)
		})

		r.Route("/applications/{id}", func(r chi.Router) {
			r.Get("/", h.GetApplication)
			r.Post("/reject-all", h.RejectApplication)
			r.Post("/restore-all", h.RestoreApplication)
		})

		r.Route("/options/{id}", func(r chi.Router) {
			r.Post("/lock", h.LockOption)
			r.Post("/unlock", h.UnlockOption)
		})

		r.Delete("/slots/{id}", h.DeleteSlot)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
