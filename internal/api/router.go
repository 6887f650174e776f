/**
 * @description
 * This file sets up the HTTP router for the claim-service. Read endpoints are public;
 * submitting a claim and listing claim submissions require a bearer token.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5, github.com/go-chi/cors: Routing, middleware and CORS.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions carries the cross-cutting pieces of the router.
type RouterOptions struct {
	Auth           func(http.Handler) http.Handler
	Metrics        http.Handler
	AllowedOrigins []string
}

// ClaimRoutes creates and returns a new router for the claim service.
func ClaimRoutes(h *ClaimHandlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Get("/claims/{claimID}", h.GetClaimHandler)
	r.Get("/requests/{requestID}/claims", h.GetRequestClaimsHandler)

	r.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		r.Post("/claims", h.ClaimHandler)
		r.Get("/requests/{requestID}/request-claims", h.ListRequestClaimsHandler)
	})

	return r
}
