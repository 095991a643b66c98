package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/auth"
	"github.com/starford/raido/internal/ratelimit"
	"github.com/starford/raido/internal/tripservice"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /api/events inside the
// authenticated group. ready backs the readiness probe; nil means
// always ready.
func NewRouter(svc *tripservice.Service, verifier auth.TokenVerifier, limiter ratelimit.Limiter, sseHandler http.Handler, ready func(ctx context.Context) error) chi.Router {
	h := NewHandler(svc, ready)

	r := chi.NewRouter()

	r.Route("/api", func(api chi.Router) {
		api.Use(Authenticate(verifier))
		api.Use(RateLimit(limiter))

		// Reads open to anonymous callers; the service still decides
		// per trip who sees what.
		api.Get("/public/trips", h.PublicTrips)
		api.Get("/public/trips/{token}", h.ResolveShare)
		api.Get("/trips/{tripID}", h.GetTrip)
		api.Get("/trips/{tripID}/stops", h.ListStops)
		api.Get("/stops/{stopID}", h.GetStop)
		api.Get("/stops/{stopID}/items", h.ListItems)
		api.Get("/items/{itemID}", h.GetItem)

		api.Group(func(priv chi.Router) {
			priv.Use(RequireAuth)

			// Trips.
			priv.Post("/trips", h.CreateTrip)
			priv.Get("/trips", h.UserTrips)
			priv.Patch("/trips/{tripID}", h.UpdateTrip)
			priv.Delete("/trips/{tripID}", h.DeleteTrip)
			priv.Post("/trips/{tripID}/share", h.ShareTrip)
			priv.Delete("/trips/{tripID}/share", h.RevokeShare)

			// Stops.
			priv.Post("/trips/{tripID}/stops", h.CreateStop)
			priv.Put("/trips/{tripID}/stops/order", h.ReorderStops)
			priv.Patch("/stops/{stopID}", h.UpdateStop)
			priv.Delete("/stops/{stopID}", h.DeleteStop)

			// Items.
			priv.Post("/stops/{stopID}/items", h.CreateItem)
			priv.Put("/stops/{stopID}/items/order", h.ReorderItems)
			priv.Patch("/items/{itemID}", h.UpdateItem)
			priv.Delete("/items/{itemID}", h.DeleteItem)

			// Admin.
			priv.Get("/admin/stats", h.AdminStats)
			priv.Get("/admin/trips", h.AdminTrips)

			// SSE change feed.
			if sseHandler != nil {
				priv.Get("/events", sseHandler.ServeHTTP)
			}
		})
	})

	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	return r
}
