package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/tripservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc   *tripservice.Service
	ready func(ctx context.Context) error
}

// NewHandler creates a new Handler. ready is probed by the readiness
// endpoint; nil means always ready.
func NewHandler(svc *tripservice.Service, ready func(ctx context.Context) error) *Handler {
	return &Handler{svc: svc, ready: ready}
}

func pageParams(r *http.Request) (page, limit int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	return page, limit
}

// decodeBody decodes a JSON request body into dst, answering 400 itself
// when the body does not parse. Returns false if the request is done.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// CreateTrip handles POST /api/trips.
//
//	@Summary		Create a trip
//	@Tags			trips
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTripRequest	true	"Trip to create"
//	@Success		201		{object}	models.Trip
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trips [post]
func (h *Handler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req CreateTripRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	trip, err := h.svc.CreateTrip(r.Context(), req.trip())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// UserTrips handles GET /api/trips.
//
//	@Summary		List the calling user's trips
//	@Tags			trips
//	@Produce		json
//	@Param			page	query		int	false	"Page number"
//	@Param			limit	query		int	false	"Page size"
//	@Success		200		{object}	models.Page
//	@Security		BearerAuth
//	@Router			/trips [get]
func (h *Handler) UserTrips(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	res, err := h.svc.UserTrips(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetTrip handles GET /api/trips/{tripID}.
//
//	@Summary		Get one trip
//	@Tags			trips
//	@Produce		json
//	@Param			tripID	path		string	true	"Trip id"
//	@Success		200		{object}	models.Trip
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trips/{tripID} [get]
func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.svc.Trip(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// UpdateTrip handles PATCH /api/trips/{tripID}.
//
//	@Summary		Partially update a trip
//	@Tags			trips
//	@Accept			json
//	@Produce		json
//	@Param			tripID	path		string				true	"Trip id"
//	@Param			body	body		UpdateTripRequest	true	"Fields to change"
//	@Success		200		{object}	models.Trip
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trips/{tripID} [patch]
func (h *Handler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	var req UpdateTripRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	trip, err := h.svc.UpdateTrip(r.Context(), chi.URLParam(r, "tripID"), req.patch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// DeleteTrip handles DELETE /api/trips/{tripID}.
//
//	@Summary		Delete a trip and everything under it
//	@Tags			trips
//	@Param			tripID	path	string	true	"Trip id"
//	@Success		204		"Trip deleted"
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trips/{tripID} [delete]
func (h *Handler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTrip(r.Context(), chi.URLParam(r, "tripID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShareTrip handles POST /api/trips/{tripID}/share.
//
//	@Summary		Mint or rotate a share link
//	@Tags			share
//	@Accept			json
//	@Produce		json
//	@Param			tripID	path		string				true	"Trip id"
//	@Param			body	body		ShareTripRequest	false	"Expiry, in hours"
//	@Success		200		{object}	models.Trip
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trips/{tripID}/share [post]
func (h *Handler) ShareTrip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ShareTripRequest
	// The body is optional; an empty one means a link with no expiry.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	trip, err := h.svc.ShareTrip(r.Context(), chi.URLParam(r, "tripID"), req.ttl())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// RevokeShare handles DELETE /api/trips/{tripID}/share.
//
//	@Summary		Revoke a trip's share link
//	@Tags			share
//	@Produce		json
//	@Param			tripID	path		string	true	"Trip id"
//	@Success		200		{object}	models.Trip
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trips/{tripID}/share [delete]
func (h *Handler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	trip, err := h.svc.RevokeShare(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// PublicTrips handles GET /api/public/trips.
//
//	@Summary		Browse public trips
//	@Tags			public
//	@Produce		json
//	@Param			page	query		int	false	"Page number"
//	@Param			limit	query		int	false	"Page size"
//	@Success		200		{object}	models.Page
//	@Router			/public/trips [get]
func (h *Handler) PublicTrips(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	res, err := h.svc.PublicTrips(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ResolveShare handles GET /api/public/trips/{token}.
//
//	@Summary		Resolve a share link
//	@Tags			public
//	@Produce		json
//	@Param			token	path		string	true	"Share token"
//	@Success		200		{object}	models.PublicTrip
//	@Failure		404		{object}	errResponse
//	@Router			/public/trips/{token} [get]
func (h *Handler) ResolveShare(w http.ResponseWriter, r *http.Request) {
	trip, err := h.svc.ResolveShare(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// CreateStop handles POST /api/trips/{tripID}/stops.
//
//	@Summary		Append a stop to a trip
//	@Tags			stops
//	@Accept			json
//	@Produce		json
//	@Param			tripID	path		string				true	"Trip id"
//	@Param			body	body		CreateStopRequest	true	"Stop to create"
//	@Success		201		{object}	models.Stop
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trips/{tripID}/stops [post]
func (h *Handler) CreateStop(w http.ResponseWriter, r *http.Request) {
	var req CreateStopRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	stop, err := h.svc.CreateStop(r.Context(), chi.URLParam(r, "tripID"), req.stop())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stop)
}

// ListStops handles GET /api/trips/{tripID}/stops.
//
//	@Summary		List a trip's stops in route order
//	@Tags			stops
//	@Produce		json
//	@Param			tripID	path		string	true	"Trip id"
//	@Success		200		{array}		models.Stop
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trips/{tripID}/stops [get]
func (h *Handler) ListStops(w http.ResponseWriter, r *http.Request) {
	stops, err := h.svc.TripStops(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stops)
}

// GetStop handles GET /api/stops/{stopID}.
//
//	@Summary		Get one stop
//	@Tags			stops
//	@Produce		json
//	@Param			stopID	path		string	true	"Stop id"
//	@Success		200		{object}	models.Stop
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stops/{stopID} [get]
func (h *Handler) GetStop(w http.ResponseWriter, r *http.Request) {
	stop, err := h.svc.Stop(r.Context(), chi.URLParam(r, "stopID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stop)
}

// UpdateStop handles PATCH /api/stops/{stopID}.
//
//	@Summary		Partially update a stop
//	@Tags			stops
//	@Accept			json
//	@Produce		json
//	@Param			stopID	path		string				true	"Stop id"
//	@Param			body	body		UpdateStopRequest	true	"Fields to change"
//	@Success		200		{object}	models.Stop
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stops/{stopID} [patch]
func (h *Handler) UpdateStop(w http.ResponseWriter, r *http.Request) {
	var req UpdateStopRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	stop, err := h.svc.UpdateStop(r.Context(), chi.URLParam(r, "stopID"), req.patch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stop)
}

// DeleteStop handles DELETE /api/stops/{stopID}.
//
//	@Summary		Delete a stop and its items
//	@Tags			stops
//	@Param			stopID	path	string	true	"Stop id"
//	@Success		204		"Stop deleted"
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stops/{stopID} [delete]
func (h *Handler) DeleteStop(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteStop(r.Context(), chi.URLParam(r, "stopID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderStops handles PUT /api/trips/{tripID}/stops/order.
//
//	@Summary		Atomically reorder a trip's stops
//	@Tags			stops
//	@Accept			json
//	@Param			tripID	path	string			true	"Trip id"
//	@Param			body	body	ReorderRequest	true	"New positions"
//	@Success		204		"Order applied"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trips/{tripID}/stops/order [put]
func (h *Handler) ReorderStops(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.ReorderStops(r.Context(), chi.URLParam(r, "tripID"), req.Order); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateItem handles POST /api/stops/{stopID}/items.
//
//	@Summary		Append an itinerary item to a stop day
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			stopID	path		string				true	"Stop id"
//	@Param			body	body		CreateItemRequest	true	"Item to create"
//	@Success		201		{object}	models.Item
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stops/{stopID}/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	item, err := h.svc.CreateItem(r.Context(), chi.URLParam(r, "stopID"), req.item())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// ListItems handles GET /api/stops/{stopID}/items.
//
//	@Summary		List a stop's items, optionally for one day or category
//	@Tags			items
//	@Produce		json
//	@Param			stopID		path		string	true	"Stop id"
//	@Param			day			query		int		false	"Day offset, 0-based"
//	@Param			category	query		string	false	"Category filter"
//	@Success		200			{array}		models.Item
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stops/{stopID}/items [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	var day *int
	if raw := r.URL.Query().Get("day"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("day must be an integer"))
			return
		}
		day = &d
	}
	category := r.URL.Query().Get("category")
	items, err := h.svc.StopItems(r.Context(), chi.URLParam(r, "stopID"), day, category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetItem handles GET /api/items/{itemID}.
//
//	@Summary		Get one itinerary item
//	@Tags			items
//	@Produce		json
//	@Param			itemID	path		string	true	"Item id"
//	@Success		200		{object}	models.Item
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{itemID} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Item(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// UpdateItem handles PATCH /api/items/{itemID}.
//
//	@Summary		Partially update an itinerary item
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			itemID	path		string				true	"Item id"
//	@Param			body	body		UpdateItemRequest	true	"Fields to change"
//	@Success		200		{object}	models.Item
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{itemID} [patch]
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	item, err := h.svc.UpdateItem(r.Context(), chi.URLParam(r, "itemID"), req.patch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/items/{itemID}.
//
//	@Summary		Delete an itinerary item
//	@Tags			items
//	@Param			itemID	path	string	true	"Item id"
//	@Success		204		"Item deleted"
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{itemID} [delete]
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteItem(r.Context(), chi.URLParam(r, "itemID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderItems handles PUT /api/stops/{stopID}/items/order.
//
//	@Summary		Atomically reorder one day's items
//	@Tags			items
//	@Accept			json
//	@Param			stopID	path	string			true	"Stop id"
//	@Param			day		query	int				true	"Day offset, 0-based"
//	@Param			body	body	ReorderRequest	true	"New positions"
//	@Success		204		"Order applied"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stops/{stopID}/items/order [put]
func (h *Handler) ReorderItems(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(r.URL.Query().Get("day"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'day' is required"))
		return
	}
	var req ReorderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.ReorderItems(r.Context(), chi.URLParam(r, "stopID"), day, req.Order); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminStats handles GET /api/admin/stats.
//
//	@Summary		Aggregate usage counters
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	store.Stats
//	@Failure		403	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/stats [get]
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.AdminStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// AdminTrips handles GET /api/admin/trips.
//
//	@Summary		List every trip in the system
//	@Tags			admin
//	@Produce		json
//	@Param			page	query		int	false	"Page number"
//	@Param			limit	query		int	false	"Page size"
//	@Success		200		{object}	models.Page
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/trips [get]
func (h *Handler) AdminTrips(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	res, err := h.svc.AdminTrips(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
