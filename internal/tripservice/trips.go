package tripservice

import (
	"context"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/auth"
	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/events"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/store"
)

// CreateTrip stores a new trip owned by the calling user. Visibility
// defaults to private when unset; any owner supplied on t is ignored.
func (s *Service) CreateTrip(ctx context.Context, t *models.Trip) (*models.Trip, error) {
	actor, err := s.guard.RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	if t.EndDate.Before(t.StartDate) {
		return nil, apperr.Validationf("end date precedes start date")
	}
	t.OwnerID = actor.ID
	if t.Visibility == "" {
		t.Visibility = models.VisibilityPrivate
	}
	if err := s.store.CreateTrip(ctx, t); err != nil {
		return nil, err
	}
	s.invalidateTripLists(ctx, t.OwnerID)
	s.cache.Invalidate(ctx, cache.AdminStatsKey())
	s.publish(events.Change{Type: events.TripCreated, TripID: t.ID})
	return t, nil
}

// Trip returns one trip. Share credentials stay visible to the owner and
// to admins only.
func (s *Service) Trip(ctx context.Context, tripID string) (*models.Trip, error) {
	t, err := s.tripForRead(ctx, tripID)
	if err != nil {
		return nil, err
	}
	actor, ok := auth.ActorFrom(ctx)
	if ok && (actor.ID == t.OwnerID || actor.Admin()) {
		return t, nil
	}
	redacted := *t
	redacted.ShareToken = ""
	redacted.ShareExpiresAt = nil
	return &redacted, nil
}

// UserTrips returns the calling user's trips, newest first.
func (s *Service) UserTrips(ctx context.Context, page, limit int) (models.Page, error) {
	actor, err := s.guard.RequireAuthenticated(ctx)
	if err != nil {
		return models.Page{}, err
	}
	page, limit = models.ClampPageLimit(page, limit)
	return cache.GetOrLoad(ctx, s.cache, cache.UserTripsKey(actor.ID, page, limit), s.cache.TTLs().UserTrips,
		func(ctx context.Context) (models.Page, error) {
			trips, total, err := s.store.TripsPaged(ctx, store.TripFilter{OwnerID: actor.ID}, page, limit)
			if err != nil {
				return models.Page{}, err
			}
			return models.NewPage(page, limit, total, trips), nil
		})
}

// PublicTrips returns one page of the public gallery. Share credentials
// never appear here.
func (s *Service) PublicTrips(ctx context.Context, page, limit int) (models.Page, error) {
	page, limit = models.ClampPageLimit(page, limit)
	return cache.GetOrLoad(ctx, s.cache, cache.PublicTripsKey(page, limit), s.cache.TTLs().PublicTrips,
		func(ctx context.Context) (models.Page, error) {
			trips, total, err := s.store.TripsPaged(ctx, store.TripFilter{PublicOnly: true}, page, limit)
			if err != nil {
				return models.Page{}, err
			}
			return models.NewPage(page, limit, total, redact(trips)), nil
		})
}

// UpdateTrip applies a partial update to an owned trip. The date window
// is validated against the merged result, not the patch alone.
func (s *Service) UpdateTrip(ctx context.Context, tripID string, p models.TripPatch) (*models.Trip, error) {
	if p.Empty() {
		return nil, apperr.Validationf("no fields to update")
	}
	t, err := s.tripForWrite(ctx, tripID)
	if err != nil {
		return nil, err
	}
	start, end := t.StartDate, t.EndDate
	if p.StartDate != nil {
		start = *p.StartDate
	}
	if p.EndDate != nil {
		end = *p.EndDate
	}
	if end.Before(start) {
		return nil, apperr.Validationf("end date precedes start date")
	}
	updated, err := s.store.UpdateTrip(ctx, t.ID, p)
	if err != nil {
		return nil, err
	}
	s.invalidateTripLists(ctx, t.OwnerID)
	s.invalidateShared(ctx, updated)
	s.cache.Invalidate(ctx, cache.AdminStatsKey())
	s.publish(events.Change{Type: events.TripUpdated, TripID: t.ID})
	return updated, nil
}

// DeleteTrip removes a trip and everything under it.
func (s *Service) DeleteTrip(ctx context.Context, tripID string) error {
	t, err := s.tripForWrite(ctx, tripID)
	if err != nil {
		return err
	}
	stops, err := s.store.StopsByTrip(ctx, t.ID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTrip(ctx, t.ID); err != nil {
		return err
	}
	keys := []string{cache.AdminStatsKey(), cache.StopsKey(t.ID)}
	for _, st := range stops {
		keys = append(keys, cache.ItemsKey(st.ID))
	}
	if t.ShareToken != "" {
		keys = append(keys, cache.PublicTripKey(t.ShareToken))
	}
	s.cache.Invalidate(ctx, keys...)
	s.invalidateTripLists(ctx, t.OwnerID)
	s.publish(events.Change{Type: events.TripDeleted, TripID: t.ID})
	return nil
}

// AdminTrips lists every trip in the system, paged, newest first.
func (s *Service) AdminTrips(ctx context.Context, page, limit int) (models.Page, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return models.Page{}, err
	}
	page, limit = models.ClampPageLimit(page, limit)
	trips, total, err := s.store.TripsPaged(ctx, store.TripFilter{}, page, limit)
	if err != nil {
		return models.Page{}, err
	}
	return models.NewPage(page, limit, total, trips), nil
}

// AdminStats returns the aggregate counters, briefly cached.
func (s *Service) AdminStats(ctx context.Context) (store.Stats, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return store.Stats{}, err
	}
	return cache.GetOrLoad(ctx, s.cache, cache.AdminStatsKey(), s.cache.TTLs().AdminStats,
		func(ctx context.Context) (store.Stats, error) {
			return s.store.Stats(ctx)
		})
}

// redact strips share credentials from trips leaving the owner's view.
func redact(trips []models.Trip) []models.Trip {
	out := make([]models.Trip, len(trips))
	for i, t := range trips {
		t.ShareToken = ""
		t.ShareExpiresAt = nil
		out[i] = t
	}
	return out
}
