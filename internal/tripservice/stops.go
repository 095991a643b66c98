package tripservice

import (
	"context"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/events"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/ordering"
	"github.com/starford/raido/internal/store"
)

// CreateStop appends a stop to the end of an owned trip's route.
func (s *Service) CreateStop(ctx context.Context, tripID string, st *models.Stop) (*models.Stop, error) {
	t, err := s.tripForWrite(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if st.DepartureDate.Before(st.ArrivalDate) {
		return nil, apperr.Validationf("departure precedes arrival")
	}
	pos, err := s.order.NextPosition(ctx, ordering.TripKey(t.ID))
	if err != nil {
		return nil, err
	}
	st.TripID = t.ID
	st.Position = pos
	if err := s.store.CreateStop(ctx, st); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, cache.StopsKey(t.ID), cache.AdminStatsKey())
	s.invalidateShared(ctx, t)
	s.publish(events.Change{Type: events.StopCreated, TripID: t.ID, StopID: st.ID})
	return st, nil
}

// Stop returns one stop to any caller who may view its trip.
func (s *Service) Stop(ctx context.Context, stopID string) (*models.Stop, error) {
	return s.stopForRead(ctx, stopID)
}

// TripStops returns a trip's stops in route order.
func (s *Service) TripStops(ctx context.Context, tripID string) ([]models.Stop, error) {
	if _, err := s.tripForRead(ctx, tripID); err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.cache, cache.StopsKey(tripID), s.cache.TTLs().Stops,
		func(ctx context.Context) ([]models.Stop, error) {
			return s.store.StopsByTrip(ctx, tripID)
		})
}

// UpdateStop applies a partial update to a stop. The stay window is
// validated against the merged result, not the patch alone.
func (s *Service) UpdateStop(ctx context.Context, stopID string, p models.StopPatch) (*models.Stop, error) {
	if p.Empty() {
		return nil, apperr.Validationf("no fields to update")
	}
	st, t, err := s.stopForWrite(ctx, stopID)
	if err != nil {
		return nil, err
	}
	arrival, departure := st.ArrivalDate, st.DepartureDate
	if p.ArrivalDate != nil {
		arrival = *p.ArrivalDate
	}
	if p.DepartureDate != nil {
		departure = *p.DepartureDate
	}
	if departure.Before(arrival) {
		return nil, apperr.Validationf("departure precedes arrival")
	}
	updated, err := s.store.UpdateStop(ctx, st.ID, p)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, cache.StopsKey(t.ID))
	s.invalidateShared(ctx, t)
	s.publish(events.Change{Type: events.StopUpdated, TripID: t.ID, StopID: st.ID})
	return updated, nil
}

// DeleteStop removes a stop and its items.
func (s *Service) DeleteStop(ctx context.Context, stopID string) error {
	st, t, err := s.stopForWrite(ctx, stopID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteStop(ctx, st.ID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.StopsKey(t.ID), cache.ItemsKey(st.ID), cache.AdminStatsKey())
	s.invalidateShared(ctx, t)
	s.publish(events.Change{Type: events.StopDeleted, TripID: t.ID, StopID: st.ID})
	return nil
}

// ReorderStops atomically applies a batch of new positions to a trip's
// stops. Stops left out of the batch keep their positions; a batch
// whose new positions would collide with them is rejected whole as a
// conflict.
func (s *Service) ReorderStops(ctx context.Context, tripID string, pairs []store.PositionPair) error {
	t, err := s.tripForWrite(ctx, tripID)
	if err != nil {
		return err
	}
	if err := s.order.Reorder(ctx, ordering.TripKey(t.ID), pairs); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.StopsKey(t.ID))
	s.invalidateShared(ctx, t)
	s.publish(events.Change{Type: events.StopsReordered, TripID: t.ID})
	return nil
}
