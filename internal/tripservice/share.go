package tripservice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/events"
	"github.com/starford/raido/internal/ident"
	"github.com/starford/raido/internal/models"
)

// ShareTrip mints a fresh share token for an owned trip, replacing any
// previous one. A nil ttl means the link never expires.
func (s *Service) ShareTrip(ctx context.Context, tripID string, ttl *time.Duration) (*models.Trip, error) {
	t, err := s.tripForWrite(ctx, tripID)
	if err != nil {
		return nil, err
	}
	var expiresAt *time.Time
	if ttl != nil {
		at := time.Now().UTC().Add(*ttl)
		expiresAt = &at
	}
	updated, err := s.store.SetShareToken(ctx, t.ID, ident.NewShareToken(), expiresAt)
	if errors.Is(err, apperr.ErrConflict) {
		// token collision; draw once more
		updated, err = s.store.SetShareToken(ctx, t.ID, ident.NewShareToken(), expiresAt)
	}
	if err != nil {
		return nil, err
	}
	if t.ShareToken != "" {
		s.cache.Invalidate(ctx, cache.PublicTripKey(t.ShareToken))
	}
	s.invalidateTripLists(ctx, t.OwnerID)
	s.publish(events.Change{Type: events.TripShared, TripID: t.ID})
	return updated, nil
}

// RevokeShare clears a trip's share token. Revoking a trip that is not
// shared succeeds and changes nothing.
func (s *Service) RevokeShare(ctx context.Context, tripID string) (*models.Trip, error) {
	t, err := s.tripForWrite(ctx, tripID)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.SetShareToken(ctx, t.ID, "", nil)
	if err != nil {
		return nil, err
	}
	if t.ShareToken != "" {
		s.cache.Invalidate(ctx, cache.PublicTripKey(t.ShareToken))
		s.publish(events.Change{Type: events.TripUnshared, TripID: t.ID})
	}
	s.invalidateTripLists(ctx, t.OwnerID)
	return updated, nil
}

// ResolveShare returns the public projection behind a share token and
// counts the view. The projection caches until the link's own expiry
// when that comes sooner than the cache policy; the view counter inside
// a cached projection lags until the entry rolls over.
func (s *Service) ResolveShare(ctx context.Context, token string) (*models.PublicTrip, error) {
	if !ident.ValidShareToken(token) {
		return nil, apperr.NotFoundf("share token")
	}
	key := cache.PublicTripKey(token)
	var pt models.PublicTrip
	if s.cache.GetJSON(ctx, key, &pt) {
		s.bumpViews(ctx, pt.ID)
		return &pt, nil
	}
	t, err := s.store.TripByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	stops, err := s.store.StopsByTrip(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	pt = models.PublicTrip{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		StartDate:   t.StartDate,
		EndDate:     t.EndDate,
		ViewCount:   t.ViewCount,
		CreatedAt:   t.CreatedAt,
		Stops:       stops,
	}
	ttl := s.cache.TTLs().PublicTrip
	if t.ShareExpiresAt != nil {
		if left := time.Until(*t.ShareExpiresAt); left < ttl {
			ttl = left
		}
	}
	s.cache.SetJSON(ctx, key, pt, ttl)
	s.bumpViews(ctx, t.ID)
	return &pt, nil
}

// bumpViews increments the share view counter. Losing a count is fine;
// failing a share view over it is not.
func (s *Service) bumpViews(ctx context.Context, tripID string) {
	if err := s.store.BumpViewCount(ctx, tripID); err != nil {
		s.logger.Warn("tripservice: view count bump failed",
			slog.String("trip_id", tripID),
			slog.String("error", err.Error()))
	}
}
