// Package tripservice coordinates every itinerary operation. It checks
// access, delegates persistence to the store, assigns positions through
// the ordering engine, keeps the cache coherent, and announces committed
// changes on the event broker. The HTTP and MCP adapters both sit on top
// of this package and add nothing but transport.
package tripservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/auth"
	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/events"
	"github.com/starford/raido/internal/ident"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/ordering"
	"github.com/starford/raido/internal/store"
)

// Service wires the store, ordering engine, cache, guard, and broker
// behind one call surface. Caller identity travels in the context; every
// operation authorizes before touching data.
type Service struct {
	store  store.Store
	order  *ordering.Engine
	cache  *cache.Coordinator
	guard  auth.Guard
	events *events.Broker
	logger *slog.Logger
}

// NewService creates a trip service. The broker may be nil when no event
// stream is wanted, as in single-shot tooling.
func NewService(st store.Store, eng *ordering.Engine, c *cache.Coordinator, b *events.Broker, logger *slog.Logger) *Service {
	return &Service{store: st, order: eng, cache: c, events: b, logger: logger}
}

func (s *Service) publish(c events.Change) {
	if s.events != nil {
		s.events.Publish(c)
	}
}

// hidden converts a genuine not-found into a forbidden for callers that
// are not admins, so probing ids cannot reveal which ones exist.
func hidden(actor *auth.Actor, err error) error {
	if actor != nil && actor.Admin() {
		return err
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%w: not accessible", apperr.ErrForbidden)
	}
	return err
}

// tripForWrite loads a trip for mutation. Only the owner may write;
// admins can learn that a trip exists but cannot change someone else's.
func (s *Service) tripForWrite(ctx context.Context, tripID string) (*models.Trip, error) {
	actor, err := s.guard.RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	if !ident.Valid(tripID) {
		return nil, apperr.Validationf("malformed trip id %q", tripID)
	}
	t, err := s.store.TripByID(ctx, tripID)
	if err != nil {
		return nil, hidden(&actor, err)
	}
	if err := s.guard.RequireOwnerOrAdmin(actor, t.OwnerID, true); err != nil {
		return nil, err
	}
	return t, nil
}

// tripForRead loads a trip for viewing: the owner, an admin, or anyone
// at all when the trip is public.
func (s *Service) tripForRead(ctx context.Context, tripID string) (*models.Trip, error) {
	if !ident.Valid(tripID) {
		return nil, apperr.Validationf("malformed trip id %q", tripID)
	}
	actor, ok := auth.ActorFrom(ctx)
	var ap *auth.Actor
	if ok {
		ap = &actor
	}
	t, err := s.store.TripByID(ctx, tripID)
	if err != nil {
		return nil, hidden(ap, err)
	}
	if t.Visibility == models.VisibilityPublic {
		return t, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: not accessible", apperr.ErrForbidden)
	}
	if err := s.guard.RequireOwnerOrAdmin(actor, t.OwnerID, false); err != nil {
		return nil, err
	}
	return t, nil
}

// stopForWrite resolves a stop and its trip for mutation by the owner.
func (s *Service) stopForWrite(ctx context.Context, stopID string) (*models.Stop, *models.Trip, error) {
	actor, err := s.guard.RequireAuthenticated(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !ident.Valid(stopID) {
		return nil, nil, apperr.Validationf("malformed stop id %q", stopID)
	}
	st, err := s.store.StopByID(ctx, stopID)
	if err != nil {
		return nil, nil, hidden(&actor, err)
	}
	t, err := s.store.TripByID(ctx, st.TripID)
	if err != nil {
		return nil, nil, hidden(&actor, err)
	}
	if err := s.guard.RequireOwnerOrAdmin(actor, t.OwnerID, true); err != nil {
		return nil, nil, err
	}
	return st, t, nil
}

// stopForRead resolves a stop whose trip the caller may view.
func (s *Service) stopForRead(ctx context.Context, stopID string) (*models.Stop, error) {
	if !ident.Valid(stopID) {
		return nil, apperr.Validationf("malformed stop id %q", stopID)
	}
	actor, ok := auth.ActorFrom(ctx)
	var ap *auth.Actor
	if ok {
		ap = &actor
	}
	st, err := s.store.StopByID(ctx, stopID)
	if err != nil {
		return nil, hidden(ap, err)
	}
	if _, err := s.tripForRead(ctx, st.TripID); err != nil {
		return nil, err
	}
	return st, nil
}

// itemForRead resolves an item whose trip the caller may view.
func (s *Service) itemForRead(ctx context.Context, itemID string) (*models.Item, error) {
	if !ident.Valid(itemID) {
		return nil, apperr.Validationf("malformed item id %q", itemID)
	}
	actor, ok := auth.ActorFrom(ctx)
	var ap *auth.Actor
	if ok {
		ap = &actor
	}
	it, err := s.store.ItemByID(ctx, itemID)
	if err != nil {
		return nil, hidden(ap, err)
	}
	if _, err := s.stopForRead(ctx, it.StopID); err != nil {
		return nil, err
	}
	return it, nil
}

// itemForWrite resolves an item and its stop for mutation. Ownership is
// decided at the trip root, never by anything stored on the item.
func (s *Service) itemForWrite(ctx context.Context, itemID string) (*models.Item, *models.Stop, error) {
	actor, err := s.guard.RequireAuthenticated(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !ident.Valid(itemID) {
		return nil, nil, apperr.Validationf("malformed item id %q", itemID)
	}
	it, err := s.store.ItemByID(ctx, itemID)
	if err != nil {
		return nil, nil, hidden(&actor, err)
	}
	st, err := s.store.StopByID(ctx, it.StopID)
	if err != nil {
		return nil, nil, hidden(&actor, err)
	}
	owner, err := s.store.TripOwner(ctx, st.TripID)
	if err != nil {
		return nil, nil, hidden(&actor, err)
	}
	if err := s.guard.RequireOwnerOrAdmin(actor, owner, true); err != nil {
		return nil, nil, err
	}
	return it, st, nil
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, err := s.guard.RequireAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !actor.Admin() {
		return fmt.Errorf("%w: admin role required", apperr.ErrForbidden)
	}
	return nil
}

// invalidateTripLists drops every cached listing page that could carry
// one of the owner's trips. Visibility may have just flipped either way,
// so the public pages always go too.
func (s *Service) invalidateTripLists(ctx context.Context, ownerID string) {
	s.cache.InvalidatePrefix(ctx, cache.UserTripsPrefix(ownerID), cache.PublicTripsPrefix)
}

// invalidateShared drops the cached share projection when the trip is
// currently shared. Stops ride inside that projection, so stop mutations
// pass through here as well.
func (s *Service) invalidateShared(ctx context.Context, t *models.Trip) {
	if t.ShareToken != "" {
		s.cache.Invalidate(ctx, cache.PublicTripKey(t.ShareToken))
	}
}
