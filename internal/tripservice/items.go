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

// CreateItem appends an itinerary item to the end of its (stop, day)
// sequence.
func (s *Service) CreateItem(ctx context.Context, stopID string, it *models.Item) (*models.Item, error) {
	st, t, err := s.stopForWrite(ctx, stopID)
	if err != nil {
		return nil, err
	}
	if it.Day < 0 {
		return nil, apperr.Validationf("day must not be negative")
	}
	pos, err := s.order.NextPosition(ctx, ordering.DayKey(st.ID, it.Day))
	if err != nil {
		return nil, err
	}
	it.StopID = st.ID
	it.Position = pos
	if err := s.store.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, cache.ItemsKey(st.ID), cache.AdminStatsKey())
	s.publish(events.Change{Type: events.ItemCreated, TripID: t.ID, StopID: st.ID, ItemID: it.ID})
	return it, nil
}

// Item returns one itinerary item to any caller who may view its trip.
func (s *Service) Item(ctx context.Context, itemID string) (*models.Item, error) {
	return s.itemForRead(ctx, itemID)
}

// StopItems returns a stop's items, optionally narrowed to one day and
// to one category. The full listing is cached; day views go straight to
// the store, and the category filter is applied to whichever listing
// served.
func (s *Service) StopItems(ctx context.Context, stopID string, day *int, category string) ([]models.Item, error) {
	st, err := s.stopForRead(ctx, stopID)
	if err != nil {
		return nil, err
	}
	if category != "" && !models.ValidCategory(category) {
		return nil, apperr.Validationf("unknown category %q", category)
	}
	var items []models.Item
	if day != nil {
		if *day < 0 {
			return nil, apperr.Validationf("day must not be negative")
		}
		items, err = s.store.ItemsByStop(ctx, st.ID, day)
	} else {
		items, err = cache.GetOrLoad(ctx, s.cache, cache.ItemsKey(st.ID), s.cache.TTLs().Items,
			func(ctx context.Context) ([]models.Item, error) {
				return s.store.ItemsByStop(ctx, st.ID, nil)
			})
	}
	if err != nil {
		return nil, err
	}
	if category == "" {
		return items, nil
	}
	matched := []models.Item{}
	for _, it := range items {
		if it.Category == category {
			matched = append(matched, it)
		}
	}
	return matched, nil
}

// UpdateItem applies a partial update. Changing Day moves the item to
// that day's sequence with its position intact.
func (s *Service) UpdateItem(ctx context.Context, itemID string, p models.ItemPatch) (*models.Item, error) {
	if p.Empty() {
		return nil, apperr.Validationf("no fields to update")
	}
	if p.Day != nil && *p.Day < 0 {
		return nil, apperr.Validationf("day must not be negative")
	}
	it, st, err := s.itemForWrite(ctx, itemID)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateItem(ctx, it.ID, p)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, cache.ItemsKey(st.ID))
	s.publish(events.Change{Type: events.ItemUpdated, TripID: st.TripID, StopID: st.ID, ItemID: it.ID})
	return updated, nil
}

// DeleteItem removes one itinerary item.
func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	it, st, err := s.itemForWrite(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, it.ID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.ItemsKey(st.ID), cache.AdminStatsKey())
	s.publish(events.Change{Type: events.ItemDeleted, TripID: st.TripID, StopID: st.ID, ItemID: it.ID})
	return nil
}

// ReorderItems atomically applies a batch of new positions within one
// (stop, day) sequence. Items on other days are untouchable from here.
func (s *Service) ReorderItems(ctx context.Context, stopID string, day int, pairs []store.PositionPair) error {
	if day < 0 {
		return apperr.Validationf("day must not be negative")
	}
	st, t, err := s.stopForWrite(ctx, stopID)
	if err != nil {
		return err
	}
	if err := s.order.Reorder(ctx, ordering.DayKey(st.ID, day), pairs); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.ItemsKey(st.ID))
	s.publish(events.Change{Type: events.ItemsReordered, TripID: t.ID, StopID: st.ID})
	return nil
}
