// Package ordering owns sibling positions: it hands out the next free
// position for creates and applies reorder batches through the store's
// atomic batch operations.
//
// NextPosition is deliberately not transactional with the create that
// follows it. Two concurrent creates under one parent can therefore
// land the same position; lists break that tie on created_at, so the
// race costs a display tie-break instead of a serialized hot path.
package ordering

import (
	"context"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/ident"
	"github.com/starford/raido/internal/store"
)

// Parent identifies one ordered sibling collection: a trip's stops, or
// one day of a stop's items.
type Parent struct {
	tripID string
	stopID string
	day    int
}

// TripKey addresses the stops of one trip.
func TripKey(tripID string) Parent { return Parent{tripID: tripID} }

// DayKey addresses the items of one (stop, day) pair.
func DayKey(stopID string, day int) Parent { return Parent{stopID: stopID, day: day} }

// Engine computes positions and routes reorder batches to the store.
type Engine struct {
	store store.Store
}

// NewEngine returns an Engine over the given store.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// NextPosition returns max(position)+1 over the parent's live siblings,
// so the first child of an empty parent gets position 1.
func (e *Engine) NextPosition(ctx context.Context, p Parent) (int, error) {
	var max int
	var err error
	if p.tripID != "" {
		max, err = e.store.MaxStopPosition(ctx, p.tripID)
	} else {
		max, err = e.store.MaxItemPosition(ctx, p.stopID, p.day)
	}
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// Reorder applies a position batch atomically. The batch shape is
// checked before any I/O: it must be non-empty, every id well-formed,
// and both ids and positions pairwise distinct. Positions need not be
// contiguous. An id that is not a live child of the parent fails the
// whole batch with a not-found error naming it. The store additionally
// rejects, inside the same atomic unit, any batch whose new positions
// collide with siblings it leaves untouched, so no committed reorder
// can leave two live siblings on one position; that rejection and the
// loser of a concurrent reorder on the same parent both surface as a
// retryable conflict.
func (e *Engine) Reorder(ctx context.Context, p Parent, pairs []store.PositionPair) error {
	if len(pairs) == 0 {
		return apperr.Validationf("reorder batch is empty")
	}
	seenID := make(map[string]struct{}, len(pairs))
	seenPos := make(map[int]struct{}, len(pairs))
	for _, pr := range pairs {
		if !ident.Valid(pr.ID) {
			return apperr.Validationf("malformed id %q in reorder batch", pr.ID)
		}
		if _, dup := seenID[pr.ID]; dup {
			return apperr.Validationf("id %s appears twice in reorder batch", pr.ID)
		}
		seenID[pr.ID] = struct{}{}
		if _, dup := seenPos[pr.Position]; dup {
			return apperr.Validationf("position %d appears twice in reorder batch", pr.Position)
		}
		seenPos[pr.Position] = struct{}{}
	}

	if p.tripID != "" {
		return e.store.ReorderStops(ctx, p.tripID, pairs)
	}
	return e.store.ReorderItems(ctx, p.stopID, p.day, pairs)
}
