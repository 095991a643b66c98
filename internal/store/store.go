// Package store persists trips, stops, and itinerary items. Two
// implementations satisfy the same contract: SQLite for real
// deployments and an in-memory map store for tests and single-shot
// tooling. Position-bearing rows never generate their own positions;
// the ordering engine supplies them.
package store

import (
	"context"
	"time"

	"github.com/starford/raido/internal/models"
)

// PositionPair binds one child id to its new position inside a reorder
// batch.
type PositionPair struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// TripFilter narrows TripsPaged. The zero filter matches every trip
// (admin listing).
type TripFilter struct {
	OwnerID    string
	PublicOnly bool
}

// Stats is the aggregate snapshot served to admins.
type Stats struct {
	TotalTrips  int64 `json:"total_trips"`
	PublicTrips int64 `json:"public_trips"`
	TotalStops  int64 `json:"total_stops"`
	TotalItems  int64 `json:"total_items"`
}

// Store is the persistence contract for the itinerary data model.
//
// Creation assigns fresh ids and timestamps in place. Updates apply
// patch structs: nil fields stay untouched, non-nil fields are written
// even when they carry a zero value. Deleting a trip cascades to its
// stops and their items; deleting a stop cascades to its items.
//
// Reorder batches are atomic: either every pair applies or none do. A
// pair whose id is not a live child of the given parent fails the whole
// batch with a not-found error naming that id. Concurrent reorders of
// the same parent serialize; the loser observes a conflict error and
// can retry with fresh positions.
type Store interface {
	CreateTrip(ctx context.Context, t *models.Trip) error
	TripByID(ctx context.Context, id string) (*models.Trip, error)
	TripsPaged(ctx context.Context, f TripFilter, page, limit int) ([]models.Trip, int64, error)
	UpdateTrip(ctx context.Context, id string, p models.TripPatch) (*models.Trip, error)
	DeleteTrip(ctx context.Context, id string) error
	TripOwner(ctx context.Context, id string) (string, error)
	TripByShareToken(ctx context.Context, token string) (*models.Trip, error)
	SetShareToken(ctx context.Context, tripID, token string, expiresAt *time.Time) (*models.Trip, error)
	BumpViewCount(ctx context.Context, tripID string) error

	CreateStop(ctx context.Context, s *models.Stop) error
	StopByID(ctx context.Context, id string) (*models.Stop, error)
	StopsByTrip(ctx context.Context, tripID string) ([]models.Stop, error)
	UpdateStop(ctx context.Context, id string, p models.StopPatch) (*models.Stop, error)
	DeleteStop(ctx context.Context, id string) error
	MaxStopPosition(ctx context.Context, tripID string) (int, error)
	ReorderStops(ctx context.Context, tripID string, pairs []PositionPair) error

	CreateItem(ctx context.Context, it *models.Item) error
	ItemByID(ctx context.Context, id string) (*models.Item, error)
	ItemsByStop(ctx context.Context, stopID string, day *int) ([]models.Item, error)
	UpdateItem(ctx context.Context, id string, p models.ItemPatch) (*models.Item, error)
	DeleteItem(ctx context.Context, id string) error
	MaxItemPosition(ctx context.Context, stopID string, day int) (int, error)
	ReorderItems(ctx context.Context, stopID string, day int, pairs []PositionPair) error

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Verify both implementations satisfy Store at compile time.
var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Memory)(nil)
)
