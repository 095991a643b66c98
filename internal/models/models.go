// Package models defines the persisted entities of raido and the shared
// response shapes every adapter returns.
package models

import "time"

// Trip visibility values.
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// Itinerary item categories (closed set).
const (
	CategoryFood          = "food"
	CategoryTransport     = "transport"
	CategoryAccommodation = "accommodation"
	CategorySightseeing   = "sightseeing"
	CategoryEntertainment = "entertainment"
	CategoryShopping      = "shopping"
	CategoryOther         = "other"
)

// Categories lists every valid itinerary item category.
var Categories = []string{
	CategoryFood,
	CategoryTransport,
	CategoryAccommodation,
	CategorySightseeing,
	CategoryEntertainment,
	CategoryShopping,
	CategoryOther,
}

// ValidCategory reports whether c belongs to the closed category set.
func ValidCategory(c string) bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// ValidTimeOfDay reports whether s is a wall-clock time in "HH:MM" form.
func ValidTimeOfDay(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

// Trip is an itinerary owned by exactly one user. A share token, when
// set, resolves the trip for read-only access regardless of visibility
// until ShareExpiresAt passes (nil means no expiry).
type Trip struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        time.Time  `json:"end_date"`
	Visibility     string     `json:"visibility"`
	ShareToken     string     `json:"share_token,omitempty"`
	ShareExpiresAt *time.Time `json:"share_expires_at,omitempty"`
	ViewCount      int64      `json:"view_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Stop is one city visit inside a trip. Position orders stops within
// their trip: gaps are fine, duplicates among live siblings are not,
// except for the documented concurrent-create tie broken by CreatedAt.
type Stop struct {
	ID            string    `json:"id"`
	TripID        string    `json:"trip_id"`
	City          string    `json:"city"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	ArrivalDate   time.Time `json:"arrival_date"`
	DepartureDate time.Time `json:"departure_date"`
	Position      int       `json:"position"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Item is one scheduled itinerary entry. Day counts from 0 relative to
// the stop's arrival; Position orders items within one (stop, day) pair.
type Item struct {
	ID        string    `json:"id"`
	StopID    string    `json:"stop_id"`
	Title     string    `json:"title"`
	Day       int       `json:"day"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Category  string    `json:"category"`
	Cost      float64   `json:"cost"`
	Notes     string    `json:"notes"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TripPatch is a partial trip update: nil fields are left untouched,
// non-nil fields are written, including explicit zero values.
type TripPatch struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Visibility  *string    `json:"visibility"`
}

// Empty reports whether the patch would change nothing.
func (p TripPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.StartDate == nil &&
		p.EndDate == nil && p.Visibility == nil
}

// StopPatch is a partial stop update with TripPatch semantics. Position
// is deliberately absent: positions change only through reorder batches.
type StopPatch struct {
	City          *string    `json:"city"`
	Lat           *float64   `json:"lat"`
	Lon           *float64   `json:"lon"`
	ArrivalDate   *time.Time `json:"arrival_date"`
	DepartureDate *time.Time `json:"departure_date"`
	Notes         *string    `json:"notes"`
}

// Empty reports whether the patch would change nothing.
func (p StopPatch) Empty() bool {
	return p.City == nil && p.Lat == nil && p.Lon == nil &&
		p.ArrivalDate == nil && p.DepartureDate == nil && p.Notes == nil
}

// ItemPatch is a partial item update. Moving an item to another day keeps
// its position; callers reorder the target day afterwards if they care.
type ItemPatch struct {
	Title     *string  `json:"title"`
	Day       *int     `json:"day"`
	StartTime *string  `json:"start_time"`
	EndTime   *string  `json:"end_time"`
	Category  *string  `json:"category"`
	Cost      *float64 `json:"cost"`
	Notes     *string  `json:"notes"`
}

// Empty reports whether the patch would change nothing.
func (p ItemPatch) Empty() bool {
	return p.Title == nil && p.Day == nil && p.StartTime == nil &&
		p.EndTime == nil && p.Category == nil && p.Cost == nil && p.Notes == nil
}

// PublicTrip is the projection served for share-link resolution. Owner
// identity and the token itself are stripped; stops ride along so the
// share page renders the whole route from one response.
type PublicTrip struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	ViewCount   int64     `json:"view_count"`
	CreatedAt   time.Time `json:"created_at"`
	Stops       []Stop    `json:"stops"`
}

// Pagination bounds shared by every list operation.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is the envelope wrapped around every paged listing. Field names
// and semantics are part of the wire contract; clients render "N of M"
// from total_items even on the last page.
type Page struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
	Data       any   `json:"data"`
}

// ClampPageLimit normalises pagination input: page floors at 1, a
// missing or non-positive limit falls back to the default, and anything
// above the cap is clamped, never rejected.
func ClampPageLimit(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// NewPage assembles the envelope for one page of results.
func NewPage(page, limit int, total int64, data any) Page {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Page{
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
		Data:       data,
	}
}
