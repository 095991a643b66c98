package api

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/store"
)

var visibilityValues = []any{models.VisibilityPrivate, models.VisibilityPublic}

var categoryValues = []any{
	models.CategoryFood,
	models.CategoryTransport,
	models.CategoryAccommodation,
	models.CategorySightseeing,
	models.CategoryEntertainment,
	models.CategoryShopping,
	models.CategoryOther,
}

// timeOfDay accepts "" (unscheduled) or a wall-clock "HH:MM" value.
func timeOfDay(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if !models.ValidTimeOfDay(s) {
		return errors.New("must be a time in HH:MM form")
	}
	return nil
}

// CreateTripRequest is the request body for creating a trip.
type CreateTripRequest struct {
	Name        string    `json:"name" example:"Iberia by rail"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Visibility  string    `json:"visibility" example:"private"`
}

// Validate validates the request.
func (r CreateTripRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Description, validation.Length(0, 2000)),
		validation.Field(&r.StartDate, validation.Required),
		validation.Field(&r.EndDate, validation.Required),
		validation.Field(&r.Visibility, validation.In(visibilityValues...)),
	)
}

func (r CreateTripRequest) trip() *models.Trip {
	return &models.Trip{
		Name:        r.Name,
		Description: r.Description,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Visibility:  r.Visibility,
	}
}

// UpdateTripRequest is the request body for a partial trip update. Nil
// fields are left untouched.
type UpdateTripRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Visibility  *string    `json:"visibility"`
}

// Validate validates the request. Name and visibility may be omitted
// but never blanked; description can legitimately be cleared.
func (r UpdateTripRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.Description, validation.Length(0, 2000)),
		validation.Field(&r.Visibility, validation.NilOrNotEmpty, validation.In(visibilityValues...)),
	)
}

func (r UpdateTripRequest) patch() models.TripPatch {
	return models.TripPatch{
		Name:        r.Name,
		Description: r.Description,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Visibility:  r.Visibility,
	}
}

// ShareTripRequest is the optional request body for minting a share
// link. Absent or empty means the link never expires.
type ShareTripRequest struct {
	ExpiresInHours *int `json:"expires_in_hours" example:"72"`
}

// Validate validates the request.
func (r ShareTripRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ExpiresInHours, validation.Min(1), validation.Max(24*365)),
	)
}

func (r ShareTripRequest) ttl() *time.Duration {
	if r.ExpiresInHours == nil {
		return nil
	}
	d := time.Duration(*r.ExpiresInHours) * time.Hour
	return &d
}

// CreateStopRequest is the request body for adding a stop. Position is
// deliberately absent: new stops append, reorder moves them.
type CreateStopRequest struct {
	City          string    `json:"city" example:"Lisbon"`
	Lat           float64   `json:"lat" example:"38.7223"`
	Lon           float64   `json:"lon" example:"-9.1393"`
	ArrivalDate   time.Time `json:"arrival_date"`
	DepartureDate time.Time `json:"departure_date"`
	Notes         string    `json:"notes"`
}

// Validate validates the request.
func (r CreateStopRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.City, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Lat, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&r.Lon, validation.Min(-180.0), validation.Max(180.0)),
		validation.Field(&r.ArrivalDate, validation.Required),
		validation.Field(&r.DepartureDate, validation.Required),
		validation.Field(&r.Notes, validation.Length(0, 2000)),
	)
}

func (r CreateStopRequest) stop() *models.Stop {
	return &models.Stop{
		City:          r.City,
		Lat:           r.Lat,
		Lon:           r.Lon,
		ArrivalDate:   r.ArrivalDate,
		DepartureDate: r.DepartureDate,
		Notes:         r.Notes,
	}
}

// UpdateStopRequest is the request body for a partial stop update.
type UpdateStopRequest struct {
	City          *string    `json:"city"`
	Lat           *float64   `json:"lat"`
	Lon           *float64   `json:"lon"`
	ArrivalDate   *time.Time `json:"arrival_date"`
	DepartureDate *time.Time `json:"departure_date"`
	Notes         *string    `json:"notes"`
}

// Validate validates the request.
func (r UpdateStopRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.City, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.Lat, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&r.Lon, validation.Min(-180.0), validation.Max(180.0)),
		validation.Field(&r.Notes, validation.Length(0, 2000)),
	)
}

func (r UpdateStopRequest) patch() models.StopPatch {
	return models.StopPatch{
		City:          r.City,
		Lat:           r.Lat,
		Lon:           r.Lon,
		ArrivalDate:   r.ArrivalDate,
		DepartureDate: r.DepartureDate,
		Notes:         r.Notes,
	}
}

// CreateItemRequest is the request body for adding an itinerary item.
type CreateItemRequest struct {
	Title     string  `json:"title" example:"Tram 28 loop"`
	Day       int     `json:"day" example:"0"`
	StartTime string  `json:"start_time" example:"09:30"`
	EndTime   string  `json:"end_time" example:"11:00"`
	Category  string  `json:"category" example:"sightseeing"`
	Cost      float64 `json:"cost" example:"3.5"`
	Notes     string  `json:"notes"`
}

// Validate validates the request.
func (r CreateItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Day, validation.Min(0)),
		validation.Field(&r.StartTime, validation.By(timeOfDay)),
		validation.Field(&r.EndTime, validation.By(timeOfDay)),
		validation.Field(&r.Category, validation.Required, validation.In(categoryValues...)),
		validation.Field(&r.Cost, validation.Min(0.0)),
		validation.Field(&r.Notes, validation.Length(0, 2000)),
	)
}

func (r CreateItemRequest) item() *models.Item {
	return &models.Item{
		Title:     r.Title,
		Day:       r.Day,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Category:  r.Category,
		Cost:      r.Cost,
		Notes:     r.Notes,
	}
}

// UpdateItemRequest is the request body for a partial item update.
type UpdateItemRequest struct {
	Title     *string  `json:"title"`
	Day       *int     `json:"day"`
	StartTime *string  `json:"start_time"`
	EndTime   *string  `json:"end_time"`
	Category  *string  `json:"category"`
	Cost      *float64 `json:"cost"`
	Notes     *string  `json:"notes"`
}

// Validate validates the request.
func (r UpdateItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.Day, validation.Min(0)),
		validation.Field(&r.StartTime, validation.By(timeOfDay)),
		validation.Field(&r.EndTime, validation.By(timeOfDay)),
		validation.Field(&r.Category, validation.NilOrNotEmpty, validation.In(categoryValues...)),
		validation.Field(&r.Cost, validation.Min(0.0)),
		validation.Field(&r.Notes, validation.Length(0, 2000)),
	)
}

func (r UpdateItemRequest) patch() models.ItemPatch {
	return models.ItemPatch{
		Title:     r.Title,
		Day:       r.Day,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Category:  r.Category,
		Cost:      r.Cost,
		Notes:     r.Notes,
	}
}

// ReorderRequest carries one reorder batch. Positions must be pairwise
// distinct; ids must be live children of the addressed parent.
type ReorderRequest struct {
	Order []store.PositionPair `json:"order"`
}

// Validate validates the request.
func (r ReorderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Order, validation.Required, validation.Length(1, 500)),
	)
}
