package cache

import (
	"fmt"
	"time"
)

// Every cached read and every invalidation derives its key here, so the
// two sides cannot drift apart. Key shapes follow the wire format the
// product's ops tooling already greps for.

// PublicTripsKey caches one page of the public trip listing.
func PublicTripsKey(page, limit int) string {
	return fmt.Sprintf("public_trips:%d:%d", page, limit)
}

// PublicTripsPrefix matches every page of the public trip listing.
const PublicTripsPrefix = "public_trips:"

// PublicTripKey caches one share-token resolution.
func PublicTripKey(token string) string {
	return "public_trip:" + token
}

// UserTripsKey caches one page of one owner's trip listing.
func UserTripsKey(ownerID string, page, limit int) string {
	return fmt.Sprintf("user_trips:%s:%d:%d", ownerID, page, limit)
}

// UserTripsPrefix matches every cached page of one owner's listing.
func UserTripsPrefix(ownerID string) string {
	return "user_trips:" + ownerID + ":"
}

// AdminStatsKey caches the aggregate admin statistics.
func AdminStatsKey() string {
	return "admin_stats"
}

// StopsKey caches a trip's ordered stop list.
func StopsKey(tripID string) string {
	return "trip_stops:" + tripID
}

// ItemsKey caches a stop's full ordered item list (all days).
func ItemsKey(stopID string) string {
	return "stop_activities:" + stopID
}

// TTLs is the per-resource-class expiry table. A non-positive entry
// disables caching for that class.
type TTLs struct {
	PublicTrips time.Duration
	PublicTrip  time.Duration
	UserTrips   time.Duration
	AdminStats  time.Duration
	Stops       time.Duration
	Items       time.Duration
}

// DefaultTTLs returns the documented cache policy.
func DefaultTTLs() TTLs {
	return TTLs{
		PublicTrips: 5 * time.Minute,
		PublicTrip:  30 * time.Minute,
		UserTrips:   2 * time.Minute,
		AdminStats:  10 * time.Minute,
		Stops:       15 * time.Minute,
		Items:       10 * time.Minute,
	}
}
