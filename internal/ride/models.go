package ride

import "time"

// Ride is a finished, persisted trip. It is created once at stop-and-save
// time and never mutated afterwards.
type Ride struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	BikeID       string    `json:"bike_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	DistanceKm   float64   `json:"distance_km"`
	MaxLeanLeft  float64   `json:"max_lean_left"`
	MaxLeanRight float64   `json:"max_lean_right"`
	RouteGeoJSON *string   `json:"route,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
