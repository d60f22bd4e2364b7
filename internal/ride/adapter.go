package ride

import (
	"context"
	"errors"
	"time"

	"backend-apex/internal/db"
	"backend-apex/internal/session"
	"backend-apex/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotSaveable means the session has no coordinates or no start time, so
// there is nothing worth persisting.
var ErrNotSaveable = errors.New("session has no coordinates or start time")

// Adapter persists finished rides. The geometry-aware insert needs PostGIS;
// when the database lacks it the same record is stored without a route rather
// than losing the ride. Any other failure propagates so the session can be
// kept for a retry.
type Adapter struct {
	db db.Querier
}

func NewAdapter(db db.Querier) *Adapter {
	return &Adapter{db: db}
}

// Save turns a finished session into a Ride row. Rides with fewer than two
// coordinates are always stored without geometry; a one-point line is not
// representable.
func (a *Adapter) Save(ctx context.Context, state session.State, endTime time.Time) (Ride, error) {
	if len(state.Coords) == 0 || state.StartTime == nil {
		return Ride{}, ErrNotSaveable
	}

	ride := Ride{
		ID:           uuid.NewString(),
		UserID:       state.UserID,
		BikeID:       state.BikeID,
		StartTime:    *state.StartTime,
		EndTime:      endTime,
		DistanceKm:   state.DistanceKm,
		MaxLeanLeft:  state.MaxLeanLeft,
		MaxLeanRight: state.MaxLeanRight,
	}

	points := make([]geo.Point, len(state.Coords))
	for i, c := range state.Coords {
		points[i] = geo.Point{Lng: c.Lng, Lat: c.Lat}
	}

	if geometry := geo.LineString(points); geometry != "" {
		err := a.insertWithRoute(ctx, &ride, geometry)
		if err == nil {
			ride.RouteGeoJSON = &geometry
			return ride, nil
		}
		if !capabilityMissing(err) {
			return Ride{}, err
		}
	}

	if err := a.insertPlain(ctx, &ride); err != nil {
		return Ride{}, err
	}
	return ride, nil
}

func (a *Adapter) insertWithRoute(ctx context.Context, ride *Ride, geometry string) error {
	row := a.db.QueryRow(ctx, `
		INSERT INTO rides (id, user_id, bike_id, start_time, end_time, distance_km, max_lean_left, max_lean_right, route)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8, ST_GeomFromGeoJSON($9))
		RETURNING created_at
	`, ride.ID, ride.UserID, ride.BikeID, ride.StartTime, ride.EndTime, ride.DistanceKm, ride.MaxLeanLeft, ride.MaxLeanRight, geometry)
	return row.Scan(&ride.CreatedAt)
}

func (a *Adapter) insertPlain(ctx context.Context, ride *Ride) error {
	row := a.db.QueryRow(ctx, `
		INSERT INTO rides (id, user_id, bike_id, start_time, end_time, distance_km, max_lean_left, max_lean_right)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, ride.ID, ride.UserID, ride.BikeID, ride.StartTime, ride.EndTime, ride.DistanceKm, ride.MaxLeanLeft, ride.MaxLeanRight)
	return row.Scan(&ride.CreatedAt)
}

// capabilityMissing distinguishes "PostGIS not deployed" from real failures
// by SQLSTATE: 42883 undefined_function, 42704 undefined_object. Auth,
// network and constraint errors are never swallowed.
func capabilityMissing(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "42883" || pgErr.Code == "42704"
}

// List returns a user's rides, newest first.
func (a *Adapter) List(ctx context.Context, userID string) ([]Ride, error) {
	rows, err := a.db.Query(ctx, `
		SELECT id, user_id, bike_id, start_time, end_time, distance_km, max_lean_left, max_lean_right, ST_AsGeoJSON(route), created_at
		FROM rides WHERE user_id=$1
		ORDER BY start_time DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []Ride
	for rows.Next() {
		var r Ride
		if err := rows.Scan(&r.ID, &r.UserID, &r.BikeID, &r.StartTime, &r.EndTime, &r.DistanceKm, &r.MaxLeanLeft, &r.MaxLeanRight, &r.RouteGeoJSON, &r.CreatedAt); err != nil {
			return nil, err
		}
		rides = append(rides, r)
	}
	return rides, nil
}

// Get returns one ride by id.
func (a *Adapter) Get(ctx context.Context, id string) (Ride, error) {
	row := a.db.QueryRow(ctx, `
		SELECT id, user_id, bike_id, start_time, end_time, distance_km, max_lean_left, max_lean_right, ST_AsGeoJSON(route), created_at
		FROM rides WHERE id=$1
	`, id)
	var r Ride
	if err := row.Scan(&r.ID, &r.UserID, &r.BikeID, &r.StartTime, &r.EndTime, &r.DistanceKm, &r.MaxLeanLeft, &r.MaxLeanRight, &r.RouteGeoJSON, &r.CreatedAt); err != nil {
		return Ride{}, err
	}
	return r, nil
}
