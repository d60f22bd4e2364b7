package geo

import (
	"encoding/json"
	"math"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points in
// kilometers on a spherical-Earth approximation.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Point is a single geographic fix in the order it was acquired.
type Point struct {
	Lng float64
	Lat float64
}

// CumulativeKm sums consecutive pairwise great-circle distances over an
// ordered point sequence. Fewer than two points yields 0.
func CumulativeKm(points []Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += HaversineKm(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
	}
	return total
}

// LineString encodes an ordered point sequence as a GeoJSON LineString with
// [longitude, latitude] coordinate ordering. Returns "" for fewer than two
// points: a one-point line is not representable.
func LineString(points []Point) string {
	if len(points) < 2 {
		return ""
	}
	coords := make([][2]float64, len(points))
	for i, p := range points {
		coords[i] = [2]float64{p.Lng, p.Lat}
	}
	payload, _ := json.Marshal(struct {
		Type        string       `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"`
	}{Type: "LineString", Coordinates: coords})
	return string(payload)
}
