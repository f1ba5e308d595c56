// Package geo holds the coordinate math shared by clustering, routing and
// scoring.
package geo

import (
	"math"

	"github.com/voyplan/voyplan-api/internal/types"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between a and b.
func Haversine(a, b types.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// WalkingMinutes estimates walking time at 4 km/h between two points.
func WalkingMinutes(a, b types.GeoPoint) int {
	km := Haversine(a, b)
	return int(math.Round(km / 4.0 * 60))
}
