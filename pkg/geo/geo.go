// Package geo provides the great-circle math used by the matching engine.
package geo

import (
	"math"

	"github.com/avizh98/gofor/pkg/models"
)

// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
const EarthRadiusKm = 6371.0

// DistanceKm returns the Haversine great-circle distance between two
// points in kilometers.
func DistanceKm(a, b models.GeoPoint) float64 {
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Latitude))*math.Cos(radians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceMeters returns the Haversine distance in meters, for radius
// comparisons.
func DistanceMeters(a, b models.GeoPoint) float64 {
	return DistanceKm(a, b) * 1000
}

// RoundKm rounds a distance to one decimal place, the precision the task
// record stores.
func RoundKm(km float64) float64 {
	return math.Round(km*10) / 10
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
