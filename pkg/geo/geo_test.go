package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avizh98/gofor/pkg/geo"
	"github.com/avizh98/gofor/pkg/models"
)

func TestDistanceKm(t *testing.T) {
	t.Run("OneDegreeOfLatitude", func(t *testing.T) {
		origin := models.GeoPoint{Longitude: 0, Latitude: 0}
		north := models.GeoPoint{Longitude: 0, Latitude: 1}
		km := geo.DistanceKm(origin, north)
		assert.InDelta(t, 111.2, geo.RoundKm(km), 0.05)
	})

	t.Run("ZeroForSamePoint", func(t *testing.T) {
		p := models.GeoPoint{Longitude: 74.5, Latitude: 42.8}
		assert.Equal(t, 0.0, geo.DistanceKm(p, p))
	})

	t.Run("Symmetric", func(t *testing.T) {
		a := models.GeoPoint{Longitude: 77.59, Latitude: 12.97} // Bangalore
		b := models.GeoPoint{Longitude: 72.87, Latitude: 19.07} // Mumbai
		assert.InDelta(t, geo.DistanceKm(a, b), geo.DistanceKm(b, a), 1e-9)
		// Roughly 845 km apart.
		assert.InDelta(t, 845, geo.DistanceKm(a, b), 10)
	})

	t.Run("MetersMatchesKm", func(t *testing.T) {
		a := models.GeoPoint{Longitude: 0, Latitude: 0}
		b := models.GeoPoint{Longitude: 0.01, Latitude: 0.01}
		assert.InDelta(t, geo.DistanceKm(a, b)*1000, geo.DistanceMeters(a, b), 1e-6)
	})
}

func TestRoundKm(t *testing.T) {
	assert.Equal(t, 111.2, geo.RoundKm(111.19))
	assert.Equal(t, 111.1, geo.RoundKm(111.14))
	assert.Equal(t, 0.0, geo.RoundKm(0.04))
	assert.Equal(t, 0.1, geo.RoundKm(0.05))
}
