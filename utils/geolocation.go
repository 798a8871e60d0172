package utils

import (
	"math"

	"riderx/models"
)

const (
	EarthRadiusKm = 6371.0
	DegToRad      = math.Pi / 180.0
	RadToDeg      = 180.0 / math.Pi
)

// CalculateDistanceKm calculates the great-circle distance between two
// coordinates using the Haversine formula.
func CalculateDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * DegToRad
	lat2Rad := lat2 * DegToRad

	dlat := (lat2 - lat1) * DegToRad
	dlon := (lon2 - lon1) * DegToRad

	a := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// DistanceKm is the haversine distance between two fixes. Coordinates must be
// validated by the caller; malformed input propagates as NaN.
func DistanceKm(a, b models.PositionFix) float64 {
	return CalculateDistanceKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// TraceDistanceKm sums the distance between consecutive fixes.
func TraceDistanceKm(trace models.RouteTrace) float64 {
	total := 0.0
	for i := 1; i < len(trace); i++ {
		total += DistanceKm(trace[i-1], trace[i])
	}
	return total
}

// SpeedKmh converts a distance covered in a number of seconds to km/h.
// It returns 0 when no time has elapsed.
func SpeedKmh(distanceKm, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return distanceKm / (seconds / 3600)
}

// MetersPerSecondToKmh converts a device reported speed over ground.
func MetersPerSecondToKmh(mps float64) float64 {
	return mps * 3.6
}

// CalculateBearing calculates the bearing between two coordinates
func CalculateBearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * DegToRad
	lat2Rad := lat2 * DegToRad
	dlon := (lon2 - lon1) * DegToRad

	y := math.Sin(dlon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dlon)

	bearing := math.Atan2(y, x) * RadToDeg
	return math.Mod(bearing+360, 360)
}

// IsValidCoordinate checks if latitude and longitude values are valid
func IsValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
