package geo

import (
	"fmt"
	"math"
	"time"

	"ferry77-dispatch/internal/domain"
)

const (
	// EarthRadiusKm is Earth's radius in km for the haversine calculation.
	EarthRadiusKm = 6371.0
	// AvgSpeedKmh is the assumed average travel speed for ETA estimates.
	AvgSpeedKmh = 30.0
)

// DistanceKm calculates the great-circle distance between two points using
// the haversine formula, rounded to one decimal place.
func DistanceKm(a, b domain.Coordinates) float64 {
	const degToRad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return math.Round(EarthRadiusKm*c*10) / 10
}

// Distance returns the rounded distance between two optional coordinate
// pairs. ok is false when either side is missing; no distance is ever
// fabricated from incomplete data.
func Distance(a, b *domain.Coordinates) (km float64, ok bool) {
	if a == nil || b == nil {
		return 0, false
	}
	return DistanceKm(*a, *b), true
}

// ETA estimates travel time for the given distance at AvgSpeedKmh.
func ETA(distanceKm float64) time.Duration {
	hours := distanceKm / AvgSpeedKmh
	return time.Duration(hours * float64(time.Hour))
}

// EtaMinutes returns the estimate as fractional minutes.
func EtaMinutes(distanceKm float64) float64 {
	return distanceKm / AvgSpeedKmh * 60
}

// FormatETA renders a duration the way the driver UI shows it: sub-minute
// results collapse to a fixed phrase, results of an hour or more are split
// into hours and minutes.
func FormatETA(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	// Round once before branching so 59.5+ minutes carries into the hour.
	total := int(math.Round(d.Minutes()))
	if total < 60 {
		return fmt.Sprintf("%d min", total)
	}
	return fmt.Sprintf("%d h %d min", total/60, total%60)
}
