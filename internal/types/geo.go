// README: Great-circle distance between points.
package types

import "math"

const earthRadiusKm = 6371.0

// DistanceKm returns the haversine distance in kilometres between p and q.
func (p Point) DistanceKm(q Point) float64 {
	dLat := degreesToRadians(q.Lat - p.Lat)
	dLng := degreesToRadians(q.Lng - p.Lng)

	rLat1 := degreesToRadians(p.Lat)
	rLat2 := degreesToRadians(q.Lat)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Valid reports whether p lies within latitude/longitude bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
