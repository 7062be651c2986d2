/*
geo.go - Great-circle distance between coordinate pairs

PURPOSE:
  Pure geometry leaf used by assignment (walkability gates) and rotation
  (nearest safe zone). Haversine formula over a spherical Earth.

PROPERTIES:
  - DistanceKm(a, a) == 0
  - DistanceKm(a, b) == DistanceKm(b, a)
  - Total: no error conditions

SEE ALSO:
  - assign.go: Local/anchor radius gates
  - rotation.go: Nearest-zone emergency relocation
*/
package engine

import "math"

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometers between two
// coordinates.
func DistanceKm(a, b Coordinate) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// WithinKm reports whether two coordinates are within the given distance.
func WithinKm(a, b Coordinate, km float64) bool {
	return DistanceKm(a, b) <= km
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
