package geo

import "math"

// earthRadiusMeters is the mean Earth radius used for the spherical approximation.
const earthRadiusMeters = 6371000

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Verdict is the result of a geofence evaluation.
type Verdict struct {
	// Distance from the fence center in meters.
	Distance float64
	// WithinRange is true when Distance <= the allowed radius.
	WithinRange bool
	// Overshoot is Distance minus the radius; negative when inside the fence.
	Overshoot float64
}

// Distance computes the great-circle distance between two points in meters
// using the haversine formula. Callers must validate coordinate ranges first.
func Distance(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Evaluate decides whether pos falls inside the circular fence around center.
func Evaluate(center Point, radiusMeters float64, pos Point) Verdict {
	d := Distance(center, pos)
	return Verdict{
		Distance:    d,
		WithinRange: d <= radiusMeters,
		Overshoot:   d - radiusMeters,
	}
}

// ValidRange reports whether the point is a legal WGS84 coordinate.
func ValidRange(p Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
