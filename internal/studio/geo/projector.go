// Package geo converts between geographic degrees and local meters on a
// flat tangent plane. It is valid for building-sized extents only; the
// antimeridian and the poles are not handled.
package geo

import (
	"math"

	"building-studio/internal/studio/models"
)

// MetersPerDegree is the length of one degree of latitude.
const MetersPerDegree = 111320.0

func DegreesToRadians(d float64) float64 {
	return d * math.Pi / 180.0
}

func RadiansToDegrees(r float64) float64 {
	return r * 180.0 / math.Pi
}

// lngFactor returns meters per degree of longitude at the given latitude.
func lngFactor(lat float64) float64 {
	return math.Cos(DegreesToRadians(lat)) * MetersPerDegree
}

// Projector maps points around a fixed origin. The longitude factor is
// taken from the origin latitude so every vertex of a ring shares the
// same reference.
type Projector struct {
	Origin    models.GeoPoint
	latFactor float64
	lngFactor float64
}

func NewProjector(origin models.GeoPoint) Projector {
	return Projector{
		Origin:    origin,
		latFactor: MetersPerDegree,
		lngFactor: lngFactor(origin.Lat),
	}
}

// ToLocal projects p and multiplies the offset by scale.
func (p Projector) ToLocal(pt models.GeoPoint, scale float64) models.LocalPoint {
	return models.LocalPoint{
		X: (pt.Lng - p.Origin.Lng) * p.lngFactor * scale,
		Z: (pt.Lat - p.Origin.Lat) * p.latFactor * scale,
	}
}

func (p Projector) ToGeo(lp models.LocalPoint) models.GeoPoint {
	return models.GeoPoint{
		Lat: p.Origin.Lat + lp.Z/p.latFactor,
		Lng: p.Origin.Lng + lp.X/p.lngFactor,
	}
}

func ToLocal(origin, p models.GeoPoint, scale float64) models.LocalPoint {
	return NewProjector(origin).ToLocal(p, scale)
}

func ToGeo(origin models.GeoPoint, p models.LocalPoint) models.GeoPoint {
	return NewProjector(origin).ToGeo(p)
}

// Distance is the planar distance in meters between a and b, using the
// midpoint latitude for the longitude factor. Used for closure detection,
// not as a geodesic distance.
func Distance(a, b models.GeoPoint) float64 {
	dx := (b.Lng - a.Lng) * lngFactor((a.Lat+b.Lat)/2)
	dz := (b.Lat - a.Lat) * MetersPerDegree
	return math.Sqrt(dx*dx + dz*dz)
}
