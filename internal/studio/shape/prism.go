package shape

import (
	"fmt"
	"math/rand/v2"

	"building-studio/internal/studio/geo"
	"building-studio/internal/studio/models"

	"github.com/google/uuid"
)

// MinPolygonPoints is the smallest ring that can be closed into a prism.
const MinPolygonPoints = 3

// BuildPrism turns clicked map vertices into a prism centered on the
// vertex average of the projected footprint. The first vertex is the
// projection origin; scale multiplies the local offsets and is baked into
// the points, so the resulting shape keeps a unit Scale.
//
// The vertex average is not an area-weighted centroid. For concave or
// self-intersecting rings the reported center is not meaningful.
func BuildPrism(points []models.GeoPoint, scale, height float64) (*models.Prism, error) {
	if len(points) < MinPolygonPoints {
		return nil, &models.GeometryGuardError{
			Reason:  models.GuardTooFewPoints,
			Message: fmt.Sprintf("at least %d points are needed to close a polygon", MinPolygonPoints),
		}
	}

	proj := geo.NewProjector(points[0])
	raw := make([]models.LocalPoint, len(points))
	var sumX, sumZ float64
	for i, p := range points {
		raw[i] = proj.ToLocal(p, scale)
		sumX += raw[i].X
		sumZ += raw[i].Z
	}
	cx := sumX / float64(len(raw))
	cz := sumZ / float64(len(raw))

	centered := make([]models.LocalPoint, len(raw))
	for i, p := range raw {
		centered[i] = models.LocalPoint{X: p.X - cx, Z: p.Z - cz}
	}

	return &models.Prism{
		ShapeBase: models.ShapeBase{
			ID:       uuid.NewString(),
			Position: models.Vector3{X: cx, Y: 0, Z: cz},
			Scale:    models.UnitScale,
			Color:    RandomColor(),
		},
		Points:    centered,
		Height:    height,
		OriginGeo: append([]models.GeoPoint(nil), points...),
	}, nil
}

// WithHeight returns a copy of p with a new height, resting on the ground.
func WithHeight(p *models.Prism, height float64) *models.Prism {
	next := p.Clone().(*models.Prism)
	next.Height = height
	next.Position.Y = 0
	return next
}

func RandomColor() string {
	return fmt.Sprintf("#%06x", rand.IntN(0x1000000))
}
