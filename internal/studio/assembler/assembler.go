package assembler

import (
	"context"
	"fmt"
	"math"

	"building-studio/internal/common/logging"
	"building-studio/internal/studio/geo"
	"building-studio/internal/studio/metrics"
	"building-studio/internal/studio/models"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyName names the single drawn body of a building.
const BodyName = "building_body"

// CylinderSegments is the number of sides of the polygon standing in for a
// cylinder footprint.
const CylinderSegments = 8

// Uploader publishes files and returns their URLs in input order.
type Uploader interface {
	UploadImages(ctx context.Context, files []*models.File) ([]models.UploadedFile, error)
}

type Assembler struct {
	uploader Uploader
	logger   logging.Logger
	metrics  *metrics.Studio
	onUpload func(assetID, url string)
}

func New(uploader Uploader, logger logging.Logger, m *metrics.Studio) *Assembler {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Assembler{uploader: uploader, logger: logger, metrics: m}
}

// OnUpload registers fn to receive the URL of every mesh file uploaded
// during Assemble.
func (a *Assembler) OnUpload(fn func(assetID, url string)) {
	a.onUpload = fn
}

// Assemble converts shapes and assets into wire objects anchored at origin.
// Empty objects are dropped; the result is never nil.
func (a *Assembler) Assemble(ctx context.Context, shapes []models.Shape, assets []*models.MeshAsset, origin models.GeoPoint) []models.Object3D {
	objects := []models.Object3D{}

	proj := geo.NewProjector(origin)
	body := &models.DrawnGeometry{Body: models.Body{Name: BodyName, Prisms: []models.PrismFace{}}}
	for _, s := range shapes {
		face, ok := prismFace(proj, s)
		if !ok {
			continue
		}
		body.Body.Prisms = append(body.Body.Prisms, face)
	}
	if !body.Empty() {
		objects = append(objects, body)
	}

	model := &models.ImportedModel{Meshes: []models.Mesh{}}
	for _, asset := range assets {
		if len(asset.Instances) == 0 {
			continue
		}
		url, err := a.resolveURL(ctx, asset)
		if err != nil {
			a.logger.Warn(ctx, "mesh asset skipped", logging.String("asset_id", asset.ID), logging.Err(err))
			continue
		}
		for _, inst := range asset.Instances {
			model.Meshes = append(model.Meshes, AnchoredMesh(url, origin, inst))
		}
	}
	if !model.Empty() {
		objects = append(objects, model)
	}

	return objects
}

// AnchoredMesh places one instance at the building anchor. Only the
// vertical offset of the instance survives.
func AnchoredMesh(url string, anchor models.GeoPoint, inst models.MeshInstance) models.Mesh {
	return models.Mesh{
		MeshURL: url,
		Point:   models.NewPoint(anchor.Lng, anchor.Lat, inst.Position.Y),
		Rotate:  geo.RadiansToDegrees(inst.Rotation.Y),
		Scale:   inst.Scale.X,
	}
}

func (a *Assembler) resolveURL(ctx context.Context, asset *models.MeshAsset) (string, error) {
	if asset.UploadedURL != "" {
		return asset.UploadedURL, nil
	}
	if asset.SourceFile == nil {
		return "", fmt.Errorf("asset %s has neither a file nor an uploaded url", asset.ID)
	}
	if a.uploader == nil {
		return "", &models.UploadError{File: asset.SourceFile.Name, Err: fmt.Errorf("no uploader configured")}
	}

	uploaded, err := a.uploader.UploadImages(ctx, []*models.File{asset.SourceFile})
	if err != nil {
		a.metrics.Uploaded("mesh", "error")
		return "", &models.UploadError{File: asset.SourceFile.Name, Err: err}
	}
	a.metrics.Uploaded("mesh", "ok")
	if len(uploaded) == 0 {
		return "", nil
	}
	if a.onUpload != nil && uploaded[0].URL != "" {
		a.onUpload(asset.ID, uploaded[0].URL)
	}
	return uploaded[0].URL, nil
}

// ============================================================
// Footprints
// ============================================================

func prismFace(proj geo.Projector, s models.Shape) (models.PrismFace, bool) {
	var (
		ring   [][]float64
		height float64
	)

	switch s := s.(type) {
	case *models.Box:
		hw := s.Width * s.Scale.X / 2
		hd := s.Depth * s.Scale.Z / 2
		corners := []models.LocalPoint{{X: -hw, Z: -hd}, {X: hw, Z: -hd}, {X: hw, Z: hd}, {X: -hw, Z: hd}}
		ring = projectRing(proj, placed(s.ShapeBase, corners))
		height = s.Height * s.Scale.Y
	case *models.Cylinder:
		r := s.Radius * s.Scale.X
		pts := make([]models.LocalPoint, 0, CylinderSegments)
		for i := 0; i < CylinderSegments; i++ {
			angle := float64(i) / CylinderSegments * 2 * math.Pi
			pts = append(pts, models.LocalPoint{X: r * math.Cos(angle), Z: r * math.Sin(angle)})
		}
		ring = projectRing(proj, placed(s.ShapeBase, pts))
		height = s.Height * s.Scale.Y
	case *models.Prism:
		if len(s.OriginGeo) > 0 {
			ring = make([][]float64, 0, len(s.OriginGeo)+1)
			for _, p := range s.OriginGeo {
				ring = append(ring, []float64{p.Lng, p.Lat, 0})
			}
		} else {
			pts := make([]models.LocalPoint, len(s.Points))
			for i, p := range s.Points {
				pts[i] = models.LocalPoint{X: s.Position.X + p.X, Z: s.Position.Z + p.Z}
			}
			ring = projectRing(proj, pts)
		}
		height = s.Height
	default:
		panic(fmt.Sprintf("assembler: unknown shape %T", s))
	}

	if distinct(ring) < 3 {
		return models.PrismFace{}, false
	}
	return models.PrismFace{BaseFace: models.NewPolygon(closeRing(ring)), Height: height}, true
}

// placed rotates footprint corners by the shape's yaw and moves them to
// its position.
func placed(base models.ShapeBase, pts []models.LocalPoint) []models.LocalPoint {
	rot := mgl64.Rotate3DY(base.Rotation.Y)
	out := make([]models.LocalPoint, len(pts))
	for i, p := range pts {
		v := rot.Mul3x1(mgl64.Vec3{p.X, 0, p.Z})
		out[i] = models.LocalPoint{X: base.Position.X + v.X(), Z: base.Position.Z + v.Z()}
	}
	return out
}

func projectRing(proj geo.Projector, pts []models.LocalPoint) [][]float64 {
	ring := make([][]float64, 0, len(pts)+1)
	for _, p := range pts {
		g := proj.ToGeo(p)
		ring = append(ring, []float64{g.Lng, g.Lat, 0})
	}
	return ring
}

func closeRing(ring [][]float64) [][]float64 {
	first, last := ring[0], ring[len(ring)-1]
	if first[0] == last[0] && first[1] == last[1] {
		return ring
	}
	return append(ring, []float64{first[0], first[1], first[2]})
}

func distinct(ring [][]float64) int {
	seen := make(map[[2]float64]struct{}, len(ring))
	for _, p := range ring {
		seen[[2]float64{p[0], p[1]}] = struct{}{}
	}
	return len(seen)
}
