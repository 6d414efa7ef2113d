package assembler

import (
	"context"
	"errors"
	"math"
	"testing"

	"building-studio/internal/studio/geo"
	"building-studio/internal/studio/models"
)

type stubUploader struct {
	urls  []string
	err   error
	calls int
}

func (s *stubUploader) UploadImages(_ context.Context, files []*models.File) ([]models.UploadedFile, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.UploadedFile, 0, len(s.urls))
	for _, u := range s.urls {
		out = append(out, models.UploadedFile{URL: u})
	}
	return out, nil
}

var anchor = models.GeoPoint{Lat: 10.874334, Lng: 106.803250}

func TestAssembleEmptyInput(t *testing.T) {
	objs := New(nil, nil, nil).Assemble(context.Background(), nil, nil, anchor)
	if objs == nil || len(objs) != 0 {
		t.Fatalf("objects = %#v", objs)
	}
}

func TestInstancesShareAnchor(t *testing.T) {
	asset := &models.MeshAsset{
		ID:          "a1",
		UploadedURL: "http://cdn/tower.glb",
		Instances: []models.MeshInstance{
			{ID: "i1", Position: models.Vector3{X: 40, Y: 2, Z: -15}, Rotation: models.Vector3{Y: math.Pi / 2}, Scale: models.Vector3{X: 2, Y: 2, Z: 2}},
			{ID: "i2", Position: models.Vector3{X: -3, Z: 8}, Scale: models.UnitScale},
		},
	}
	up := &stubUploader{}
	objs := New(up, nil, nil).Assemble(context.Background(), nil, []*models.MeshAsset{asset}, anchor)

	if len(objs) != 1 {
		t.Fatalf("objects = %d", len(objs))
	}
	model, ok := objs[0].(*models.ImportedModel)
	if !ok {
		t.Fatalf("object type %T", objs[0])
	}
	if len(model.Meshes) != 2 {
		t.Fatalf("meshes = %d", len(model.Meshes))
	}
	for _, m := range model.Meshes {
		c := m.Point.Coordinates
		if c[0] != anchor.Lng || c[1] != anchor.Lat {
			t.Fatalf("mesh anchored at %v", c)
		}
		if m.MeshURL != asset.UploadedURL {
			t.Fatalf("url = %q", m.MeshURL)
		}
	}
	first := model.Meshes[0]
	if first.Point.Coordinates[2] != 2 || math.Abs(first.Rotate-90) > 1e-9 || first.Scale != 2 {
		t.Fatalf("first mesh = %+v", first)
	}
	if up.calls != 0 {
		t.Fatalf("uploaded an asset that already had a url")
	}
}

func TestAssetUploadFailureSkipsAsset(t *testing.T) {
	failing := &models.MeshAsset{ID: "bad", SourceFile: &models.File{Name: "bad.glb"}, Instances: []models.MeshInstance{{ID: "i"}}}
	up := &stubUploader{err: errors.New("connection refused")}

	objs := New(up, nil, nil).Assemble(context.Background(), nil, []*models.MeshAsset{failing}, anchor)
	if len(objs) != 0 {
		t.Fatalf("objects = %+v", objs)
	}
	if up.calls != 1 {
		t.Fatalf("upload calls = %d", up.calls)
	}
}

func TestUploadWithoutURLKeepsEmptyURL(t *testing.T) {
	asset := &models.MeshAsset{ID: "a", SourceFile: &models.File{Name: "a.glb"}, Instances: []models.MeshInstance{{ID: "i", Scale: models.UnitScale}}}
	objs := New(&stubUploader{}, nil, nil).Assemble(context.Background(), nil, []*models.MeshAsset{asset}, anchor)

	model := objs[0].(*models.ImportedModel)
	if len(model.Meshes) != 1 || model.Meshes[0].MeshURL != "" {
		t.Fatalf("meshes = %+v", model.Meshes)
	}
}

func TestAssetWithoutInstancesContributesNothing(t *testing.T) {
	asset := &models.MeshAsset{ID: "a", UploadedURL: "http://cdn/a.glb"}
	up := &stubUploader{}
	objs := New(up, nil, nil).Assemble(context.Background(), nil, []*models.MeshAsset{asset}, anchor)
	if len(objs) != 0 || up.calls != 0 {
		t.Fatalf("objects=%d calls=%d", len(objs), up.calls)
	}
}

func TestPrismUsesOriginGeo(t *testing.T) {
	ring := []models.GeoPoint{
		{Lat: 10.8744, Lng: 106.8033},
		{Lat: 10.8744, Lng: 106.8034},
		{Lat: 10.8743, Lng: 106.8034},
	}
	p := &models.Prism{ShapeBase: models.ShapeBase{ID: "p"}, Points: make([]models.LocalPoint, 3), Height: 12, OriginGeo: ring}

	objs := New(nil, nil, nil).Assemble(context.Background(), []models.Shape{p}, nil, anchor)
	body := objs[0].(*models.DrawnGeometry).Body
	if body.Name != BodyName || len(body.Prisms) != 1 {
		t.Fatalf("body = %+v", body)
	}
	face := body.Prisms[0]
	coords := face.BaseFace.Coordinates[0]
	if len(coords) != 4 || coords[0][0] != coords[3][0] || coords[0][1] != coords[3][1] {
		t.Fatalf("ring not closed: %v", coords)
	}
	if coords[1][0] != 106.8034 || coords[1][1] != 10.8744 {
		t.Fatalf("ring vertex = %v", coords[1])
	}
	if face.Height != 12 || face.BaseFace.Type != "Polygon" {
		t.Fatalf("face = %+v", face)
	}
}

func TestPrismFallbackProjectsPoints(t *testing.T) {
	p := &models.Prism{
		ShapeBase: models.ShapeBase{ID: "p", Position: models.Vector3{X: 10, Z: 10}},
		Points:    []models.LocalPoint{{X: -5, Z: -5}, {X: 5, Z: -5}, {X: 0, Z: 5}},
		Height:    3,
	}
	objs := New(nil, nil, nil).Assemble(context.Background(), []models.Shape{p}, nil, anchor)
	coords := objs[0].(*models.DrawnGeometry).Body.Prisms[0].BaseFace.Coordinates[0]

	back := geo.ToLocal(anchor, models.GeoPoint{Lat: coords[0][1], Lng: coords[0][0]}, 1)
	if math.Abs(back.X-5) > 1e-6 || math.Abs(back.Z-5) > 1e-6 {
		t.Fatalf("first vertex at %+v, want (5, 5)", back)
	}
}

func TestPrimitiveFootprints(t *testing.T) {
	box := &models.Box{ShapeBase: models.ShapeBase{ID: "b", Scale: models.UnitScale}, Width: 10, Height: 4, Depth: 6}
	cyl := &models.Cylinder{ShapeBase: models.ShapeBase{ID: "c", Scale: models.UnitScale, Position: models.Vector3{X: 20}}, Radius: 3, Height: 8}

	objs := New(nil, nil, nil).Assemble(context.Background(), []models.Shape{box, cyl}, nil, anchor)
	prisms := objs[0].(*models.DrawnGeometry).Body.Prisms
	if len(prisms) != 2 {
		t.Fatalf("prisms = %d", len(prisms))
	}

	boxRing := prisms[0].BaseFace.Coordinates[0]
	if len(boxRing) != 5 || prisms[0].Height != 4 {
		t.Fatalf("box ring=%d height=%v", len(boxRing), prisms[0].Height)
	}
	corner := geo.ToLocal(anchor, models.GeoPoint{Lat: boxRing[2][1], Lng: boxRing[2][0]}, 1)
	if math.Abs(corner.X-5) > 1e-6 || math.Abs(corner.Z-3) > 1e-6 {
		t.Fatalf("box corner = %+v", corner)
	}

	cylRing := prisms[1].BaseFace.Coordinates[0]
	if len(cylRing) != CylinderSegments+1 {
		t.Fatalf("cylinder ring = %d", len(cylRing))
	}
	start := geo.ToLocal(anchor, models.GeoPoint{Lat: cylRing[0][1], Lng: cylRing[0][0]}, 1)
	if math.Abs(start.X-23) > 1e-6 || math.Abs(start.Z) > 1e-6 {
		t.Fatalf("cylinder start = %+v", start)
	}
}

func TestRotatedBox(t *testing.T) {
	box := &models.Box{
		ShapeBase: models.ShapeBase{ID: "b", Scale: models.UnitScale, Rotation: models.Vector3{Y: math.Pi / 2}},
		Width:     10,
		Height:    1,
		Depth:     2,
	}
	objs := New(nil, nil, nil).Assemble(context.Background(), []models.Shape{box}, nil, anchor)
	ring := objs[0].(*models.DrawnGeometry).Body.Prisms[0].BaseFace.Coordinates[0]

	// A quarter turn swaps the footprint extents.
	var maxX, maxZ float64
	for _, c := range ring {
		lp := geo.ToLocal(anchor, models.GeoPoint{Lat: c[1], Lng: c[0]}, 1)
		maxX = math.Max(maxX, math.Abs(lp.X))
		maxZ = math.Max(maxZ, math.Abs(lp.Z))
	}
	if math.Abs(maxX-1) > 1e-6 || math.Abs(maxZ-5) > 1e-6 {
		t.Fatalf("extents = %v x %v", maxX, maxZ)
	}
}

func TestDegenerateRingsAreFiltered(t *testing.T) {
	p := &models.Prism{
		ShapeBase: models.ShapeBase{ID: "p"},
		OriginGeo: []models.GeoPoint{{Lat: 1, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}},
		Points:    make([]models.LocalPoint, 3),
	}
	objs := New(nil, nil, nil).Assemble(context.Background(), []models.Shape{p}, nil, anchor)
	if len(objs) != 0 {
		t.Fatalf("degenerate prism emitted: %+v", objs)
	}
}
