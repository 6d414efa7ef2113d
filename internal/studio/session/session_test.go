package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"building-studio/internal/studio/capture"
	"building-studio/internal/studio/models"
	"building-studio/internal/studio/payload"
	"building-studio/internal/studio/scene"
	"building-studio/internal/studio/shape"

	"github.com/go-gl/mathgl/mgl64"
)

type stubUploader struct{}

func (stubUploader) UploadImages(_ context.Context, files []*models.File) ([]models.UploadedFile, error) {
	return uploaded(files), nil
}

func uploaded(files []*models.File) []models.UploadedFile {
	out := make([]models.UploadedFile, len(files))
	for i, f := range files {
		out[i] = models.UploadedFile{URL: "http://cdn/" + f.Name}
	}
	return out
}

type countingUploader struct {
	mu    sync.Mutex
	names []string
}

func (u *countingUploader) UploadImages(_ context.Context, files []*models.File) ([]models.UploadedFile, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, f := range files {
		u.names = append(u.names, f.Name)
	}
	return uploaded(files), nil
}

type stubBuildings struct {
	created []*models.CreateBuildingRequest
	block   chan struct{}
	fail    int
}

func (s *stubBuildings) Create(ctx context.Context, req *models.CreateBuildingRequest) (*models.Building, error) {
	if s.block != nil {
		close(s.block)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.fail > 0 {
		s.fail--
		return nil, errors.New("service unavailable")
	}
	s.created = append(s.created, req)
	return &models.Building{ID: int64(len(s.created)), Name: req.Name}, nil
}

func (s *stubBuildings) Update(_ context.Context, id int64, req *models.UpdateBuildingRequest) (*models.Building, error) {
	return &models.Building{ID: id, Name: req.Name}, nil
}

type boxLoader struct{}

func (boxLoader) Load(context.Context, string) (*scene.Model, error) {
	return &scene.Model{Meshes: 1, Min: mgl64.Vec3{-1, 0, -1}, Max: mgl64.Vec3{1, 1, 1}}, nil
}

var defaultAnchor = models.GeoPoint{Lat: 10.8743, Lng: 106.8033}

func newSession(t *testing.T, svc *stubBuildings) *Session {
	t.Helper()
	s := New(Config{Anchor: defaultAnchor}, Deps{Uploader: stubUploader{}, Buildings: svc, Loader: boxLoader{}})
	t.Cleanup(s.Close)
	return s
}

func waitSynced(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Synced():
	case <-time.After(2 * time.Second):
		t.Fatal("preview did not settle")
	}
}

func drawTriangle(t *testing.T, s *Session) *models.Prism {
	t.Helper()
	if err := s.EnableDraw(); err != nil {
		t.Fatal(err)
	}
	for _, p := range []models.GeoPoint{
		{Lat: 10.8744, Lng: 106.8033},
		{Lat: 10.8744, Lng: 106.8034},
		{Lat: 10.8743, Lng: 106.8034},
	} {
		if _, _, err := s.DoubleClick(p); err != nil {
			t.Fatal(err)
		}
	}
	res, prism, err := s.DoubleClick(models.GeoPoint{Lat: 10.87440002, Lng: 106.8033})
	if err != nil || res != capture.ResultClosed {
		t.Fatalf("close: res=%v err=%v", res, err)
	}
	return prism
}

func TestDrawFlowUpdatesMapAndPreview(t *testing.T) {
	s := newSession(t, &stubBuildings{})
	if err := s.SetDrawHeight(6); err != nil {
		t.Fatal(err)
	}
	prism := drawTriangle(t, s)
	if prism.Height != 6 {
		t.Fatalf("height = %v", prism.Height)
	}

	m := s.Map()
	if len(m.Polygons) != 1 || len(m.Markers) != 0 || !m.Anchor.Visible {
		t.Fatalf("map = %+v", m)
	}

	waitSynced(t, s)
	snap := s.Scene()
	owned := 0
	for _, n := range snap.Nodes {
		if n.Owned {
			owned++
		}
	}
	if owned != 1 || snap.Camera == scene.DefaultCamera {
		t.Fatalf("scene = %+v", snap)
	}

	if _, _, err := s.DoubleClick(defaultAnchor); err != nil {
		t.Fatalf("click outside drawing: %v", err)
	}
	s.EnableDraw()
	_, _, err := s.DoubleClick(defaultAnchor)
	var guard *models.GeometryGuardError
	if !errors.As(err, &guard) || guard.Reason != models.GuardSecondPrism {
		t.Fatalf("err = %v", err)
	}
}

func TestAnchorLockedWhileDrawing(t *testing.T) {
	s := newSession(t, &stubBuildings{})
	s.EnableDraw()

	err := s.SetAnchor(models.GeoPoint{Lat: 1, Lng: 2})
	var guard *models.GeometryGuardError
	if !errors.As(err, &guard) || guard.Reason != models.GuardDrawing {
		t.Fatalf("err = %v", err)
	}
	if m := s.Map(); m.Anchor.Visible || m.Anchor.Draggable {
		t.Fatalf("anchor = %+v", m.Anchor)
	}

	s.DisableDraw()
	if err := s.SetAnchor(models.GeoPoint{Lat: 1, Lng: 2}); err != nil {
		t.Fatal(err)
	}
	if s.Anchor() != (models.GeoPoint{Lat: 1, Lng: 2}) {
		t.Fatalf("anchor = %+v", s.Anchor())
	}
}

func TestAttachModelAndInstances(t *testing.T) {
	s := newSession(t, &stubBuildings{})

	if _, _, err := s.AttachModel(&models.File{Name: "tower.obj"}); err == nil {
		t.Fatal("non glb accepted")
	}
	asset, warning, err := s.AttachModel(&models.File{Name: "tower.glb", Data: []byte("glTF")})
	if err != nil || warning != "" {
		t.Fatalf("attach: warning=%q err=%v", warning, err)
	}
	if _, err := s.AddInstance(asset.ID, models.MeshInstance{Position: models.Vector3{X: 5}}); err != nil {
		t.Fatal(err)
	}

	waitSynced(t, s)
	meshes := 0
	for _, n := range s.Scene().Nodes {
		if n.Kind == scene.NodeMesh {
			meshes++
		}
	}
	if meshes != 2 {
		t.Fatalf("mesh nodes = %d", meshes)
	}
}

func TestSubmitResetsSession(t *testing.T) {
	svc := &stubBuildings{}
	s := newSession(t, svc)
	drawTriangle(t, s)

	res, err := s.Submit(context.Background(), payload.Form{Name: "Hall", Floors: 2, PlaceID: 4})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Building.ID != 1 || len(res.Request.Objects3D) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(s.Shapes()) != 0 || len(s.Map().Polygons) != 0 {
		t.Fatal("session not reset after submit")
	}

	_, err = s.Submit(context.Background(), payload.Form{Name: "Hall", Floors: 2, PlaceID: 4})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("empty resubmit: %v", err)
	}
}

func TestCloseCancelsSubmit(t *testing.T) {
	svc := &stubBuildings{block: make(chan struct{})}
	s := New(Config{Anchor: defaultAnchor}, Deps{Uploader: stubUploader{}, Buildings: svc, Loader: boxLoader{}})
	drawTriangle(t, s)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), payload.Form{Name: "Hall", Floors: 2, PlaceID: 4})
		errc <- err
	}()

	<-svc.block
	s.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("submit not cancelled")
	}

	if err := s.EnableDraw(); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v", err)
	}
	if len(s.Scene().Nodes) != 0 {
		t.Fatal("scene not disposed")
	}
}

func TestManager(t *testing.T) {
	m := NewManager(Config{Anchor: defaultAnchor}, Deps{Loader: boxLoader{}})

	a := m.Open(nil)
	custom := models.GeoPoint{Lat: 21.0285, Lng: 105.8542}
	b := m.Open(&custom)

	if a.Anchor() != defaultAnchor || b.Anchor() != custom {
		t.Fatalf("anchors = %+v / %+v", a.Anchor(), b.Anchor())
	}
	if got, ok := m.Get(b.ID); !ok || got != b {
		t.Fatal("session not found")
	}
	if !m.Close(a.ID) || m.Close(a.ID) {
		t.Fatal("close should succeed exactly once")
	}
	if !a.Closed() || m.Len() != 1 {
		t.Fatalf("closed=%v len=%d", a.Closed(), m.Len())
	}

	m.CloseAll()
	if !b.Closed() || m.Len() != 0 {
		t.Fatal("CloseAll left sessions open")
	}
}

func TestShapeEditing(t *testing.T) {
	s := newSession(t, &stubBuildings{})
	box, err := s.AddBox(shape.BoxParams{Width: 4, Height: 3, Depth: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddCylinder(shape.CylinderParams{Radius: 1, Height: 5}); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveShape(box.ID); err != nil {
		t.Fatal(err)
	}
	shapes := s.Shapes()
	if len(shapes) != 1 || shapes[0].Kind() != models.KindCylinder {
		t.Fatalf("shapes = %+v", shapes)
	}
}

func TestSubmitGatesModelFile(t *testing.T) {
	svc := &stubBuildings{}
	up := &countingUploader{}
	limits := payload.Limits{Enforced: 1 << 10, Advertised: 512}
	s := New(Config{Anchor: defaultAnchor, Limits: limits}, Deps{Uploader: up, Buildings: svc, Loader: boxLoader{}})
	t.Cleanup(s.Close)
	form := payload.Form{Name: "Hall", Floors: 2, PlaceID: 4}

	for _, f := range []*models.File{
		{Name: "virus.exe", Data: []byte("MZ")},
		{Name: "tower.glb", Data: make([]byte, 2<<10)},
	} {
		form.ModelFile = f
		_, err := s.Submit(context.Background(), form)
		var verr *models.ValidationError
		if !errors.As(err, &verr) || verr.Field != "modelFile" {
			t.Fatalf("%s: err = %v", f.Name, err)
		}
	}
	if len(up.names) != 0 || len(svc.created) != 0 {
		t.Fatalf("rejected model reached the network: uploads=%v creates=%d", up.names, len(svc.created))
	}

	form.ModelFile = &models.File{Name: "tower.glb", Data: make([]byte, 600)}
	res, err := s.Submit(context.Background(), form)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestRetriedSubmitReusesMeshUpload(t *testing.T) {
	svc := &stubBuildings{fail: 1}
	up := &countingUploader{}
	s := New(Config{Anchor: defaultAnchor}, Deps{Uploader: up, Buildings: svc, Loader: boxLoader{}})
	t.Cleanup(s.Close)

	asset, _, err := s.AttachModel(&models.File{Name: "tower.glb", Data: []byte("glTF")})
	if err != nil {
		t.Fatal(err)
	}
	form := payload.Form{Name: "Hall", Floors: 2, PlaceID: 4}

	if _, err := s.Submit(context.Background(), form); err == nil {
		t.Fatal("service failure swallowed")
	}
	if got := s.Assets(); len(got) != 1 || got[0].ID != asset.ID || got[0].UploadedURL != "http://cdn/tower.glb" {
		t.Fatalf("assets after failed submit = %+v", got)
	}

	res, err := s.Submit(context.Background(), form)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(up.names) != 1 {
		t.Fatalf("mesh uploaded %d times: %v", len(up.names), up.names)
	}
	mesh := res.Request.Objects3D[0].(*models.ImportedModel).Meshes[0]
	if mesh.MeshURL != "http://cdn/tower.glb" {
		t.Fatalf("mesh = %+v", mesh)
	}
}

func TestExpireIdle(t *testing.T) {
	m := NewManager(Config{Anchor: defaultAnchor}, Deps{Loader: boxLoader{}})
	t.Cleanup(m.CloseAll)

	stale := m.Open(nil)
	time.Sleep(30 * time.Millisecond)
	busy := m.Open(nil)
	if err := busy.EnableDraw(); err != nil {
		t.Fatal(err)
	}

	if n := m.ExpireIdle(busy.IdleSince(), 10*time.Millisecond); n != 1 {
		t.Fatalf("expired = %d", n)
	}
	if !stale.Closed() || busy.Closed() {
		t.Fatalf("stale closed=%v busy closed=%v", stale.Closed(), busy.Closed())
	}
	if _, ok := m.Get(stale.ID); ok || m.Len() != 1 {
		t.Fatal("expired session still registered")
	}
}

func TestJanitorStopsWithContext(t *testing.T) {
	m := NewManager(Config{Anchor: defaultAnchor}, Deps{Loader: boxLoader{}})
	s := m.Open(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunJanitor(ctx, 5*time.Millisecond, time.Nanosecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !s.Closed() {
		select {
		case <-deadline:
			t.Fatal("janitor did not expire the session")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor ignored cancellation")
	}
}
