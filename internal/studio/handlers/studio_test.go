package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"building-studio/internal/studio/models"
	"building-studio/internal/studio/scene"
	"building-studio/internal/studio/session"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gofiber/fiber/v3"
)

type stubUploader struct{}

func (stubUploader) UploadImages(_ context.Context, files []*models.File) ([]models.UploadedFile, error) {
	out := make([]models.UploadedFile, len(files))
	for i, f := range files {
		out[i] = models.UploadedFile{URL: "http://cdn/" + f.Name}
	}
	return out, nil
}

type stubBuildings struct {
	created []*models.CreateBuildingRequest
	hang    bool
}

func (s *stubBuildings) Create(ctx context.Context, req *models.CreateBuildingRequest) (*models.Building, error) {
	if s.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.created = append(s.created, req)
	return &models.Building{ID: int64(len(s.created)), Name: req.Name, Image: req.Image}, nil
}

func (s *stubBuildings) Update(_ context.Context, id int64, req *models.UpdateBuildingRequest) (*models.Building, error) {
	return &models.Building{ID: id, Name: req.Name}, nil
}

type boxLoader struct{}

func (boxLoader) Load(context.Context, string) (*scene.Model, error) {
	return &scene.Model{Meshes: 1, Min: mgl64.Vec3{-1, 0, -1}, Max: mgl64.Vec3{1, 1, 1}}, nil
}

func newApp(t *testing.T) (*fiber.App, *stubBuildings) {
	t.Helper()
	return newAppWith(t, &stubBuildings{}, 0)
}

func newAppWith(t *testing.T, svc *stubBuildings, submitTimeout time.Duration) (*fiber.App, *stubBuildings) {
	t.Helper()
	mgr := session.NewManager(
		session.Config{Anchor: models.GeoPoint{Lat: 10.8743, Lng: 106.8033}},
		session.Deps{Uploader: stubUploader{}, Buildings: svc, Loader: boxLoader{}},
	)
	t.Cleanup(mgr.CloseAll)

	app := fiber.New()
	NewStudioHandler(mgr).WithSubmitTimeout(submitTimeout).Register(app)
	return app, svc
}

func call(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return send(t, app, req)
}

func send(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
	}
	return resp.StatusCode, out
}

func openSession(t *testing.T, app *fiber.App) string {
	t.Helper()
	code, body := call(t, app, http.MethodPost, "/sessions", nil)
	if code != http.StatusCreated {
		t.Fatalf("create session: %d %v", code, body)
	}
	return body["id"].(string)
}

func TestUnknownSession(t *testing.T) {
	app, _ := newApp(t)
	if code, _ := call(t, app, http.MethodGet, "/sessions/nope", nil); code != http.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
}

func TestDrawAndSubmit(t *testing.T) {
	app, svc := newApp(t)
	id := openSession(t, app)
	base := "/sessions/" + id

	if code, body := call(t, app, http.MethodPost, base+"/draw", nil); code != http.StatusOK || body["state"] != "drawing" {
		t.Fatalf("draw: %d %v", code, body)
	}
	if code, _ := call(t, app, http.MethodPut, base+"/anchor", models.GeoPoint{Lat: 1, Lng: 1}); code != http.StatusConflict {
		t.Fatalf("anchor while drawing: %d", code)
	}

	for _, p := range []models.GeoPoint{
		{Lat: 10.8744, Lng: 106.8033},
		{Lat: 10.8744, Lng: 106.8034},
		{Lat: 10.8743, Lng: 106.8034},
	} {
		if code, body := call(t, app, http.MethodPost, base+"/dblclick", p); body["result"] != "appended" {
			t.Fatalf("dblclick: %d %v", code, body)
		}
	}
	code, body := call(t, app, http.MethodPost, base+"/dblclick", models.GeoPoint{Lat: 10.8744, Lng: 106.8033})
	if code != http.StatusOK || body["result"] != "closed" || body["prism"] == nil {
		t.Fatalf("close: %d %v", code, body)
	}

	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	w.WriteField("name", "Library")
	w.WriteField("floors", "3")
	w.WriteField("placeId", "7")
	fw, _ := w.CreateFormFile("image", "front.png")
	fw.Write([]byte("png"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, base+"/submit", &form)
	req.Header.Set("Content-Type", w.FormDataContentType())
	code, body = send(t, app, req)
	if code != http.StatusCreated {
		t.Fatalf("submit: %d %v", code, body)
	}
	if len(svc.created) != 1 {
		t.Fatalf("created = %d", len(svc.created))
	}
	got := svc.created[0]
	if got.Image != "http://cdn/front.png" || got.Floors != 3 || got.PlaceID != 7 || len(got.Objects3D) != 1 {
		t.Fatalf("request = %+v", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	app, svc := newApp(t)
	id := openSession(t, app)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/submit",
		strings.NewReader("name=Library&floors=3&placeId=7"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	code, body := send(t, app, req)
	if code != http.StatusBadRequest || body["field"] != "objects3d" {
		t.Fatalf("submit: %d %v", code, body)
	}

	req = httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/submit",
		strings.NewReader("name=Library&floors=three"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if code, body := send(t, app, req); code != http.StatusBadRequest || body["field"] != "floors" {
		t.Fatalf("floors: %d %v", code, body)
	}
	if len(svc.created) != 0 {
		t.Fatal("service called on invalid form")
	}
}

func TestShapesAndAssets(t *testing.T) {
	app, _ := newApp(t)
	base := "/sessions/" + openSession(t, app)

	code, box := call(t, app, http.MethodPost, base+"/shapes", map[string]any{"type": "box", "width": 2, "height": 3, "depth": 4})
	if code != http.StatusCreated || box["type"] != "box" {
		t.Fatalf("add box: %d %v", code, box)
	}
	if _, sess := call(t, app, http.MethodGet, base, nil); sess["shapes"].([]any)[0].(map[string]any)["type"] != "box" {
		t.Fatalf("session shapes = %v", sess["shapes"])
	}
	if code, _ := call(t, app, http.MethodPost, base+"/shapes", map[string]any{"type": "box"}); code != http.StatusBadRequest {
		t.Fatalf("zero box: %d", code)
	}
	if code, _ := call(t, app, http.MethodPost, base+"/shapes", map[string]any{"type": "cone"}); code != http.StatusBadRequest {
		t.Fatalf("cone: %d", code)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, _ := w.CreateFormFile("file", "tower.glb")
	fw.Write([]byte("glTF"))
	w.Close()
	req := httptest.NewRequest(http.MethodPost, base+"/assets", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	code, asset := send(t, app, req)
	if code != http.StatusCreated {
		t.Fatalf("attach: %d %v", code, asset)
	}
	assetID := asset["id"].(string)

	code, inst := call(t, app, http.MethodPost, base+"/assets/"+assetID+"/instances", map[string]any{"position": map[string]float64{"x": 3}})
	if code != http.StatusCreated {
		t.Fatalf("instance: %d %v", code, inst)
	}
	instPath := base + "/assets/" + assetID + "/instances/" + inst["id"].(string)
	if code, _ := call(t, app, http.MethodDelete, instPath, nil); code != http.StatusNoContent {
		t.Fatalf("remove instance: %d", code)
	}
	if code, _ := call(t, app, http.MethodDelete, instPath, nil); code != http.StatusNotFound {
		t.Fatalf("remove twice: %d", code)
	}

	if code, _ := call(t, app, http.MethodDelete, base+"/shapes/"+box["id"].(string), nil); code != http.StatusNoContent {
		t.Fatalf("remove box: %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, base+"/map.svg", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("map.svg: %v %+v", err, resp)
	}
}

func TestCloseSession(t *testing.T) {
	app, _ := newApp(t)
	base := "/sessions/" + openSession(t, app)

	if code, _ := call(t, app, http.MethodDelete, base, nil); code != http.StatusNoContent {
		t.Fatalf("close: %d", code)
	}
	if code, _ := call(t, app, http.MethodPost, base+"/draw", nil); code != http.StatusNotFound {
		t.Fatalf("draw after close: %d", code)
	}
}

func drawnSession(t *testing.T, app *fiber.App) string {
	t.Helper()
	base := "/sessions/" + openSession(t, app)
	if code, _ := call(t, app, http.MethodPost, base+"/shapes", map[string]any{"type": "box", "width": 2, "height": 3, "depth": 4}); code != http.StatusCreated {
		t.Fatalf("add box: %d", code)
	}
	return base
}

func submitForm(t *testing.T, app *fiber.App, base, modelName string, modelSize int) (int, map[string]any) {
	t.Helper()
	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	w.WriteField("name", "Library")
	w.WriteField("floors", "3")
	w.WriteField("placeId", "7")
	if modelName != "" {
		fw, _ := w.CreateFormFile("modelFile", modelName)
		fw.Write(bytes.Repeat([]byte{'x'}, modelSize))
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, base+"/submit", &form)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return send(t, app, req)
}

func TestSubmitGatesModelFile(t *testing.T) {
	app, svc := newApp(t)
	base := drawnSession(t, app)

	code, body := submitForm(t, app, base, "virus.exe", 16)
	if code != http.StatusBadRequest || body["field"] != "modelFile" {
		t.Fatalf("exe model: %d %v", code, body)
	}
	if len(svc.created) != 0 {
		t.Fatal("service called with a rejected model file")
	}

	code, body = submitForm(t, app, base, "tower.glb", 16)
	if code != http.StatusCreated || len(svc.created) != 1 {
		t.Fatalf("glb model: %d %v", code, body)
	}
}

func TestSubmitTimesOut(t *testing.T) {
	app, _ := newAppWith(t, &stubBuildings{hang: true}, 50*time.Millisecond)
	base := drawnSession(t, app)

	code, body := submitForm(t, app, base, "", 0)
	if code != http.StatusGatewayTimeout {
		t.Fatalf("submit: %d %v", code, body)
	}
	if code, _ := call(t, app, http.MethodGet, base, nil); code != http.StatusOK {
		t.Fatalf("session unusable after timeout: %d", code)
	}
}
