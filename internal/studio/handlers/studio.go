package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"building-studio/internal/studio/capture"
	"building-studio/internal/studio/models"
	"building-studio/internal/studio/payload"
	"building-studio/internal/studio/session"
	"building-studio/internal/studio/shape"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/timeout"
)

// ============================================================
// Studio Handler
// ============================================================

type StudioHandler struct {
	sessions      *session.Manager
	submitTimeout time.Duration
}

func NewStudioHandler(sessions *session.Manager) *StudioHandler {
	return &StudioHandler{sessions: sessions}
}

// WithSubmitTimeout bounds the upstream calls of submit and update. Zero
// means no bound.
func (h *StudioHandler) WithSubmitTimeout(d time.Duration) *StudioHandler {
	h.submitTimeout = d
	return h
}

// Register mounts the session routes on r.
func (h *StudioHandler) Register(r fiber.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Get("/sessions/:id", h.GetSession)
	r.Delete("/sessions/:id", h.CloseSession)
	r.Put("/sessions/:id/anchor", h.SetAnchor)

	r.Post("/sessions/:id/draw", h.EnableDraw)
	r.Delete("/sessions/:id/draw", h.DisableDraw)
	r.Put("/sessions/:id/draw/height", h.SetDrawHeight)
	r.Put("/sessions/:id/draw/scale", h.SetDrawScale)
	r.Post("/sessions/:id/dblclick", h.DoubleClick)
	r.Post("/sessions/:id/contextmenu", h.RightClick)

	r.Post("/sessions/:id/shapes", h.AddShape)
	r.Delete("/sessions/:id/shapes/:shapeId", h.RemoveShape)

	r.Post("/sessions/:id/assets", h.AttachModel)
	r.Delete("/sessions/:id/assets/:assetId", h.RemoveAsset)
	r.Post("/sessions/:id/assets/:assetId/instances", h.AddInstance)
	r.Put("/sessions/:id/assets/:assetId/instances/:instanceId", h.UpdateInstance)
	r.Delete("/sessions/:id/assets/:assetId/instances/:instanceId", h.RemoveInstance)

	r.Get("/sessions/:id/map", h.GetMap)
	r.Get("/sessions/:id/map.svg", h.GetMapSVG)
	r.Get("/sessions/:id/scene", h.GetScene)

	bounded := timeout.Config{Timeout: h.submitTimeout, OnTimeout: submitTimedOut}
	r.Post("/sessions/:id/submit", timeout.New(h.Submit, bounded))
	r.Put("/sessions/:id/buildings/:buildingId", timeout.New(h.UpdateBuilding, bounded))
}

func submitTimedOut(c fiber.Ctx) error {
	return c.Status(http.StatusGatewayTimeout).JSON(fiber.Map{"error": "building service timed out"})
}

type sessionPayload struct {
	ID        string          `json:"id"`
	Anchor    models.GeoPoint `json:"anchor"`
	State     string          `json:"state"`
	Shapes    []models.Shape  `json:"shapes"`
	Assets    []*assetPayload `json:"assets"`
	CreatedAt string          `json:"createdAt"`
}

type assetPayload struct {
	*models.MeshAsset
	Warning string `json:"warning,omitempty"`
}

func mapSession(s *session.Session) sessionPayload {
	assets := s.Assets()
	out := make([]*assetPayload, len(assets))
	for i, a := range assets {
		out[i] = &assetPayload{MeshAsset: a}
	}
	shapes := s.Shapes()
	if shapes == nil {
		shapes = []models.Shape{}
	}
	return sessionPayload{
		ID:        s.ID,
		Anchor:    s.Anchor(),
		State:     s.DrawState().String(),
		Shapes:    shapes,
		Assets:    out,
		CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *StudioHandler) session(c fiber.Ctx) (*session.Session, error) {
	s, ok := h.sessions.Get(c.Params("id"))
	if !ok {
		return nil, c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	return s, nil
}

// ============================================================
// Sessions
// ============================================================

// CreateSession opens an authoring session, optionally at {lat, lng}.
func (h *StudioHandler) CreateSession(c fiber.Ctx) error {
	var anchor *models.GeoPoint
	if len(c.Body()) > 0 {
		var p models.GeoPoint
		if err := json.Unmarshal(c.Body(), &p); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
		}
		anchor = &p
	}

	s := h.sessions.Open(anchor)
	log.Printf("[STUDIO] Session opened: %s", s.ID)
	return c.Status(http.StatusCreated).JSON(mapSession(s))
}

func (h *StudioHandler) GetSession(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	return c.JSON(mapSession(s))
}

func (h *StudioHandler) CloseSession(c fiber.Ctx) error {
	if !h.sessions.Close(c.Params("id")) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	log.Printf("[STUDIO] Session closed: %s", c.Params("id"))
	return c.SendStatus(http.StatusNoContent)
}

func (h *StudioHandler) SetAnchor(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	var p models.GeoPoint
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if err := s.SetAnchor(p); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"anchor": s.Anchor()})
}

// ============================================================
// Drawing
// ============================================================

func (h *StudioHandler) EnableDraw(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	if err := s.EnableDraw(); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"state": s.DrawState().String()})
}

func (h *StudioHandler) DisableDraw(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	if err := s.DisableDraw(); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"state": s.DrawState().String()})
}

type valueRequest struct {
	Value float64 `json:"value"`
}

func (h *StudioHandler) SetDrawHeight(c fiber.Ctx) error {
	return h.setControl(c, (*session.Session).SetDrawHeight)
}

func (h *StudioHandler) SetDrawScale(c fiber.Ctx) error {
	return h.setControl(c, (*session.Session).SetDrawScale)
}

func (h *StudioHandler) setControl(c fiber.Ctx, set func(*session.Session, float64) error) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	var req valueRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if err := set(s, req.Value); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"value": req.Value})
}

var resultNames = map[capture.Result]string{
	capture.ResultIgnored:  "ignored",
	capture.ResultAppended: "appended",
	capture.ResultClosed:   "closed",
}

// DoubleClick feeds a map double-click at {lat, lng} to the capture machine.
func (h *StudioHandler) DoubleClick(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	var p models.GeoPoint
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}

	res, prism, err := s.DoubleClick(p)
	if err != nil {
		return writeError(c, err)
	}
	resp := fiber.Map{
		"result": resultNames[res],
		"state":  s.DrawState().String(),
	}
	if prism != nil {
		resp["prism"] = prism
	}
	return c.JSON(resp)
}

func (h *StudioHandler) RightClick(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	removed, err := s.RightClick()
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"removed": removed})
}

// ============================================================
// Shapes
// ============================================================

type shapeRequest struct {
	Type     models.ShapeKind `json:"type"`
	Width    float64          `json:"width"`
	Height   float64          `json:"height"`
	Depth    float64          `json:"depth"`
	Radius   float64          `json:"radius"`
	Position models.Vector3   `json:"position"`
	Rotation models.Vector3   `json:"rotation"`
	Color    string           `json:"color"`
}

func (h *StudioHandler) AddShape(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	var req shapeRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}

	var created models.Shape
	switch req.Type {
	case models.KindBox:
		created, err = s.AddBox(shape.BoxParams{
			Width: req.Width, Height: req.Height, Depth: req.Depth,
			Position: req.Position, Rotation: req.Rotation, Color: req.Color,
		})
	case models.KindCylinder:
		created, err = s.AddCylinder(shape.CylinderParams{
			Radius: req.Radius, Height: req.Height,
			Position: req.Position, Rotation: req.Rotation, Color: req.Color,
		})
	default:
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "type must be box or cylinder"})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(created)
}

func (h *StudioHandler) RemoveShape(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	if err := s.RemoveShape(c.Params("shapeId")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// ============================================================
// Assets
// ============================================================

// AttachModel accepts a .glb/.gltf upload in the "file" field.
func (h *StudioHandler) AttachModel(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "file required in multipart/form-data"})
	}
	file, err := readFile(fh)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read file"})
	}

	asset, warning, err := s.AttachModel(file)
	if err != nil {
		return writeError(c, err)
	}
	log.Printf("[STUDIO] Model attached: %s (%d bytes)", file.Name, file.Size())
	return c.Status(http.StatusCreated).JSON(assetPayload{MeshAsset: asset, Warning: warning})
}

func (h *StudioHandler) RemoveAsset(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	if err := s.RemoveAsset(c.Params("assetId")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *StudioHandler) AddInstance(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	var inst models.MeshInstance
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &inst); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
		}
	}
	created, err := s.AddInstance(c.Params("assetId"), inst)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(created)
}

func (h *StudioHandler) UpdateInstance(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	var inst models.MeshInstance
	if err := json.Unmarshal(c.Body(), &inst); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	inst.ID = c.Params("instanceId")
	if err := s.UpdateInstance(c.Params("assetId"), inst); err != nil {
		return writeError(c, err)
	}
	return c.JSON(inst)
}

func (h *StudioHandler) RemoveInstance(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	if err := s.RemoveInstance(c.Params("assetId"), c.Params("instanceId")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// ============================================================
// Views
// ============================================================

func (h *StudioHandler) GetMap(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	return c.JSON(s.Map())
}

func (h *StudioHandler) GetMapSVG(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	svg, err := s.MapSVG()
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set("Content-Type", "image/svg+xml")
	return c.SendString(svg)
}

func (h *StudioHandler) GetScene(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	return c.JSON(s.Scene())
}

// ============================================================
// Submission
// ============================================================

// Submit reads the building form (multipart or urlencoded) and creates the
// building. Optional files: "image" and "modelFile".
func (h *StudioHandler) Submit(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	form, err := parseForm(c)
	if err != nil {
		return writeError(c, err)
	}

	res, err := s.Submit(c.Context(), form)
	if err != nil {
		return writeError(c, err)
	}
	log.Printf("[STUDIO] Building created: id=%d session=%s", res.Building.ID, s.ID)
	return c.Status(http.StatusCreated).JSON(res)
}

func (h *StudioHandler) UpdateBuilding(c fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	id, err := strconv.ParseInt(c.Params("buildingId"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid building id"})
	}
	form, err := parseForm(c)
	if err != nil {
		return writeError(c, err)
	}

	res, err := s.UpdateBuilding(c.Context(), id, form)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func parseForm(c fiber.Ctx) (payload.Form, error) {
	form := payload.Form{
		Name:        c.FormValue("name"),
		Description: c.FormValue("description"),
	}

	if v := c.FormValue("floors"); v != "" {
		floors, err := strconv.Atoi(v)
		if err != nil {
			return form, &models.ValidationError{Field: "floors", Message: "must be a number"}
		}
		form.Floors = floors
	}
	if v := c.FormValue("placeId"); v != "" {
		place, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return form, &models.ValidationError{Field: "placeId", Message: "must be a number"}
		}
		form.PlaceID = place
	}

	var err error
	if form.Image, err = optionalFile(c, "image"); err != nil {
		return form, err
	}
	if form.ModelFile, err = optionalFile(c, "modelFile"); err != nil {
		return form, err
	}
	return form, nil
}

func optionalFile(c fiber.Ctx, field string) (*models.File, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	return readFile(fh)
}

func readFile(fh *multipart.FileHeader) (*models.File, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &models.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// ============================================================
// Errors
// ============================================================

func writeError(c fiber.Ctx, err error) error {
	var (
		verr  *models.ValidationError
		guard *models.GeometryGuardError
	)
	switch {
	case errors.As(err, &verr):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": verr.Error(), "field": verr.Field})
	case errors.As(err, &guard):
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": guard.Message, "reason": guard.Reason})
	case errors.Is(err, shape.ErrNotFound):
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, session.ErrClosed):
		return c.Status(http.StatusGone).JSON(fiber.Map{"error": "session closed"})
	case errors.Is(err, context.Canceled):
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": "request cancelled"})
	case errors.Is(err, context.DeadlineExceeded):
		return submitTimedOut(c)
	}
	log.Printf("[STUDIO] Upstream error: %v", err)
	return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
}
