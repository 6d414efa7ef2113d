package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"building-studio/internal/buildings/repository"
	"building-studio/internal/buildings/service"
	"building-studio/internal/studio/models"

	"github.com/gofiber/fiber/v3"
)

// ============================================================
// Buildings Handler
// ============================================================

type BuildingsHandler struct {
	repo      *repository.Repository
	storage   *service.FileStorage
	publicURL string
}

func NewBuildingsHandler(repo *repository.Repository, storage *service.FileStorage, publicURL string) *BuildingsHandler {
	return &BuildingsHandler{
		repo:      repo,
		storage:   storage,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (h *BuildingsHandler) Register(r fiber.Router) {
	r.Post("/images/upload", h.Upload)
	r.Get("/uploads/:name", h.GetUpload)

	r.Post("/buildings", h.Create)
	r.Get("/buildings", h.List)
	r.Get("/buildings/:id", h.Get)
	r.Put("/buildings/:id", h.Update)
}

// Upload stores every file of the "files" field and answers [{url}] in
// the same order.
func (h *BuildingsHandler) Upload(c fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "multipart/form-data required"})
	}
	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "files required"})
	}

	out := make([]models.UploadedFile, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read file"})
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read file"})
		}

		name, err := h.storage.SaveUpload(fh.Filename, data)
		if err != nil {
			log.Printf("[BUILDINGS] Save upload failed: %v", err)
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save file"})
		}
		log.Printf("[BUILDINGS] Stored %s as %s (%d bytes)", fh.Filename, name, len(data))
		out = append(out, models.UploadedFile{URL: h.publicURL + "/uploads/" + name})
	}
	return c.JSON(out)
}

func (h *BuildingsHandler) GetUpload(c fiber.Ctx) error {
	path, err := h.storage.UploadPath(c.Params("name"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid file name"})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "file not found"})
	}

	c.Set("Content-Type", contentTypeOf(path))
	return c.Send(data)
}

func contentTypeOf(path string) string {
	switch ext := filepath.Ext(path); ext {
	case ".glb":
		return "model/gltf-binary"
	case ".gltf":
		return "model/gltf+json"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}

// ============================================================
// Buildings
// ============================================================

func (h *BuildingsHandler) Create(c fiber.Ctx) error {
	var req models.CreateBuildingRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if msg := checkFields(req.Name, req.Floors, req.PlaceID); msg != "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	b, err := h.repo.Create(context.Background(), &req)
	if err != nil {
		log.Printf("[BUILDINGS] Create failed: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create building"})
	}
	log.Printf("[BUILDINGS] Created building %d (%d objects)", b.ID, len(b.Objects3D))
	return c.Status(http.StatusCreated).JSON(b)
}

func (h *BuildingsHandler) Update(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}
	var req models.UpdateBuildingRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if msg := checkFields(req.Name, req.Floors, req.PlaceID); msg != "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	b, err := h.repo.Update(context.Background(), id, &req)
	if err != nil {
		return h.repoError(c, err)
	}
	return c.JSON(b)
}

func (h *BuildingsHandler) Get(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}
	b, err := h.repo.GetByID(context.Background(), id)
	if err != nil {
		return h.repoError(c, err)
	}
	return c.JSON(b)
}

// List accepts an optional ?placeId= filter.
func (h *BuildingsHandler) List(c fiber.Ctx) error {
	var placeID int64
	if v := c.Query("placeId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid placeId"})
		}
		placeID = id
	}
	list, err := h.repo.List(context.Background(), placeID)
	if err != nil {
		log.Printf("[BUILDINGS] List failed: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list buildings"})
	}
	return c.JSON(list)
}

func checkFields(name string, floors int, placeID int64) string {
	switch {
	case strings.TrimSpace(name) == "":
		return "name is required"
	case floors <= 0:
		return "floors must be greater than zero"
	case placeID <= 0:
		return "placeId is required"
	}
	return ""
}

func (h *BuildingsHandler) repoError(c fiber.Ctx, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "building not found"})
	}
	log.Printf("[BUILDINGS] Repository error: %v", err)
	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
