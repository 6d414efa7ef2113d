package payload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"building-studio/internal/common/logging"
	"building-studio/internal/studio/assembler"
	"building-studio/internal/studio/metrics"
	"building-studio/internal/studio/models"

	"github.com/google/uuid"
)

// Form is what the operator filled in on the building form.
type Form struct {
	Name        string
	Description string
	Floors      int
	PlaceID     int64
	Image       *models.File
	ModelFile   *models.File
}

// BuildingService persists buildings.
type BuildingService interface {
	Create(ctx context.Context, req *models.CreateBuildingRequest) (*models.Building, error)
	Update(ctx context.Context, id int64, req *models.UpdateBuildingRequest) (*models.Building, error)
}

// Result of a submission. Warnings list the recoverable failures that were
// swallowed on the way.
type Result struct {
	Request  *models.CreateBuildingRequest `json:"request"`
	Building *models.Building              `json:"building"`
	Warnings []string                      `json:"warnings,omitempty"`
}

type UpdateResult struct {
	Request  *models.UpdateBuildingRequest `json:"request"`
	Building *models.Building              `json:"building"`
	Warnings []string                      `json:"warnings,omitempty"`
}

// ============================================================
// Validation
// ============================================================

func validateBasics(form Form) error {
	switch {
	case strings.TrimSpace(form.Name) == "":
		return &models.ValidationError{Field: "name", Message: "is required"}
	case form.Floors <= 0:
		return &models.ValidationError{Field: "floors", Message: "must be greater than zero"}
	case form.PlaceID <= 0:
		return &models.ValidationError{Field: "placeId", Message: "is required"}
	}
	return nil
}

// Validate checks the required fields and that the building has some
// geometry: a shape, an instanced asset or a model file.
func Validate(form Form, shapes []models.Shape, assets []*models.MeshAsset) error {
	if err := validateBasics(form); err != nil {
		return err
	}
	if len(shapes) > 0 || form.ModelFile != nil {
		return nil
	}
	for _, a := range assets {
		if len(a.Instances) > 0 {
			return nil
		}
	}
	return &models.ValidationError{Field: "objects3d", Message: "draw a shape or upload a model file"}
}

// ============================================================
// Builder
// ============================================================

type Builder struct {
	uploader  assembler.Uploader
	service   BuildingService
	assembler *assembler.Assembler
	limits    Limits
	logger    logging.Logger
	metrics   *metrics.Studio
}

func NewBuilder(uploader assembler.Uploader, service BuildingService, logger logging.Logger, m *metrics.Studio) *Builder {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Builder{
		uploader:  uploader,
		service:   service,
		assembler: assembler.New(uploader, logger, m),
		limits:    DefaultLimits,
		logger:    logger,
		metrics:   m,
	}
}

// SetLimits changes the gate applied to a model file sent with the form.
func (b *Builder) SetLimits(l Limits) {
	b.limits = l
}

// OnMeshUploaded registers fn to receive the URL of each mesh file
// uploaded while a submission is assembled.
func (b *Builder) OnMeshUploaded(fn func(assetID, url string)) {
	b.assembler.OnUpload(fn)
}

// Build wraps assembled objects into a create request. A failed image
// upload leaves the image empty and adds a warning.
func (b *Builder) Build(ctx context.Context, form Form, objects []models.Object3D) (*models.CreateBuildingRequest, []string) {
	var warnings []string
	image, err := b.uploadImage(ctx, form.Image)
	if err != nil {
		warnings = append(warnings, "image upload failed, continuing without image")
	}

	if objects == nil {
		objects = []models.Object3D{}
	}
	return &models.CreateBuildingRequest{
		Name:        form.Name,
		Description: form.Description,
		Floors:      form.Floors,
		Image:       image,
		PlaceID:     form.PlaceID,
		Objects3D:   models.Objects3D(objects),
	}, warnings
}

// Create validates the form, assembles the geometry at anchor and creates
// the building. Nothing is sent when validation or the model file gate
// fails.
func (b *Builder) Create(ctx context.Context, form Form, shapes []models.Shape, assets []*models.MeshAsset, anchor models.GeoPoint) (*Result, error) {
	if err := Validate(form, shapes, assets); err != nil {
		b.metrics.Submitted("create", "invalid")
		return nil, err
	}

	var warnings []string
	if form.ModelFile != nil {
		warning, err := CheckModelFile(form.ModelFile.Name, form.ModelFile.Size(), b.limits)
		if err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				verr.Field = "modelFile"
			}
			b.metrics.Submitted("create", "invalid")
			return nil, err
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
		assets = append(assets, &models.MeshAsset{
			ID:         uuid.NewString(),
			SourceFile: form.ModelFile,
			Instances:  []models.MeshInstance{{ID: uuid.NewString(), Scale: models.UnitScale}},
		})
	}

	objects := b.assembler.Assemble(ctx, shapes, assets, anchor)
	req, buildWarnings := b.Build(ctx, form, objects)
	warnings = append(warnings, buildWarnings...)

	building, err := b.service.Create(ctx, req)
	if err != nil {
		b.metrics.Submitted("create", "error")
		return nil, fmt.Errorf("create building: %w", err)
	}
	b.metrics.Submitted("create", "ok")
	b.logger.Info(ctx, "building created",
		logging.Int64("building_id", building.ID),
		logging.Int("objects", len(req.Objects3D)),
		logging.Bool("image", req.Image != ""),
	)
	return &Result{Request: req, Building: building, Warnings: warnings}, nil
}

// Update changes the basic fields of an existing building. The image is
// only sent when a new one was uploaded.
func (b *Builder) Update(ctx context.Context, id int64, form Form) (*UpdateResult, error) {
	if err := validateBasics(form); err != nil {
		b.metrics.Submitted("update", "invalid")
		return nil, err
	}

	var warnings []string
	image, err := b.uploadImage(ctx, form.Image)
	if err != nil {
		warnings = append(warnings, "image upload failed, keeping the current image")
	}

	req := &models.UpdateBuildingRequest{
		Name:        form.Name,
		Description: form.Description,
		Floors:      form.Floors,
		PlaceID:     form.PlaceID,
		Image:       image,
	}
	building, err := b.service.Update(ctx, id, req)
	if err != nil {
		b.metrics.Submitted("update", "error")
		return nil, fmt.Errorf("update building %d: %w", id, err)
	}
	b.metrics.Submitted("update", "ok")
	return &UpdateResult{Request: req, Building: building, Warnings: warnings}, nil
}

func (b *Builder) uploadImage(ctx context.Context, f *models.File) (string, error) {
	if f == nil {
		return "", nil
	}
	if b.uploader == nil {
		return "", &models.UploadError{File: f.Name, Err: fmt.Errorf("no uploader configured")}
	}
	uploaded, err := b.uploader.UploadImages(ctx, []*models.File{f})
	if err != nil {
		b.metrics.Uploaded("image", "error")
		uerr := &models.UploadError{File: f.Name, Err: err}
		b.logger.Warn(ctx, "image upload failed", logging.Err(uerr))
		return "", uerr
	}
	b.metrics.Uploaded("image", "ok")
	if len(uploaded) == 0 {
		return "", nil
	}
	return uploaded[0].URL, nil
}
