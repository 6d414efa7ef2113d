package shape

import (
	"errors"
	"fmt"

	"building-studio/internal/studio/models"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultDrawHeight = 1.0
	DefaultDrawScale  = 1.0
)

// ============================================================
// Shape Model
// ============================================================

// Model holds the shapes and mesh assets of one authoring session. It is
// not safe for concurrent use; the session serializes access. Listeners
// registered with OnChange run after every mutation.
type Model struct {
	shapes     []models.Shape
	assets     []*models.MeshAsset
	drawHeight float64
	drawScale  float64
	listeners  []func()
}

func NewModel() *Model {
	return &Model{
		drawHeight: DefaultDrawHeight,
		drawScale:  DefaultDrawScale,
	}
}

func (m *Model) OnChange(fn func()) {
	m.listeners = append(m.listeners, fn)
}

func (m *Model) changed() {
	for _, fn := range m.listeners {
		fn()
	}
}

// Shapes returns a deep copy of the shape list.
func (m *Model) Shapes() []models.Shape {
	out := make([]models.Shape, len(m.shapes))
	for i, s := range m.shapes {
		out[i] = s.Clone()
	}
	return out
}

func (m *Model) Len() int { return len(m.shapes) }

func (m *Model) HasPrism() bool {
	_, ok := m.Prism()
	return ok
}

// Prism returns a copy of the active prism.
func (m *Model) Prism() (*models.Prism, bool) {
	for _, s := range m.shapes {
		if p, ok := s.(*models.Prism); ok {
			return p.Clone().(*models.Prism), true
		}
	}
	return nil, false
}

func (m *Model) DrawHeight() float64 { return m.drawHeight }
func (m *Model) DrawScale() float64  { return m.drawScale }

// CommitPrism builds a prism from the clicked vertices with the current
// draw height and scale, replacing any prism already in the model.
func (m *Model) CommitPrism(points []models.GeoPoint) (*models.Prism, error) {
	p, err := BuildPrism(points, m.drawScale, m.drawHeight)
	if err != nil {
		return nil, err
	}

	kept := m.shapes[:0:0]
	for _, s := range m.shapes {
		if s.Kind() != models.KindPrism {
			kept = append(kept, s)
		}
	}
	m.shapes = append(kept, p)
	m.changed()
	return p.Clone().(*models.Prism), nil
}

// SetDrawHeight updates the height control and rebuilds the active prism
// with it.
func (m *Model) SetDrawHeight(h float64) error {
	if h <= 0 {
		return &models.ValidationError{Field: "height", Message: "must be positive"}
	}
	m.drawHeight = h

	for i, s := range m.shapes {
		p, ok := s.(*models.Prism)
		if !ok || p.Height == h {
			continue
		}
		m.shapes[i] = WithHeight(p, h)
		m.changed()
		return nil
	}
	return nil
}

// SetDrawScale changes the multiplier used by the next finalize.
func (m *Model) SetDrawScale(s float64) error {
	if s <= 0 {
		return &models.ValidationError{Field: "scale", Message: "must be positive"}
	}
	m.drawScale = s
	return nil
}

type BoxParams struct {
	Width    float64
	Height   float64
	Depth    float64
	Position models.Vector3
	Rotation models.Vector3
	Color    string
}

func (m *Model) AddBox(p BoxParams) (*models.Box, error) {
	if p.Width <= 0 || p.Height <= 0 || p.Depth <= 0 {
		return nil, &models.ValidationError{Field: "box", Message: "width, height and depth must be positive"}
	}
	b := &models.Box{
		ShapeBase: newBase(p.Position, p.Rotation, p.Color),
		Width:     p.Width,
		Height:    p.Height,
		Depth:     p.Depth,
	}
	m.shapes = append(m.shapes, b)
	m.changed()
	return b.Clone().(*models.Box), nil
}

type CylinderParams struct {
	Radius   float64
	Height   float64
	Position models.Vector3
	Rotation models.Vector3
	Color    string
}

func (m *Model) AddCylinder(p CylinderParams) (*models.Cylinder, error) {
	if p.Radius <= 0 || p.Height <= 0 {
		return nil, &models.ValidationError{Field: "cylinder", Message: "radius and height must be positive"}
	}
	c := &models.Cylinder{
		ShapeBase: newBase(p.Position, p.Rotation, p.Color),
		Radius:    p.Radius,
		Height:    p.Height,
	}
	m.shapes = append(m.shapes, c)
	m.changed()
	return c.Clone().(*models.Cylinder), nil
}

func newBase(pos, rot models.Vector3, color string) models.ShapeBase {
	if color == "" {
		color = RandomColor()
	}
	return models.ShapeBase{
		ID:       uuid.NewString(),
		Position: pos,
		Rotation: rot,
		Scale:    models.UnitScale,
		Color:    color,
	}
}

func (m *Model) RemoveShape(id string) error {
	for i, s := range m.shapes {
		if s.Base().ID == id {
			m.shapes = append(m.shapes[:i], m.shapes[i+1:]...)
			m.changed()
			return nil
		}
	}
	return fmt.Errorf("shape %s: %w", id, ErrNotFound)
}

// ============================================================
// Mesh assets
// ============================================================

// Assets returns a deep copy of the asset list.
func (m *Model) Assets() []*models.MeshAsset {
	out := make([]*models.MeshAsset, len(m.assets))
	for i, a := range m.assets {
		out[i] = a.Clone()
	}
	return out
}

// AttachAsset registers a model file with one instance at the origin.
func (m *Model) AttachAsset(file *models.File) *models.MeshAsset {
	a := &models.MeshAsset{
		ID:         uuid.NewString(),
		SourceFile: file,
		Instances:  []models.MeshInstance{defaultInstance()},
	}
	m.assets = append(m.assets, a)
	m.changed()
	return a.Clone()
}

func defaultInstance() models.MeshInstance {
	return models.MeshInstance{ID: uuid.NewString(), Scale: models.UnitScale}
}

func (m *Model) asset(id string) (*models.MeshAsset, error) {
	for _, a := range m.assets {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("asset %s: %w", id, ErrNotFound)
}

func (m *Model) AddInstance(assetID string, inst models.MeshInstance) (models.MeshInstance, error) {
	a, err := m.asset(assetID)
	if err != nil {
		return models.MeshInstance{}, err
	}
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.Scale == (models.Vector3{}) {
		inst.Scale = models.UnitScale
	}
	a.Instances = append(a.Instances, inst)
	m.changed()
	return inst, nil
}

func (m *Model) UpdateInstance(assetID string, inst models.MeshInstance) error {
	a, err := m.asset(assetID)
	if err != nil {
		return err
	}
	for i := range a.Instances {
		if a.Instances[i].ID == inst.ID {
			a.Instances[i] = inst
			m.changed()
			return nil
		}
	}
	return fmt.Errorf("instance %s: %w", inst.ID, ErrNotFound)
}

func (m *Model) RemoveInstance(assetID, instanceID string) error {
	a, err := m.asset(assetID)
	if err != nil {
		return err
	}
	for i := range a.Instances {
		if a.Instances[i].ID == instanceID {
			a.Instances = append(a.Instances[:i], a.Instances[i+1:]...)
			m.changed()
			return nil
		}
	}
	return fmt.Errorf("instance %s: %w", instanceID, ErrNotFound)
}

func (m *Model) RemoveAsset(id string) error {
	for i, a := range m.assets {
		if a.ID == id {
			m.assets = append(m.assets[:i], m.assets[i+1:]...)
			m.changed()
			return nil
		}
	}
	return fmt.Errorf("asset %s: %w", id, ErrNotFound)
}

// SetUploadedURL records the URL an asset was uploaded to.
func (m *Model) SetUploadedURL(assetID, url string) error {
	a, err := m.asset(assetID)
	if err != nil {
		return err
	}
	if a.UploadedURL == url {
		return nil
	}
	a.UploadedURL = url
	m.changed()
	return nil
}

// Reset drops every shape and asset and restores the draw controls.
func (m *Model) Reset() {
	m.shapes = nil
	m.assets = nil
	m.drawHeight = DefaultDrawHeight
	m.drawScale = DefaultDrawScale
	m.changed()
}
