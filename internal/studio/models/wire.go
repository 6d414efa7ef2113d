package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================
// GeoJSON geometry
// ============================================================

// GeoJSONPolygon coordinates are [ring][vertex][lng, lat, elevation].
type GeoJSONPolygon struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// GeoJSONPoint coordinates are [lng, lat, elevation].
type GeoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func NewPolygon(ring [][]float64) GeoJSONPolygon {
	return GeoJSONPolygon{Type: "Polygon", Coordinates: [][][]float64{ring}}
}

func NewPoint(lng, lat, elevation float64) GeoJSONPoint {
	return GeoJSONPoint{Type: "Point", Coordinates: []float64{lng, lat, elevation}}
}

// ============================================================
// 3D objects
// ============================================================

type ObjectType int

const (
	ObjectImportedModel ObjectType = 0
	ObjectDrawnGeometry ObjectType = 1
)

// Object3D is either *ImportedModel or *DrawnGeometry.
type Object3D interface {
	Type() ObjectType
	Empty() bool
}

type Mesh struct {
	MeshURL string       `json:"meshUrl"`
	Point   GeoJSONPoint `json:"point"`
	Rotate  float64      `json:"rotate"` // degrees
	Scale   float64      `json:"scale"`
}

type ImportedModel struct {
	Meshes []Mesh `json:"meshes"`
}

type PrismFace struct {
	BaseFace GeoJSONPolygon `json:"baseFace"`
	Height   float64        `json:"height"`
}

type Body struct {
	Name   string      `json:"name"`
	Prisms []PrismFace `json:"prisms"`
}

type DrawnGeometry struct {
	Body Body `json:"body"`
}

func (*ImportedModel) Type() ObjectType { return ObjectImportedModel }
func (*DrawnGeometry) Type() ObjectType { return ObjectDrawnGeometry }

func (m *ImportedModel) Empty() bool { return len(m.Meshes) == 0 }

func (g *DrawnGeometry) Empty() bool {
	for _, p := range g.Body.Prisms {
		if len(p.BaseFace.Coordinates) > 0 && len(p.BaseFace.Coordinates[0]) > 0 {
			return false
		}
	}
	return true
}

func (m *ImportedModel) MarshalJSON() ([]byte, error) {
	meshes := m.Meshes
	if meshes == nil {
		meshes = []Mesh{}
	}
	return json.Marshal(struct {
		ObjectType ObjectType `json:"objectType"`
		Meshes     []Mesh     `json:"meshes"`
	}{ObjectImportedModel, meshes})
}

func (g *DrawnGeometry) MarshalJSON() ([]byte, error) {
	body := g.Body
	if body.Prisms == nil {
		body.Prisms = []PrismFace{}
	}
	return json.Marshal(struct {
		ObjectType ObjectType `json:"objectType"`
		Body       Body       `json:"body"`
	}{ObjectDrawnGeometry, body})
}

// Objects3D is a list of tagged objects that decodes back into the
// concrete variants.
type Objects3D []Object3D

func (o *Objects3D) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Objects3D, 0, len(raw))
	for i, r := range raw {
		obj, err := DecodeObject3D(r)
		if err != nil {
			return fmt.Errorf("objects3d[%d]: %w", i, err)
		}
		out = append(out, obj)
	}
	*o = out
	return nil
}

// DecodeObject3D reads one tagged object.
func DecodeObject3D(data []byte) (Object3D, error) {
	var tag struct {
		ObjectType *ObjectType `json:"objectType"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	if tag.ObjectType == nil {
		return nil, fmt.Errorf("missing objectType")
	}

	switch *tag.ObjectType {
	case ObjectImportedModel:
		var m ImportedModel
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case ObjectDrawnGeometry:
		var g DrawnGeometry
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, err
		}
		return &g, nil
	}
	return nil, fmt.Errorf("unknown objectType %d", *tag.ObjectType)
}

// ============================================================
// Building requests
// ============================================================

type CreateBuildingRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Floors      int       `json:"floors"`
	Image       string    `json:"image"`
	PlaceID     int64     `json:"placeId"`
	Objects3D   Objects3D `json:"objects3d"`
}

type UpdateBuildingRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Floors      int    `json:"floors"`
	PlaceID     int64  `json:"placeId"`
	Image       string `json:"image,omitempty"`
}

type Building struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Floors      int       `json:"floors"`
	Image       string    `json:"image"`
	PlaceID     int64     `json:"placeId"`
	Objects3D   Objects3D `json:"objects3d"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UploadedFile is one entry of an upload response.
type UploadedFile struct {
	URL string `json:"url"`
}
