package models

import "encoding/json"

// ============================================================
// Coordinates
// ============================================================

// GeoPoint is a WGS84 position in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocalPoint is a position in meters on the local tangent plane:
// X grows east, Z grows north.
type LocalPoint struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// UnitScale is the identity scale.
var UnitScale = Vector3{X: 1, Y: 1, Z: 1}

// ============================================================
// Shapes
// ============================================================

type ShapeKind string

const (
	KindBox      ShapeKind = "box"
	KindCylinder ShapeKind = "cylinder"
	KindPrism    ShapeKind = "prism"
)

// Shape is one of *Box, *Cylinder or *Prism.
type Shape interface {
	Kind() ShapeKind
	Base() *ShapeBase
	Clone() Shape
	shape()
}

type ShapeBase struct {
	ID       string  `json:"id"`
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"` // radians
	Scale    Vector3 `json:"scale"`
	Color    string  `json:"color"`
}

type Box struct {
	ShapeBase
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`
}

type Cylinder struct {
	ShapeBase
	Radius float64 `json:"radius"`
	Height float64 `json:"height"`
}

// Prism is an extruded footprint. Points are centered on the footprint
// centroid, which is stored in Position. OriginGeo keeps the clicked
// vertices so the footprint can be serialized without a round trip
// through local meters.
type Prism struct {
	ShapeBase
	Points    []LocalPoint `json:"points"`
	Height    float64      `json:"height"`
	OriginGeo []GeoPoint   `json:"originGeo,omitempty"`
}

func (*Box) Kind() ShapeKind      { return KindBox }
func (*Cylinder) Kind() ShapeKind { return KindCylinder }
func (*Prism) Kind() ShapeKind    { return KindPrism }

// The JSON of every shape carries its kind under "type".

func (b *Box) MarshalJSON() ([]byte, error) {
	type plain Box
	return json.Marshal(struct {
		Type ShapeKind `json:"type"`
		*plain
	}{KindBox, (*plain)(b)})
}

func (c *Cylinder) MarshalJSON() ([]byte, error) {
	type plain Cylinder
	return json.Marshal(struct {
		Type ShapeKind `json:"type"`
		*plain
	}{KindCylinder, (*plain)(c)})
}

func (p *Prism) MarshalJSON() ([]byte, error) {
	type plain Prism
	return json.Marshal(struct {
		Type ShapeKind `json:"type"`
		*plain
	}{KindPrism, (*plain)(p)})
}

func (b *Box) Base() *ShapeBase      { return &b.ShapeBase }
func (c *Cylinder) Base() *ShapeBase { return &c.ShapeBase }
func (p *Prism) Base() *ShapeBase    { return &p.ShapeBase }

func (*Box) shape()      {}
func (*Cylinder) shape() {}
func (*Prism) shape()    {}

func (b *Box) Clone() Shape {
	c := *b
	return &c
}

func (c *Cylinder) Clone() Shape {
	cp := *c
	return &cp
}

func (p *Prism) Clone() Shape {
	c := *p
	c.Points = append([]LocalPoint(nil), p.Points...)
	if p.OriginGeo != nil {
		c.OriginGeo = append([]GeoPoint(nil), p.OriginGeo...)
	}
	return &c
}

// ============================================================
// Mesh assets
// ============================================================

// File is an attached file that has not been uploaded yet.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
}

func (f *File) Size() int64 {
	if f == nil {
		return 0
	}
	return int64(len(f.Data))
}

type MeshInstance struct {
	ID       string  `json:"id"`
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"` // radians
	Scale    Vector3 `json:"scale"`
}

type MeshAsset struct {
	ID          string         `json:"id"`
	SourceFile  *File          `json:"sourceFile,omitempty"`
	UploadedURL string         `json:"uploadedUrl"`
	Instances   []MeshInstance `json:"instances"`
}

func (a *MeshAsset) Clone() *MeshAsset {
	c := *a
	c.Instances = append([]MeshInstance(nil), a.Instances...)
	return &c
}
