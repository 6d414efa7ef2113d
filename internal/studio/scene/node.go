package scene

import (
	"math"

	"building-studio/internal/studio/models"

	"github.com/go-gl/mathgl/mgl64"
)

type NodeKind string

const (
	NodeBox      NodeKind = "box"
	NodeCylinder NodeKind = "cylinder"
	NodePrism    NodeKind = "prism"
	NodeMesh     NodeKind = "mesh"
	NodeGrid     NodeKind = "grid"
	NodeAxes     NodeKind = "axes"
)

// CylinderSegments is the radial resolution of preview cylinders.
const CylinderSegments = 32

// Node is one renderable object. Owned nodes are generated from the shape
// model and replaced on every sync; the rest is fixed furniture.
type Node struct {
	ID         string         `json:"id"`
	Kind       NodeKind       `json:"kind"`
	Owned      bool           `json:"owned"`
	ShapeID    string         `json:"shapeId,omitempty"`
	AssetID    string         `json:"assetId,omitempty"`
	InstanceID string         `json:"instanceId,omitempty"`
	Color      string         `json:"color,omitempty"`
	Position   models.Vector3 `json:"position"`
	Rotation   models.Vector3 `json:"rotation"`
	Scale      models.Vector3 `json:"scale"`
	Min        models.Vector3 `json:"min"`
	Max        models.Vector3 `json:"max"`

	// Local-space vertices before the node transform.
	vertices []mgl64.Vec3
}

func (n *Node) clone() *Node {
	c := *n
	c.vertices = append([]mgl64.Vec3(nil), n.vertices...)
	return &c
}

// ============================================================
// Transforms & bounds
// ============================================================

func vec(v models.Vector3) mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }

func vector3(v mgl64.Vec3) models.Vector3 { return models.Vector3{X: v.X(), Y: v.Y(), Z: v.Z()} }

// rotation builds an XYZ Euler rotation matrix.
func rotation(r models.Vector3) mgl64.Mat3 {
	return mgl64.Rotate3DX(r.X).Mul3(mgl64.Rotate3DY(r.Y)).Mul3(mgl64.Rotate3DZ(r.Z))
}

// World returns the node's vertices in scene space.
func (n *Node) World() []mgl64.Vec3 {
	rot := rotation(n.Rotation)
	scale := vec(n.Scale)
	pos := vec(n.Position)

	out := make([]mgl64.Vec3, len(n.vertices))
	for i, v := range n.vertices {
		scaled := mgl64.Vec3{v.X() * scale.X(), v.Y() * scale.Y(), v.Z() * scale.Z()}
		out[i] = rot.Mul3x1(scaled).Add(pos)
	}
	return out
}

// updateBounds recomputes the node's world AABB.
func (n *Node) updateBounds() {
	b := emptyBounds()
	b.extend(n.World()...)
	if b.empty() {
		return
	}
	n.Min, n.Max = vector3(b.min), vector3(b.max)
}

type bounds struct {
	min, max mgl64.Vec3
}

func emptyBounds() bounds {
	inf := math.Inf(1)
	return bounds{min: mgl64.Vec3{inf, inf, inf}, max: mgl64.Vec3{-inf, -inf, -inf}}
}

func (b *bounds) extend(pts ...mgl64.Vec3) {
	for _, p := range pts {
		for i := 0; i < 3; i++ {
			b.min[i] = math.Min(b.min[i], p[i])
			b.max[i] = math.Max(b.max[i], p[i])
		}
	}
}

func (b bounds) empty() bool { return b.min.X() > b.max.X() }

func (b bounds) center() mgl64.Vec3 { return b.min.Add(b.max).Mul(0.5) }

func (b bounds) diagonal() float64 { return b.max.Sub(b.min).Len() }

// ============================================================
// Procedural geometry
// ============================================================

func boxVertices(w, h, d float64) []mgl64.Vec3 {
	return cuboid(mgl64.Vec3{-w / 2, -h / 2, -d / 2}, mgl64.Vec3{w / 2, h / 2, d / 2})
}

func cuboid(lo, hi mgl64.Vec3) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, 8)
	for _, x := range []float64{lo.X(), hi.X()} {
		for _, y := range []float64{lo.Y(), hi.Y()} {
			for _, z := range []float64{lo.Z(), hi.Z()} {
				out = append(out, mgl64.Vec3{x, y, z})
			}
		}
	}
	return out
}

func cylinderVertices(radius, height float64) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, 2*CylinderSegments)
	for i := 0; i < CylinderSegments; i++ {
		angle := float64(i) / CylinderSegments * 2 * math.Pi
		x, z := radius*math.Sin(angle), radius*math.Cos(angle)
		out = append(out, mgl64.Vec3{x, -height / 2, z}, mgl64.Vec3{x, height / 2, z})
	}
	return out
}

// prismVertices extrudes the footprint upward from the ground plane.
func prismVertices(points []models.LocalPoint, height float64) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, 2*len(points))
	for _, p := range points {
		out = append(out, mgl64.Vec3{p.X, 0, p.Z}, mgl64.Vec3{p.X, height, p.Z})
	}
	return out
}

// shapeNode builds the preview node for a shape. previewScale shrinks
// positions and sizes alike.
func shapeNode(s models.Shape, previewScale float64) *Node {
	base := s.Base()
	n := &Node{
		ID:       "shape:" + base.ID,
		Owned:    true,
		ShapeID:  base.ID,
		Color:    base.Color,
		Position: vector3(vec(base.Position).Mul(previewScale)),
		Rotation: base.Rotation,
		Scale:    vector3(vec(base.Scale).Mul(previewScale)),
	}

	switch s := s.(type) {
	case *models.Box:
		n.Kind = NodeBox
		n.vertices = boxVertices(s.Width, s.Height, s.Depth)
	case *models.Cylinder:
		n.Kind = NodeCylinder
		n.vertices = cylinderVertices(s.Radius, s.Height)
	case *models.Prism:
		n.Kind = NodePrism
		n.vertices = prismVertices(s.Points, s.Height)
	default:
		panic("scene: unknown shape type")
	}

	n.updateBounds()
	return n
}

// instanceNode clones a loaded model for one mesh instance.
func instanceNode(assetID string, m *Model, inst models.MeshInstance, previewScale float64) *Node {
	n := &Node{
		ID:         "instance:" + inst.ID,
		Kind:       NodeMesh,
		Owned:      true,
		AssetID:    assetID,
		InstanceID: inst.ID,
		Position:   vector3(vec(inst.Position).Mul(previewScale)),
		Rotation:   inst.Rotation,
		Scale:      vector3(vec(inst.Scale).Mul(previewScale)),
		vertices:   cuboid(m.Min, m.Max),
	}
	n.updateBounds()
	return n
}
