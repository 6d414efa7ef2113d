package scene

import (
	"errors"
	"math"
	"sync"

	"building-studio/internal/studio/models"

	"github.com/go-gl/mathgl/mgl64"
)

var ErrDisposed = errors.New("render context disposed")

// Framing distance bounds in preview units.
const (
	MinFitDistance = 10.0
	MaxFitDistance = 200.0
	fitMargin      = 1.2
)

type Camera struct {
	Position models.Vector3 `json:"position"`
	Target   models.Vector3 `json:"target"`
}

// DefaultCamera is the pose before anything is framed.
var DefaultCamera = Camera{Position: models.Vector3{X: 15, Y: 15, Z: 15}}

// Backend mirrors scene changes into an actual renderer. Every call is made
// with the context lock held.
type Backend interface {
	AddNode(n Node)
	RemoveNode(id string)
	SetCamera(c Camera)
}

// RenderContext is the preview scene of one session: pipeline-owned nodes,
// fixed furniture and the camera. It is created on mount and must be
// disposed on unmount; after Dispose every mutation fails with ErrDisposed.
type RenderContext struct {
	mu       sync.Mutex
	nodes    []*Node
	camera   Camera
	backend  Backend
	disposed bool
}

func NewRenderContext(backend Backend) *RenderContext {
	rc := &RenderContext{camera: DefaultCamera, backend: backend}
	rc.add(&Node{ID: "grid", Kind: NodeGrid, Scale: models.UnitScale})
	rc.add(&Node{ID: "axes", Kind: NodeAxes, Scale: models.UnitScale})
	if backend != nil {
		backend.SetCamera(rc.camera)
	}
	return rc
}

func (rc *RenderContext) add(n *Node) {
	rc.nodes = append(rc.nodes, n)
	if rc.backend != nil {
		rc.backend.AddNode(*n.clone())
	}
}

// Add inserts nodes into the scene.
func (rc *RenderContext) Add(nodes ...*Node) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.disposed {
		return ErrDisposed
	}
	for _, n := range nodes {
		rc.add(n)
	}
	return nil
}

// RemoveOwned drops every pipeline-owned node, keeping the furniture.
func (rc *RenderContext) RemoveOwned() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.disposed {
		return ErrDisposed
	}
	kept := rc.nodes[:0]
	for _, n := range rc.nodes {
		if n.Owned {
			if rc.backend != nil {
				rc.backend.RemoveNode(n.ID)
			}
			continue
		}
		kept = append(kept, n)
	}
	rc.nodes = kept
	return nil
}

// Frame points the camera at the owned nodes along the (1,1,1) diagonal.
// It reports false when there is nothing to frame.
func (rc *RenderContext) Frame() (bool, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.disposed {
		return false, ErrDisposed
	}

	b := emptyBounds()
	for _, n := range rc.nodes {
		if n.Owned {
			b.extend(n.World()...)
		}
	}
	if b.empty() {
		return false, nil
	}

	center := b.center()
	dist := mgl64.Clamp(math.Max(MinFitDistance, b.diagonal()*fitMargin), MinFitDistance, MaxFitDistance)
	dir := mgl64.Vec3{1, 1, 1}.Normalize()

	rc.camera = Camera{
		Position: vector3(center.Add(dir.Mul(dist))),
		Target:   vector3(center),
	}
	if rc.backend != nil {
		rc.backend.SetCamera(rc.camera)
	}
	return true, nil
}

func (rc *RenderContext) Camera() Camera {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.camera
}

// Nodes returns copies of every node, furniture first.
func (rc *RenderContext) Nodes() []Node {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]Node, len(rc.nodes))
	for i, n := range rc.nodes {
		out[i] = *n.clone()
	}
	return out
}

// Owned returns copies of the pipeline-owned nodes.
func (rc *RenderContext) Owned() []Node {
	var out []Node
	for _, n := range rc.Nodes() {
		if n.Owned {
			out = append(out, n)
		}
	}
	return out
}

func (rc *RenderContext) Dispose() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.disposed {
		return
	}
	rc.disposed = true
	if rc.backend != nil {
		for _, n := range rc.nodes {
			rc.backend.RemoveNode(n.ID)
		}
	}
	rc.nodes = nil
}

func (rc *RenderContext) Disposed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.disposed
}

// Snapshot is the serializable view of the scene.
type Snapshot struct {
	Nodes  []Node `json:"nodes"`
	Camera Camera `json:"camera"`
}

func (rc *RenderContext) Snapshot() Snapshot {
	return Snapshot{Nodes: rc.Nodes(), Camera: rc.Camera()}
}
