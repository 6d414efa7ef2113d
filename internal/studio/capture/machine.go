package capture

import (
	"context"
	"errors"

	"building-studio/internal/common/logging"
	"building-studio/internal/studio/geo"
	"building-studio/internal/studio/metrics"
	"building-studio/internal/studio/models"
)

// DefaultCloseThreshold is the distance in meters from the first vertex
// under which a double-click closes the ring.
const DefaultCloseThreshold = 5.0

type State int

const (
	Idle State = iota
	Drawing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Result tells the caller what a double-click did.
type Result int

const (
	ResultIgnored Result = iota
	ResultAppended
	ResultClosed
)

// Overlay is the part of the map the machine draws on.
type Overlay interface {
	AddMarker(p models.GeoPoint) string
	RemoveMarker(id string)
	SetPolyline(points []models.GeoPoint)
	RemovePolyline()
	AddPolygon(points []models.GeoPoint, color string) string
}

// PrismStore receives the closed ring. *shape.Model implements it.
type PrismStore interface {
	HasPrism() bool
	CommitPrism(points []models.GeoPoint) (*models.Prism, error)
}

type Config struct {
	CloseThreshold float64
	Logger         logging.Logger
	Metrics        *metrics.Studio
}

// ============================================================
// Machine
// ============================================================

// Machine turns map clicks into a closed footprint. Callers serialize
// access.
type Machine struct {
	overlay   Overlay
	store     PrismStore
	threshold float64
	logger    logging.Logger
	metrics   *metrics.Studio

	state   State
	points  []models.GeoPoint
	markers []string
}

func New(overlay Overlay, store PrismStore, cfg Config) *Machine {
	if cfg.CloseThreshold <= 0 {
		cfg.CloseThreshold = DefaultCloseThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop()
	}
	return &Machine{
		overlay:   overlay,
		store:     store,
		threshold: cfg.CloseThreshold,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

func (m *Machine) State() State { return m.state }

// Points returns a copy of the pending vertices.
func (m *Machine) Points() []models.GeoPoint {
	return append([]models.GeoPoint(nil), m.points...)
}

func (m *Machine) Drawing() bool { return m.state == Drawing }

func (m *Machine) EnableDraw() {
	if m.state == Drawing {
		return
	}
	m.state = Drawing
	m.points = nil
	m.markers = nil
}

// DisableDraw drops the pending vertices and their overlays.
func (m *Machine) DisableDraw() {
	m.clearTemporary()
	m.state = Idle
}

// DoubleClick handles a map double-click at p.
func (m *Machine) DoubleClick(p models.GeoPoint) (Result, *models.Prism, error) {
	if m.state != Drawing {
		return ResultIgnored, nil, nil
	}
	if m.store.HasPrism() {
		return ResultIgnored, nil, m.reject(models.GuardSecondPrism, "only one prism can be drawn")
	}

	if len(m.points) > 0 && geo.Distance(p, m.points[0]) < m.threshold {
		prism, err := m.finalize()
		if err != nil {
			return ResultIgnored, nil, err
		}
		return ResultClosed, prism, nil
	}

	m.points = append(m.points, p)
	m.markers = append(m.markers, m.overlay.AddMarker(p))
	m.overlay.SetPolyline(m.Points())
	return ResultAppended, nil, nil
}

// RightClick removes the most recent vertex.
func (m *Machine) RightClick() bool {
	if m.state != Drawing || len(m.points) == 0 {
		return false
	}
	m.points = m.points[:len(m.points)-1]
	last := m.markers[len(m.markers)-1]
	m.markers = m.markers[:len(m.markers)-1]
	m.overlay.RemoveMarker(last)

	if len(m.points) == 0 {
		m.overlay.RemovePolyline()
	} else {
		m.overlay.SetPolyline(m.Points())
	}
	return true
}

func (m *Machine) finalize() (*models.Prism, error) {
	if len(m.points) < 3 {
		return nil, m.reject(models.GuardTooFewPoints, "select at least 3 points to create a polygon")
	}

	m.state = Closed
	prism, err := m.store.CommitPrism(m.Points())
	if err != nil {
		m.state = Drawing
		var guard *models.GeometryGuardError
		if errors.As(err, &guard) {
			m.metrics.GuardRejected(string(guard.Reason))
		}
		return nil, err
	}

	m.overlay.AddPolygon(m.Points(), prism.Color)
	m.clearTemporary()
	m.state = Idle
	m.metrics.PrismFinalized()
	m.logger.Info(context.Background(), "prism finalized",
		logging.String("prism_id", prism.ID),
		logging.Int("vertices", len(prism.Points)),
		logging.Float("height", prism.Height),
	)
	return prism, nil
}

func (m *Machine) clearTemporary() {
	for _, id := range m.markers {
		m.overlay.RemoveMarker(id)
	}
	if len(m.points) > 0 {
		m.overlay.RemovePolyline()
	}
	m.points = nil
	m.markers = nil
}

func (m *Machine) reject(reason models.GuardReason, msg string) error {
	m.metrics.GuardRejected(string(reason))
	m.logger.Debug(context.Background(), "draw action rejected", logging.String("reason", string(reason)))
	return &models.GeometryGuardError{Reason: reason, Message: msg}
}
