package mapview

import (
	"fmt"

	"building-studio/internal/studio/models"
)

const DrawColor = "#1D4ED8"

type Marker struct {
	ID    string          `json:"id"`
	Point models.GeoPoint `json:"point"`
	Color string          `json:"color"`
}

type Polygon struct {
	ID     string            `json:"id"`
	Points []models.GeoPoint `json:"points"`
	Color  string            `json:"color"`
}

// Anchor is the building location marker. It is hidden and locked while
// a footprint is being drawn.
type Anchor struct {
	Point     models.GeoPoint `json:"point"`
	Visible   bool            `json:"visible"`
	Draggable bool            `json:"draggable"`
}

// Layers is an in-memory map overlay. It is not safe for concurrent use.
type Layers struct {
	Anchor   Anchor            `json:"anchor"`
	Markers  []Marker          `json:"markers"`
	Polyline []models.GeoPoint `json:"polyline"`
	Polygons []Polygon         `json:"polygons"`

	seq int
}

func NewLayers(anchor models.GeoPoint) *Layers {
	return &Layers{
		Anchor:   Anchor{Point: anchor, Visible: true, Draggable: true},
		Markers:  []Marker{},
		Polygons: []Polygon{},
	}
}

func (l *Layers) nextID(prefix string) string {
	l.seq++
	return fmt.Sprintf("%s-%d", prefix, l.seq)
}

func (l *Layers) AddMarker(p models.GeoPoint) string {
	id := l.nextID("marker")
	l.Markers = append(l.Markers, Marker{ID: id, Point: p, Color: DrawColor})
	return id
}

func (l *Layers) RemoveMarker(id string) {
	for i, m := range l.Markers {
		if m.ID == id {
			l.Markers = append(l.Markers[:i], l.Markers[i+1:]...)
			return
		}
	}
}

func (l *Layers) SetPolyline(points []models.GeoPoint) {
	l.Polyline = append([]models.GeoPoint(nil), points...)
}

func (l *Layers) RemovePolyline() {
	l.Polyline = nil
}

func (l *Layers) AddPolygon(points []models.GeoPoint, color string) string {
	id := l.nextID("polygon")
	l.Polygons = append(l.Polygons, Polygon{
		ID:     id,
		Points: append([]models.GeoPoint(nil), points...),
		Color:  color,
	})
	return id
}

func (l *Layers) SetAnchor(p models.GeoPoint) {
	l.Anchor.Point = p
}

// SetDrawing hides and locks the anchor while drawing.
func (l *Layers) SetDrawing(drawing bool) {
	l.Anchor.Visible = !drawing
	l.Anchor.Draggable = !drawing
}

// Snapshot returns a deep copy.
func (l *Layers) Snapshot() Layers {
	c := Layers{
		Anchor:   l.Anchor,
		Markers:  append([]Marker{}, l.Markers...),
		Polyline: append([]models.GeoPoint(nil), l.Polyline...),
		Polygons: make([]Polygon, len(l.Polygons)),
	}
	for i, p := range l.Polygons {
		p.Points = append([]models.GeoPoint(nil), p.Points...)
		c.Polygons[i] = p
	}
	return c
}

// Clear drops everything except the anchor.
func (l *Layers) Clear() {
	l.Markers = []Marker{}
	l.Polyline = nil
	l.Polygons = []Polygon{}
	l.SetDrawing(false)
}
