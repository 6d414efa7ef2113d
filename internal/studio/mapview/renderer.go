package mapview

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"building-studio/internal/studio/geo"
	"building-studio/internal/studio/models"
)

// ============================================================
// Renderer
// ============================================================

type Renderer struct {
	Width   float64
	Height  float64
	Padding float64
}

func NewRenderer() *Renderer {
	return &Renderer{Width: 800, Height: 600, Padding: 20}
}

type point struct{ X, Y float64 }

// Render draws the overlays as SVG. Coordinates are projected to meters
// around the anchor and fitted into the canvas with north up.
func (r *Renderer) Render(l *Layers) (string, error) {
	if l == nil {
		return "", fmt.Errorf("layers is nil")
	}

	proj := geo.NewProjector(l.Anchor.Point)
	toLocal := func(p models.GeoPoint) point {
		lp := proj.ToLocal(p, 1)
		return point{X: lp.X, Y: lp.Z}
	}

	fit := r.fitter(l, toLocal)

	var elements []string
	for _, poly := range l.Polygons {
		if len(poly.Points) < 3 {
			continue
		}
		pts := make([]point, len(poly.Points))
		for i, p := range poly.Points {
			pts[i] = fit(toLocal(p))
		}
		elements = append(elements, fmt.Sprintf(`<path id="%s" d="%s" fill="%s" fill-opacity="0.4" stroke="%s" />`,
			poly.ID, pathData(pts, true), poly.Color, poly.Color))
	}

	if len(l.Polyline) > 1 {
		pts := make([]point, len(l.Polyline))
		for i, p := range l.Polyline {
			pts[i] = fit(toLocal(p))
		}
		elements = append(elements, fmt.Sprintf(`<path id="polyline" d="%s" fill="none" stroke="%s" />`,
			pathData(pts, false), DrawColor))
	}

	for _, m := range l.Markers {
		c := fit(toLocal(m.Point))
		elements = append(elements, fmt.Sprintf(`<circle id="%s" cx="%s" cy="%s" r="6" fill="%s" fill-opacity="0.9" stroke="%s" />`,
			m.ID, formatFloat(c.X), formatFloat(c.Y), m.Color, m.Color))
	}

	if l.Anchor.Visible {
		c := fit(point{})
		elements = append(elements, fmt.Sprintf(`<circle id="anchor" cx="%s" cy="%s" r="8" fill="#d62728" stroke="#000" />`,
			formatFloat(c.X), formatFloat(c.Y)))
	}

	var builder strings.Builder
	builder.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	builder.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		formatFloat(r.Width), formatFloat(r.Height), formatFloat(r.Width), formatFloat(r.Height)))
	builder.WriteString("\n")

	for _, elem := range elements {
		builder.WriteString("  ")
		builder.WriteString(elem)
		builder.WriteString("\n")
	}

	builder.WriteString(`</svg>`)
	return builder.String(), nil
}

// ============================================================
// Sizing
// ============================================================

// fitter maps local meters to canvas pixels, keeping the aspect ratio.
func (r *Renderer) fitter(l *Layers, toLocal func(models.GeoPoint) point) func(point) point {
	minX, minY := 0.0, 0.0
	maxX, maxY := 0.0, 0.0
	extend := func(p point) {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	for _, poly := range l.Polygons {
		for _, p := range poly.Points {
			extend(toLocal(p))
		}
	}
	for _, p := range l.Polyline {
		extend(toLocal(p))
	}
	for _, m := range l.Markers {
		extend(toLocal(m.Point))
	}

	spanX := math.Max(maxX-minX, 1)
	spanY := math.Max(maxY-minY, 1)
	usableW := r.Width - 2*r.Padding
	usableH := r.Height - 2*r.Padding
	scale := math.Min(usableW/spanX, usableH/spanY)

	offX := r.Padding + (usableW-spanX*scale)/2
	offY := r.Padding + (usableH-spanY*scale)/2

	return func(p point) point {
		return point{
			X: offX + (p.X-minX)*scale,
			Y: offY + (maxY-p.Y)*scale,
		}
	}
}

// ============================================================
// Formatting helpers
// ============================================================

func pathData(pts []point, closed bool) string {
	var path strings.Builder
	path.WriteString("M ")
	path.WriteString(formatPoint(pts[0]))
	for _, p := range pts[1:] {
		path.WriteString(" L ")
		path.WriteString(formatPoint(p))
	}
	if closed {
		path.WriteString(" Z")
	}
	return path.String()
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', 2, 64)
}

func formatPoint(p point) string {
	return formatFloat(p.X) + " " + formatFloat(p.Y)
}
