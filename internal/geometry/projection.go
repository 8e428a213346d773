// Package geometry provides the planar primitives used by the tile pipeline:
// WebMercator projection relative to a fixed anchor, ring area and centroid,
// Douglas-Peucker simplification, principal-axis boxes and point-in-polygon.
//
// All functions except projection work in projected metres and never log.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// MaxLatitude is the WebMercator latitude limit. Latitudes beyond it are
// clamped before projection.
const MaxLatitude = 85.05112878

// Mercator projects a geographic point (lon, lat) to absolute WebMercator metres.
func Mercator(p orb.Point) orb.Point {
	lat := math.Max(-MaxLatitude, math.Min(MaxLatitude, p[1]))
	return project.WGS84.ToMercator(orb.Point{p[0], lat})
}

// Projector maps geographic coordinates into a planar frame whose origin is a
// fixed anchor projected through the same WebMercator transform.
type Projector struct {
	anchor orb.Point // geographic (lon, lat)
	origin orb.Point // absolute mercator
}

// NewProjector returns a projector anchored at (originLat, originLon).
func NewProjector(originLat, originLon float64) (*Projector, error) {
	if err := ValidateCoordinate(originLat, originLon); err != nil {
		return nil, err
	}
	anchor := orb.Point{originLon, originLat}
	return &Projector{anchor: anchor, origin: Mercator(anchor)}, nil
}

// Anchor returns the geographic anchor as (lon, lat).
func (p *Projector) Anchor() orb.Point {
	return p.anchor
}

// Origin returns the anchor in absolute mercator metres.
func (p *Projector) Origin() orb.Point {
	return p.origin
}

// Project maps a geographic point to origin-relative metres.
func (p *Projector) Project(pt orb.Point) orb.Point {
	m := Mercator(pt)
	return orb.Point{m[0] - p.origin[0], m[1] - p.origin[1]}
}

// ProjectAll maps a sequence of geographic points. The input is not modified.
func (p *Projector) ProjectAll(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, pt := range pts {
		out[i] = p.Project(pt)
	}
	return out
}

// Absolute converts an origin-relative point back to absolute mercator metres.
func (p *Projector) Absolute(local orb.Point) orb.Point {
	return orb.Point{local[0] + p.origin[0], local[1] + p.origin[1]}
}

// Unproject converts an origin-relative point back to geographic (lon, lat).
func (p *Projector) Unproject(local orb.Point) orb.Point {
	return project.Mercator.ToWGS84(p.Absolute(local))
}
