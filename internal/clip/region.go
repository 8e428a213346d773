// Package clip restricts output to a hand-drawn extraction polygon.
//
// The polygon is held in absolute WebMercator metres. Its edges are stored in
// an R-tree so a containment query only visits the edges whose bounds meet the
// horizontal ray cast from the query point.
package clip

import (
	"errors"
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shptiles/internal/geometry"
)

// ErrTooFewPoints is returned when a clip ring has fewer than 3 distinct points.
var ErrTooFewPoints = errors.New("clip polygon needs at least 3 points")

// pad widens every rectangle so edges touching the ray still intersect it.
const pad = 1e-6

// Region is an even-odd containment test over one clip ring.
//
// Example:
//
//	ring, err := clip.LoadReadme("extract/README.txt")
//	if err != nil {
//	    return err
//	}
//	region, err := clip.NewRegion(ring)
//	if err != nil {
//	    return err
//	}
//	inside := region.Contains(geometry.Mercator(orb.Point{140.88, 38.26}))
type Region struct {
	ring  []orb.Point
	bound orb.Bound
	rtree *rtreego.Rtree // ring edges
}

// edge is one ring edge as an R-tree entry.
type edge struct {
	a, b orb.Point
}

// Bounds implements rtreego.Spatial.
func (e edge) Bounds() rtreego.Rect {
	minX, maxX := math.Min(e.a[0], e.b[0]), math.Max(e.a[0], e.b[0])
	minY, maxY := math.Min(e.a[1], e.b[1]), math.Max(e.a[1], e.b[1])
	return rect(minX, minY, maxX, maxY)
}

// rect builds a padded rectangle. rtreego rejects zero-length sides.
func rect(minX, minY, maxX, maxY float64) rtreego.Rect {
	point := rtreego.Point{minX - pad, minY - pad}
	lengths := []float64{maxX - minX + 2*pad, maxY - minY + 2*pad}
	r, _ := rtreego.NewRect(point, lengths)
	return r
}

// NewRegion builds a region from a ring in absolute mercator metres. A
// duplicated closing point is ignored.
func NewRegion(ring []orb.Point) (*Region, error) {
	ring = geometry.Open(ring)
	if len(ring) < 3 {
		return nil, ErrTooFewPoints
	}

	pts := make([]orb.Point, len(ring))
	copy(pts, ring)

	// 2D, min=25 children, max=50 children
	rtree := rtreego.NewTree(2, 25, 50)
	for i := range pts {
		j := (i + len(pts) - 1) % len(pts)
		rtree.Insert(edge{a: pts[i], b: pts[j]})
	}

	return &Region{
		ring:  pts,
		bound: orb.MultiPoint(pts).Bound(),
		rtree: rtree,
	}, nil
}

// Ring returns the open clip ring.
func (r *Region) Ring() []orb.Point {
	return r.ring
}

// Bound returns the axis-aligned bounds of the ring.
func (r *Region) Bound() orb.Bound {
	return r.bound
}

// Contains reports whether p, in absolute mercator metres, lies inside the ring.
// It agrees with geometry.Contains on the same ring.
func (r *Region) Contains(p orb.Point) bool {
	if p[1] < r.bound.Min[1] || p[1] > r.bound.Max[1] || p[0] > r.bound.Max[0] {
		return false
	}

	ray := rect(p[0], p[1], r.bound.Max[0], p[1])
	inside := false
	for _, s := range r.rtree.SearchIntersect(ray) {
		e := s.(edge)
		if geometry.Crosses(e.a, e.b, p) {
			inside = !inside
		}
	}
	return inside
}
