package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// degenerateArea is the doubled-area threshold below which a ring has no
// usable shoelace centroid.
const degenerateArea = 1e-6

// IsClosed reports whether the ring repeats its first point at the end.
func IsClosed(ring []orb.Point) bool {
	return len(ring) >= 2 && ring[0] == ring[len(ring)-1]
}

// Open returns ring without its duplicated closing point. The result shares
// the backing array with ring.
func Open(ring []orb.Point) []orb.Point {
	if IsClosed(ring) {
		return ring[:len(ring)-1]
	}
	return ring
}

// SignedArea returns the shoelace area of the ring, positive for
// counter-clockwise winding. The closing edge is implied; a duplicated closing
// point contributes nothing.
func SignedArea(ring []orb.Point) float64 {
	if len(ring) < 3 {
		return 0
	}
	return 0.5 * doubledArea(ring, ring[0])
}

// Area returns the unsigned area of the ring.
func Area(ring []orb.Point) float64 {
	return math.Abs(SignedArea(ring))
}

// doubledArea sums the shoelace cross products of ring translated by -ref.
// Working relative to a vertex keeps the products small for rings far from the
// frame origin.
func doubledArea(ring []orb.Point, ref orb.Point) float64 {
	var a float64
	n := len(ring)
	for i := 0; i < n; i++ {
		x0, y0 := ring[i][0]-ref[0], ring[i][1]-ref[1]
		x1, y1 := ring[(i+1)%n][0]-ref[0], ring[(i+1)%n][1]-ref[1]
		a += x0*y1 - x1*y0
	}
	return a
}

// Centroid returns the area centroid of the ring. For fewer than 3 points or a
// near-zero area it falls back to the vertex mean. Pass rings without their
// closing duplicate; it would otherwise bias the fallback.
func Centroid(ring []orb.Point) orb.Point {
	if len(ring) < 3 {
		return Mean(ring)
	}

	ref := ring[0]
	var a, cx, cy float64
	n := len(ring)
	for i := 0; i < n; i++ {
		x0, y0 := ring[i][0]-ref[0], ring[i][1]-ref[1]
		x1, y1 := ring[(i+1)%n][0]-ref[0], ring[(i+1)%n][1]-ref[1]
		cross := x0*y1 - x1*y0
		a += cross
		cx += (x0 + x1) * cross
		cy += (y0 + y1) * cross
	}
	if math.Abs(a) < degenerateArea {
		return Mean(ring)
	}

	// a holds twice the signed area
	return orb.Point{ref[0] + cx/(3*a), ref[1] + cy/(3*a)}
}

// Mean returns the arithmetic mean of the points, or the zero point for an empty slice.
func Mean(pts []orb.Point) orb.Point {
	if len(pts) == 0 {
		return orb.Point{}
	}
	var sx, sy float64
	for _, p := range pts {
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(pts))
	return orb.Point{sx / n, sy / n}
}

// Extent returns the larger side of the axis-aligned bounding box of pts.
func Extent(pts []orb.Point) float64 {
	if len(pts) == 0 {
		return 0
	}
	b := orb.MultiPoint(pts).Bound()
	return math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])
}
