package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// degenerateSegment is the squared length below which a segment is treated as a point.
const degenerateSegment = 1e-12

// PointSegmentDistance returns the distance from p to the segment ab.
func PointSegmentDistance(p, a, b orb.Point) float64 {
	dx := b[0] - a[0]
	dy := b[1] - a[1]
	d2 := dx*dx + dy*dy
	if d2 < degenerateSegment {
		return math.Hypot(p[0]-a[0], p[1]-a[1])
	}

	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / d2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p[0]-(a[0]+t*dx), p[1]-(a[1]+t*dy))
}

type span struct {
	start, end int
}

// Simplify reduces pts with the Douglas-Peucker algorithm at tolerance epsilon.
//
// The result is a subsequence of pts that keeps both endpoints. Inputs with
// fewer than 4 points, and any input at a tolerance of zero or less, are
// returned unchanged. A closed ring is simplified
// without its closing point, which is appended again afterwards. Among
// equidistant candidates the first one wins, so output is reproducible.
//
// Segments are processed from an explicit work stack, never by recursion.
func Simplify(pts []orb.Point, epsilon float64) []orb.Point {
	if len(pts) < 4 || !(epsilon > 0) {
		return pts
	}

	closed := IsClosed(pts)
	work := pts
	if closed {
		work = pts[:len(pts)-1]
	}
	n := len(work)
	if n < 4 {
		return pts
	}

	keep := make([]bool, n)
	keep[0] = true
	keep[n-1] = true

	stack := []span{{0, n - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		maxDist := -1.0
		idx := -1
		a, b := work[s.start], work[s.end]
		for i := s.start + 1; i < s.end; i++ {
			if d := PointSegmentDistance(work[i], a, b); d > maxDist {
				maxDist = d
				idx = i
			}
		}

		if idx != -1 && maxDist > epsilon {
			keep[idx] = true
			stack = append(stack, span{s.start, idx}, span{idx, s.end})
		}
	}

	out := make([]orb.Point, 0, n+1)
	for i, k := range keep {
		if k {
			out = append(out, work[i])
		}
	}
	if closed {
		out = append(out, out[0])
	}
	return out
}
