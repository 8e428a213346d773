package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// Principal-axis thresholds, in projected metres.
const (
	minVariance  = 1e-6 // total variance below which there is no orientation
	minAxisRange = 0.2  // oriented box sides shorter than this are unstable
	diagonalCov  = 1e-9
)

// axes holds the principal frame of a point set.
type axes struct {
	mean orb.Point
	u, v orb.Point // unit vectors, u along the dominant eigenvector

	minU, maxU float64
	minV, maxV float64
}

// principalAxes computes the covariance of pts about their vertex mean and the
// dominant eigenvector of the closed-form 2x2 decomposition. ok is false for
// fewer than 3 points or near-zero variance.
func principalAxes(pts []orb.Point) (ax axes, ok bool) {
	n := len(pts)
	if n < 3 {
		return ax, false
	}

	ax.mean = Mean(pts)

	var cxx, cxy, cyy float64
	for _, p := range pts {
		dx := p[0] - ax.mean[0]
		dy := p[1] - ax.mean[1]
		cxx += dx * dx
		cxy += dx * dy
		cyy += dy * dy
	}
	cxx /= float64(n)
	cxy /= float64(n)
	cyy /= float64(n)

	trace := cxx + cyy
	if trace < minVariance {
		return ax, false
	}
	det := cxx*cyy - cxy*cxy
	eig1 := trace*0.5 + math.Sqrt(math.Max(0, trace*trace*0.25-det))

	var ux, uy float64
	switch {
	case math.Abs(cxy) > diagonalCov:
		ux, uy = eig1-cyy, cxy
	case cxx >= cyy:
		ux, uy = 1, 0
	default:
		ux, uy = 0, 1
	}

	l := math.Hypot(ux, uy)
	if l < diagonalCov {
		return ax, false
	}
	ax.u = orb.Point{ux / l, uy / l}
	ax.v = orb.Point{-ax.u[1], ax.u[0]}

	ax.minU, ax.maxU = math.Inf(1), math.Inf(-1)
	ax.minV, ax.maxV = math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		dx := p[0] - ax.mean[0]
		dy := p[1] - ax.mean[1]
		pu := dx*ax.u[0] + dy*ax.u[1]
		pv := dx*ax.v[0] + dy*ax.v[1]
		ax.minU = math.Min(ax.minU, pu)
		ax.maxU = math.Max(ax.maxU, pu)
		ax.minV = math.Min(ax.minV, pv)
		ax.maxV = math.Max(ax.maxV, pv)
	}
	return ax, true
}

func (ax axes) point(pu, pv float64) orb.Point {
	return orb.Point{
		ax.mean[0] + ax.u[0]*pu + ax.v[0]*pv,
		ax.mean[1] + ax.u[1]*pu + ax.v[1]*pv,
	}
}

// OrientedBox returns the 4 corners of the principal-axis bounding rectangle of
// pts, ordered (minU,minV), (maxU,minV), (maxU,maxV), (minU,maxV). It returns
// nil when the point set has no stable orientation.
func OrientedBox(pts []orb.Point) []orb.Point {
	ax, ok := principalAxes(pts)
	if !ok {
		return nil
	}
	if ax.maxU-ax.minU < minAxisRange || ax.maxV-ax.minV < minAxisRange {
		return nil
	}

	return []orb.Point{
		ax.point(ax.minU, ax.minV),
		ax.point(ax.maxU, ax.minV),
		ax.point(ax.maxU, ax.maxV),
		ax.point(ax.minU, ax.maxV),
	}
}

// BoundingBox returns the axis-aligned rectangle of pts in the same corner order
// as OrientedBox, or nil for an empty slice.
func BoundingBox(pts []orb.Point) []orb.Point {
	if len(pts) == 0 {
		return nil
	}
	b := orb.MultiPoint(pts).Bound()
	return []orb.Point{
		{b.Min[0], b.Min[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
		{b.Min[0], b.Max[1]},
	}
}

// Extents returns the side lengths of the principal-axis bounding rectangle,
// major axis first. ok is false only for fewer than 3 points or near-zero total
// variance; unlike OrientedBox, short sides are not rejected, so a sliver still
// reports its extents.
func Extents(pts []orb.Point) (major, minor float64, ok bool) {
	ax, ok := principalAxes(pts)
	if !ok {
		return 0, 0, false
	}
	return ax.maxU - ax.minU, ax.maxV - ax.minV, true
}
