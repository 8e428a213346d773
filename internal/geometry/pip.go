package geometry

import (
	"github.com/paulmach/orb"
)

// Contains reports whether p lies inside ring using even-odd ray casting.
// A duplicated closing point is ignored, so open and closed forms of the same
// ring give the same answer. Rings with fewer than 3 distinct points contain nothing.
func Contains(ring []orb.Point, p orb.Point) bool {
	ring = Open(ring)
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if Crosses(ring[i], ring[j], p) {
			inside = !inside
		}
	}
	return inside
}

// Crosses reports whether the edge a-b crosses the horizontal ray cast from p
// towards +x. It is the per-edge test of Contains.
func Crosses(a, b, p orb.Point) bool {
	if (a[1] > p[1]) == (b[1] > p[1]) {
		return false
	}
	// 1e-30 guards the division
	x := (b[0]-a[0])*(p[1]-a[1])/(b[1]-a[1]+1e-30) + a[0]
	return p[0] < x
}
