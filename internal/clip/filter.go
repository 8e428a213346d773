package clip

import (
	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shptiles/internal/geometry"
)

// Filter applies the sampling rules of the clip test to features expressed in
// origin-relative metres. A nil Filter, or one without a region, keeps everything.
type Filter struct {
	region *Region
	origin orb.Point // absolute mercator position of the local frame origin
}

// NewFilter returns a filter testing local points against region after
// translating them by origin.
func NewFilter(region *Region, origin orb.Point) *Filter {
	return &Filter{region: region, origin: origin}
}

// Active reports whether the filter rejects anything at all.
func (f *Filter) Active() bool {
	return f != nil && f.region != nil
}

func (f *Filter) inside(local orb.Point) bool {
	return f.region.Contains(orb.Point{local[0] + f.origin[0], local[1] + f.origin[1]})
}

// KeepRing reports whether an open ring has its centroid inside the region,
// or failing that, any of every max(1, n/8)-th vertex.
func (f *Filter) KeepRing(ring []orb.Point) bool {
	if !f.Active() {
		return true
	}
	if len(ring) == 0 {
		return false
	}
	if f.inside(geometry.Centroid(ring)) {
		return true
	}
	return f.sample(ring, 8)
}

// KeepLine reports whether any of every max(1, n/16)-th point is inside the region.
func (f *Filter) KeepLine(pts []orb.Point) bool {
	if !f.Active() {
		return true
	}
	return f.sample(pts, 16)
}

// KeepPoint reports whether an absolute mercator point is inside the region.
func (f *Filter) KeepPoint(abs orb.Point) bool {
	if !f.Active() {
		return true
	}
	return f.region.Contains(abs)
}

func (f *Filter) sample(pts []orb.Point, samples int) bool {
	step := len(pts) / samples
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(pts); i += step {
		if f.inside(pts[i]) {
			return true
		}
	}
	return false
}
