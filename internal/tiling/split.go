package tiling

import (
	"math"

	"github.com/paulmach/orb"
)

// Split thresholds as fractions of the tile size.
const (
	longSegment = 0.5 // segments longer than this are sampled for tile changes
	sampleStep  = 0.4 // maximum spacing between samples on a long segment
)

// Fragment is a piece of a line confined to one tile. Points are in the
// projected frame, not tile-local.
type Fragment struct {
	Key    Key
	Points []orb.Point
}

// Split cuts a polyline into per-tile fragments, in order along the line.
//
// Consecutive vertices in the same tile extend the current fragment. When a
// vertex lies in another tile, a segment longer than half the tile size is
// first sampled at a step no coarser than 0.4 tile sizes; each sample that
// lands in a new tile closes the current fragment there and opens the next one
// at the same point. The vertex itself then closes the fragment if its tile
// still differs. The last point of each fragment is the first point of the
// next. Fragments with fewer than 2 points are dropped.
func (g Grid) Split(pts []orb.Point) []Fragment {
	if len(pts) < 2 {
		return nil
	}

	var out []Fragment
	emit := func(k Key, seg []orb.Point) {
		if len(seg) >= 2 {
			out = append(out, Fragment{Key: k, Points: seg})
		}
	}

	current := []orb.Point{pts[0]}
	currentKey := g.Key(pts[0])

	for i := 1; i < len(pts); i++ {
		prev, p := pts[i-1], pts[i]
		k := g.Key(p)

		if k == currentKey {
			current = append(current, p)
			continue
		}

		dist := math.Hypot(p[0]-prev[0], p[1]-prev[1])
		if dist > g.Size*longSegment {
			steps := int(dist / (g.Size * sampleStep))
			if steps < 2 {
				steps = 2
			}
			for s := 1; s < steps; s++ {
				t := float64(s) / float64(steps)
				q := orb.Point{prev[0] + t*(p[0]-prev[0]), prev[1] + t*(p[1]-prev[1])}
				qk := g.Key(q)
				if qk != currentKey {
					current = append(current, q)
					emit(currentKey, current)
					current = []orb.Point{q}
					currentKey = qk
				}
			}
		}

		current = append(current, p)
		if k != currentKey {
			emit(currentKey, current)
			current = []orb.Point{p}
			currentKey = k
		}
	}

	emit(currentKey, current)
	return out
}
