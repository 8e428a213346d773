// Package tiling partitions projected geometry into fixed-size square tiles.
//
// Area features belong wholly to the tile holding their centroid. Lines are cut
// at tile changes into fragments that share their cut points, so consecutive
// fragments reassemble into the original line.
package tiling

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shptiles/internal/geometry"
)

// Key identifies a tile by its integer column and row.
type Key struct {
	X int
	Y int
}

func (k Key) String() string {
	return fmt.Sprintf("%d_%d", k.X, k.Y)
}

// Grid is a square tiling of the projected plane with edge length Size metres.
// Tile (0, 0) spans [0, Size) on both axes.
type Grid struct {
	Size float64
}

// Key returns the tile containing p.
func (g Grid) Key(p orb.Point) Key {
	return Key{
		X: int(math.Floor(p[0] / g.Size)),
		Y: int(math.Floor(p[1] / g.Size)),
	}
}

// Center returns the centre of tile k.
func (g Grid) Center(k Key) orb.Point {
	return orb.Point{
		float64(k.X)*g.Size + g.Size/2,
		float64(k.Y)*g.Size + g.Size/2,
	}
}

// Local re-expresses pts relative to the centre of tile k.
func (g Grid) Local(k Key, pts []orb.Point) []orb.Point {
	c := g.Center(k)
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = orb.Point{p[0] - c[0], p[1] - c[1]}
	}
	return out
}

// AssignPoint returns the tile containing p and p in that tile's local frame.
func (g Grid) AssignPoint(p orb.Point) (Key, orb.Point) {
	k := g.Key(p)
	c := g.Center(k)
	return k, orb.Point{p[0] - c[0], p[1] - c[1]}
}

// AssignRing returns the tile containing the ring's centroid and the ring in
// that tile's local frame. Pass rings without their closing duplicate.
func (g Grid) AssignRing(ring []orb.Point) (Key, []orb.Point) {
	k := g.Key(geometry.Centroid(ring))
	return k, g.Local(k, ring)
}

// AssignBox returns the tile containing the mean of a box's corners and the
// corners in that tile's local frame.
func (g Grid) AssignBox(corners []orb.Point) (Key, []orb.Point) {
	k := g.Key(geometry.Mean(corners))
	return k, g.Local(k, corners)
}
