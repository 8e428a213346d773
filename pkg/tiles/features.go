package tiles

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shptiles/internal/classify"
	"github.com/beetlebugorg/shptiles/internal/geometry"
	"github.com/beetlebugorg/shptiles/internal/metrics"
	"github.com/beetlebugorg/shptiles/internal/shapefile"
	"github.com/beetlebugorg/shptiles/internal/tiling"
)

// minWaterwayTolerance is the smallest simplification tolerance for waterways.
const minWaterwayTolerance = 0.5

// minAspectExtent is the minor extent below which the aspect test is skipped.
const minAspectExtent = 1e-3

// projectPoint maps one geographic point to the local frame. ok is false when
// the point is outside the lon/lat domain or projects to a non-finite value.
func (c *Converter) projectPoint(pt orb.Point) (orb.Point, bool) {
	if geometry.ValidateCoordinate(pt[1], pt[0]) != nil {
		return orb.Point{}, false
	}
	local := c.proj.Project(pt)
	if math.IsNaN(local[0]) || math.IsNaN(local[1]) || math.IsInf(local[0], 0) || math.IsInf(local[1], 0) {
		return orb.Point{}, false
	}
	return local, true
}

// project maps a part to the local frame, or returns nil if any of its points
// is unusable.
func (c *Converter) project(part []orb.Point) []orb.Point {
	out := make([]orb.Point, len(part))
	for i, pt := range part {
		local, ok := c.projectPoint(pt)
		if !ok {
			return nil
		}
		out[i] = local
	}
	return out
}

func (c *Converter) building(category string, shape *shapefile.Shape, rec *shapefile.Record) (kept, dropped int, err error) {
	height := classify.BuildingHeight(rec)

	for _, part := range shape.Parts {
		pts := c.project(part)
		if len(pts) < 3 {
			c.metrics.Drop(category, metrics.ReasonDegenerate)
			dropped++
			continue
		}

		// filters run on the unsimplified footprint
		if geometry.Area(pts) < c.opts.MinBuildingArea {
			c.metrics.Drop(category, metrics.ReasonArea)
			dropped++
			continue
		}
		if geometry.Extent(pts) > c.opts.MaxBuildingExtent {
			c.metrics.Drop(category, metrics.ReasonExtent)
			dropped++
			continue
		}

		var ring []orb.Point
		if c.opts.RectBuildings {
			ring = geometry.OrientedBox(pts)
			if ring == nil {
				ring = geometry.BoundingBox(pts)
			}
		} else {
			ring = geometry.Open(geometry.Simplify(pts, c.opts.SimplifyMeters))
			if len(ring) < 3 {
				c.metrics.Drop(category, metrics.ReasonDegenerate)
				dropped++
				continue
			}
		}

		if !c.clip.KeepRing(ring) {
			c.metrics.Drop(category, metrics.ReasonClip)
			dropped++
			continue
		}

		var k tiling.Key
		var local []orb.Point
		if c.opts.RectBuildings {
			k, local = c.grid.AssignBox(ring)
		} else {
			k, local = c.grid.AssignRing(ring)
		}
		if err := c.emit(CategoryBuildings, k, Building{HeightMeters: height, Vertices: vecs(local)}); err != nil {
			return kept, dropped, err
		}
		kept++
	}
	return kept, dropped, nil
}

func (c *Converter) area(category string, shape *shapefile.Shape, rec *shapefile.Record) (kept, dropped int, err error) {
	class, ok := classify.ClassifyArea(rec.String("type"))
	if !ok {
		c.metrics.Drop(category, metrics.ReasonClass)
		return 0, 1, nil
	}

	for _, part := range shape.Parts {
		pts := c.project(part)
		ring := geometry.Open(geometry.Simplify(pts, c.opts.SimplifyMeters))
		if len(ring) < 3 {
			c.metrics.Drop(category, metrics.ReasonDegenerate)
			dropped++
			continue
		}
		if !c.clip.KeepRing(ring) {
			c.metrics.Drop(category, metrics.ReasonClip)
			dropped++
			continue
		}

		area := geometry.Area(ring)
		if class.Class == classify.AreaWater {
			if area > c.opts.MaxWaterAreaKm2*1e6 {
				c.metrics.Drop(category, metrics.ReasonArea)
				dropped++
				continue
			}
			if a, b, ok := geometry.Extents(ring); ok {
				major, minor := math.Max(a, b), math.Min(a, b)
				if minor > minAspectExtent && major/minor >= c.opts.RiverbankAspect {
					c.metrics.Drop(category, metrics.ReasonAspect)
					dropped++
					continue
				}
			}
		} else if area > c.opts.MaxLandcoverAreaKm2*1e6 {
			c.metrics.Drop(category, metrics.ReasonArea)
			dropped++
			continue
		}

		k, local := c.grid.AssignRing(ring)
		if class.Class == classify.AreaWater {
			err = c.emit(CategoryWaters, k, Water{Vertices: vecs(local)})
		} else {
			err = c.emit(CategoryLandcovers, k, Landcover{
				Kind:          class.Kind,
				DensityPerKm2: classify.LandcoverDensity(class.Kind),
				Vertices:      vecs(local),
			})
		}
		if err != nil {
			return kept, dropped, err
		}
		kept++
	}
	return kept, dropped, nil
}

// line projects and clip-tests every part of a line shape and passes the
// survivors to fn in the local frame.
func (c *Converter) line(category string, shape *shapefile.Shape, fn func(pts []orb.Point) (bool, error)) (kept, dropped int, err error) {
	for _, part := range shape.Parts {
		pts := c.project(part)
		if len(pts) < 2 {
			c.metrics.Drop(category, metrics.ReasonDegenerate)
			dropped++
			continue
		}
		if !c.clip.KeepLine(pts) {
			c.metrics.Drop(category, metrics.ReasonClip)
			dropped++
			continue
		}
		ok, err := fn(pts)
		if err != nil {
			return kept, dropped, err
		}
		if ok {
			kept++
		} else {
			dropped++
		}
	}
	return kept, dropped, nil
}

// split cuts pts at tile changes and emits one value per fragment.
func (c *Converter) split(category string, pts []orb.Point, value func(local []Vec2) any) error {
	for _, frag := range c.grid.Split(pts) {
		local := c.grid.Local(frag.Key, frag.Points)
		if err := c.emit(category, frag.Key, value(vecs(local))); err != nil {
			return err
		}
	}
	return nil
}

func (c *Converter) road(category string, shape *shapefile.Shape, rec *shapefile.Record) (kept, dropped int, err error) {
	width := classify.RoadWidth(rec.String("type"))
	return c.line(category, shape, func(pts []orb.Point) (bool, error) {
		return true, c.split(CategoryRoads, pts, func(local []Vec2) any {
			return Road{WidthMeters: width, Points: local}
		})
	})
}

func (c *Converter) waterway(category string, shape *shapefile.Shape, rec *shapefile.Record) (kept, dropped int, err error) {
	kind, width := classify.Waterway(rec)
	tolerance := math.Max(minWaterwayTolerance, c.opts.SimplifyMeters)

	return c.line(category, shape, func(pts []orb.Point) (bool, error) {
		pts = geometry.Open(geometry.Simplify(pts, tolerance))
		if len(pts) < 2 {
			c.metrics.Drop(category, metrics.ReasonDegenerate)
			return false, nil
		}
		return true, c.split(CategoryWaterways, pts, func(local []Vec2) any {
			return Waterway{Kind: kind, WidthMeters: width, Points: local}
		})
	})
}

func (c *Converter) railway(category string, shape *shapefile.Shape, rec *shapefile.Record) (kept, dropped int, err error) {
	if !classify.IsRailway(rec) {
		c.metrics.Drop(category, metrics.ReasonClass)
		return 0, 1, nil
	}
	return c.line(category, shape, func(pts []orb.Point) (bool, error) {
		return true, c.split(CategoryRailways, pts, func(local []Vec2) any {
			return Railway{WidthMeters: classify.RailwayWidth, Points: local}
		})
	})
}

func (c *Converter) poi(category string, shape *shapefile.Shape, rec *shapefile.Record) (kept, dropped int, err error) {
	t, ok := classify.POIType(rec.String("type"))
	if !ok {
		c.metrics.Drop(category, metrics.ReasonClass)
		return 0, 1, nil
	}
	if shape.Kind != shapefile.KindPoint {
		c.metrics.Drop(category, metrics.ReasonDegenerate)
		return 0, 1, nil
	}
	local, ok := c.projectPoint(shape.Point)
	if !ok {
		c.metrics.Drop(category, metrics.ReasonDegenerate)
		return 0, 1, nil
	}

	if !c.clip.KeepPoint(c.proj.Absolute(local)) {
		c.metrics.Drop(category, metrics.ReasonClip)
		return 0, 1, nil
	}

	k, pos := c.grid.AssignPoint(local)
	v := POI{Type: t, Name: rec.String("name"), Position: Vec2{X: pos[0], Y: pos[1]}}
	if err := c.emit(CategoryPOIs, k, v); err != nil {
		return 0, 0, err
	}
	return 1, 0, nil
}

// place collects named places for the sidecar file. Places are not clipped.
func (c *Converter) place(category string, shape *shapefile.Shape, rec *shapefile.Record) (kept, dropped int, err error) {
	t, ok := classify.PlaceType(rec.String("type"))
	name := rec.String("name")
	if !ok || name == "" {
		c.metrics.Drop(category, metrics.ReasonClass)
		return 0, 1, nil
	}
	if shape.Kind != shapefile.KindPoint {
		c.metrics.Drop(category, metrics.ReasonDegenerate)
		return 0, 1, nil
	}
	local, ok := c.projectPoint(shape.Point)
	if !ok {
		c.metrics.Drop(category, metrics.ReasonDegenerate)
		return 0, 1, nil
	}

	c.placesMu.Lock()
	c.places = append(c.places, Place{Type: t, Name: name, X: local[0], Y: local[1]})
	c.placesMu.Unlock()
	return 1, 0, nil
}
