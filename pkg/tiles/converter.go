package tiles

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"

	"github.com/beetlebugorg/shptiles/internal/aggregate"
	"github.com/beetlebugorg/shptiles/internal/clip"
	"github.com/beetlebugorg/shptiles/internal/geometry"
	"github.com/beetlebugorg/shptiles/internal/logger"
	"github.com/beetlebugorg/shptiles/internal/metrics"
	"github.com/beetlebugorg/shptiles/internal/shapefile"
	"github.com/beetlebugorg/shptiles/internal/tiling"
)

// ErrNoInputs is returned when the shape directory holds no input pair.
var ErrNoInputs = errors.New("no input shapefiles found")

// Input categories, named after their .shp/.dbf base names.
const (
	InputBuildings = "buildings"
	InputRoads     = "roads"
	InputNatural   = "natural"
	InputLanduse   = "landuse"
	InputWaterways = "waterways"
	InputRailways  = "railways"
	InputPoints    = "points"
	InputPlaces    = "places"
)

// Output layout under Options.OutDir.
const (
	TilesDir     = "tiles"
	FragmentsDir = "_tmp_jsonl"
	TilesetFile  = "tileset.json"
	PlacesFile   = "places.json"
)

// CategoryResult summarizes one input category.
type CategoryResult struct {
	Name    string
	Found   bool
	Records int   // geometry/attribute pairs decoded
	Kept    int   // features (parts) that produced output
	Dropped int   // features rejected by a filter or as degenerate
	Deleted int   // geometries whose attribute record was deleted
	Err     error // recoverable condition that ended the category early
}

// Result summarizes a conversion run.
type Result struct {
	Categories []CategoryResult
	Tiles      int
	Places     int
	Stats      aggregate.Stats
}

// Converter runs the shapefile-to-tile pipeline for one set of options.
type Converter struct {
	opts    Options
	log     *log.Logger
	metrics *metrics.Run

	proj *geometry.Projector
	grid tiling.Grid
	clip *clip.Filter
	text *shapefile.TextDecoder

	out *aggregate.Writer

	placesMu sync.Mutex
	places   []Place
}

// NewConverter validates opts and prepares a converter. The clip descriptor is
// read here; an unusable one is logged and ignored.
func NewConverter(opts Options) (*Converter, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	l := opts.Logger
	if l == nil {
		l = logger.L()
	}

	proj, err := geometry.NewProjector(opts.OriginLat, opts.OriginLon)
	if err != nil {
		return nil, err
	}

	text, err := shapefile.NewTextDecoder(opts.Encoding)
	if err != nil {
		return nil, err
	}

	c := &Converter{
		opts:    opts,
		log:     l,
		metrics: metrics.New(),
		proj:    proj,
		grid:    tiling.Grid{Size: opts.TileSize},
		text:    text,
	}

	if opts.ClipReadme != "" {
		c.clip = c.loadClip(opts.ClipReadme)
	}
	return c, nil
}

func (c *Converter) loadClip(path string) *clip.Filter {
	ring, err := clip.LoadReadme(path)
	if err != nil {
		c.log.WithError(err).Warn("clip polygon unavailable, output is not clipped")
		return nil
	}
	region, err := clip.NewRegion(ring)
	if err != nil {
		c.log.WithError(err).Warn("clip polygon unusable, output is not clipped")
		return nil
	}
	c.log.WithField("points", len(ring)).Info("clipping to drawn polygon")
	return clip.NewFilter(region, c.proj.Origin())
}

// Metrics returns the run counters.
func (c *Converter) Metrics() *metrics.Run {
	return c.metrics
}

// Convert runs a conversion with opts.
func Convert(opts Options) (*Result, error) {
	c, err := NewConverter(opts)
	if err != nil {
		return nil, err
	}
	return c.Run()
}

// inputPaths returns the .shp and .dbf paths of an input category.
func (c *Converter) inputPaths(name string) (shp, dbf string) {
	base := filepath.Join(c.opts.ShapeDir, name)
	return base + ".shp", base + ".dbf"
}

// hasInput reports whether both files of an input category exist.
func (c *Converter) hasInput(name string) bool {
	shp, dbf := c.inputPaths(name)
	return isFile(shp) && isFile(dbf)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Run converts every input category, merges the fragments into tile files and
// writes the tileset descriptor. The fragment writer is closed on every path.
func (c *Converter) Run() (*Result, error) {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%s: %w", c.opts.ShapeDir, ErrNoInputs)
	}

	c.logMemory()

	if c.opts.Clean {
		if err := Clean(c.opts.OutDir); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(c.opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	// channels are opened for append; fragments of an earlier run must not leak in
	fragments := filepath.Join(c.opts.OutDir, FragmentsDir)
	if err := os.RemoveAll(fragments); err != nil {
		return nil, fmt.Errorf("remove stale fragments: %w", err)
	}
	out, err := aggregate.NewWriter(fragments, c.opts.MaxOpen)
	if err != nil {
		return nil, err
	}
	c.out = out
	defer out.Close()

	categories, err := runJobs(jobs, c.opts.Workers, c.opts.Progress)
	if err != nil {
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close fragment files: %w", err)
	}

	result := &Result{Categories: categories, Stats: out.Stats()}
	c.metrics.ChannelEvictions.Add(float64(result.Stats.Evictions))

	places, err := c.writePlaces()
	if err != nil {
		return nil, err
	}
	result.Places = places

	tileset := NewTileset(c.opts.TileSize, c.opts.OriginLat, c.opts.OriginLon)
	tiles, err := c.writeTiles(tileset)
	if err != nil {
		return nil, err
	}
	result.Tiles = tiles

	if err := writeJSON(filepath.Join(c.opts.OutDir, TilesetFile), tileset, true); err != nil {
		return nil, err
	}

	if !c.opts.KeepTmp {
		if err := os.RemoveAll(out.Dir()); err != nil {
			return nil, fmt.Errorf("remove fragment directory: %w", err)
		}
	} else {
		c.log.WithField("dir", out.Dir()).Info("kept intermediate fragments")
	}

	if c.opts.MetricsFile != "" {
		if err := c.metrics.WriteTextfile(c.opts.MetricsFile); err != nil {
			return nil, err
		}
	}

	c.log.WithFields(log.Fields{
		"tiles":     result.Tiles,
		"places":    result.Places,
		"fragments": result.Stats.Lines,
		"evictions": result.Stats.Evictions,
	}).Info("conversion finished")
	return result, nil
}

func (c *Converter) logMemory() {
	fields := log.Fields{"max_open": c.opts.MaxOpen, "workers": c.opts.Workers}
	if vm, err := mem.VirtualMemory(); err == nil {
		fields["mem_total_mb"] = vm.Total >> 20
		fields["mem_available_mb"] = vm.Available >> 20
	}
	c.log.WithFields(fields).Info("starting conversion")
}

// jobs returns one job per present input category. natural and landuse share a
// job since both feed the water and landcover channels.
func (c *Converter) jobs() []job {
	var jobs []job
	add := func(name string, handle handler) {
		if !c.hasInput(name) {
			c.log.WithField("category", name).Debug("input not found, skipping")
			return
		}
		jobs = append(jobs, job{name: name, run: func() ([]CategoryResult, error) {
			r, err := c.category(name, handle)
			return []CategoryResult{r}, err
		}})
	}

	add(InputBuildings, c.building)
	add(InputRoads, c.road)

	var areas []string
	for _, name := range []string{InputNatural, InputLanduse} {
		if c.hasInput(name) {
			areas = append(areas, name)
		}
	}
	if len(areas) > 0 {
		jobs = append(jobs, job{name: "areas", run: func() ([]CategoryResult, error) {
			var results []CategoryResult
			for _, name := range areas {
				r, err := c.category(name, c.area)
				results = append(results, r)
				if err != nil {
					return results, err
				}
			}
			return results, nil
		}})
	}

	add(InputWaterways, c.waterway)
	add(InputRailways, c.railway)
	add(InputPoints, c.poi)
	add(InputPlaces, c.place)
	return jobs
}

// handler converts one paired record. It returns the number of features kept
// and dropped; an error aborts the run.
type handler func(category string, shape *shapefile.Shape, rec *shapefile.Record) (kept, dropped int, err error)

// category streams one input pair through handle. Malformed headers, truncated
// geometry and alignment loss end the category with a warning; only handler
// errors are returned.
func (c *Converter) category(name string, handle handler) (CategoryResult, error) {
	result := CategoryResult{Name: name, Found: true}
	entry := c.log.WithField("category", name)
	shpPath, dbfPath := c.inputPaths(name)

	shapes, err := shapefile.Open(shpPath)
	if err != nil {
		entry.WithError(err).Warn("skipping category")
		c.metrics.CategorySkipped.WithLabelValues(name).Inc()
		result.Err = err
		return result, nil
	}
	defer shapes.Close()

	attrs, err := shapefile.OpenAttributes(dbfPath, c.text)
	if err != nil {
		entry.WithError(err).Warn("skipping category")
		c.metrics.CategorySkipped.WithLabelValues(name).Inc()
		result.Err = err
		return result, nil
	}
	defer attrs.Close()

	pairs := shapefile.NewPairer(shapes, attrs)
	for {
		shape, rec, err := pairs.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			entry.WithError(err).WithField("records", result.Records).Warn("stopping category early")
			result.Err = err
			break
		}

		result.Records++
		kept, dropped, err := handle(name, shape, rec)
		result.Kept += kept
		result.Dropped += dropped
		if err != nil {
			return result, fmt.Errorf("%s record %d: %w", name, shape.Index, err)
		}
	}

	if err := shapes.Truncated(); err != nil {
		entry.WithError(err).Warn("geometry file truncated, keeping records read so far")
		if result.Err == nil {
			result.Err = err
		}
	}
	result.Deleted = pairs.Skipped()
	c.metrics.RecordsDecoded.WithLabelValues(name).Add(float64(result.Records))

	entry.WithFields(log.Fields{
		"records": result.Records,
		"kept":    result.Kept,
		"dropped": result.Dropped,
		"deleted": result.Deleted,
	}).Info("category converted")
	return result, nil
}

// emit appends one fragment to the channel of category and tile k.
func (c *Converter) emit(category string, k tiling.Key, v any) error {
	if err := c.out.Append(category, k, v); err != nil {
		return err
	}
	c.metrics.FragmentsWritten.WithLabelValues(category).Inc()
	return nil
}
