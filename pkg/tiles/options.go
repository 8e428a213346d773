package tiles

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/beetlebugorg/shptiles/internal/aggregate"
	"github.com/beetlebugorg/shptiles/internal/geometry"
)

// Options configures a conversion run.
type Options struct {
	// ShapeDir holds the input .shp/.dbf pairs.
	ShapeDir string

	// OutDir is the output root. tileset.json, tiles/ and places.json are written here.
	OutDir string

	// TileSize is the tile edge length in metres.
	TileSize float64

	// OriginLat and OriginLon anchor the local planar frame.
	OriginLat float64
	OriginLon float64

	// Clean removes existing tiles/ and intermediate fragments before writing.
	Clean bool

	// KeepTmp keeps the intermediate fragment directory after the merge.
	KeepTmp bool

	// MinBuildingArea drops building footprints smaller than this (m²).
	MinBuildingArea float64

	// MaxBuildingExtent drops buildings whose larger bounding-box side exceeds
	// this (m). Such footprints are usually misclassified infrastructure.
	MaxBuildingExtent float64

	// SimplifyMeters is the Douglas-Peucker tolerance for polygons.
	// Waterways use max(0.5, SimplifyMeters).
	SimplifyMeters float64

	// RectBuildings exports buildings as their principal-axis rectangle.
	RectBuildings bool

	// ClipReadme is an optional extract descriptor whose drawn polygon
	// restricts the output.
	ClipReadme string

	// MaxWaterAreaKm2 and MaxLandcoverAreaKm2 drop larger polygons.
	MaxWaterAreaKm2     float64
	MaxLandcoverAreaKm2 float64

	// RiverbankAspect drops water polygons at least this elongated.
	// Rivers are rendered from linear waterways instead.
	RiverbankAspect float64

	// Encoding names the DBF text encoding (WHATWG label). Empty means utf-8.
	Encoding string

	// MaxOpen bounds simultaneously open fragment files.
	MaxOpen int

	// Workers runs independent categories concurrently when greater than 1.
	Workers int

	// ArchivePath, when set, also stores every tile record in a SQLite archive.
	ArchivePath string

	// CoverageGeoJSON, when set, writes the footprint of every written tile as
	// a GeoJSON FeatureCollection in WGS84.
	CoverageGeoJSON string

	// MetricsFile, when set, receives the run counters in Prometheus text format.
	MetricsFile string

	// Progress is called after each category job finishes.
	Progress func(done, total int)

	// Logger receives run logs. Nil uses the process logger.
	Logger *log.Logger
}

// DefaultOptions returns 1024 m tiles anchored on central Sendai with the
// building, area and simplification limits tuned for OSM extracts.
func DefaultOptions() Options {
	return Options{
		TileSize:            1024,
		OriginLat:           38.2600,
		OriginLon:           140.8815,
		MinBuildingArea:     12,
		MaxBuildingExtent:   500,
		SimplifyMeters:      0.8,
		MaxWaterAreaKm2:     200,
		MaxLandcoverAreaKm2: 500,
		RiverbankAspect:     12,
		Encoding:            "utf-8",
		MaxOpen:             aggregate.DefaultMaxOpen,
		Workers:             1,
	}
}

// Validate checks the options for values no run can use.
func (o Options) Validate() error {
	var errs []error
	if o.ShapeDir == "" {
		errs = append(errs, errors.New("shape directory is required"))
	}
	if o.OutDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if !(o.TileSize > 0) {
		errs = append(errs, fmt.Errorf("tile size must be positive, got %v", o.TileSize))
	}
	if err := geometry.ValidateCoordinate(o.OriginLat, o.OriginLon); err != nil {
		errs = append(errs, fmt.Errorf("origin: %w", err))
	}
	if o.MinBuildingArea < 0 || o.MaxBuildingExtent < 0 || o.SimplifyMeters < 0 {
		errs = append(errs, errors.New("building limits and simplification tolerance must not be negative"))
	}
	if o.MaxWaterAreaKm2 < 0 || o.MaxLandcoverAreaKm2 < 0 || o.RiverbankAspect < 0 {
		errs = append(errs, errors.New("area limits and aspect threshold must not be negative"))
	}
	if o.MaxOpen < 0 || o.Workers < 0 {
		errs = append(errs, errors.New("max open files and workers must not be negative"))
	}
	return errors.Join(errs...)
}
