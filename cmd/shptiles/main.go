// Command shptiles converts a directory of OSM-derived shapefiles into metric
// tile records.
//
// Every flag may also be set through an SHPTILES_* environment variable (for
// example SHPTILES_SHAPE_DIR or SHPTILES_TILE_SIZE), including from a .env file
// in the working directory. Flags take precedence over the environment.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/beetlebugorg/shptiles/internal/logger"
	"github.com/beetlebugorg/shptiles/pkg/tiles"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	opts, err := parseArgs(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		l.WithError(err).Error("invalid arguments")
		os.Exit(2)
	}

	opts.Logger = l
	opts.Progress = func(done, total int) {
		l.WithFields(log.Fields{"done": done, "total": total}).Debug("category jobs")
	}

	result, err := tiles.Convert(opts)
	if err != nil {
		l.WithError(err).Error("conversion failed")
		os.Exit(1)
	}

	for _, c := range result.Categories {
		if c.Err != nil {
			l.WithField("category", c.Name).WithError(c.Err).Warn("category incomplete")
		}
	}
	fmt.Printf("wrote %d tiles and %d places to %s\n", result.Tiles, result.Places, opts.OutDir)
}

// env reads SHPTILES_* variables as flag defaults.
type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) key(name string) string {
	return "SHPTILES_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func (e *env) string(name, def string) string {
	if v := e.getenv(e.key(name)); v != "" {
		return v
	}
	return def
}

func (e *env) float(name string, def float64) float64 {
	v := e.getenv(e.key(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", e.key(name), err))
		return def
	}
	return f
}

func (e *env) int(name string, def int) int {
	v := e.getenv(e.key(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", e.key(name), err))
		return def
	}
	return n
}

func (e *env) bool(name string, def bool) bool {
	v := e.getenv(e.key(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", e.key(name), err))
		return def
	}
	return b
}

// parseArgs builds conversion options from defaults, then the environment,
// then args.
func parseArgs(args []string, getenv func(string) string, output io.Writer) (tiles.Options, error) {
	o := tiles.DefaultOptions()
	e := &env{getenv: getenv}
	fs := flag.NewFlagSet("shptiles", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&o.ShapeDir, "shape-dir", e.string("shape-dir", o.ShapeDir), "directory holding <category>.shp/.dbf pairs")
	fs.StringVar(&o.OutDir, "out", e.string("out", o.OutDir), "output root")
	fs.Float64Var(&o.TileSize, "tile-size", e.float("tile-size", o.TileSize), "tile edge length in metres")
	fs.Float64Var(&o.OriginLat, "origin-lat", e.float("origin-lat", o.OriginLat), "origin latitude")
	fs.Float64Var(&o.OriginLon, "origin-lon", e.float("origin-lon", o.OriginLon), "origin longitude")
	fs.BoolVar(&o.Clean, "clean", e.bool("clean", o.Clean), "remove existing tiles and fragments first")
	fs.BoolVar(&o.KeepTmp, "keep-tmp", e.bool("keep-tmp", o.KeepTmp), "keep intermediate fragment files")
	fs.Float64Var(&o.MinBuildingArea, "min-building-area", e.float("min-building-area", o.MinBuildingArea), "drop buildings smaller than this many m²")
	fs.Float64Var(&o.MaxBuildingExtent, "max-building-extent", e.float("max-building-extent", o.MaxBuildingExtent), "drop buildings wider than this many metres")
	fs.Float64Var(&o.SimplifyMeters, "simplify-meters", e.float("simplify-meters", o.SimplifyMeters), "Douglas-Peucker tolerance in metres")
	fs.BoolVar(&o.RectBuildings, "rect-buildings", e.bool("rect-buildings", o.RectBuildings), "export buildings as oriented rectangles")
	fs.StringVar(&o.ClipReadme, "clip-readme", e.string("clip-readme", o.ClipReadme), "extract README holding the clip polygon")
	fs.Float64Var(&o.MaxWaterAreaKm2, "max-water-area-km2", e.float("max-water-area-km2", o.MaxWaterAreaKm2), "drop larger water polygons")
	fs.Float64Var(&o.MaxLandcoverAreaKm2, "max-landcover-area-km2", e.float("max-landcover-area-km2", o.MaxLandcoverAreaKm2), "drop larger landcover polygons")
	fs.Float64Var(&o.RiverbankAspect, "skip-riverbank-aspect", e.float("skip-riverbank-aspect", o.RiverbankAspect), "drop water polygons at least this elongated")
	fs.StringVar(&o.Encoding, "encoding", e.string("encoding", o.Encoding), "text encoding of .dbf fields")
	fs.IntVar(&o.MaxOpen, "max-open", e.int("max-open", o.MaxOpen), "maximum open fragment files")
	fs.IntVar(&o.Workers, "workers", e.int("workers", o.Workers), "category jobs run concurrently")
	fs.StringVar(&o.ArchivePath, "archive", e.string("archive", o.ArchivePath), "also write tiles to this SQLite file")
	fs.StringVar(&o.CoverageGeoJSON, "coverage-geojson", e.string("coverage-geojson", o.CoverageGeoJSON), "write tile footprints to this GeoJSON file")
	fs.StringVar(&o.MetricsFile, "metrics-file", e.string("metrics-file", o.MetricsFile), "write run counters in Prometheus text format")

	if err := errors.Join(e.errs...); err != nil {
		return o, err
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return o, o.Validate()
}
