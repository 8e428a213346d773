package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/shptiles/pkg/tiles"
)

func main() {
	opts := tiles.DefaultOptions()
	opts.ShapeDir = "sendai-shp"
	opts.OutDir = "out"

	// Categories run concurrently; MaxOpen bounds file descriptors
	opts.Workers = 4
	opts.MaxOpen = 64
	opts.Progress = func(done, total int) {
		fmt.Printf("jobs %d/%d\n", done, total)
	}

	// Optional outputs
	opts.ArchivePath = "out/tiles.sqlite"
	opts.CoverageGeoJSON = "out/coverage.geojson"
	opts.MetricsFile = "out/shptiles.prom"

	conv, err := tiles.NewConverter(opts)
	if err != nil {
		log.Fatal(err)
	}
	result, err := conv.Run()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Tiles: %d\n", result.Tiles)
	fmt.Printf("Fragments: %d (%d evictions, %d opens)\n",
		result.Stats.Lines, result.Stats.Evictions, result.Stats.Opens)
}
