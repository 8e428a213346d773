package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/shptiles/pkg/tiles"
)

func main() {
	// Defaults: 1024 m tiles anchored on Sendai
	opts := tiles.DefaultOptions()
	opts.ShapeDir = "sendai-shp"
	opts.OutDir = "out"
	opts.Clean = true

	result, err := tiles.Convert(opts)
	if err != nil {
		log.Fatal(err)
	}

	for _, c := range result.Categories {
		fmt.Printf("%-10s records=%d kept=%d dropped=%d\n", c.Name, c.Records, c.Kept, c.Dropped)
	}
	fmt.Printf("Tiles: %d\n", result.Tiles)
	fmt.Printf("Places: %d\n", result.Places)
}
