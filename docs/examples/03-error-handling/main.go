package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/beetlebugorg/shptiles/pkg/tiles"
)

func main() {
	opts := tiles.DefaultOptions()
	opts.ShapeDir = "sendai-shp"
	opts.OutDir = "out"

	result, err := tiles.Convert(opts)
	if errors.Is(err, tiles.ErrNoInputs) {
		log.Fatalf("no <category>.shp/.dbf pairs in %s", opts.ShapeDir)
	}
	if err != nil {
		log.Fatal(err)
	}

	// Broken inputs do not fail the run; they are reported per category
	for _, c := range result.Categories {
		var (
			header    *tiles.ErrMalformedHeader
			truncated *tiles.ErrTruncatedRecord
			alignment *tiles.ErrAlignmentLost
		)
		switch {
		case c.Err == nil:
			continue
		case errors.As(c.Err, &header):
			fmt.Printf("%s: skipped, bad header in %s\n", c.Name, header.Path)
		case errors.As(c.Err, &truncated):
			fmt.Printf("%s: truncated at record %d, kept %d\n", c.Name, truncated.Record, c.Kept)
		case errors.As(c.Err, &alignment):
			fmt.Printf("%s: stopped at geometry %d\n", c.Name, alignment.GeometryIndex)
		default:
			fmt.Printf("%s: %v\n", c.Name, c.Err)
		}
	}
}
