package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/shptiles/pkg/tiles"
)

func main() {
	ts, err := tiles.ReadTileset("out")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Tile size: %.0f m, origin %.4f,%.4f\n", ts.TileSizeMeters, ts.Origin.Lat, ts.Origin.Lon)

	keys, err := tiles.DiscoverTiles("out")
	if err != nil {
		log.Fatal(err)
	}

	for _, k := range keys {
		rec, err := tiles.ReadTile(tiles.TilePath("out", k))
		if err != nil {
			log.Fatal(err)
		}

		// Vertices are relative to the tile centre
		fmt.Printf("tile %d,%d: %d buildings, %d roads, %d pois\n",
			k.TX, k.TY, len(rec.Buildings), len(rec.Roads), len(rec.POIs))
	}

	places, err := tiles.ReadPlaces("out")
	if err != nil {
		log.Fatal(err)
	}
	for _, p := range places {
		fmt.Printf("%s (%s) at %.0f,%.0f\n", p.Name, p.Type, p.X, p.Y)
	}
}
