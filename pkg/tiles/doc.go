// Package tiles converts a directory of WGS84 shapefile extracts into tiled
// JSON payloads for a local-WebMercator scene.
//
// # Basic Usage
//
//	opts := tiles.DefaultOptions()
//	opts.ShapeDir = "extract/shape"
//	opts.OutDir = "StreamingAssets/City"
//
//	result, err := tiles.Convert(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Wrote %d tiles\n", result.Tiles)
//
// # Inputs
//
// The shape directory holds .shp/.dbf pairs named by category: buildings,
// roads, natural, landuse, waterways, railways, points and places. Missing
// pairs are skipped. A run with no pair at all fails with ErrNoInputs.
//
// # Outputs
//
//	<out>/tileset.json          projection, tile size, origin and elevation tiers
//	<out>/tiles/tile_0_X_Y.json one TileRecord per non-empty tile
//	<out>/places.json           named places in origin-relative metres (if any)
//
// Every coordinate in a tile record is relative to the centre of its tile.
// Tile (X, Y) spans [X*size, (X+1)*size) east and [Y*size, (Y+1)*size) north
// of the origin anchor, measured in WebMercator metres.
//
// # Tile Assignment
//
// Polygons (buildings, water, landcover) are owned whole by the tile holding
// their centroid. Lines (roads, waterways, railways) are split into per-tile
// fragments whose end points are shared across the boundary.
//
// # Reading Output
//
//	keys, err := tiles.DiscoverTiles("StreamingAssets/City")
//	for _, k := range keys {
//	    rec, err := tiles.ReadTile(tiles.TilePath("StreamingAssets/City", k))
//	    ...
//	}
package tiles
