package tiles

import (
	"github.com/paulmach/orb"
)

// Output categories, as named in tile records and fragment files.
const (
	CategoryBuildings  = "buildings"
	CategoryRoads      = "roads"
	CategoryWaters     = "waters"
	CategoryWaterways  = "waterways"
	CategoryLandcovers = "landcovers"
	CategoryRailways   = "railways"
	CategoryPOIs       = "pois"
)

// OutputCategories lists the arrays of a tile record in record order.
var OutputCategories = []string{
	CategoryBuildings,
	CategoryRoads,
	CategoryWaters,
	CategoryWaterways,
	CategoryLandcovers,
	CategoryRailways,
	CategoryPOIs,
}

// Vec2 is a planar position in metres.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func vecs(pts []orb.Point) []Vec2 {
	out := make([]Vec2, len(pts))
	for i, p := range pts {
		out[i] = Vec2{X: p[0], Y: p[1]}
	}
	return out
}

// Building is an extruded footprint.
type Building struct {
	HeightMeters float64 `json:"heightMeters"`
	Vertices     []Vec2  `json:"vertices"`
}

// Road is one per-tile fragment of a road centreline.
type Road struct {
	WidthMeters float64 `json:"widthMeters"`
	Points      []Vec2  `json:"points"`
}

// Water is a water polygon.
type Water struct {
	Vertices []Vec2 `json:"vertices"`
}

// Landcover is a vegetation polygon.
type Landcover struct {
	Kind          string  `json:"kind"`
	DensityPerKm2 float64 `json:"densityPerKm2"`
	Vertices      []Vec2  `json:"vertices"`
}

// Waterway is one per-tile fragment of a linear waterway.
type Waterway struct {
	Kind        string  `json:"kind"`
	WidthMeters float64 `json:"widthMeters"`
	Points      []Vec2  `json:"points"`
}

// Railway is one per-tile fragment of a surface track.
type Railway struct {
	WidthMeters float64 `json:"widthMeters"`
	Points      []Vec2  `json:"points"`
}

// POI is a point of interest such as a station entrance.
type POI struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Position Vec2   `json:"position"`
}

// TileRecord is the content of one tile file. Coordinates are relative to the
// tile centre.
type TileRecord struct {
	LOD        int         `json:"lod"`
	TX         int         `json:"tx"`
	TY         int         `json:"ty"`
	Buildings  []Building  `json:"buildings"`
	Roads      []Road      `json:"roads"`
	Waters     []Water     `json:"waters"`
	Waterways  []Waterway  `json:"waterways"`
	Landcovers []Landcover `json:"landcovers"`
	Railways   []Railway   `json:"railways"`
	POIs       []POI       `json:"pois"`
}

// Place is a named area label in origin-relative metres.
type Place struct {
	Type string  `json:"type"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// DemLod is one elevation resolution tier.
type DemLod struct {
	LOD              int     `json:"lod"`
	ResolutionMeters float64 `json:"resolutionMeters"`
}

// LatLon is a geographic position.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Tileset describes the tiling shared by every tile of an output root.
type Tileset struct {
	Projection     string   `json:"projection"`
	TileSizeMeters float64  `json:"tileSizeMeters"`
	DataVersion    int      `json:"dataVersion"`
	DemLods        []DemLod `json:"demLods"`
	Origin         LatLon   `json:"origin"`
}

// Tileset constants.
const (
	Projection  = "LOCAL_WEBMERCATOR"
	DataVersion = 1
)

// NewTileset returns the descriptor for a tile size and origin.
func NewTileset(tileSize, originLat, originLon float64) Tileset {
	return Tileset{
		Projection:     Projection,
		TileSizeMeters: tileSize,
		DataVersion:    DataVersion,
		DemLods: []DemLod{
			{LOD: 0, ResolutionMeters: 10},
			{LOD: 1, ResolutionMeters: 30},
			{LOD: 2, ResolutionMeters: 90},
		},
		Origin: LatLon{Lat: originLat, Lon: originLon},
	}
}

// TileKey identifies a written tile.
type TileKey struct {
	TX int
	TY int
}
