package tiles

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/beetlebugorg/shptiles/internal/archive"
	"github.com/beetlebugorg/shptiles/internal/geometry"
	"github.com/beetlebugorg/shptiles/internal/logger"
	"github.com/beetlebugorg/shptiles/internal/metrics"
	"github.com/beetlebugorg/shptiles/internal/tiling"
)

// feature is a fixture record with geometry in origin-relative metres, or
// in lon/lat as written when geographic is set.
type feature struct {
	parts      [][]orb.Point
	point      orb.Point
	attrs      map[string]string
	geographic bool
}

func rect(x0, y0, x1, y1 float64) []orb.Point {
	return []orb.Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

func testProjector(t *testing.T) *geometry.Projector {
	t.Helper()
	opts := DefaultOptions()
	p, err := geometry.NewProjector(opts.OriginLat, opts.OriginLon)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// writeLayer writes <dir>/<name>.shp/.dbf with string fields.
func writeLayer(t *testing.T, dir, name string, st shp.ShapeType, fields []string, feats []feature) {
	t.Helper()
	proj := testProjector(t)

	w, err := shp.Create(filepath.Join(dir, name+".shp"), st)
	if err != nil {
		t.Fatalf("shp.Create() error = %v", err)
	}
	defs := make([]shp.Field, len(fields))
	for i, f := range fields {
		defs[i] = shp.StringField(f, 32)
	}
	if err := w.SetFields(defs); err != nil {
		t.Fatalf("SetFields() error = %v", err)
	}

	for _, f := range feats {
		geo := func(p orb.Point) shp.Point {
			if f.geographic {
				return shp.Point{X: p[0], Y: p[1]}
			}
			g := proj.Unproject(p)
			return shp.Point{X: g[0], Y: g[1]}
		}

		var row int32
		switch st {
		case shp.POINT:
			p := geo(f.point)
			row = w.Write(&p)
		default:
			parts := make([][]shp.Point, len(f.parts))
			for i, part := range f.parts {
				for _, p := range part {
					parts[i] = append(parts[i], geo(p))
				}
				if st == shp.POLYGON {
					parts[i] = append(parts[i], parts[i][0])
				}
			}
			line := shp.NewPolyLine(parts)
			if st == shp.POLYGON {
				pg := shp.Polygon(*line)
				row = w.Write(&pg)
			} else {
				row = w.Write(line)
			}
		}
		for i, field := range fields {
			if err := w.WriteAttribute(int(row), i, f.attrs[field]); err != nil {
				t.Fatalf("WriteAttribute() error = %v", err)
			}
		}
	}
	w.Close()

	// go-shp v0.1.1 names the attribute file "<base>dbf"
	base := filepath.Join(dir, name)
	if _, err := os.Stat(base + "dbf"); err == nil {
		if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
			t.Fatalf("rename attribute file: %v", err)
		}
	}
}

func quietOptions(t *testing.T, shapeDir string) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.ShapeDir = shapeDir
	opts.OutDir = filepath.Join(t.TempDir(), "out")
	opts.Logger = logger.New("error", "")
	return opts
}

// writeScene writes one layer per input category.
func writeScene(t *testing.T, dir string) {
	t.Helper()

	writeLayer(t, dir, InputBuildings, shp.POLYGON, []string{"type", "height", "building_l"}, []feature{
		{parts: [][]orb.Point{rect(100, 100, 120, 120)}, attrs: map[string]string{"type": "house", "height": "12.5m"}},
		{parts: [][]orb.Point{rect(200, 200, 202, 204)}, attrs: map[string]string{"type": "shed"}}, // 8 m²
		{parts: [][]orb.Point{rect(300, 100, 330, 130)}, attrs: map[string]string{"building_l": "3"}},
		{parts: [][]orb.Point{rect(1100, 100, 1700, 130)}, attrs: map[string]string{"type": "warehouse"}}, // 600 m extent
	})

	writeLayer(t, dir, InputRoads, shp.POLYLINE, []string{"type", "name"}, []feature{
		{parts: [][]orb.Point{{{10, 500}, {3000, 500}}}, attrs: map[string]string{"type": "primary", "name": "Jozenji-dori"}},
	})

	writeLayer(t, dir, InputNatural, shp.POLYGON, []string{"type"}, []feature{
		{parts: [][]orb.Point{rect(2100, 100, 2300, 300)}, attrs: map[string]string{"type": "water"}},
		{parts: [][]orb.Point{rect(0, 800, 1000, 810)}, attrs: map[string]string{"type": "riverbank"}},
		{parts: [][]orb.Point{rect(600, 600, 700, 700)}, attrs: map[string]string{"type": "beach"}},
	})

	writeLayer(t, dir, InputLanduse, shp.POLYGON, []string{"type"}, []feature{
		{parts: [][]orb.Point{rect(300, 300, 400, 400)}, attrs: map[string]string{"type": "forest"}},
		{parts: [][]orb.Point{rect(1200, 300, 1300, 400)}, attrs: map[string]string{"type": "park"}},
	})

	writeLayer(t, dir, InputWaterways, shp.POLYLINE, []string{"type", "width"}, []feature{
		{parts: [][]orb.Point{{{10, 900}, {250, 900}, {400, 900}, {500, 900}}}, attrs: map[string]string{"type": "river"}},
		{parts: [][]orb.Point{{{10, 950}, {500, 950}}}, attrs: map[string]string{"type": "canal", "width": "7.5"}},
	})

	writeLayer(t, dir, InputRailways, shp.POLYLINE, []string{"type", "name"}, []feature{
		{parts: [][]orb.Point{{{10, 700}, {900, 700}}}, attrs: map[string]string{"type": "rail", "name": "Senseki Line"}},
		{parts: [][]orb.Point{{{10, 720}, {900, 720}}}, attrs: map[string]string{"type": "rail"}},
		{parts: [][]orb.Point{{{10, 740}, {900, 740}}}, attrs: map[string]string{"type": "subway", "name": "Namboku"}},
	})

	writeLayer(t, dir, InputPoints, shp.POINT, []string{"type", "name"}, []feature{
		{point: orb.Point{50, 60}, attrs: map[string]string{"type": "Station", "name": "Sendai"}},
		{point: orb.Point{70, 60}, attrs: map[string]string{"type": "cafe", "name": "Cafe"}},
	})

	writeLayer(t, dir, InputPlaces, shp.POINT, []string{"type", "name"}, []feature{
		{point: orb.Point{-200, 300}, attrs: map[string]string{"type": "suburb", "name": "Aoba"}},
		{point: orb.Point{-300, 300}, attrs: map[string]string{"type": "suburb"}},
		{point: orb.Point{-400, 300}, attrs: map[string]string{"type": "village", "name": "Akiu"}},
	})
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-4
}

func TestConvertEndToEnd(t *testing.T) {
	shapeDir := t.TempDir()
	writeScene(t, shapeDir)
	opts := quietOptions(t, shapeDir)

	conv, err := NewConverter(opts)
	if err != nil {
		t.Fatalf("NewConverter() error = %v", err)
	}
	result, err := conv.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	keys, err := DiscoverTiles(opts.OutDir)
	if err != nil {
		t.Fatalf("DiscoverTiles() error = %v", err)
	}
	wantKeys := []TileKey{{0, 0}, {1, 0}, {2, 0}}
	if len(keys) != len(wantKeys) || result.Tiles != len(wantKeys) {
		t.Fatalf("tiles = %v (result %d), want %v", keys, result.Tiles, wantKeys)
	}
	for i := range wantKeys {
		if keys[i] != wantKeys[i] {
			t.Errorf("tile %d = %v, want %v", i, keys[i], wantKeys[i])
		}
	}

	t00, err := ReadTile(TilePath(opts.OutDir, TileKey{0, 0}))
	if err != nil {
		t.Fatalf("ReadTile() error = %v", err)
	}

	// buildings: 8 m² shed and 600 m warehouse dropped, warehouse would be tile 1_0
	if len(t00.Buildings) != 2 {
		t.Fatalf("tile 0_0 buildings = %d, want 2", len(t00.Buildings))
	}
	heights := map[float64]bool{}
	for _, b := range t00.Buildings {
		heights[b.HeightMeters] = true
		if len(b.Vertices) != 4 {
			t.Errorf("building has %d vertices, want 4", len(b.Vertices))
		}
	}
	if !heights[12.5] || !heights[9] {
		t.Errorf("building heights = %v, want 12.5 and 9", heights)
	}
	corner := false
	for _, v := range t00.Buildings[0].Vertices {
		if near(v.X, 100-512) && near(v.Y, 100-512) {
			corner = true
		}
	}
	if !corner {
		t.Errorf("house vertices = %+v, want tile-local corner (-412, -412)", t00.Buildings[0].Vertices)
	}

	if got := testutil.ToFloat64(conv.Metrics().FeaturesDropped.WithLabelValues(InputBuildings, metrics.ReasonArea)); got != 1 {
		t.Errorf("buildings dropped by area = %v, want 1", got)
	}
	if got := testutil.ToFloat64(conv.Metrics().FeaturesDropped.WithLabelValues(InputBuildings, metrics.ReasonExtent)); got != 1 {
		t.Errorf("buildings dropped by extent = %v, want 1", got)
	}

	// one road fragment per tile, primary width
	var roadEnds []Vec2
	for _, k := range wantKeys {
		rec, err := ReadTile(TilePath(opts.OutDir, k))
		if err != nil {
			t.Fatal(err)
		}
		if len(rec.Roads) != 1 {
			t.Fatalf("tile %v roads = %d, want 1", k, len(rec.Roads))
		}
		if rec.Roads[0].WidthMeters != 12 {
			t.Errorf("road width = %v, want 12", rec.Roads[0].WidthMeters)
		}
		pts := rec.Roads[0].Points
		c := tiling.Grid{Size: opts.TileSize}.Center(tiling.Key{X: k.TX, Y: k.TY})
		roadEnds = append(roadEnds, Vec2{pts[0].X + c[0], pts[0].Y + c[1]}, Vec2{pts[len(pts)-1].X + c[0], pts[len(pts)-1].Y + c[1]})
		if rec.LOD != 0 || rec.TX != k.TX || rec.TY != k.TY {
			t.Errorf("tile header = %d/%d/%d", rec.LOD, rec.TX, rec.TY)
		}
	}
	for i := 1; i+1 < len(roadEnds); i += 2 {
		if !near(roadEnds[i].X, roadEnds[i+1].X) || !near(roadEnds[i].Y, roadEnds[i+1].Y) {
			t.Errorf("road fragments do not share an endpoint: %v vs %v", roadEnds[i], roadEnds[i+1])
		}
	}

	// natural: lake in 2_0, riverbank dropped by aspect, beach unclassified
	t20, _ := ReadTile(TilePath(opts.OutDir, TileKey{2, 0}))
	if len(t20.Waters) != 1 || len(t00.Waters) != 0 {
		t.Errorf("waters = %d in 2_0, %d in 0_0; want 1, 0", len(t20.Waters), len(t00.Waters))
	}
	if got := testutil.ToFloat64(conv.Metrics().FeaturesDropped.WithLabelValues(InputNatural, metrics.ReasonAspect)); got != 1 {
		t.Errorf("natural dropped by aspect = %v, want 1", got)
	}

	// landuse: forest in 0_0, park in 1_0
	if len(t00.Landcovers) != 1 || t00.Landcovers[0].Kind != "forest" || t00.Landcovers[0].DensityPerKm2 != 800 {
		t.Errorf("tile 0_0 landcovers = %+v", t00.Landcovers)
	}
	t10, _ := ReadTile(TilePath(opts.OutDir, TileKey{1, 0}))
	if len(t10.Landcovers) != 1 || t10.Landcovers[0].Kind != "grass" || t10.Landcovers[0].DensityPerKm2 != 250 {
		t.Errorf("tile 1_0 landcovers = %+v", t10.Landcovers)
	}

	// waterways: simplified river, attribute width wins for the canal
	if len(t00.Waterways) != 2 {
		t.Fatalf("tile 0_0 waterways = %d, want 2", len(t00.Waterways))
	}
	for _, w := range t00.Waterways {
		switch w.Kind {
		case "river":
			if w.WidthMeters != 10 || len(w.Points) != 2 {
				t.Errorf("river = %v m, %d points; want 10 m, 2 points", w.WidthMeters, len(w.Points))
			}
		case "canal":
			if w.WidthMeters != 7.5 {
				t.Errorf("canal width = %v, want 7.5", w.WidthMeters)
			}
		default:
			t.Errorf("unexpected waterway kind %q", w.Kind)
		}
	}

	// railways: only the named surface track
	if len(t00.Railways) != 1 || t00.Railways[0].WidthMeters != 4 {
		t.Errorf("tile 0_0 railways = %+v", t00.Railways)
	}

	// pois: lower-cased station only
	if len(t00.POIs) != 1 {
		t.Fatalf("tile 0_0 pois = %d, want 1", len(t00.POIs))
	}
	poi := t00.POIs[0]
	if poi.Type != "station" || poi.Name != "Sendai" || !near(poi.Position.X, 50-512) || !near(poi.Position.Y, 60-512) {
		t.Errorf("poi = %+v", poi)
	}

	// places sidecar in absolute local metres
	places, err := ReadPlaces(opts.OutDir)
	if err != nil {
		t.Fatalf("ReadPlaces() error = %v", err)
	}
	if len(places) != 1 || places[0].Name != "Aoba" || !near(places[0].X, -200) || !near(places[0].Y, 300) {
		t.Errorf("places = %+v", places)
	}
	if result.Places != 1 {
		t.Errorf("result places = %d, want 1", result.Places)
	}

	ts, err := ReadTileset(opts.OutDir)
	if err != nil {
		t.Fatalf("ReadTileset() error = %v", err)
	}
	if ts.Projection != "LOCAL_WEBMERCATOR" || ts.TileSizeMeters != 1024 || ts.DataVersion != 1 ||
		len(ts.DemLods) != 3 || ts.DemLods[2].ResolutionMeters != 90 || ts.Origin.Lat != 38.26 {
		t.Errorf("tileset = %+v", ts)
	}

	if _, err := os.Stat(filepath.Join(opts.OutDir, FragmentsDir)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("fragment directory left behind: %v", err)
	}
}

func TestTileRecordsCarryEveryArray(t *testing.T) {
	shapeDir := t.TempDir()
	writeLayer(t, shapeDir, InputPoints, shp.POINT, []string{"type", "name"}, []feature{
		{point: orb.Point{10, 10}, attrs: map[string]string{"type": "subway_entrance", "name": "N1"}},
	})
	opts := quietOptions(t, shapeDir)
	if _, err := Convert(opts); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	data, err := os.ReadFile(TilePath(opts.OutDir, TileKey{0, 0}))
	if err != nil {
		t.Fatal(err)
	}
	for _, category := range OutputCategories {
		if !bytes.Contains(data, []byte(`"`+category+`":[`)) {
			t.Errorf("tile record lacks %q array: %s", category, data)
		}
	}
	if _, err := os.Stat(filepath.Join(opts.OutDir, PlacesFile)); !errors.Is(err, os.ErrNotExist) {
		t.Error("places.json written without places")
	}
}

func TestConvertNoInputs(t *testing.T) {
	opts := quietOptions(t, t.TempDir())
	_, err := Convert(opts)
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("Convert() error = %v, want ErrNoInputs", err)
	}
	if _, err := os.Stat(opts.OutDir); !errors.Is(err, os.ErrNotExist) {
		t.Error("output directory created for a run without inputs")
	}
}

func TestConvertSkipsMalformedCategory(t *testing.T) {
	shapeDir := t.TempDir()
	writeLayer(t, shapeDir, InputRoads, shp.POLYLINE, []string{"type"}, []feature{
		{parts: [][]orb.Point{{{10, 10}, {20, 20}}}, attrs: map[string]string{"type": "service"}},
	})
	if err := os.WriteFile(filepath.Join(shapeDir, "buildings.shp"), []byte("not a shapefile"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(shapeDir, "buildings.dbf"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := quietOptions(t, shapeDir)
	result, err := Convert(opts)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	var buildings *CategoryResult
	for i := range result.Categories {
		if result.Categories[i].Name == InputBuildings {
			buildings = &result.Categories[i]
		}
	}
	if buildings == nil || buildings.Err == nil {
		t.Fatalf("buildings result = %+v, want a header error", buildings)
	}
	var mh *ErrMalformedHeader
	if !errors.As(buildings.Err, &mh) || !strings.HasSuffix(mh.Path, "buildings.shp") {
		t.Errorf("buildings error = %v, want ErrMalformedHeader for buildings.shp", buildings.Err)
	}
	if result.Tiles != 1 {
		t.Errorf("tiles = %d, want 1", result.Tiles)
	}
}

func TestConvertSkipsCorruptCoordinates(t *testing.T) {
	shapeDir := t.TempDir()
	writeLayer(t, shapeDir, InputRoads, shp.POLYLINE, []string{"type"}, []feature{
		{parts: [][]orb.Point{{{10, 500}, {300, 500}}}, attrs: map[string]string{"type": "primary"}},
		{parts: [][]orb.Point{{{140.88, 38.26}, {1.7e308, 38.26}}}, attrs: map[string]string{"type": "primary"}, geographic: true},
		{parts: [][]orb.Point{{{140.88, 38.26}, {140.89, 1e300}}}, attrs: map[string]string{"type": "primary"}, geographic: true},
	})
	writeLayer(t, shapeDir, InputPoints, shp.POINT, []string{"type", "name"}, []feature{
		{point: orb.Point{50, 60}, attrs: map[string]string{"type": "station", "name": "Sendai"}},
		{point: orb.Point{1e300, 38.26}, attrs: map[string]string{"type": "station", "name": "Far"}, geographic: true},
	})
	writeLayer(t, shapeDir, InputPlaces, shp.POINT, []string{"type", "name"}, []feature{
		{point: orb.Point{-200, 300}, attrs: map[string]string{"type": "suburb", "name": "Aoba"}},
		{point: orb.Point{140.88, 95}, attrs: map[string]string{"type": "suburb", "name": "Pole"}, geographic: true},
		{point: orb.Point{-181, 38.26}, attrs: map[string]string{"type": "suburb", "name": "Dateline"}, geographic: true},
	})

	opts := quietOptions(t, shapeDir)
	conv, err := NewConverter(opts)
	if err != nil {
		t.Fatalf("NewConverter() error = %v", err)
	}
	result, err := conv.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	keys, err := DiscoverTiles(opts.OutDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != (TileKey{0, 0}) || result.Tiles != 1 {
		t.Fatalf("tiles = %v (result %d), want only 0_0", keys, result.Tiles)
	}
	rec, err := ReadTile(TilePath(opts.OutDir, keys[0]))
	if err != nil {
		t.Fatalf("ReadTile() error = %v", err)
	}
	if len(rec.Roads) != 1 || len(rec.POIs) != 1 {
		t.Errorf("tile 0_0 = %d roads, %d pois; want 1, 1", len(rec.Roads), len(rec.POIs))
	}

	tests := []struct {
		category string
		want     float64
	}{
		{InputRoads, 2},
		{InputPoints, 1},
		{InputPlaces, 2},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(conv.Metrics().FeaturesDropped.WithLabelValues(tt.category, metrics.ReasonDegenerate))
		if got != tt.want {
			t.Errorf("%s dropped as degenerate = %v, want %v", tt.category, got, tt.want)
		}
	}

	places, err := ReadPlaces(opts.OutDir)
	if err != nil {
		t.Fatalf("ReadPlaces() error = %v", err)
	}
	if len(places) != 1 || places[0].Name != "Aoba" {
		t.Errorf("places = %+v, want only Aoba", places)
	}
}

func TestConvertClip(t *testing.T) {
	shapeDir := t.TempDir()
	writeLayer(t, shapeDir, InputBuildings, shp.POLYGON, []string{"type"}, []feature{
		{parts: [][]orb.Point{rect(100, 100, 120, 120)}},
		{parts: [][]orb.Point{rect(5000, 5000, 5020, 5020)}},
	})
	writeLayer(t, shapeDir, InputPoints, shp.POINT, []string{"type", "name"}, []feature{
		{point: orb.Point{50, 50}, attrs: map[string]string{"type": "station", "name": "in"}},
		{point: orb.Point{-5000, 50}, attrs: map[string]string{"type": "station", "name": "out"}},
	})

	proj := testProjector(t)
	var coords []string
	for _, p := range rect(-1000, -1000, 1000, 1000) {
		g := proj.Unproject(p)
		coords = append(coords, formatPair(g))
	}
	readme := filepath.Join(shapeDir, "README.txt")
	text := "Script URL: https://extract.example.org/cgi/extract.cgi?format=shp.zip&coords=" + strings.Join(coords, "|") + "\n"
	if err := os.WriteFile(readme, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := quietOptions(t, shapeDir)
	opts.ClipReadme = readme
	conv, err := NewConverter(opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conv.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	keys, _ := DiscoverTiles(opts.OutDir)
	if len(keys) != 1 || keys[0] != (TileKey{0, 0}) {
		t.Fatalf("tiles = %v, want only 0_0", keys)
	}
	rec, _ := ReadTile(TilePath(opts.OutDir, keys[0]))
	if len(rec.Buildings) != 1 || len(rec.POIs) != 1 || rec.POIs[0].Name != "in" {
		t.Errorf("tile 0_0 = %d buildings, %+v", len(rec.Buildings), rec.POIs)
	}
	if got := testutil.ToFloat64(conv.Metrics().FeaturesDropped.WithLabelValues(InputPoints, metrics.ReasonClip)); got != 1 {
		t.Errorf("points dropped by clip = %v, want 1", got)
	}
}

func formatPair(g orb.Point) string {
	return strconv.FormatFloat(g[0], 'f', -1, 64) + "," + strconv.FormatFloat(g[1], 'f', -1, 64)
}

func TestConvertMissingClipReadmeIsIgnored(t *testing.T) {
	shapeDir := t.TempDir()
	writeLayer(t, shapeDir, InputBuildings, shp.POLYGON, []string{"type"}, []feature{
		{parts: [][]orb.Point{rect(5000, 5000, 5020, 5020)}},
	})
	opts := quietOptions(t, shapeDir)
	opts.ClipReadme = filepath.Join(shapeDir, "missing.txt")

	result, err := Convert(opts)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if result.Tiles != 1 {
		t.Errorf("tiles = %d, want 1 (unclipped)", result.Tiles)
	}
}

func TestConvertRectBuildings(t *testing.T) {
	// a rotated 40x10 rectangle with a notch vertex
	shapeDir := t.TempDir()
	a := math.Pi / 6
	rot := func(x, y float64) orb.Point {
		return orb.Point{300 + x*math.Cos(a) - y*math.Sin(a), 300 + x*math.Sin(a) + y*math.Cos(a)}
	}
	ring := []orb.Point{rot(0, 0), rot(20, 2), rot(40, 0), rot(40, 10), rot(0, 10)}
	writeLayer(t, shapeDir, InputBuildings, shp.POLYGON, []string{"type"}, []feature{{parts: [][]orb.Point{ring}}})

	opts := quietOptions(t, shapeDir)
	opts.RectBuildings = true
	if _, err := Convert(opts); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	rec, err := ReadTile(TilePath(opts.OutDir, TileKey{0, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Buildings) != 1 || len(rec.Buildings[0].Vertices) != 4 {
		t.Fatalf("buildings = %+v, want one rectangle", rec.Buildings)
	}
	v := rec.Buildings[0].Vertices
	side := func(i, j int) float64 { return math.Hypot(v[i].X-v[j].X, v[i].Y-v[j].Y) }
	if !near(side(0, 1), side(2, 3)) || !near(side(1, 2), side(3, 0)) {
		t.Errorf("corners do not form a rectangle: %+v", v)
	}
}

func TestConvertParallelMatchesSerial(t *testing.T) {
	shapeDir := t.TempDir()
	writeScene(t, shapeDir)

	serial := quietOptions(t, shapeDir)
	parallel := quietOptions(t, shapeDir)
	parallel.Workers = 4
	parallel.MaxOpen = 2

	if _, err := Convert(serial); err != nil {
		t.Fatalf("serial Convert() error = %v", err)
	}
	res, err := Convert(parallel)
	if err != nil {
		t.Fatalf("parallel Convert() error = %v", err)
	}
	if res.Stats.Evictions == 0 {
		t.Error("expected evictions with MaxOpen 2")
	}

	keys, _ := DiscoverTiles(serial.OutDir)
	for _, k := range keys {
		a, _ := os.ReadFile(TilePath(serial.OutDir, k))
		b, err := os.ReadFile(TilePath(parallel.OutDir, k))
		if err != nil {
			t.Fatalf("parallel run lacks tile %v", k)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("tile %v differs between serial and parallel runs", k)
		}
	}
}

func TestConvertArchiveAndCoverage(t *testing.T) {
	shapeDir := t.TempDir()
	writeScene(t, shapeDir)
	opts := quietOptions(t, shapeDir)
	opts.ArchivePath = filepath.Join(t.TempDir(), "tiles.sqlite")
	opts.CoverageGeoJSON = filepath.Join(t.TempDir(), "coverage.geojson")
	opts.MetricsFile = filepath.Join(t.TempDir(), "shptiles.prom")
	opts.KeepTmp = true

	result, err := Convert(opts)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	db, err := archive.Open(opts.ArchivePath)
	if err != nil {
		t.Fatalf("archive.Open() error = %v", err)
	}
	defer db.Close()
	stored, err := archive.ReadTile(db, 0, tiling.Key{X: 2, Y: 0})
	if err != nil {
		t.Fatalf("archive.ReadTile() error = %v", err)
	}
	onDisk, _ := os.ReadFile(TilePath(opts.OutDir, TileKey{2, 0}))
	if !bytes.Equal(stored, onDisk) {
		t.Error("archived tile differs from tile file")
	}
	meta, err := archive.Metadata(db)
	if err != nil || !strings.Contains(meta["tileset"], "LOCAL_WEBMERCATOR") {
		t.Errorf("archive metadata = %v, %v", meta, err)
	}

	data, err := os.ReadFile(opts.CoverageGeoJSON)
	if err != nil {
		t.Fatal(err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("coverage is not GeoJSON: %v", err)
	}
	if len(fc.Features) != result.Tiles {
		t.Errorf("coverage has %d features, want %d", len(fc.Features), result.Tiles)
	}
	// tile 0_0 starts at the origin anchor
	b := fc.Features[0].Geometry.Bound()
	if !near(b.Min[0], opts.OriginLon) || !near(b.Min[1], opts.OriginLat) {
		t.Errorf("tile 0_0 coverage starts at %v, want the origin", b.Min)
	}

	if _, err := os.Stat(filepath.Join(opts.OutDir, FragmentsDir)); err != nil {
		t.Errorf("KeepTmp did not keep fragments: %v", err)
	}
	prom, err := os.ReadFile(opts.MetricsFile)
	if err != nil || !bytes.Contains(prom, []byte("shptiles_tiles_written_total 3")) {
		t.Errorf("metrics file = %s, %v", prom, err)
	}
}

func TestConvertFailedMergeDiscardsArchive(t *testing.T) {
	shapeDir := t.TempDir()
	writeScene(t, shapeDir)
	opts := quietOptions(t, shapeDir)
	opts.Clean = false
	opts.ArchivePath = filepath.Join(t.TempDir(), "tiles.sqlite")

	// a directory where tile 0_0 should be written makes the merge fail
	if err := os.MkdirAll(TilePath(opts.OutDir, TileKey{0, 0}), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := Convert(opts); err == nil {
		t.Fatal("Convert() succeeded, want a tile write error")
	}
	if _, err := os.Stat(opts.ArchivePath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("archive after failed merge: stat error = %v, want not exist", err)
	}
}

func TestClean(t *testing.T) {
	out := t.TempDir()
	for _, dir := range []string{TilesDir, FragmentsDir} {
		if err := os.MkdirAll(filepath.Join(out, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	keep := filepath.Join(out, TilesetFile)
	os.WriteFile(keep, []byte("{}"), 0o644)

	if err := Clean(out); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	for _, dir := range []string{TilesDir, FragmentsDir} {
		if _, err := os.Stat(filepath.Join(out, dir)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s still exists", dir)
		}
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("Clean() removed the tileset descriptor")
	}
}

func TestDiscoverTiles(t *testing.T) {
	out := t.TempDir()
	os.MkdirAll(filepath.Join(out, TilesDir), 0o755)
	for _, name := range []string{"tile_0_2_-1.json", "tile_0_-3_4.json", "tile_0_2_-5.json", "tile_1_0_0.json", "notes.json", "tile_0_a_b.json"} {
		os.WriteFile(filepath.Join(out, TilesDir, name), []byte("{}"), 0o644)
	}

	keys, err := DiscoverTiles(out)
	if err != nil {
		t.Fatalf("DiscoverTiles() error = %v", err)
	}
	want := []TileKey{{-3, 4}, {2, -5}, {2, -1}}
	if len(keys) != len(want) {
		t.Fatalf("DiscoverTiles() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %v, want %v", i, keys[i], want[i])
		}
	}
}
