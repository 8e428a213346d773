package tiles

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/shptiles/internal/aggregate"
	"github.com/beetlebugorg/shptiles/internal/archive"
)

// tileFile is a tile record assembled from raw fragments.
type tileFile struct {
	LOD        int               `json:"lod"`
	TX         int               `json:"tx"`
	TY         int               `json:"ty"`
	Buildings  []json.RawMessage `json:"buildings"`
	Roads      []json.RawMessage `json:"roads"`
	Waters     []json.RawMessage `json:"waters"`
	Waterways  []json.RawMessage `json:"waterways"`
	Landcovers []json.RawMessage `json:"landcovers"`
	Railways   []json.RawMessage `json:"railways"`
	POIs       []json.RawMessage `json:"pois"`
}

func newTileFile(t *aggregate.Tile) tileFile {
	get := func(category string) []json.RawMessage {
		if f := t.Categories[category]; f != nil {
			return f
		}
		return []json.RawMessage{}
	}
	return tileFile{
		TX:         t.Key.X,
		TY:         t.Key.Y,
		Buildings:  get(CategoryBuildings),
		Roads:      get(CategoryRoads),
		Waters:     get(CategoryWaters),
		Waterways:  get(CategoryWaterways),
		Landcovers: get(CategoryLandcovers),
		Railways:   get(CategoryRailways),
		POIs:       get(CategoryPOIs),
	}
}

// encodeJSON encodes v without HTML escaping, optionally indented by two spaces.
func encodeJSON(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(path string, v any, indent bool) error {
	data, err := encodeJSON(v, indent)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writePlaces writes the places sidecar if any place was collected.
func (c *Converter) writePlaces() (int, error) {
	c.placesMu.Lock()
	defer c.placesMu.Unlock()

	if len(c.places) == 0 {
		return 0, nil
	}
	path := filepath.Join(c.opts.OutDir, PlacesFile)
	if err := writeJSON(path, c.places, false); err != nil {
		return 0, err
	}
	c.log.WithField("places", len(c.places)).Info("wrote place entries")
	return len(c.places), nil
}

// writeTiles merges the fragment channels into one file per tile, and into
// the archive and coverage outputs when configured.
func (c *Converter) writeTiles(tileset Tileset) (n int, err error) {
	tilesDir := filepath.Join(c.opts.OutDir, TilesDir)
	if err := os.MkdirAll(tilesDir, 0o755); err != nil {
		return 0, fmt.Errorf("create tiles directory: %w", err)
	}

	var arc *archive.Writer
	if c.opts.ArchivePath != "" {
		arc, err = archive.Create(c.opts.ArchivePath)
		if err != nil {
			return 0, err
		}
		defer func() {
			if err != nil {
				if aerr := arc.Abort(); aerr != nil {
					c.log.WithError(aerr).Warn("discard partial archive")
				}
				return
			}
			err = arc.Close()
		}()

		meta, err := encodeJSON(tileset, false)
		if err != nil {
			return 0, err
		}
		if err := arc.SetMetadata("tileset", string(bytes.TrimSpace(meta))); err != nil {
			return 0, err
		}
	}

	var coverage *geojson.FeatureCollection
	if c.opts.CoverageGeoJSON != "" {
		coverage = geojson.NewFeatureCollection()
	}

	n, err = aggregate.Merge(c.out.Dir(), func(t *aggregate.Tile) error {
		data, err := encodeJSON(newTileFile(t), false)
		if err != nil {
			return fmt.Errorf("encode tile %s: %w", t.Key, err)
		}

		path := TilePath(c.opts.OutDir, TileKey{TX: t.Key.X, TY: t.Key.Y})
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write tile: %w", err)
		}
		if arc != nil {
			if err := arc.WriteTile(0, t.Key, data); err != nil {
				return err
			}
		}
		if coverage != nil {
			coverage.Append(c.coverageFeature(t))
		}
		c.metrics.TilesWritten.Inc()
		return nil
	})
	if err != nil {
		return n, err
	}

	if coverage != nil {
		data, err := coverage.MarshalJSON()
		if err != nil {
			return n, fmt.Errorf("encode coverage: %w", err)
		}
		if err := os.WriteFile(c.opts.CoverageGeoJSON, data, 0o644); err != nil {
			return n, fmt.Errorf("write coverage: %w", err)
		}
	}

	c.log.WithField("tiles", n).WithField("dir", tilesDir).Info("wrote tiles")
	return n, nil
}

// coverageFeature returns the footprint of tile t in WGS84 with per-category
// fragment counts.
func (c *Converter) coverageFeature(t *aggregate.Tile) *geojson.Feature {
	size := c.grid.Size
	x0, y0 := float64(t.Key.X)*size, float64(t.Key.Y)*size
	ring := orb.Ring{
		c.proj.Unproject(orb.Point{x0, y0}),
		c.proj.Unproject(orb.Point{x0 + size, y0}),
		c.proj.Unproject(orb.Point{x0 + size, y0 + size}),
		c.proj.Unproject(orb.Point{x0, y0 + size}),
		c.proj.Unproject(orb.Point{x0, y0}),
	}

	f := geojson.NewFeature(orb.Polygon{ring})
	f.Properties["tx"] = t.Key.X
	f.Properties["ty"] = t.Key.Y
	for _, category := range OutputCategories {
		f.Properties[category] = len(t.Categories[category])
	}
	return f
}

// Clean removes the tiles and intermediate fragment directories under outDir.
func Clean(outDir string) error {
	for _, dir := range []string{TilesDir, FragmentsDir} {
		if err := os.RemoveAll(filepath.Join(outDir, dir)); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
	}
	return nil
}

// TilePath returns the path of the lod 0 tile file for k under outDir.
func TilePath(outDir string, k TileKey) string {
	return filepath.Join(outDir, TilesDir, fmt.Sprintf("tile_0_%d_%d.json", k.TX, k.TY))
}

// parseTileName parses "tile_0_<tx>_<ty>.json".
func parseTileName(name string) (TileKey, bool) {
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return TileKey{}, false
	}
	rest, ok := strings.CutPrefix(base, "tile_0_")
	if !ok {
		return TileKey{}, false
	}
	txText, tyText, ok := strings.Cut(rest, "_")
	if !ok {
		return TileKey{}, false
	}
	tx, err := strconv.Atoi(txText)
	if err != nil {
		return TileKey{}, false
	}
	ty, err := strconv.Atoi(tyText)
	if err != nil {
		return TileKey{}, false
	}
	return TileKey{TX: tx, TY: ty}, true
}

// DiscoverTiles lists the lod 0 tiles written under outDir, sorted by (TX, TY).
func DiscoverTiles(outDir string) ([]TileKey, error) {
	entries, err := os.ReadDir(filepath.Join(outDir, TilesDir))
	if err != nil {
		return nil, fmt.Errorf("read tiles directory: %w", err)
	}

	var keys []TileKey
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if k, ok := parseTileName(e.Name()); ok {
			keys = append(keys, k)
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TX != keys[j].TX {
			return keys[i].TX < keys[j].TX
		}
		return keys[i].TY < keys[j].TY
	})
	return keys, nil
}

// ReadTile decodes a tile file.
func ReadTile(path string) (*TileRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec TileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

// ReadTileset decodes the tileset descriptor under outDir.
func ReadTileset(outDir string) (*Tileset, error) {
	data, err := os.ReadFile(filepath.Join(outDir, TilesetFile))
	if err != nil {
		return nil, err
	}
	var ts Tileset
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("decode tileset: %w", err)
	}
	return &ts, nil
}

// ReadPlaces decodes the places sidecar under outDir. A missing sidecar yields
// no places and no error.
func ReadPlaces(outDir string) ([]Place, error) {
	data, err := os.ReadFile(filepath.Join(outDir, PlacesFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var places []Place
	if err := json.Unmarshal(data, &places); err != nil {
		return nil, fmt.Errorf("decode places: %w", err)
	}
	return places, nil
}
