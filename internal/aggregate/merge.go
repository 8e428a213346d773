package aggregate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/beetlebugorg/shptiles/internal/tiling"
)

// Tile is the merged content of every channel of one tile.
type Tile struct {
	Key tiling.Key

	// Categories maps a category name to its fragments in append order.
	Categories map[string][]json.RawMessage
}

// channelFile is a parsed channel file name.
type channelFile struct {
	category string
	key      tiling.Key
	path     string
}

// parseChannelName splits "<category>_<tx>_<ty>.jsonl". Categories never
// contain an underscore; tile indices may be negative.
func parseChannelName(name string) (channelFile, bool) {
	base, ok := strings.CutSuffix(name, ".jsonl")
	if !ok {
		return channelFile{}, false
	}
	parts := strings.Split(base, "_")
	if len(parts) != 3 || parts[0] == "" {
		return channelFile{}, false
	}
	tx, err := strconv.Atoi(parts[1])
	if err != nil {
		return channelFile{}, false
	}
	ty, err := strconv.Atoi(parts[2])
	if err != nil {
		return channelFile{}, false
	}
	return channelFile{category: parts[0], key: tiling.Key{X: tx, Y: ty}}, true
}

// Merge regroups the channel files in dir by tile and calls fn once per tile,
// in ascending (X, Y) order. It returns the number of tiles passed to fn.
// The writer that produced dir must be closed first.
func Merge(dir string, fn func(*Tile) error) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read fragment directory: %w", err)
	}

	byTile := make(map[tiling.Key][]channelFile)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		cf, ok := parseChannelName(e.Name())
		if !ok {
			continue
		}
		cf.path = filepath.Join(dir, e.Name())
		byTile[cf.key] = append(byTile[cf.key], cf)
	}

	keys := make([]tiling.Key, 0, len(byTile))
	for k := range byTile {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})

	for n, k := range keys {
		tile := &Tile{Key: k, Categories: make(map[string][]json.RawMessage)}
		for _, cf := range byTile[k] {
			lines, err := readLines(cf.path)
			if err != nil {
				return n, err
			}
			tile.Categories[cf.category] = append(tile.Categories[cf.category], lines...)
		}
		if err := fn(tile); err != nil {
			return n, err
		}
	}
	return len(keys), nil
}

// readLines returns the non-empty lines of a channel file as raw JSON values.
func readLines(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer f.Close()

	var out []json.RawMessage
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("%s: invalid fragment line %d bytes", filepath.Base(path), len(line))
		}
		out = append(out, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return out, nil
}
