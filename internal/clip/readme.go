package clip

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shptiles/internal/geometry"
)

// scriptURLMarker precedes the extraction URL in an extract descriptor.
const scriptURLMarker = "Script URL:"

// ErrNoPolygon is returned when a descriptor carries no usable clip polygon.
var ErrNoPolygon = errors.New("descriptor has no clip polygon")

// LoadReadme reads the clip polygon from the descriptor file at path.
func LoadReadme(path string) ([]orb.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clip descriptor: %w", err)
	}
	defer f.Close()

	ring, err := ParseReadme(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ring, nil
}

// ParseReadme extracts the clip polygon from a free-text extract descriptor.
//
// The first line containing "Script URL:" is expected to carry a URL whose
// coords query parameter lists "lon,lat" pairs separated by "|". Malformed
// pairs are skipped. The result is in absolute mercator metres with any
// closing duplicate removed.
func ParseReadme(r io.Reader) ([]orb.Point, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for sc.Scan() {
		line := sc.Text()
		_, after, ok := strings.Cut(line, scriptURLMarker)
		if !ok {
			continue
		}
		return parseScriptURL(strings.TrimSpace(after))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read clip descriptor: %w", err)
	}
	return nil, ErrNoPolygon
}

func parseScriptURL(raw string) ([]orb.Point, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse script URL: %w", err)
	}
	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("parse script URL query: %w", err)
	}

	coords := query.Get("coords")
	if coords == "" {
		return nil, ErrNoPolygon
	}
	// some descriptors double-encode the parameter
	if unquoted, err := url.QueryUnescape(coords); err == nil {
		coords = unquoted
	}

	var ring []orb.Point
	for _, pair := range strings.Split(coords, "|") {
		lonText, latText, ok := strings.Cut(pair, ",")
		if !ok || strings.Contains(latText, ",") {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonText), 64)
		if err != nil {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latText), 64)
		if err != nil {
			continue
		}
		ring = append(ring, geometry.Mercator(orb.Point{lon, lat}))
	}

	ring = geometry.Open(ring)
	if len(ring) < 3 {
		return nil, ErrNoPolygon
	}
	return ring, nil
}
