package classify

import (
	"strconv"
	"strings"
)

// Defaults for values missing from the tables.
const (
	DefaultBuildingHeight = 12.0
	DefaultRoadWidth      = 6.0
	DefaultWaterwayWidth  = 3.0
	DefaultWaterwayKind   = "stream"
	RailwayWidth          = 4.0

	// MetersPerLevel converts a building level count to a height.
	MetersPerLevel = 3.0
)

// Attributes is the read side of an attribute record.
type Attributes interface {
	String(name string) string
}

// Attribute field names. DBF limits names to 10 characters, so OSM's
// building:levels usually arrives truncated as building_l.
var (
	heightFields = []string{"height"}
	levelFields  = []string{"building:levels", "building_l", "levels"}
)

// AreaClass is the output category of a natural/landuse polygon.
type AreaClass int

const (
	AreaNone AreaClass = iota
	AreaWater
	AreaLandcover
)

func (c AreaClass) String() string {
	switch c {
	case AreaWater:
		return "water"
	case AreaLandcover:
		return "landcover"
	default:
		return "none"
	}
}

// Area is the classification of a natural/landuse polygon.
type Area struct {
	Class AreaClass
	Kind  string // landcover kind (forest, grass); empty for water
}

// BuildingHeightDefault returns the table height for a building type, or
// DefaultBuildingHeight when the type is unknown.
func BuildingHeightDefault(buildingType string) float64 {
	if h, ok := number(tableBuildingHeight, buildingType); ok {
		return h
	}
	return DefaultBuildingHeight
}

// BuildingHeight resolves a building's height in metres from, in order: an
// explicit height attribute ("12.5", "12.5m", "12.5 m"), a level count times
// MetersPerLevel, and the type table.
func BuildingHeight(attrs Attributes) float64 {
	for _, f := range heightFields {
		if h, ok := ParseHeight(attrs.String(f)); ok {
			return h
		}
	}
	for _, f := range levelFields {
		if n, ok := parsePositive(attrs.String(f)); ok {
			return n * MetersPerLevel
		}
	}
	return BuildingHeightDefault(attrs.String("type"))
}

// ParseHeight parses a height value with an optional trailing metre unit.
// Only positive values are accepted.
func ParseHeight(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSpace(strings.TrimSuffix(s, "m"))
	return parsePositive(s)
}

func parsePositive(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// RoadWidth returns the default width of a road type, or DefaultRoadWidth.
func RoadWidth(roadType string) float64 {
	if w, ok := number(tableRoadWidth, roadType); ok {
		return w
	}
	return DefaultRoadWidth
}

// ClassifyArea classifies a natural/landuse polygon type. ok is false for
// types that produce no output.
func ClassifyArea(polyType string) (Area, bool) {
	kind, ok := label(tableAreaClass, polyType)
	if !ok {
		return Area{}, false
	}
	if kind == "water" {
		return Area{Class: AreaWater}, true
	}
	return Area{Class: AreaLandcover, Kind: kind}, true
}

// LandcoverDensity returns the vegetation density per km² for a landcover kind.
// Kinds other than forest use the grass density.
func LandcoverDensity(kind string) float64 {
	if d, ok := number(tableLandcoverDensity, kind); ok {
		return d
	}
	d, _ := number(tableLandcoverDensity, "grass")
	return d
}

// Waterway returns the kind and width of a linear waterway. The kind is the
// lower-cased type (DefaultWaterwayKind when empty); the width is the width
// attribute when it is positive, else the kind's table width.
func Waterway(attrs Attributes) (kind string, width float64) {
	kind = normalize(attrs.String("type"))
	if kind == "" {
		kind = DefaultWaterwayKind
	}
	if w, ok := parsePositive(attrs.String("width")); ok {
		return kind, w
	}
	if w, ok := number(tableWaterwayWidth, kind); ok {
		return kind, w
	}
	return kind, DefaultWaterwayWidth
}

// IsRailway reports whether a railway record is a named surface track.
// Unnamed tracks are yard sidings and service spurs.
func IsRailway(attrs Attributes) bool {
	return normalize(attrs.String("type")) == "rail" && strings.TrimSpace(attrs.String("name")) != ""
}

// POIType returns the lower-cased point-of-interest type and whether it is exported.
func POIType(t string) (string, bool) {
	t = normalize(t)
	_, ok := label(tablePOIType, t)
	return t, ok
}

// PlaceType returns the lower-cased place type and whether it is exported.
func PlaceType(t string) (string, bool) {
	t = normalize(t)
	_, ok := label(tablePlaceType, t)
	return t, ok
}
