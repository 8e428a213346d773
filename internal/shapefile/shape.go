package shapefile

import (
	"github.com/paulmach/orb"
)

// ShapeType is the shape type code stored in the main file header and at the
// start of every record's content.
//
// Reference: ESRI Shapefile Technical Description (July 1998), Table 1.
type ShapeType int32

const (
	ShapeNull       ShapeType = 0
	ShapePoint      ShapeType = 1
	ShapePolyLine   ShapeType = 3
	ShapePolygon    ShapeType = 5
	ShapeMultiPoint ShapeType = 8
	ShapePointZ     ShapeType = 11
	ShapePolyLineZ  ShapeType = 13
	ShapePolygonZ   ShapeType = 15
	ShapePointM     ShapeType = 21
	ShapePolyLineM  ShapeType = 23
	ShapePolygonM   ShapeType = 25
)

// String returns the ESRI name of the shape type.
func (t ShapeType) String() string {
	switch t {
	case ShapeNull:
		return "Null"
	case ShapePoint:
		return "Point"
	case ShapePolyLine:
		return "PolyLine"
	case ShapePolygon:
		return "Polygon"
	case ShapeMultiPoint:
		return "MultiPoint"
	case ShapePointZ:
		return "PointZ"
	case ShapePolyLineZ:
		return "PolyLineZ"
	case ShapePolygonZ:
		return "PolygonZ"
	case ShapePointM:
		return "PointM"
	case ShapePolyLineM:
		return "PolyLineM"
	case ShapePolygonM:
		return "PolygonM"
	default:
		return "Unknown"
	}
}

// Kind is the closed set of geometry kinds the reader produces.
// Z and M variants collapse onto their 2-D kind; their trailing arrays are never interpreted.
type Kind int

const (
	KindUnknown Kind = iota
	KindPoint
	KindPolyLine
	KindPolygon
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "Point"
	case KindPolyLine:
		return "PolyLine"
	case KindPolygon:
		return "Polygon"
	default:
		return "Unknown"
	}
}

// kindOf maps a shape type code to its kind. MultiPoint and unknown codes map to KindUnknown.
func kindOf(t ShapeType) Kind {
	switch t {
	case ShapePoint, ShapePointZ, ShapePointM:
		return KindPoint
	case ShapePolyLine, ShapePolyLineZ, ShapePolyLineM:
		return KindPolyLine
	case ShapePolygon, ShapePolygonZ, ShapePolygonM:
		return KindPolygon
	default:
		return KindUnknown
	}
}

// Shape is one decoded geometry record.
//
// Coordinates are geographic (x = longitude, y = latitude) exactly as stored.
// Polyline parts hold at least 2 points and polygon parts at least 3; shorter
// parts are dropped while decoding.
type Shape struct {
	// Index is the zero-based position of the record in the file, counting
	// records that were skipped (null or unsupported shape types).
	Index int

	// Number is the record number from the record header (1-based in conforming files).
	Number int32

	Type ShapeType
	Kind Kind

	// Point is set for KindPoint.
	Point orb.Point

	// Parts is set for KindPolyLine and KindPolygon.
	Parts [][]orb.Point
}

// minPartPoints returns the minimum number of points a part of the given kind must hold.
func minPartPoints(k Kind) int {
	if k == KindPolygon {
		return 3
	}
	return 2
}
