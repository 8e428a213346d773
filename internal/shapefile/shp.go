package shapefile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
)

// Main file layout constants.
//
// Reference: ESRI Shapefile Technical Description, "Organization of the Main File".
const (
	fileCode         = 9994
	mainHeaderSize   = 100
	recordHeaderSize = 8

	// Offsets within polyline/polygon record content.
	polyNumPartsOffset  = 36
	polyNumPointsOffset = 40
	polyPartsOffset     = 44

	pointContentSize = 20
)

// Header is the decoded 100-byte main file header.
type Header struct {
	FileCode   int32
	FileLength int32 // in 16-bit words, big-endian in the file
	Version    int32
	ShapeType  ShapeType
	Bound      orb.Bound
}

// Reader decodes geometry records from a .shp stream.
//
// Records are produced lazily by Next. Null records and unsupported shape types
// are skipped but still consume a record index, so Shape.Index always matches
// the record's position in the file and therefore its attribute record.
//
// A record whose header announces more content than remains ends the stream:
// Next returns io.EOF and Truncated reports the condition.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer

	header Header

	// index of the next record
	index int

	truncated *ErrTruncatedRecord
	content   bytes.Buffer
}

// Open opens a .shp file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shape file: %w", err)
	}

	r, err := NewReader(f)
	if err != nil {
		f.Close()
		var mh *ErrMalformedHeader
		if errors.As(err, &mh) {
			mh.Path = path
		}
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads and validates the main file header from r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	buf := make([]byte, mainHeaderSize)
	if n, err := io.ReadFull(br, buf); err != nil {
		return nil, &ErrMalformedHeader{Reason: fmt.Sprintf("header is %d bytes, want %d", n, mainHeaderSize)}
	}

	h := Header{
		FileCode:   int32(binary.BigEndian.Uint32(buf[0:4])),
		FileLength: int32(binary.BigEndian.Uint32(buf[24:28])),
		Version:    int32(binary.LittleEndian.Uint32(buf[28:32])),
		ShapeType:  ShapeType(int32(binary.LittleEndian.Uint32(buf[32:36]))),
		Bound: orb.Bound{
			Min: orb.Point{readFloat64(buf, 36), readFloat64(buf, 44)},
			Max: orb.Point{readFloat64(buf, 52), readFloat64(buf, 60)},
		},
	}
	if h.FileCode != fileCode {
		return nil, &ErrMalformedHeader{Reason: fmt.Sprintf("file code %d, want %d", h.FileCode, fileCode)}
	}

	return &Reader{r: br, header: h}, nil
}

// Header returns the decoded main file header.
func (r *Reader) Header() Header {
	return r.header
}

// Count returns the number of records read so far, including skipped ones.
func (r *Reader) Count() int {
	return r.index
}

// Truncated returns a non-nil *ErrTruncatedRecord if the stream ended on a short record.
func (r *Reader) Truncated() error {
	if r.truncated == nil {
		return nil
	}
	return r.truncated
}

// Close releases the underlying file, if the reader owns one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Next returns the next supported shape, or io.EOF at end of stream.
func (r *Reader) Next() (*Shape, error) {
	for {
		if r.truncated != nil {
			return nil, io.EOF
		}

		var rh [recordHeaderSize]byte
		n, err := io.ReadFull(r.r, rh[:])
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			r.truncated = &ErrTruncatedRecord{Record: r.index, Want: recordHeaderSize, Got: n}
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("record %d header: %w", r.index, err)
		}

		number := int32(binary.BigEndian.Uint32(rh[0:4]))
		words := int32(binary.BigEndian.Uint32(rh[4:8]))
		if words < 0 {
			r.truncated = &ErrTruncatedRecord{Record: r.index, Want: int(words) * 2, Got: 0}
			return nil, io.EOF
		}
		want := int64(words) * 2

		// CopyN grows the buffer only as bytes arrive, so a corrupt length
		// cannot force a huge allocation up front.
		r.content.Reset()
		got, err := io.CopyN(&r.content, r.r, want)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("record %d content: %w", r.index, err)
		}
		if got < want {
			r.truncated = &ErrTruncatedRecord{Record: r.index, Want: int(want), Got: int(got)}
			return nil, io.EOF
		}

		index := r.index
		r.index++

		shape := decodeShape(r.content.Bytes())
		if shape == nil {
			continue
		}
		shape.Index = index
		shape.Number = number
		return shape, nil
	}
}

// decodeShape decodes record content. It returns nil for null, unsupported,
// malformed or fully degenerate shapes.
func decodeShape(b []byte) *Shape {
	if len(b) < 4 {
		return nil
	}

	st := ShapeType(int32(binary.LittleEndian.Uint32(b[0:4])))
	kind := kindOf(st)

	switch kind {
	case KindPoint:
		if len(b) < pointContentSize {
			return nil
		}
		return &Shape{
			Type:  st,
			Kind:  kind,
			Point: orb.Point{readFloat64(b, 4), readFloat64(b, 12)},
		}

	case KindPolyLine, KindPolygon:
		parts := decodeParts(b, minPartPoints(kind))
		if len(parts) == 0 {
			return nil
		}
		return &Shape{Type: st, Kind: kind, Parts: parts}
	}

	return nil
}

// decodeParts slices the flat point array of a polyline or polygon record at its
// part start indices. Z and M arrays following the XY points are ignored.
func decodeParts(b []byte, minPoints int) [][]orb.Point {
	if len(b) < polyPartsOffset {
		return nil
	}

	numParts := int(int32(binary.LittleEndian.Uint32(b[polyNumPartsOffset:])))
	numPoints := int(int32(binary.LittleEndian.Uint32(b[polyNumPointsOffset:])))
	if numParts <= 0 || numPoints <= 0 {
		return nil
	}

	pointsOffset := polyPartsOffset + 4*numParts
	if pointsOffset < polyPartsOffset || len(b) < pointsOffset+16*numPoints {
		return nil
	}

	starts := make([]int, numParts+1)
	for i := 0; i < numParts; i++ {
		starts[i] = int(int32(binary.LittleEndian.Uint32(b[polyPartsOffset+4*i:])))
	}
	starts[numParts] = numPoints

	parts := make([][]orb.Point, 0, numParts)
	for i := 0; i < numParts; i++ {
		start, end := starts[i], starts[i+1]
		if start < 0 || end > numPoints || start >= end {
			continue
		}
		if end-start < minPoints {
			continue
		}

		part := make([]orb.Point, end-start)
		for j := range part {
			off := pointsOffset + 16*(start+j)
			part[j] = orb.Point{readFloat64(b, off), readFloat64(b, off+8)}
		}
		parts = append(parts, part)
	}
	return parts
}

func readFloat64(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
}
