package shapefile

import (
	"fmt"
)

// ErrMalformedHeader indicates a file whose fixed header is structurally invalid.
// The file pair cannot be decoded; callers skip the category and continue.
type ErrMalformedHeader struct {
	Path   string
	Reason string
}

func (e *ErrMalformedHeader) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("malformed header in %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("malformed header: %s", e.Reason)
}

// ErrTruncatedRecord indicates a record that announces more bytes than remain.
// It is reported after the fact through Reader.Truncated; the stream itself ends cleanly.
type ErrTruncatedRecord struct {
	Record int // zero-based position of the record in the file
	Want   int // bytes announced
	Got    int // bytes available
}

func (e *ErrTruncatedRecord) Error() string {
	return fmt.Sprintf("record %d truncated: want %d bytes, got %d", e.Record, e.Want, e.Got)
}

// ErrAlignmentLost indicates the geometry and attribute streams of a file pair
// no longer describe the same records.
type ErrAlignmentLost struct {
	GeometryIndex  int
	AttributeIndex int
	Reason         string
}

func (e *ErrAlignmentLost) Error() string {
	return fmt.Sprintf("alignment lost at geometry %d / attribute %d: %s",
		e.GeometryIndex, e.AttributeIndex, e.Reason)
}
