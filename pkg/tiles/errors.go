package tiles

import "github.com/beetlebugorg/shptiles/internal/shapefile"

// Recoverable input conditions reported in CategoryResult.Err. Match them with
// errors.As.
type (
	// ErrMalformedHeader means a .shp or .dbf header is structurally invalid;
	// the category was skipped.
	ErrMalformedHeader = shapefile.ErrMalformedHeader

	// ErrTruncatedRecord means the geometry file ended inside a record; the
	// records before it were converted.
	ErrTruncatedRecord = shapefile.ErrTruncatedRecord

	// ErrAlignmentLost means the geometry and attribute files stopped pairing
	// up; the category ended at that record.
	ErrAlignmentLost = shapefile.ErrAlignmentLost
)
