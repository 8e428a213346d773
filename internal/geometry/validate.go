package geometry

import (
	"fmt"
	"math"
)

// ErrInvalidCoordinate reports a geographic coordinate outside valid bounds.
type ErrInvalidCoordinate struct {
	Lat float64
	Lon float64
}

func (e *ErrInvalidCoordinate) Error() string {
	return fmt.Sprintf("invalid coordinate: lat=%f, lon=%f", e.Lat, e.Lon)
}

// ValidateCoordinate checks that lat is within [-90, 90] and lon within [-180, 180].
func ValidateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90.0 || lat > 90.0 {
		return &ErrInvalidCoordinate{Lat: lat, Lon: lon}
	}
	if math.IsNaN(lon) || lon < -180.0 || lon > 180.0 {
		return &ErrInvalidCoordinate{Lat: lat, Lon: lon}
	}
	return nil
}
