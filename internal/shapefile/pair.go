package shapefile

import (
	"io"
)

// Pairer matches geometry records to attribute records by absolute record index.
//
// The .shp file has no deletion marker while the .dbf file does, so pairing by
// enumeration order would shift every record after the first deletion. Pairing
// by index instead drops the geometry whose attribute record was deleted and
// keeps the rest aligned. When one stream ends while the other still holds
// records that should have a partner, Next returns *ErrAlignmentLost.
type Pairer struct {
	shapes *Reader
	attrs  *AttributeReader

	pending   *Record
	attrsDone bool

	skipped int
	err     error
}

// NewPairer returns a Pairer reading from shapes and attrs.
// The caller keeps ownership of both readers.
func NewPairer(shapes *Reader, attrs *AttributeReader) *Pairer {
	return &Pairer{shapes: shapes, attrs: attrs}
}

// Skipped returns the number of geometries dropped because their attribute record was deleted.
func (p *Pairer) Skipped() int {
	return p.skipped
}

// Next returns the next shape and its attributes, or io.EOF when the geometry
// stream ends. Once an error other than io.EOF is returned, every later call
// returns it again.
func (p *Pairer) Next() (*Shape, *Record, error) {
	if p.err != nil {
		return nil, nil, p.err
	}

	for {
		shape, err := p.shapes.Next()
		if err == io.EOF {
			p.err = p.checkTrailing()
			if p.err == nil {
				p.err = io.EOF
			}
			return nil, nil, p.err
		}
		if err != nil {
			p.err = err
			return nil, nil, err
		}

		rec, err := p.attributeFor(shape.Index)
		if err != nil {
			p.err = err
			return nil, nil, err
		}
		if rec == nil {
			p.skipped++
			continue
		}
		return shape, rec, nil
	}
}

// attributeFor advances the attribute stream to index. It returns nil, nil if the
// record at index was deleted.
func (p *Pairer) attributeFor(index int) (*Record, error) {
	for {
		rec, err := p.peek()
		if err != nil {
			return nil, err
		}

		if rec == nil {
			if index < p.attrs.Count() {
				return nil, nil
			}
			return nil, &ErrAlignmentLost{
				GeometryIndex:  index,
				AttributeIndex: p.attrs.Count(),
				Reason:         "attribute stream ended before geometry stream",
			}
		}

		switch {
		case rec.Index < index:
			// attributes of skipped null shapes
			p.pending = nil
		case rec.Index > index:
			return nil, nil
		default:
			p.pending = nil
			return rec, nil
		}
	}
}

// checkTrailing reports attribute records left over once the geometry stream has ended.
// A truncated geometry stream is expected to leave attributes behind.
func (p *Pairer) checkTrailing() error {
	if p.shapes.Truncated() != nil {
		return nil
	}

	for {
		rec, err := p.peek()
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		if rec.Index >= p.shapes.Count() {
			return &ErrAlignmentLost{
				GeometryIndex:  p.shapes.Count(),
				AttributeIndex: rec.Index,
				Reason:         "attribute records remain after geometry stream ended",
			}
		}
		p.pending = nil
	}
}

func (p *Pairer) peek() (*Record, error) {
	if p.pending != nil || p.attrsDone {
		return p.pending, nil
	}

	rec, err := p.attrs.Next()
	if err == io.EOF {
		p.attrsDone = true
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.pending = rec
	return rec, nil
}
