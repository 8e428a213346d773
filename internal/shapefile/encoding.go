package shapefile

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// TextDecoder converts raw DBF character field bytes to a UTF-8 string.
// Bytes that are not valid in the source encoding become U+FFFD; decoding never fails.
type TextDecoder struct {
	name string
	enc  encoding.Encoding // nil for UTF-8
}

// NewTextDecoder returns a decoder for the named character encoding, using the
// WHATWG encoding labels (utf-8, shift_jis, windows-1252, gbk, ...).
// An empty name selects UTF-8.
func NewTextDecoder(name string) (*TextDecoder, error) {
	if name == "" {
		name = "utf-8"
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown text encoding %q: %w", name, err)
	}

	canonical, err := htmlindex.Name(enc)
	if err != nil {
		return nil, fmt.Errorf("unknown text encoding %q: %w", name, err)
	}
	if canonical == "utf-8" {
		return &TextDecoder{name: canonical}, nil
	}
	return &TextDecoder{name: canonical, enc: enc}, nil
}

// Name returns the canonical encoding name.
func (d *TextDecoder) Name() string {
	return d.name
}

// Decode converts b to UTF-8.
func (d *TextDecoder) Decode(b []byte) string {
	if d == nil || d.enc == nil {
		if utf8.Valid(b) {
			return string(b)
		}
		return strings.ToValidUTF8(string(b), "�")
	}

	out, err := d.enc.NewDecoder().Bytes(b)
	if err != nil {
		// x/text decoders substitute U+FFFD for invalid input and only fail
		// on transformer errors; fall back to the replacement form of the raw bytes.
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}
