package shapefile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DBF layout constants.
//
// Reference: dBASE III file structure; the shapefile attribute table uses it unchanged.
const (
	dbfHeaderSize     = 32
	dbfDescriptorSize = 32
	dbfTerminator     = 0x0D
	dbfDeleted        = '*'
)

// Field describes one column of the attribute table.
type Field struct {
	Name     string
	Type     byte // C, N, F, L, D, ...
	Length   int
	Decimals int
}

// Numeric reports whether values of the field are stored as decimal text.
func (f Field) Numeric() bool {
	return f.Type == 'N' || f.Type == 'F'
}

// Record is one live attribute record.
type Record struct {
	// Index is the zero-based position of the record in the file, counting
	// deleted records.
	Index int

	Values map[string]string
}

// String returns the trimmed text value of a field, or "" if the field is absent.
func (r *Record) String(name string) string {
	if r == nil {
		return ""
	}
	return r.Values[name]
}

// Float parses a field as a decimal number. The second return value is false
// when the field is absent, empty or not a number.
func (r *Record) Float(name string) (float64, bool) {
	s := r.String(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AttributeReader decodes records from a .dbf stream.
//
// The record count in the header is advisory; records are read until the stream ends.
// Deleted records are skipped, and Record.Index keeps counting through them.
type AttributeReader struct {
	r      *bufio.Reader
	closer io.Closer
	text   *TextDecoder

	NumRecords   int // as announced in the header
	HeaderLength int
	RecordLength int
	Fields       []Field

	index   int
	deleted int
	buf     []byte
}

// OpenAttributes opens a .dbf file for reading. Character fields are decoded with text;
// a nil decoder means UTF-8.
func OpenAttributes(path string, text *TextDecoder) (*AttributeReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open attribute file: %w", err)
	}

	r, err := NewAttributeReader(f, text)
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

// NewAttributeReader reads the table header and field descriptors from r.
func NewAttributeReader(r io.Reader, text *TextDecoder) (*AttributeReader, error) {
	br := bufio.NewReader(r)

	hdr := make([]byte, dbfHeaderSize)
	if n, err := io.ReadFull(br, hdr); err != nil {
		return nil, &ErrMalformedHeader{Reason: fmt.Sprintf("header is %d bytes, want %d", n, dbfHeaderSize)}
	}

	a := &AttributeReader{
		r:            br,
		text:         text,
		NumRecords:   int(binary.LittleEndian.Uint32(hdr[4:8])),
		HeaderLength: int(binary.LittleEndian.Uint16(hdr[8:10])),
		RecordLength: int(binary.LittleEndian.Uint16(hdr[10:12])),
	}
	if a.RecordLength < 1 {
		return nil, &ErrMalformedHeader{Reason: "record length is zero"}
	}

	consumed := dbfHeaderSize
	desc := make([]byte, dbfDescriptorSize)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, &ErrMalformedHeader{Reason: "unexpected end of field descriptors"}
		}
		consumed++
		if b == dbfTerminator {
			break
		}

		desc[0] = b
		if _, err := io.ReadFull(br, desc[1:]); err != nil {
			return nil, &ErrMalformedHeader{Reason: "unexpected end of field descriptors"}
		}
		consumed += dbfDescriptorSize - 1

		name := desc[:11]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		a.Fields = append(a.Fields, Field{
			Name:     strings.TrimSpace(string(name)),
			Type:     desc[11],
			Length:   int(desc[16]),
			Decimals: int(desc[17]),
		})
	}

	if a.HeaderLength < consumed {
		return nil, &ErrMalformedHeader{
			Reason: fmt.Sprintf("header length %d shorter than field descriptors (%d bytes)", a.HeaderLength, consumed),
		}
	}

	width := 1
	for _, f := range a.Fields {
		width += f.Length
	}
	if width > a.RecordLength {
		return nil, &ErrMalformedHeader{
			Reason: fmt.Sprintf("fields span %d bytes, record length is %d", width, a.RecordLength),
		}
	}

	// Some writers pad the header past the terminator.
	if pad := a.HeaderLength - consumed; pad > 0 {
		if _, err := br.Discard(pad); err != nil {
			return nil, &ErrMalformedHeader{Reason: "unexpected end of header padding"}
		}
	}

	a.buf = make([]byte, a.RecordLength)
	return a, nil
}

// Count returns the number of records read so far, including deleted ones.
func (a *AttributeReader) Count() int {
	return a.index
}

// Deleted returns the number of deleted records skipped so far.
func (a *AttributeReader) Deleted() int {
	return a.deleted
}

// Close releases the underlying file, if the reader owns one.
func (a *AttributeReader) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// Next returns the next live record, or io.EOF when the stream is exhausted.
// A short trailing record (including the 0x1A end-of-file marker) ends the stream.
func (a *AttributeReader) Next() (*Record, error) {
	for {
		_, err := io.ReadFull(a.r, a.buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("attribute record %d: %w", a.index, err)
		}

		index := a.index
		a.index++

		if a.buf[0] == dbfDeleted {
			a.deleted++
			continue
		}

		rec := &Record{Index: index, Values: make(map[string]string, len(a.Fields))}
		off := 1
		for _, f := range a.Fields {
			raw := a.buf[off : off+f.Length]
			off += f.Length
			rec.Values[f.Name] = a.decodeValue(f, raw)
		}
		return rec, nil
	}
}

func (a *AttributeReader) decodeValue(f Field, raw []byte) string {
	if f.Numeric() {
		return strings.TrimSpace(asciiOnly(raw))
	}
	return strings.Trim(a.text.Decode(raw), " \t\r\n\x00")
}

// asciiOnly drops non-ASCII bytes from numeric field text.
func asciiOnly(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c < 0x80 && c != 0 {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
