package capture

import (
	"errors"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

// Filter selects records. Zero fields match everything.
type Filter struct {
	Universe uint16
	Port     int
}

func (f Filter) matches(r Record) bool {
	if f.Port != 0 && r.Port != f.Port {
		return false
	}
	if f.Universe != 0 {
		p, err := sacn.Parse(r.Data)
		if err != nil || p.Kind != sacn.KindData || p.Universe != f.Universe {
			return false
		}
	}
	return true
}

// Reader streams records from a capture.
type Reader struct {
	c      io.Closer
	dec    *cbor.Decoder
	filter Filter
}

// Open reads the capture file at path.
func Open(path string, f Filter) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{c: file, dec: NewDecoder(file), filter: f}, nil
}

func NewReader(r io.Reader, f Filter) *Reader {
	return &Reader{dec: NewDecoder(r), filter: f}
}

// Next returns the next matching record, or io.EOF.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		if r.filter.matches(rec) {
			return rec, nil
		}
	}
}

// All drains the reader.
func (r *Reader) All() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func (r *Reader) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
