package capture

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Writer appends records to a capture stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	c      io.Closer
	enc    *cbor.Encoder
	closed bool
	n      int
}

// Create opens path for appending, creating it with mode 0644.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Writer{c: f, enc: NewEncoder(f)}, nil
}

// NewWriter writes to w. Close does not close w.
func NewWriter(w io.Writer) *Writer { return &Writer{enc: NewEncoder(w)} }

// Write appends one record. Writes after Close are dropped.
func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.enc.Encode(r); err != nil {
		return err
	}
	w.n++
	return nil
}

// Count is the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.c != nil {
		return w.c.Close()
	}
	return nil
}
