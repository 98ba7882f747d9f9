package rangestream

import (
	"errors"
	"io"
)

// ErrNotSupported is returned for operations a range-bounded reader refuses
// to perform. The reader is a forward-only window over its source; callers
// that need random access must position the source before wrapping it.
var ErrNotSupported = errors.New("rangestream: operation not supported")

// Reader exposes at most length bytes of the underlying source, counted from
// the source's current position. Reads past the window report io.EOF even if
// the source has more data. Closing the Reader closes the source exactly
// once.
type Reader struct {
	src       io.ReadCloser
	remaining int64
	closed    bool
}

// New wraps src in a Reader that will yield at most length bytes.
func New(src io.ReadCloser, length int64) *Reader {
	if length < 0 {
		length = 0
	}

	return &Reader{src: src, remaining: length}
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}

	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}

	n, err := r.src.Read(p)
	r.remaining -= int64(n)

	if err == nil && r.remaining == 0 {
		// The window is exhausted. Don't touch the source again.
		return n, io.EOF
	}

	return n, err
}

// Seek always fails. The window is fixed when the Reader is created.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrNotSupported
}

// Write always fails. The Reader is read-only.
func (r *Reader) Write(p []byte) (int, error) {
	return 0, ErrNotSupported
}

func (r *Reader) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true
	return r.src.Close()
}
