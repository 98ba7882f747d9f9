package rangestream

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrMalformedRange means the Range header couldn't be parsed. Callers
	// should ignore the header and serve the full content.
	ErrMalformedRange = errors.New("rangestream: malformed range header")

	// ErrUnsatisfiable means the requested range starts at or past the end
	// of the content. Callers should answer with 416.
	ErrUnsatisfiable = errors.New("rangestream: range not satisfiable")
)

// ByteRange is a resolved byte window over content of a known size.
type ByteRange struct {
	Start  int64
	Length int64
}

// ParseRange resolves a Range header of the form "bytes=start-end" or
// "bytes=start-" against content of the given size. Multi-range requests are
// treated as malformed; the download path serves a single window.
func ParseRange(header string, size int64) (ByteRange, error) {
	const prefix = "bytes="

	if !strings.HasPrefix(header, prefix) {
		return ByteRange{}, ErrMalformedRange
	}

	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return ByteRange{}, ErrMalformedRange
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found || startStr == "" {
		return ByteRange{}, ErrMalformedRange
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, ErrMalformedRange
	}

	if start >= size {
		return ByteRange{}, ErrUnsatisfiable
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return ByteRange{}, ErrMalformedRange
		}

		if end > size-1 {
			end = size - 1
		}
	}

	return ByteRange{Start: start, Length: end - start + 1}, nil
}
