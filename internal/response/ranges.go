package response

import (
	"strconv"
	"strings"
)

// byteRange is an inclusive range of offsets into a body
type byteRange struct {
	start, end int64
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

// parseRange parses a Range header value against a body of the given size.
// Only a single "bytes=" range is honored; anything else, including
// multiple ranges and unsatisfiable ones, reports false so the caller
// serves the whole body.
func parseRange(header string, size int64) (byteRange, bool) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || size == 0 || strings.Contains(spec, ",") {
		return byteRange{}, false
	}

	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return byteRange{}, false
	}
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)

	// Suffix range: the final N bytes
	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, false
		}
		if n > size {
			n = size
		}
		return byteRange{start: size - n, end: size - 1}, true
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 || start >= size {
		return byteRange{}, false
	}

	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return byteRange{}, false
		}
		if end > size-1 {
			end = size - 1
		}
	}

	return byteRange{start: start, end: end}, true
}
