// Package ranges turns the byte ranges an upload session still expects into
// an ordered list of bounded slices.
package ranges

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedRange is matched by every MalformedRangeError.
var ErrMalformedRange = errors.New("malformed range")

// MalformedRangeError is returned when the service sends a range specifier
// that can't be resolved against the content length.
type MalformedRangeError struct {
	Spec   string
	Reason string
}

func (e *MalformedRangeError) Error() string {
	return fmt.Sprintf("malformed range %q: %s", e.Spec, e.Reason)
}

// Unwrap ...
func (e *MalformedRangeError) Unwrap() error {
	return ErrMalformedRange
}

// Range is a window of bytes, both ends inclusive.
type Range struct {
	Begin int64
	End   int64
}

// Length ...
func (r Range) Length() int64 {
	return r.End - r.Begin + 1
}

// Set is the ordered list of windows the service has not acknowledged yet.
type Set []Range

// Remaining returns the number of bytes still expected by the service.
func (s Set) Remaining() int64 {
	var n int64
	for _, r := range s {
		n += r.Length()
	}
	return n
}

// Slice describes one bounded transfer: the inclusive byte window and the
// total length of the content it belongs to.
type Slice struct {
	Begin int64
	End   int64
	Total int64
}

// Length ...
func (s Slice) Length() int64 {
	return s.End - s.Begin + 1
}

// ContentRange renders the slice as a Content-Range header value.
func (s Slice) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", s.Begin, s.End, s.Total)
}

// Parse resolves specifiers of the form "<begin>-<end>" and "<begin>-"
// against the total content length. An open ended specifier ends at total-1.
func Parse(specs []string, total int64) (Set, error) {
	set := make(Set, 0, len(specs))
	for _, spec := range specs {
		r, err := parseOne(spec, total)
		if err != nil {
			return nil, err
		}
		set = append(set, r)
	}
	return set, nil
}

func parseOne(spec string, total int64) (Range, error) {
	tokens := strings.Split(strings.TrimSpace(spec), "-")
	if len(tokens) > 2 {
		return Range{}, &MalformedRangeError{Spec: spec, Reason: "too many separators"}
	}

	begin, err := parseOffset(tokens[0])
	if err != nil {
		return Range{}, &MalformedRangeError{Spec: spec, Reason: err.Error()}
	}

	end := total - 1
	if len(tokens) == 2 && tokens[1] != "" {
		end, err = parseOffset(tokens[1])
		if err != nil {
			return Range{}, &MalformedRangeError{Spec: spec, Reason: err.Error()}
		}
	}

	if begin > end {
		return Range{}, &MalformedRangeError{Spec: spec, Reason: fmt.Sprintf("begin %d is after end %d", begin, end)}
	}

	return Range{Begin: begin, End: end}, nil
}

func parseOffset(token string) (int64, error) {
	v, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q", token)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative offset %d", v)
	}
	return v, nil
}

// Plan walks every window in order and cuts it into slices of at most
// maxSliceSize bytes. Only the last slice of a window can be shorter.
func Plan(set Set, maxSliceSize, total int64) []Slice {
	if maxSliceSize <= 0 {
		return nil
	}

	var slices []Slice
	for _, r := range set {
		for begin := r.Begin; begin <= r.End; {
			size := r.End - begin + 1
			if size > maxSliceSize {
				size = maxSliceSize
			}
			slices = append(slices, Slice{Begin: begin, End: begin + size - 1, Total: total})
			begin += size
		}
	}
	return slices
}
