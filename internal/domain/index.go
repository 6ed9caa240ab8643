package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ToEOF marks a ByteRange that runs through the end of the object.
const ToEOF int64 = -1

// IndexEntry is one record line of a GRIB2 .idx inventory.
type IndexEntry struct {
	Line       int // 1-based position among non-blank lines
	Offset     int64
	Descriptor string // the full line text

	offsetErr string
}

// ByteRange is an inclusive span of a source object. End is ToEOF for the
// last record of an index.
type ByteRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Length returns the number of bytes in the range, or -1 when it runs to EOF.
func (r ByteRange) Length() int64 {
	if r.End == ToEOF {
		return -1
	}
	return r.End - r.Start + 1
}

// String formats the range as an HTTP Range header value.
func (r ByteRange) String() string {
	if r.End == ToEOF {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// ParseIndex splits index text into entries. Blank lines (including the
// trailing newline) are dropped. Lines whose offset field is missing or not an
// integer are kept so they can still be matched; the problem surfaces only if
// the offset is needed.
func ParseIndex(text string) []IndexEntry {
	raw := strings.Split(text, "\n")
	entries := make([]IndexEntry, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		e := IndexEntry{Line: len(entries) + 1, Descriptor: line}
		fields := strings.Split(line, ":")
		switch {
		case len(fields) < 2:
			e.offsetErr = "missing offset field"
		default:
			off, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
			if err != nil || off < 0 {
				e.offsetErr = "offset is not a non-negative integer"
			} else {
				e.Offset = off
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// LocateVariable finds the single entry whose descriptor contains selector and
// returns its byte range. Zero matches yield *VariableNotFoundError and more
// than one yield *AmbiguousVariableError.
func LocateVariable(entries []IndexEntry, selector string) (ByteRange, error) {
	var matches []int
	for i, e := range entries {
		if strings.Contains(e.Descriptor, selector) {
			matches = append(matches, i)
		}
	}

	switch len(matches) {
	case 0:
		return ByteRange{}, &VariableNotFoundError{Selector: selector}
	case 1:
	default:
		lines := make([]int, len(matches))
		for k, i := range matches {
			lines[k] = entries[i].Line
		}
		return ByteRange{}, &AmbiguousVariableError{Selector: selector, Lines: lines}
	}

	idx := matches[0]
	cur := entries[idx]
	if cur.offsetErr != "" {
		return ByteRange{}, &IndexFormatError{Line: cur.Line, Text: cur.Descriptor, Reason: cur.offsetErr}
	}

	if idx+1 == len(entries) {
		return ByteRange{Start: cur.Offset, End: ToEOF}, nil
	}

	next := entries[idx+1]
	if next.offsetErr != "" {
		return ByteRange{}, &IndexFormatError{Line: next.Line, Text: next.Descriptor, Reason: next.offsetErr}
	}
	if next.Offset < cur.Offset {
		return ByteRange{}, &IndexFormatError{Line: next.Line, Text: next.Descriptor, Reason: "offset precedes the matched record"}
	}
	return ByteRange{Start: cur.Offset, End: next.Offset}, nil
}
