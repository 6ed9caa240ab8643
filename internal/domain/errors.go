package domain

import (
	"fmt"
	"strings"
)

// VariableNotFoundError is returned when no index line contains the selector.
type VariableNotFoundError struct {
	Selector string
}

func (e *VariableNotFoundError) Error() string {
	return fmt.Sprintf("variable %q not found in index", e.Selector)
}

// AmbiguousVariableError is returned when more than one index line contains
// the selector. Lines holds the 1-based line numbers of every match.
type AmbiguousVariableError struct {
	Selector string
	Lines    []int
}

func (e *AmbiguousVariableError) Error() string {
	nums := make([]string, len(e.Lines))
	for i, n := range e.Lines {
		nums[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("variable %q matches %d index lines (%s); narrow the selector",
		e.Selector, len(e.Lines), strings.Join(nums, ", "))
}

// IndexFormatError reports an index line whose offset field is unusable.
type IndexFormatError struct {
	Line   int
	Text   string
	Reason string
}

func (e *IndexFormatError) Error() string {
	return fmt.Sprintf("index line %d %q: %s", e.Line, e.Text, e.Reason)
}

// TransferError wraps a read or write failure against a store or scratch file.
type TransferError struct {
	Op     string // "read index", "read range", "write scratch", "upload"
	Bucket string
	Key    string
	Err    error
}

func (e *TransferError) Error() string {
	if e.Bucket == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// DecodeError wraps a failure to turn a downloaded record into a Grid.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// GridShapeError reports coordinate or value arrays that do not fit Nx×Ny.
type GridShapeError struct {
	Field    string
	Got      int
	Expected string
}

func (e *GridShapeError) Error() string {
	return fmt.Sprintf("grid %s has %d elements, expected %s", e.Field, e.Got, e.Expected)
}
