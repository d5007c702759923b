package types

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned when a PGI value is requested for a set of
// records none of which has a non-zero control. It is never reported as 0%.
var ErrInsufficientData = errors.New("insufficient data")

// ErrNotFound is returned when a requested isolate or fungus does not occur
// in the dataset at all.
var ErrNotFound = errors.New("not found")

// ValidationError describes a record field that is empty, non-finite or
// out of range.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IndexError is returned by edit and delete operations that reference a
// position outside the dataset.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Len)
}

// RowError is one rejected row of a bulk import. Line is 1-based and counts
// the header, so the first data row is line 2.
type RowError struct {
	Line   int    `json:"line"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Column, e.Reason)
}
