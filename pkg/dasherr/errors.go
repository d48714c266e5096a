package dasherr

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline. Wrap them with fmt.Errorf("...: %w")
// to attach context; match with errors.Is.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownSheet    = errors.New("sheet not found")
	ErrUnknownColumn   = errors.New("column not found")
	ErrInvalidEdit     = errors.New("invalid edit")
	ErrEditingDisabled = errors.New("editing is disabled")
	ErrNotNumeric      = errors.New("column is not numeric")
	ErrNotDate         = errors.New("column is not a date column")
	ErrUploadTooLarge  = errors.New("upload exceeds the configured size")
	ErrCursorInvalid   = errors.New("cursor is invalid for the current view")
)

// NotFoundError reports that no spreadsheet source could be resolved.
type NotFoundError struct {
	Source string
	Err    error
}

func (e *NotFoundError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("no spreadsheet source available: %v", e.Err)
	}
	return fmt.Sprintf("spreadsheet source %q not found: %v", e.Source, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ParseError reports malformed or unreadable spreadsheet bytes.
type ParseError struct {
	Source string
	Sheet  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("parse %q (sheet %q): %v", e.Source, e.Sheet, e.Err)
	}
	return fmt.Sprintf("parse %q: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SerializationError reports a value that cannot be written to the export format.
type SerializationError struct {
	Sheet string
	Cell  string
	Err   error
}

func (e *SerializationError) Error() string {
	if e.Cell != "" {
		return fmt.Sprintf("serialize sheet %q cell %s: %v", e.Sheet, e.Cell, e.Err)
	}
	return fmt.Sprintf("serialize sheet %q: %v", e.Sheet, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// NewNotFound builds a NotFoundError.
func NewNotFound(source string, err error) *NotFoundError {
	return &NotFoundError{Source: source, Err: err}
}

// NewParse builds a ParseError.
func NewParse(source, sheet string, err error) *ParseError {
	return &ParseError{Source: source, Sheet: sheet, Err: err}
}

// NewSerialization builds a SerializationError.
func NewSerialization(sheet, cell string, err error) *SerializationError {
	return &SerializationError{Sheet: sheet, Cell: cell, Err: err}
}
