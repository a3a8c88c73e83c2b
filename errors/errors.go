// Package errors provides error handling for edithist.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for user-facing messages
//
// Usage:
//
//	// Wrap with context
//	if err := parser.Next(); err != nil {
//	    return errors.Wrap(err, "failed to read next item")
//	}
//
//	// Classify dump failures
//	if errors.Is(err, errors.ErrStreamFormat) {
//	    // abandon this file, continue with the next one
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	CombineErrors      = crdb.CombineErrors
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails

	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Sentinel errors. Wrap these to add context; check them with Is().
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrStreamFormat indicates the dump markup is structurally invalid
	// (unbalanced tags, truncated input). Fatal to the file being read.
	ErrStreamFormat = New("malformed dump stream")

	// ErrPayloadParse indicates a revision declared the structured media type
	// but its text did not parse. Fatal to that revision only.
	ErrPayloadParse = New("malformed revision payload")

	// ErrSinkWrite indicates the output sink could not persist a batch.
	ErrSinkWrite = New("sink write failed")

	// ErrConfig indicates a missing or invalid configuration value.
	ErrConfig = New("invalid configuration")
)

// StreamFormatError reports where in a dump file the token stream broke.
type StreamFormatError struct {
	File   string
	Offset int64
	Err    error
}

// NewStreamFormatError marks cause as ErrStreamFormat and records its position.
func NewStreamFormatError(file string, offset int64, cause error) *StreamFormatError {
	return &StreamFormatError{File: file, Offset: offset, Err: Mark(cause, ErrStreamFormat)}
}

func (e *StreamFormatError) Error() string {
	return fmt.Sprintf("%s: malformed dump at offset %d: %v", e.File, e.Offset, e.Err)
}

func (e *StreamFormatError) Unwrap() error { return e.Err }

// PayloadParseError identifies the revision whose payload failed to parse so
// it can be reprocessed by hand.
type PayloadParseError struct {
	Item     string
	Revision uint64
	Err      error
}

// NewPayloadParseError marks cause as ErrPayloadParse.
func NewPayloadParseError(item string, revision uint64, cause error) *PayloadParseError {
	return &PayloadParseError{Item: item, Revision: revision, Err: Mark(cause, ErrPayloadParse)}
}

func (e *PayloadParseError) Error() string {
	return fmt.Sprintf("item %s revision %d: %v", e.Item, e.Revision, e.Err)
}

func (e *PayloadParseError) Unwrap() error { return e.Err }

// NewConfigError creates a configuration error with a formatted message
func NewConfigError(format string, args ...interface{}) error {
	return Wrap(ErrConfig, Newf(format, args...).Error())
}

// WrapSinkError wraps a sink failure so callers can test for ErrSinkWrite
func WrapSinkError(err error, context string) error {
	return Wrap(Mark(err, ErrSinkWrite), context)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
