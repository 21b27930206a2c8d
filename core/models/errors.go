package models

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrMetadataMissing marks a package whose distribution metadata could not be found.
	ErrMetadataMissing = errors.New("package metadata missing")
	// ErrOutsideRoot marks a path that resolves outside the project root.
	ErrOutsideRoot = errors.New("path outside project root")
	// ErrUnresolved marks an import that maps to no file or package.
	ErrUnresolved = errors.New("unresolved reference")
)

// UsageError is returned for malformed invocations.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func NewUsageError(format string, args ...interface{}) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// ParseError is recorded on an ImportSet when source text fails to parse.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// TraceError carries the stack of the goroutine where a trace failed.
type TraceError struct {
	Err   error
	Stack []byte
}

// NewTraceError captures the current stack around err. An error that already
// carries a stack is returned unchanged.
func NewTraceError(err error) error {
	if err == nil {
		return nil
	}
	var traced *TraceError
	if errors.As(err, &traced) {
		return err
	}
	return &TraceError{Err: err, Stack: debug.Stack()}
}

func (e *TraceError) Error() string {
	return e.Err.Error()
}

func (e *TraceError) Unwrap() error {
	return e.Err
}
