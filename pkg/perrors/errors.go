// Package perrors defines the classified error type shared by every
// package in this module.
package perrors

import (
	"errors"
	"fmt"
)

// Class buckets an Error by what went wrong rather than where.
// Callers branch on Class, never on the wrapped message text.
type Class int

const (
	// ClassUnknown is the zero value; never constructed deliberately.
	ClassUnknown Class = iota
	// ClassStructural marks malformed build-graph input: option clashes,
	// dependency cycles, unknown target references.
	ClassStructural
	// ClassIO marks failures reading or writing the filesystem.
	ClassIO
	// ClassParse marks malformed Pylon or other textual input.
	ClassParse
	// ClassSchemaMismatch marks reflected data that doesn't match the
	// type it's being bound to (missing field, incompatible synthesized
	// struct, bad link index).
	ClassSchemaMismatch
	// ClassProgrammer marks invariant violations that indicate a bug in
	// this module rather than bad input (double-registration, use of a
	// released handle, a module function is still nil).
	ClassProgrammer
)

func (c Class) String() string {
	switch c {
	case ClassStructural:
		return "structural"
	case ClassIO:
		return "io"
	case ClassParse:
		return "parse"
	case ClassSchemaMismatch:
		return "schema_mismatch"
	case ClassProgrammer:
		return "programmer"
	default:
		return "unknown"
	}
}

// Error is the classified error type every package in this module
// returns. It carries enough context to log and to branch on without
// string-matching.
type Error struct {
	Class     Class
	Code      string
	Resource  string // target, job, or extern name this error concerns
	Operation string // the operation being performed when it occurred
	Err       error
	Details   map[string]string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s]", e.Class)
	if e.Code != "" {
		msg += fmt.Sprintf("[%s]", e.Code)
	}
	if e.Operation != "" {
		msg += " " + e.Operation
	}
	if e.Resource != "" {
		msg += fmt.Sprintf(" (%s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on Class and Code alone, so callers can test
// `errors.Is(err, perrors.New(perrors.ClassParse, ""))` without
// constructing a full Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Class != ClassUnknown && t.Class != e.Class {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return true
}

// New constructs a bare classified error, typically used as an
// errors.Is target.
func New(class Class, code string) *Error {
	return &Error{Class: class, Code: code}
}

func newf(class Class, code, format string, args ...interface{}) *Error {
	return &Error{Class: class, Code: code, Err: fmt.Errorf(format, args...)}
}

// Structural wraps a build-graph structural failure.
func Structural(format string, args ...interface{}) *Error {
	return newf(ClassStructural, "", format, args...)
}

// IO wraps a filesystem failure.
func IO(err error) *Error {
	return &Error{Class: ClassIO, Err: err}
}

// Parse wraps a textual-input parse failure.
func Parse(format string, args ...interface{}) *Error {
	return newf(ClassParse, "", format, args...)
}

// SchemaMismatch wraps a reflected-data/type mismatch.
func SchemaMismatch(format string, args ...interface{}) *Error {
	return newf(ClassSchemaMismatch, "", format, args...)
}

// Programmer wraps an internal invariant violation.
func Programmer(format string, args ...interface{}) *Error {
	return newf(ClassProgrammer, "", format, args...)
}

func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// ClassOf extracts the Class of err if it is (or wraps) an *Error.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassUnknown
}

// IsStructural reports whether err is a structural classified error.
func IsStructural(err error) bool { return ClassOf(err) == ClassStructural }

// IsIO reports whether err is an IO classified error.
func IsIO(err error) bool { return ClassOf(err) == ClassIO }

// IsParse reports whether err is a parse classified error.
func IsParse(err error) bool { return ClassOf(err) == ClassParse }

// IsSchemaMismatch reports whether err is a schema-mismatch classified error.
func IsSchemaMismatch(err error) bool { return ClassOf(err) == ClassSchemaMismatch }

// IsProgrammer reports whether err is a programmer-error classified error.
func IsProgrammer(err error) bool { return ClassOf(err) == ClassProgrammer }
