// Package errors defines the closed taxonomy of error kinds surfaced by qs,
// along with the PostgreSQL ErrorResponse fields carried by Database errors.
package errors

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/qspg/qs/codes"
)

// Kind is a closed set of error categories. Each constant's comment says
// whether that kind is fatal to the connection, fatal to the operation, or
// recoverable.
type Kind string

const (
	// ConfigParse indicates a malformed connection URL or environment
	// configuration. Fatal to construction.
	ConfigParse Kind = "config_parse"
	// Io indicates a transport-level failure. Fatal to the connection.
	Io Kind = "io"
	// Protocol indicates an unexpected or malformed backend message.
	// Fatal to the connection.
	Protocol Kind = "protocol"
	// Database indicates the server returned an ErrorResponse. Recoverable:
	// the connection is resynced via ReadyForQuery.
	Database Kind = "database"
	// UnsupportedAuth indicates the server requested an authentication
	// method other than cleartext password or trust. Fatal to the
	// connection.
	UnsupportedAuth Kind = "unsupported_auth"
	// Utf8 indicates non-UTF8 bytes where text was required. Fatal to the
	// operation.
	Utf8 Kind = "utf8"
	// OidMismatch indicates a result decoder's expected OID differs from
	// the column's OID. Fatal to the operation.
	OidMismatch Kind = "oid_mismatch"
	// ColumnNotFound indicates a named column lookup failed. Fatal to the
	// operation.
	ColumnNotFound Kind = "column_not_found"
	// RowNotFound indicates fetch-one ran against an empty result set.
	// Fatal to the operation.
	RowNotFound Kind = "row_not_found"
	// EmptyQuery indicates the server reported an empty query string.
	// Fatal to the operation.
	EmptyQuery Kind = "empty_query"
)

// Source, when known, captures caller location.
type Source struct {
	File string
	Line int
}

// Error is the single error type returned by every qs operation. Its Kind
// field selects one of the taxonomy above; Code/Severity/Detail/Hint are
// only populated for Kind == Database, sourced from the server's
// ErrorResponse fields.
type Error struct {
	Kind     Kind
	Message  string
	Code     codes.Code
	Severity string
	Detail   string
	Hint     string
	Cause    error
	Source   *Source
	trace    []uintptr
}

// New constructs an Error of the given kind with a message, capturing a
// backtrace from the caller.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, trace: captureTrace()}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches a kind to an underlying cause, preserving it for
// errors.Unwrap while presenting a taxonomy-classified message.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}

	return &Error{Kind: kind, Message: cause.Error(), Cause: cause, trace: captureTrace()}
}

// FromFields builds a Database error from the field map of an ErrorResponse
// message, keyed by the single-byte field type defined by the protocol
// (S=severity, C=code, M=message, D=detail, H=hint).
func FromFields(fields map[byte]string) *Error {
	return &Error{
		Kind:     Database,
		Message:  fields['M'],
		Code:     codes.Code(fields['C']),
		Severity: fields['S'],
		Detail:   fields['D'],
		Hint:     fields['H'],
		trace:    captureTrace(),
	}
}

func captureTrace() []uintptr {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// Frames returns the captured backtrace, when the platform supports it.
func (e *Error) Frames() *runtime.Frames {
	if e == nil || len(e.trace) == 0 {
		return nil
	}

	return runtime.CallersFrames(e.trace)
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)

	if e.Kind == Database {
		if e.Code != "" {
			b.WriteString(" (")
			b.WriteString(string(e.Code))
			b.WriteByte(')')
		}

		if e.Detail != "" {
			b.WriteString(": ")
			b.WriteString(e.Detail)
		}

		if e.Hint != "" {
			b.WriteString(" (hint: ")
			b.WriteString(e.Hint)
			b.WriteByte(')')
		}
	}

	return b.String()
}

// GoString gives Error a Debug form identical to its Display form, quoted,
// per the library's error contract.
func (e *Error) GoString() string {
	return strconv.Quote(e.Error())
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target shares this error's Kind, supporting
// errors.Is(err, errors.New(Kind, "")) style checks against a sentinel built
// purely to carry a Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}

	return other.Kind == e.Kind
}

// Sentinel returns a comparison-only *Error of the given kind, useful with
// errors.Is without constructing a full message.
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
