// Package errors defines the failure taxonomy raised by the resolution engine.
//
// This is a leaf package: the engine implementations, the admission gate, the
// export session manager and the status classifier all import it, and it
// imports none of them.
//
// Kinds form a shallow hierarchy (see Kind.Parent). A NotFound failure is also
// a BadInput failure, a RetryTimeoutExceeded failure is also Retryable, and so
// on. Anything that needs to map kinds to wire codes must test the most
// specific kinds first.
package errors

import (
	stderrors "errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies the category of an engine failure.
type Kind int

const (
	// KindGeneric is an engine failure that fits no narrower category.
	KindGeneric Kind = iota + 1

	// KindBadInput indicates malformed caller input.
	KindBadInput

	// KindNotFound indicates a referenced record, entity or handle is absent.
	KindNotFound

	// KindUnknownDataSource indicates a data source code that was never registered.
	KindUnknownDataSource

	// KindConfiguration indicates the engine configuration prevents the call.
	KindConfiguration

	// KindReplaceConflict indicates an optimistic configuration replace lost a race.
	KindReplaceConflict

	// KindRetryable indicates a transient failure; the caller may retry.
	KindRetryable

	// KindDatabaseConnectionLost indicates the storage connection dropped.
	KindDatabaseConnectionLost

	// KindDatabaseTransient indicates a storage-level conflict or timeout.
	KindDatabaseTransient

	// KindRetryTimeoutExceeded indicates the engine exhausted its internal retry budget.
	KindRetryTimeoutExceeded

	// KindUnrecoverable indicates the engine is in a state it cannot recover from.
	KindUnrecoverable

	// KindDatabase indicates a non-transient storage failure.
	KindDatabase

	// KindLicense indicates the configured entitlement has been exhausted.
	KindLicense

	// KindNotInitialized indicates the engine, or the environment holding it,
	// is not (or no longer) available.
	KindNotInitialized

	// KindUnhandled indicates an internal engine bug.
	KindUnhandled

	// KindUnimplemented indicates an operation that is deliberately not exposed.
	KindUnimplemented

	// KindThrottled indicates the caller exceeded a request rate limit.
	KindThrottled
)

type kindInfo struct {
	name   string
	parent Kind
	code   int
}

// kinds holds the name, parent and default numeric code of every kind. Codes
// are stable: they travel on the wire inside reason strings and FromCode maps
// them back.
var kinds = map[Kind]kindInfo{
	KindGeneric:                {name: "Generic", code: 1},
	KindBadInput:               {name: "BadInput", parent: KindGeneric, code: 2},
	KindNotFound:               {name: "NotFound", parent: KindBadInput, code: 33},
	KindUnknownDataSource:      {name: "UnknownDataSource", parent: KindBadInput, code: 23},
	KindConfiguration:          {name: "Configuration", parent: KindGeneric, code: 14},
	KindReplaceConflict:        {name: "ReplaceConflict", parent: KindGeneric, code: 7245},
	KindRetryable:              {name: "Retryable", parent: KindGeneric, code: 10},
	KindDatabaseConnectionLost: {name: "DatabaseConnectionLost", parent: KindRetryable, code: 1006},
	KindDatabaseTransient:      {name: "DatabaseTransient", parent: KindRetryable, code: 1008},
	KindRetryTimeoutExceeded:   {name: "RetryTimeoutExceeded", parent: KindRetryable, code: 1009},
	KindUnrecoverable:          {name: "Unrecoverable", parent: KindGeneric, code: 20},
	KindDatabase:               {name: "Database", parent: KindUnrecoverable, code: 1001},
	KindLicense:                {name: "License", parent: KindUnrecoverable, code: 9000},
	KindNotInitialized:         {name: "NotInitialized", parent: KindUnrecoverable, code: 48},
	KindUnhandled:              {name: "Unhandled", parent: KindUnrecoverable, code: 999},
	KindUnimplemented:          {name: "Unimplemented", code: 501},
	KindThrottled:              {name: "Throttled", code: 429},
}

// codeToKind is the inverse of kinds[k].code.
var codeToKind = func() map[int]Kind {
	m := make(map[int]Kind, len(kinds))
	for k, info := range kinds {
		m[info.code] = k
	}
	return m
}()

// String returns the kind name.
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Parent returns the enclosing kind, or 0 for a root kind.
func (k Kind) Parent() Kind {
	return kinds[k].parent
}

// Code returns the default numeric code for the kind.
func (k Kind) Code() int {
	return kinds[k].code
}

// Is reports whether k is target or descends from it.
func (k Kind) Is(target Kind) bool {
	for cur := k; cur != 0; cur = cur.Parent() {
		if cur == target {
			return true
		}
	}
	return false
}

// Error is a categorized engine failure.
type Error struct {
	Kind    Kind
	Code    int
	Message string

	cause error
	stack pkgerrors.StackTrace
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// StackTrace returns the call stack captured when the error was built.
// The first frames belong to this package.
func (e *Error) StackTrace() pkgerrors.StackTrace {
	return e.stack
}

// Format supports %+v printing the message followed by the stack trace.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprint(s, e.Error())
			e.stack.Format(s, verb)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// callers captures the current stack through pkg/errors.
func callers() pkgerrors.StackTrace {
	type stackTracer interface {
		StackTrace() pkgerrors.StackTrace
	}
	st, _ := pkgerrors.New("").(stackTracer)
	return st.StackTrace()
}

func build(kind Kind, code int, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
		stack:   callers(),
	}
}

// New creates an error of the given kind with the kind's default code.
func New(kind Kind, format string, args ...any) *Error {
	return build(kind, kind.Code(), nil, format, args...)
}

// NewWithCode creates an error with an explicit numeric code.
func NewWithCode(kind Kind, code int, format string, args ...any) *Error {
	return build(kind, code, nil, format, args...)
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return build(kind, kind.Code(), cause, format, args...)
}

// NewNotFound creates a KindNotFound error.
func NewNotFound(format string, args ...any) *Error {
	return build(KindNotFound, KindNotFound.Code(), nil, format, args...)
}

// NewBadInput creates a KindBadInput error.
func NewBadInput(format string, args ...any) *Error {
	return build(KindBadInput, KindBadInput.Code(), nil, format, args...)
}

// NewUnknownDataSource creates a KindUnknownDataSource error for code.
func NewUnknownDataSource(code string) *Error {
	return build(KindUnknownDataSource, KindUnknownDataSource.Code(), nil, "unknown data source %q", code)
}

// NewConfiguration creates a KindConfiguration error.
func NewConfiguration(format string, args ...any) *Error {
	return build(KindConfiguration, KindConfiguration.Code(), nil, format, args...)
}

// NewReplaceConflict creates a KindReplaceConflict error.
func NewReplaceConflict(expected, actual int64) *Error {
	return build(KindReplaceConflict, KindReplaceConflict.Code(), nil,
		"configuration version mismatch: expected %d, current %d", expected, actual)
}

// NewNotInitialized creates a KindNotInitialized error around cause.
func NewNotInitialized(cause error, format string, args ...any) *Error {
	return build(KindNotInitialized, KindNotInitialized.Code(), cause, format, args...)
}

// NewRetryTimeoutExceeded creates a KindRetryTimeoutExceeded error.
func NewRetryTimeoutExceeded(attempts int, cause error) *Error {
	return build(KindRetryTimeoutExceeded, KindRetryTimeoutExceeded.Code(), cause,
		"retry budget exhausted after %d attempts", attempts)
}

// NewLicense creates a KindLicense error.
func NewLicense(limit int64) *Error {
	return build(KindLicense, KindLicense.Code(), nil, "record limit of %d reached", limit)
}

// NewDatabase creates a KindDatabase error around cause.
func NewDatabase(cause error, op string) *Error {
	return build(KindDatabase, KindDatabase.Code(), cause, "database failure during %s", op)
}

// NewUnimplemented creates a KindUnimplemented error for operation.
func NewUnimplemented(operation string) *Error {
	return build(KindUnimplemented, KindUnimplemented.Code(), nil, "%s is not implemented", operation)
}

// NewThrottled creates a KindThrottled error.
func NewThrottled(method string) *Error {
	return build(KindThrottled, KindThrottled.Code(), nil, "rate limit exceeded for %s", method)
}

// NewGeneric wraps an arbitrary failure into a generic engine error.
func NewGeneric(cause error) *Error {
	return build(KindGeneric, KindGeneric.Code(), cause, "unexpected failure")
}

// FromCode rebuilds an error from a numeric code and message, as decoded from
// a reason string. Unknown codes yield KindGeneric.
func FromCode(code int, message string) *Error {
	kind, ok := codeToKind[code]
	if !ok {
		kind = KindGeneric
	}
	return build(kind, code, nil, "%s", message)
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	if e, ok := As(err); ok {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries an *Error whose kind is or descends from kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k.Is(kind)
}

// IsDomain reports whether err carries an *Error anywhere in its chain.
func IsDomain(err error) bool {
	_, ok := As(err)
	return ok
}

// IsNotFound reports whether err is a NotFound failure.
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// IsBadInput reports whether err is a BadInput failure, including NotFound
// and UnknownDataSource.
func IsBadInput(err error) bool {
	return IsKind(err, KindBadInput)
}

// IsRetryable reports whether err is a Retryable failure.
func IsRetryable(err error) bool {
	return IsKind(err, KindRetryable)
}

// IsNotInitialized reports whether err is a NotInitialized failure.
func IsNotInitialized(err error) bool {
	return IsKind(err, KindNotInitialized)
}
