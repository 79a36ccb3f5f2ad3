// Package apperr classifies failures into the kinds the scheduler reacts to
// differently: configuration problems stop the process, transport failures
// are retried on the next tick, validation failures are reported inline and
// store failures are surfaced to the operator.
package apperr

import (
	"errors"
	"sort"
	"strings"
)

// Kind is the high-level class of an error.
type Kind int

const (
	// KindStore represents I/O failures reading or writing persisted state.
	KindStore Kind = iota
	// KindConfiguration represents missing or invalid configuration.
	KindConfiguration
	// KindTransport represents connection, authentication or timeout failures
	// while delivering a message.
	KindTransport
	// KindValidation represents malformed user input.
	KindValidation
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// ErrNotFound indicates the requested item does not exist.
var ErrNotFound = errors.New("not found")

// Error is a classified error. It wraps an optional cause and, for
// validation errors, a field-to-message map.
type Error struct {
	kind   Kind
	op     string
	err    error
	fields map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	if e.op != "" {
		sb.WriteString(e.op)
	}
	if e.err != nil {
		if sb.Len() > 0 {
			sb.WriteString(": ")
		}
		sb.WriteString(e.err.Error())
	}
	if len(e.fields) > 0 {
		if sb.Len() > 0 {
			sb.WriteString(": ")
		}
		sb.WriteString(formatFields(e.fields))
	}
	if sb.Len() == 0 {
		return e.kind.String() + " error"
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the error kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Op returns the operation label.
func (e *Error) Op() string {
	return e.op
}

// Fields returns per-field validation messages, if any.
func (e *Error) Fields() map[string]string {
	return e.fields
}

// Store wraps err as a store failure of op.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: KindStore, op: op, err: err}
}

// Transport wraps err as a delivery failure of op.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: KindTransport, op: op, err: err}
}

// Configuration builds a configuration error. err may be nil when op alone
// describes the problem.
func Configuration(op string, err error) error {
	return &Error{kind: KindConfiguration, op: op, err: err}
}

// Validation builds a validation error from field/message pairs.
func Validation(fields map[string]string) error {
	return &Error{kind: KindValidation, op: "invalid input", fields: fields}
}

// Is reports whether any error in err's chain is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == k
	}
	return false
}

// FieldsOf returns the validation fields carried by err, or nil.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.fields
	}
	return nil
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return strings.Join(parts, "; ")
}
