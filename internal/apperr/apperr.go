// Package apperr defines the error taxonomy shared across the core
// components, per the propagation policy in the system design: every
// error raised inside a component is tagged with a Kind so the RPC
// boundary can translate it to a canonical {code, message} envelope
// without each handler re-deriving the mapping.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for RPC-boundary translation.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindNotFound     Kind = "not_found"
	KindInvariant    Kind = "invariant_violation"
	KindConflict     Kind = "conflict"
	KindGuardrail    Kind = "guardrail_block"
	KindProvider     Kind = "provider_error"
	KindInternal     Kind = "internal"
)

// Error is a Kind-tagged error that wraps an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target shares this error's Kind, so callers can
// write errors.Is(err, apperr.NotFound) style checks against the sentinel
// constructors below.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound, InvalidInput, etc. construct errors of the given kind. They
// double as sentinels for errors.Is checks (e.g. errors.Is(err, apperr.NotFound(""))
// is awkward, so prefer KindOf(err) == apperr.KindNotFound at call sites).
func NotFound(message string) *Error       { return New(KindNotFound, message) }
func InvalidInput(message string) *Error   { return New(KindInvalidInput, message) }
func Invariant(message string) *Error      { return New(KindInvariant, message) }
func Conflict(message string, c error) *Error { return Wrap(KindConflict, message, c) }
func Guardrail(message string) *Error      { return New(KindGuardrail, message) }
func Provider(message string, c error) *Error { return Wrap(KindProvider, message, c) }
func Internal(message string, c error) *Error { return Wrap(KindInternal, message, c) }

// KindOf extracts the Kind of err, walking wrapped errors. Returns
// KindInternal for errors that never opted into the taxonomy, matching
// the propagation policy's "else INTERNAL" fallback.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Code maps a Kind to the RPC-boundary code string used in wire error
// envelopes.
func Code(kind Kind) string {
	switch kind {
	case KindInvalidInput:
		return "INVALID_PARAMS"
	case KindNotFound:
		return "NOT_FOUND"
	case KindInvariant:
		return "INVARIANT_VIOLATION"
	case KindConflict:
		return "CONFLICT"
	case KindGuardrail:
		return "GUARDRAIL_BLOCK"
	case KindProvider:
		return "PROVIDER_ERROR"
	default:
		return "INTERNAL"
	}
}
