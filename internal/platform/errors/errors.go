package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig    Kind = "config"
	KindDomain    Kind = "domain"
	KindTransport Kind = "transport"
	KindPlatform  Kind = "platform"
	KindBootstrap Kind = "bootstrap"
	KindStorage   Kind = "storage"
	KindUnknown   Kind = "unknown"

	// Request pipeline failures. These are surfaced to callers and mapped to
	// transport status codes, so renaming one is a wire change.
	KindInvalidInput     Kind = "invalid_input"
	KindUpstreamFetch    Kind = "upstream_fetch"
	KindUpstreamTimeout  Kind = "upstream_timeout"
	KindModelUnavailable Kind = "model_unavailable"
	KindInference        Kind = "inference"
	KindContextRetrieval Kind = "context_retrieval"
	KindSynthesis        Kind = "synthesis"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap attaches kind information to err. An error that already carries a
// kind is returned unchanged so the innermost classification wins.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

// Reclassify always produces an error of the given kind, keeping err as the
// cause. Used at boundaries where every collaborator failure has one meaning.
func Reclassify(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Kind == kind {
		return typed
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			if target.Kind == kind {
				return true
			}
			err = target.Cause
			continue
		}
		err = errors.Unwrap(err)
	}
	return false
}

// KindOf returns the outermost kind in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// MessageOf returns the typed message when present, otherwise err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var target *Error
	if errors.As(err, &target) && target.Message != "" {
		return target.Message
	}
	return err.Error()
}
