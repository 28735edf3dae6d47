// Package apperr holds the error taxonomy shared by the lifecycle core and its transports.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindInvalidTransition  Kind = "invalid_transition"
	KindValidation         Kind = "validation_error"
	KindConflict           Kind = "conflict"
	KindStorageUnavailable Kind = "storage_unavailable"
)

// Error is a classified failure. Two errors match under errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "authentication required"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "conflict"}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable, Message: "storage unavailable"}
)

// KindOf returns the kind of the first classified error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(action string) error {
	return &Error{
		Kind:    KindForbidden,
		Message: fmt.Sprintf("forbidden: %s", action),
		Details: map[string]any{"action": action},
	}
}

func NotFound(entity, id string) error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %s not found", entity, id),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

func InvalidTransition(entity, from, to string) error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("invalid %s transition %s -> %s", entity, from, to),
		Details: map[string]any{"entity": entity, "from": from, "to": to},
	}
}

func Validation(field, msg string) error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("%s: %s", field, msg),
		Details: map[string]any{"field": field},
	}
}

func Conflict(msg string, details map[string]any) error {
	return &Error{Kind: KindConflict, Message: msg, Details: details}
}

func Unavailable(err error) error {
	return &Error{Kind: KindStorageUnavailable, Message: "storage unavailable", Err: err}
}
