package apperr

import (
	"errors"
	"fmt"
)

// Error is a classified failure carrying a caller-safe message.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error of the same kind, so sentinels compare by kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && (other.Message == "" || other.Message == e.Message)
}

// New builds an error of the given kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(msg string) error {
	return New(KindNotFound, msg)
}

func InvalidArg(msg string) error {
	return New(KindInvalidArgument, msg)
}

func Forbidden(msg string) error {
	return New(KindPermissionDenied, msg)
}

func Unauthorized(msg string) error {
	return New(KindUnauthenticated, msg)
}

func AlreadySetUp(msg string) error {
	return New(KindConflictAlreadySetUp, msg)
}

// GenerationFailed keeps the engine diagnostic in the message.
func GenerationFailed(cause error) error {
	msg := "key generation failed"
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return Wrap(KindGenerationFailed, msg, cause)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the text safe to show to untrusted callers.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "internal error"
}
