package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes core errors.
type ErrorCode string

const (
	// CodeObjectNotFound indicates an absent or nil object id.
	CodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"

	// CodePropertyNotFound indicates an unknown property name.
	CodePropertyNotFound ErrorCode = "PROPERTY_NOT_FOUND"

	// CodeOverwrite indicates an add with an id already present.
	CodeOverwrite ErrorCode = "OVERWRITE"

	// CodeTimedOut indicates an entry lock could not be acquired in time.
	CodeTimedOut ErrorCode = "TIMED_OUT"

	// CodeNoUndoEvent indicates an unknown pending event, or no event to
	// undo/redo for a user.
	CodeNoUndoEvent ErrorCode = "NO_UNDO_EVENT"

	// CodeFileNotFound indicates a registry or storage lookup miss.
	CodeFileNotFound ErrorCode = "FILE_NOT_FOUND"

	// CodeUserNotFound indicates an unknown user.
	CodeUserNotFound ErrorCode = "USER_NOT_FOUND"

	// CodeLacksCapability indicates the target entity lacks a capability.
	CodeLacksCapability ErrorCode = "LACKS_CAPABILITY"

	// CodeLocked is reserved for pessimistic locking; currently unused.
	CodeLocked ErrorCode = "LOCKED"

	// CodeOther wraps serialization, I/O and third-party errors.
	CodeOther ErrorCode = "OTHER"
)

// Error is the coded error type returned by core operations.
//
// Two Errors match under errors.Is when their codes are equal, so callers
// test against the sentinels below:
//
//	if errors.Is(err, model.ErrObjectNotFound) { ... }
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrObjectNotFound   = &Error{Code: CodeObjectNotFound, Message: "object not found"}
	ErrPropertyNotFound = &Error{Code: CodePropertyNotFound, Message: "property not found"}
	ErrOverwrite        = &Error{Code: CodeOverwrite, Message: "object already exists"}
	ErrTimedOut         = &Error{Code: CodeTimedOut, Message: "timed out acquiring lock"}
	ErrNoUndoEvent      = &Error{Code: CodeNoUndoEvent, Message: "no undo event"}
	ErrFileNotFound     = &Error{Code: CodeFileNotFound, Message: "file not found"}
	ErrUserNotFound     = &Error{Code: CodeUserNotFound, Message: "user not found"}
	ErrLacksCapability  = &Error{Code: CodeLacksCapability, Message: "entity lacks capability"}
	ErrLocked           = &Error{Code: CodeLocked, Message: "locked"}
	ErrOther            = &Error{Code: CodeOther, Message: "other"}
)

// ObjectNotFound returns a CodeObjectNotFound error for id.
func ObjectNotFound(id ObjectID) error {
	return &Error{Code: CodeObjectNotFound, Message: fmt.Sprintf("object %s not found", id)}
}

// PropertyNotFound returns a CodePropertyNotFound error naming the keys tried.
func PropertyNotFound(kind string, names ...string) error {
	return &Error{Code: CodePropertyNotFound, Message: fmt.Sprintf("%s has no property %q", kind, names)}
}

// Overwrite returns a CodeOverwrite error for id.
func Overwrite(id ObjectID) error {
	return &Error{Code: CodeOverwrite, Message: fmt.Sprintf("object %s already exists", id)}
}

// TimedOut returns a CodeTimedOut error for id.
func TimedOut(id ObjectID) error {
	return &Error{Code: CodeTimedOut, Message: fmt.Sprintf("timed out locking object %s", id)}
}

// NoUndoEvent returns a CodeNoUndoEvent error with a description.
func NoUndoEvent(format string, args ...any) error {
	return &Error{Code: CodeNoUndoEvent, Message: fmt.Sprintf(format, args...)}
}

// FileNotFound returns a CodeFileNotFound error for path.
func FileNotFound(path string) error {
	return &Error{Code: CodeFileNotFound, Message: fmt.Sprintf("file %q not found", path)}
}

// UserNotFound returns a CodeUserNotFound error for user.
func UserNotFound(user UserID) error {
	return &Error{Code: CodeUserNotFound, Message: fmt.Sprintf("user %s not found", user)}
}

// LacksCapability returns a CodeLacksCapability error.
func LacksCapability(id ObjectID, capability string) error {
	return &Error{Code: CodeLacksCapability, Message: fmt.Sprintf("object %s is not %s", id, capability)}
}

// Other wraps err as a CodeOther error. Already-coded errors pass through.
func Other(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: CodeOther, Message: "operation failed", Err: err}
}

// Otherf returns a CodeOther error with a formatted message.
func Otherf(format string, args ...any) error {
	return &Error{Code: CodeOther, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from err, or "" when err is nil or uncoded.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
