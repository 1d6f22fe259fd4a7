package upload

import (
	"errors"
	"fmt"
)

// Kind classifies an upload error for HTTP status mapping.
type Kind int

const (
	// KindAuthorization covers wrong-owner and bad-token failures.
	KindAuthorization Kind = iota + 1
	// KindValidation covers malformed fields and out-of-range slots.
	KindValidation
	// KindConflict covers slot mismatches and out-of-order chunk indices.
	KindConflict
	// KindQuota covers per-chunk and per-upload byte ceilings.
	KindQuota
	// KindNotFound covers unknown uploads at finish time.
	KindNotFound
	// KindStorage covers filesystem failures; the session is left intact so
	// the same request can be retried.
	KindStorage
)

// Error is the typed error returned by the upload core.
type Error struct {
	Kind    Kind
	Message string
	// Expected carries the next acceptable chunk index on ordering conflicts.
	Expected int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a typed upload error, if err carries one.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

func errAuthorization(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func errValidation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func errConflict(expected int, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Expected: expected, Message: fmt.Sprintf(format, args...)}
}

func errQuota(format string, args ...interface{}) *Error {
	return &Error{Kind: KindQuota, Message: fmt.Sprintf(format, args...)}
}

func errNotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func errStorage(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindStorage, Message: fmt.Sprintf(format, args...), Err: err}
}
