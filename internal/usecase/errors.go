package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrorMissingEmail  ErrorCode = "MISSING_EMAIL"
	ErrorMissingName   ErrorCode = "MISSING_NAME"
	ErrorSessionClosed ErrorCode = "SESSION_CLOSED"
	ErrorNotFound      ErrorCode = "NOT_FOUND"
	ErrorStore         ErrorCode = "STORE_ERROR"
	ErrorInternal      ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Recoverable reports whether the caller should re-prompt the
// conversation rather than treat the attempt as failed.
func (e *Error) Recoverable() bool {
	return e != nil && (e.Code == ErrorMissingEmail || e.Code == ErrorMissingName)
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
